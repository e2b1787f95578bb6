package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/aist/internal/gallery"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <label> <new_label>",
	Short: "Rename an identity, e.g. a \"User 3\" picked up during enrollment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runLabel(cmd.Context(), args[0], args[1])
	},
}

func init() {
	galleryCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, from, to string) error {
	if galleryUseDB {
		s, err := openStore(ctx)
		if err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
		if err := s.RenameIdentity(ctx, from, to); err != nil {
			utils.ShowError("Failed to label identity", err, nil)
			return err
		}
		fmt.Printf("✅ Identity '%s' labeled as '%s' in the database\n", from, to)
		return nil
	}

	g, err := loadGallery()
	if err != nil {
		utils.ShowError("Failed to load gallery", err, nil)
		return err
	}
	if err := g.Rename(from, to); err != nil {
		utils.ShowError("Failed to label identity", err, nil)
		return err
	}
	if err := gallery.Save(cfg.Gallery, g); err != nil {
		utils.ShowError("Failed to save gallery", err, nil)
		return err
	}
	fmt.Printf("✅ Identity '%s' labeled as '%s'\n", from, to)
	return nil
}
