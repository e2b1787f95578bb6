package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/aist/internal/gallery"
	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/spf13/cobra"
)

var (
	galleryUseDB bool
	fetchOutput  string
	loadReplace  bool
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the identity gallery (file snapshot and Postgres copy)",
}

var gallerySaveCmd = &cobra.Command{
	Use:   "save <path>",
	Short: "Export the gallery to another snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		g, err := loadGallery()
		if err != nil {
			return err
		}
		if err := gallery.Save(args[0], g); err != nil {
			utils.ShowError("Failed to save gallery", err, nil)
			return err
		}
		fmt.Printf("💾 Saved %d identities to %s\n", g.Len(), args[0])
		return nil
	},
}

var galleryLoadCmd = &cobra.Command{
	Use:   "load <path>...",
	Short: "Merge snapshot files into the gallery",
	Long: `Adds every identity of each snapshot to the active gallery. Files that are
not gallery snapshots are reported and skipped. With --replace the gallery is
emptied first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		g := identity.NewGallery()
		if !loadReplace {
			var err error
			if g, err = loadGallery(); err != nil {
				return err
			}
		}
		merged, err := mergeSnapshots(g, args)
		if err != nil {
			return err
		}
		if merged == 0 {
			return fmt.Errorf("no gallery snapshot could be loaded")
		}
		if err := gallery.Save(cfg.Gallery, g); err != nil {
			utils.ShowError("Failed to save gallery", err, nil)
			return err
		}
		fmt.Printf("✅ Gallery now holds %d identities\n", g.Len())
		return nil
	},
}

// mergeSnapshots adds every loadable snapshot in paths to g and returns how
// many files were merged. Unreadable or foreign files are reported, not fatal.
func mergeSnapshots(g *identity.Gallery, paths []string) (int, error) {
	merged := 0
	for _, path := range paths {
		src, err := gallery.Load(path)
		if errors.Is(err, gallery.ErrNotGallery) || errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "⚠️  Skipping %s: %v\n", path, err)
			continue
		}
		if err != nil {
			return merged, err
		}
		for _, e := range src.Entries() {
			if err := g.Add(e.Label, e.Vec); err != nil {
				return merged, fmt.Errorf("%s: %w", path, err)
			}
		}
		merged++
	}
	return merged, nil
}

var galleryFetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a gallery snapshot over HTTP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		dest := fetchOutput
		if dest == "" {
			dest = cfg.Gallery
		}
		g, err := gallery.Fetch(cmd.Context(), args[0], dest)
		if err != nil {
			utils.ShowError("Failed to fetch gallery", err, nil)
			return err
		}
		fmt.Printf("✅ Fetched %d identities into %s\n", g.Len(), dest)
		return nil
	},
}

var galleryPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Replace the Postgres identities with the gallery file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		g, err := loadGallery()
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context())
		if err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
		if err := s.SaveGallery(cmd.Context(), g); err != nil {
			utils.ShowError("Failed to push gallery", err, nil)
			return err
		}
		fmt.Printf("⬆️  Pushed %d identities\n", g.Len())
		return nil
	},
}

var galleryPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the gallery file with the Postgres identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		s, err := openStore(cmd.Context())
		if err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
		g, err := s.LoadGallery(cmd.Context())
		if err != nil {
			utils.ShowError("Failed to pull gallery", err, nil)
			return err
		}
		if err := gallery.Save(cfg.Gallery, g); err != nil {
			utils.ShowError("Failed to save gallery", err, nil)
			return err
		}
		fmt.Printf("⬇️  Pulled %d identities into %s\n", g.Len(), cfg.Gallery)
		return nil
	},
}

var galleryRemoveCmd = &cobra.Command{
	Use:   "remove <label>",
	Short: "Delete an identity from the gallery file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		g, err := loadGallery()
		if err != nil {
			return err
		}
		if !g.Remove(args[0]) {
			return fmt.Errorf("identity %q not found", args[0])
		}
		if err := gallery.Save(cfg.Gallery, g); err != nil {
			utils.ShowError("Failed to save gallery", err, nil)
			return err
		}
		fmt.Printf("🗑️  Removed '%s'\n", args[0])
		return nil
	},
}

func init() {
	galleryCmd.PersistentFlags().BoolVar(&galleryUseDB, "db", false, "Operate on the Postgres copy (list, label)")
	galleryFetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "Where to store the snapshot (default: the configured gallery)")
	galleryLoadCmd.Flags().BoolVar(&loadReplace, "replace", false, "Start from an empty gallery")

	galleryCmd.AddCommand(gallerySaveCmd, galleryLoadCmd, galleryFetchCmd, galleryPushCmd, galleryPullCmd, galleryRemoveCmd)
	rootCmd.AddCommand(galleryCmd)
}
