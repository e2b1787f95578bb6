package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if galleryUseDB {
			return runListDB(cmd.Context())
		}
		g, err := loadGallery()
		if err != nil {
			utils.ShowError("Failed to load gallery", err, nil)
			return err
		}
		printGallery(os.Stdout, g)
		return nil
	},
}

func init() {
	galleryCmd.AddCommand(listCmd)
}

func printGallery(out io.Writer, g *identity.Gallery) {
	if g.Len() == 0 {
		fmt.Fprintln(out, "No identities found in the gallery.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tLABEL\tDIM")
	fmt.Fprintln(w, "-\t-----\t---")
	for i, e := range g.Entries() {
		fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, e.Label, len(e.Vec))
	}
	w.Flush()
}

func runListDB(ctx context.Context) error {
	s, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Database unavailable", err, nil)
		return err
	}
	identities, err := s.ListIdentities(ctx)
	if err != nil {
		utils.ShowError("Failed to list identities", err, nil)
		return err
	}

	if len(identities) == 0 {
		fmt.Println("No identities found in database.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tLABEL\tDIM\tCREATED")
	fmt.Fprintln(w, "-\t-----\t---\t-------")
	for _, id := range identities {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", id.Position+1, id.Label, id.Dim, id.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}
