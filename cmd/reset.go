package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/aist/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB       bool
	resetLogs     bool
	resetSnapshot bool
	resetYes      bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Database, Logs, Gallery)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetLogs && !resetSnapshot {
			resetDB = true
			resetLogs = true
			resetSnapshot = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if resetYes || confirm(os.Stdout, reader, "⚠️  Are you sure you want to DROP all database tables?") {
				s, err := openStore(cmd.Context())
				if err != nil {
					utils.ShowError("Database unavailable", err, nil)
					return err
				}
				fmt.Println("🗑️  Clearing Database...")
				if err := s.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetLogs {
			if resetYes || confirm(os.Stdout, reader, fmt.Sprintf("⚠️  Are you sure you want to delete all result logs in %s?", cfg.Logs.Dir)) {
				fmt.Println("🗑️  Clearing Logs...")
				removePath(cfg.Logs.Dir)
			}
		}

		if resetSnapshot {
			if resetYes || confirm(os.Stdout, reader, fmt.Sprintf("⚠️  Are you sure you want to delete the gallery %s?", cfg.Gallery)) {
				fmt.Println("🗑️  Clearing Gallery...")
				removePath(cfg.Gallery)
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Clear PostgreSQL database")
	resetCmd.Flags().BoolVar(&resetLogs, "logs", false, "Clear result logs")
	// --gallery is taken by the root flag that picks the snapshot
	resetCmd.Flags().BoolVar(&resetSnapshot, "snapshot", false, "Delete the gallery snapshot (the one --gallery selects)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(out io.Writer, r *bufio.Reader, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removePath(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
