package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/unlock"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/andresmejia3/aist/internal/worker"
	"github.com/spf13/cobra"
)

// ErrLocked is returned when neither the face nor the password was accepted.
var ErrLocked = errors.New("access denied")

var (
	unlockCamera    string
	unlockThreshold float64
	unlockOpts      unlock.Options
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Grant access to a known face, falling back to a password",
	Long: `Exits 0 when an enrolled face is recognized or the fallback password is
entered, 1 otherwise. The password digest comes from unlock.password_hash in
the config (or AIST_PASSWORD_HASH); create one with "aist hash".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !cmd.Flags().Changed("threshold") {
			unlockThreshold = cfg.Match.Threshold
		}
		if !cmd.Flags().Changed("attempts") {
			unlockOpts.Attempts = cfg.Unlock.Attempts
		}
		if !cmd.Flags().Changed("password-attempts") {
			unlockOpts.PasswordAttempts = cfg.Unlock.PasswordAttempts
		}
		if err := validateThreshold(unlockThreshold); err != nil {
			return err
		}
		return runUnlock(cmd.Context())
	},
}

func init() {
	unlockCmd.Flags().StringVarP(&unlockCamera, "camera", "c", "0", "Camera index, device or stream URL")
	unlockCmd.Flags().Float64VarP(&unlockThreshold, "threshold", "t", 0.7, "Match threshold (Euclidean distance, lower is stricter)")
	unlockCmd.Flags().IntVarP(&unlockOpts.Attempts, "attempts", "a", unlock.DefaultAttempts, "Unknown faces tolerated before giving up on the camera")
	unlockCmd.Flags().IntVar(&unlockOpts.PasswordAttempts, "password-attempts", unlock.DefaultPasswordAttempts, "Passwords that may be tried afterwards")
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(ctx context.Context) error {
	g, err := loadGallery()
	if err != nil {
		utils.ShowError("Failed to load gallery", err, nil)
		return err
	}

	sources, err := openSources(ctx, []string{unlockCamera})
	if err != nil {
		utils.ShowError("Failed to open camera", err, nil)
		return err
	}
	defer capture.CloseAll(sources)

	engine, err := worker.NewFaceWorker(ctx, 0, workerConfig())
	if err != nil {
		return engineError("Failed to start face engine", err, nil)
	}
	defer engine.Close()

	u := unlock.New(newRecognizer(g, engine, unlockThreshold), unlock.NewTermPrompter())
	if cfg.Unlock.PasswordHash != "" {
		if err := u.SetPassword(cfg.Unlock.PasswordHash, cfg.Unlock.Method); err != nil {
			utils.ShowError("Invalid password settings", err, nil)
			return err
		}
	}

	fmt.Fprintln(os.Stderr, "🔐 Look at the camera to unlock...")
	ok, err := u.Unlock(ctx, sources[0], unlockOpts)
	if err != nil {
		return engineError("Unlock failed", err, engine.PythonWorker)
	}
	if !ok {
		fmt.Println("🔒 Locked")
		return ErrLocked
	}
	fmt.Println("🔓 Unlocked")
	return nil
}
