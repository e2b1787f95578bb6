package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/recognize"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/andresmejia3/aist/internal/worker"
	"github.com/spf13/cobra"
)

var (
	launchCamera    string
	launchThreshold float64
	launchStop      bool
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Recognize faces from one camera and greet known identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !cmd.Flags().Changed("threshold") {
			launchThreshold = cfg.Match.Threshold
		}
		if err := validateThreshold(launchThreshold); err != nil {
			return err
		}
		return runLaunch(cmd.Context())
	},
}

func init() {
	launchCmd.Flags().StringVarP(&launchCamera, "camera", "c", "0", "Camera index, device, stream URL or video file")
	launchCmd.Flags().Float64VarP(&launchThreshold, "threshold", "t", 0.7, "Match threshold (Euclidean distance, lower is stricter)")
	launchCmd.Flags().BoolVar(&launchStop, "stop-when-recognized", false, "Exit at the first identified face")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(ctx context.Context) error {
	g, err := loadGallery()
	if err != nil {
		utils.ShowError("Failed to load gallery", err, nil)
		return err
	}
	if g.Len() == 0 {
		utils.ShowError("Nothing to recognize", recognize.ErrNoIdentities, nil)
		return recognize.ErrNoIdentities
	}

	sources, err := openSources(ctx, []string{launchCamera})
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

	j, err := openJournal(0)
	if err != nil {
		utils.ShowError("Failed to create log directory", err, nil)
		return err
	}
	defer closeJournal(j)

	r := newRecognizer(g, engine, launchThreshold)
	fmt.Fprintf(os.Stderr, "🎥 Watching camera %s (%d identities, threshold %.2f). Ctrl+C to stop.\n", launchCamera, g.Len(), launchThreshold)

	rep, err := r.Launch(ctx, sources[0], recognize.LaunchOptions{StopWhenRecognized: launchStop, Journal: j})
	if err != nil && ctx.Err() == nil {
		return engineError("Recognition stopped", err, engine.PythonWorker)
	}
	fmt.Fprintf(os.Stderr, "✨ %d frames, %d faces, %d identified, %d unknown. Last: %s\n",
		rep.Frames, rep.Faces, rep.Identified, rep.Unknown, rep.Last)
	return nil
}
