package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/recognize"
	"github.com/andresmejia3/aist/internal/store"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/andresmejia3/aist/internal/worker"
	"github.com/spf13/cobra"
)

// ScanOptions holds the flags of the scan command.
type ScanOptions struct {
	Cameras    []string
	Threshold  float64
	Concurrent bool
	Persist    bool
	Quiet      bool
	FlushEvery int
}

var scanOpts ScanOptions

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Recognize faces across several cameras",
	Long: `Polls every camera and logs each face with the camera it was seen on.
By default cameras are read in turn by one engine. With --concurrent every
camera gets its own goroutine and engine, and results are still logged in
capture order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !cmd.Flags().Changed("threshold") {
			scanOpts.Threshold = cfg.Match.Threshold
		}
		if err := validateScanFlags(&scanOpts); err != nil {
			return err
		}
		return runScan(cmd.Context(), scanOpts)
	},
}

func init() {
	scanCmd.Flags().StringSliceVarP(&scanOpts.Cameras, "camera", "c", []string{"0"}, "Cameras to scan (repeat or comma separate)")
	scanCmd.Flags().Float64VarP(&scanOpts.Threshold, "threshold", "t", 0.7, "Match threshold (Euclidean distance, lower is stricter)")
	scanCmd.Flags().BoolVar(&scanOpts.Concurrent, "concurrent", false, "One engine and goroutine per camera")
	scanCmd.Flags().BoolVar(&scanOpts.Persist, "persist", false, "Also record every match in Postgres")
	scanCmd.Flags().BoolVarP(&scanOpts.Quiet, "quiet", "q", false, "Do not print greetings")
	scanCmd.Flags().IntVar(&scanOpts.FlushEvery, "flush-every", 0, "Write a log file every N entries (default from config)")
	rootCmd.AddCommand(scanCmd)
}

func validateScanFlags(opts *ScanOptions) error {
	if len(opts.Cameras) == 0 {
		return fmt.Errorf("at least one --camera is required")
	}
	seen := make(map[string]bool, len(opts.Cameras))
	for _, c := range opts.Cameras {
		if c == "" {
			return fmt.Errorf("empty camera reference")
		}
		if seen[c] {
			return fmt.Errorf("camera %s listed twice", c)
		}
		seen[c] = true
	}
	if err := validateThreshold(opts.Threshold); err != nil {
		return err
	}
	if opts.FlushEvery < 0 {
		return fmt.Errorf("--flush-every must be positive")
	}
	return nil
}

// matchEvents turns one scanned frame into rows for the match_events table.
func matchEvents(o recognize.Observation) []store.MatchEvent {
	out := make([]store.MatchEvent, 0, len(o.Matches))
	for _, m := range o.Matches {
		out = append(out, store.MatchEvent{
			SessionID:  o.SessionID,
			Seq:        o.Seq,
			Camera:     o.Index,
			ObservedAt: o.At,
			Outcome:    m.Result.Outcome.String(),
			Label:      m.Result.Label,
			Distance:   m.Result.Distance,
		})
	}
	return out
}

func runScan(ctx context.Context, opts ScanOptions) error {
	g, err := loadGallery()
	if err != nil {
		utils.ShowError("Failed to load gallery", err, nil)
		return err
	}
	if g.Len() == 0 {
		utils.ShowError("Nothing to recognize", recognize.ErrNoIdentities, nil)
		return recognize.ErrNoIdentities
	}

	var s *store.Store
	if opts.Persist {
		if s, err = openStore(ctx); err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
	}

	sources, err := openSources(ctx, opts.Cameras)
	if err != nil {
		utils.ShowError("Failed to open cameras", err, nil)
		return err
	}
	defer capture.CloseAll(sources)

	j, err := openJournal(opts.FlushEvery)
	if err != nil {
		utils.ShowError("Failed to create log directory", err, nil)
		return err
	}
	defer closeJournal(j)

	scan := recognize.ScanOptions{Journal: j, Quiet: opts.Quiet}
	if s != nil {
		scan.OnFrame = func(o recognize.Observation) error {
			return s.InsertMatchEvents(ctx, matchEvents(o))
		}
	}

	var rep recognize.Report
	if opts.Concurrent {
		fmt.Fprintf(os.Stderr, "⚙️  Spawning %d face engines...\n", len(sources))
		r := newRecognizer(g, nil, opts.Threshold)
		rep, err = r.ScanConcurrent(ctx, sources, faceEngines(), scan)
		if err != nil && ctx.Err() == nil {
			return engineError("Concurrent scan failed", err, nil)
		}
	} else {
		engine, err := worker.NewFaceWorker(ctx, 0, workerConfig())
		if err != nil {
			return engineError("Failed to start face engine", err, nil)
		}
		defer engine.Close()

		r := newRecognizer(g, engine, opts.Threshold)
		rep, err = r.ScanSequential(ctx, sources, scan)
		if err != nil && ctx.Err() == nil {
			return engineError("Scan failed", err, engine.PythonWorker)
		}
	}

	fmt.Fprintf(os.Stderr, "✨ Session %s: %d frames, %d faces, %d identified, %d unknown\n",
		rep.SessionID, rep.Frames, rep.Faces, rep.Identified, rep.Unknown)
	return nil
}
