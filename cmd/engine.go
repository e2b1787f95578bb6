package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/gallery"
	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/journal"
	"github.com/andresmejia3/aist/internal/recognize"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/andresmejia3/aist/internal/watch"
	"github.com/andresmejia3/aist/internal/worker"
)

func workerConfig() worker.Config {
	return worker.Config{
		Python:      cfg.Engine.Python,
		Script:      cfg.Engine.Script,
		Debug:       cfg.Engine.Debug,
		ReadTimeout: time.Duration(cfg.Engine.TimeoutSecs) * time.Second,
	}
}

// faceEngines starts one embedding engine per call.
func faceEngines() recognize.EngineFactory {
	return func(ctx context.Context, id int) (recognize.Engine, error) {
		w, err := worker.NewFaceWorker(ctx, id, workerConfig())
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// detectEngines starts one detection engine per call.
func detectEngines(model string) watch.EngineFactory {
	return func(ctx context.Context, id int) (watch.Engine, error) {
		w, err := worker.NewDetectWorker(ctx, id, workerConfig(), model)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// engineError prints the failure together with whatever the engine wrote to stderr.
func engineError(context string, err error, w *worker.PythonWorker) error {
	var s *utils.SafeCommand
	if w != nil {
		s = w.Cmd
	}
	utils.ShowError(context, err, s)
	return err
}

// loadGallery reads the configured snapshot. A missing file is an empty gallery.
func loadGallery() (*identity.Gallery, error) {
	g, err := gallery.Load(cfg.Gallery)
	if errors.Is(err, os.ErrNotExist) {
		return identity.NewGallery(), nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func newRecognizer(g *identity.Gallery, e recognize.Embedder, threshold float64) *recognize.Recognizer {
	r := recognize.New(g, e, threshold)
	r.UseIndex = cfg.Match.Index == "hnsw"
	r.Candidates = cfg.Match.Candidates
	return r
}

// openSources opens every camera reference with the configured backend.
func openSources(ctx context.Context, refs []string) ([]capture.Source, error) {
	open, err := capture.NewOpener(cfg.Capture.Backend, cfg.Capture.FPS)
	if err != nil {
		return nil, err
	}
	return capture.OpenAll(ctx, open, refs)
}

// openJournal starts a log session, or returns nil when logging is disabled.
func openJournal(flushEvery int) (*journal.Journal, error) {
	if !cfg.Logs.Enabled {
		return nil, nil
	}
	if flushEvery <= 0 {
		flushEvery = cfg.Logs.FlushEvery
	}
	j, err := journal.Open(cfg.Logs.Dir, flushEvery, time.Now())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "📝 Logging results to %s\n", j.Dir())
	return j, nil
}

// closeJournal flushes what is left and reports where it went.
func closeJournal(j *journal.Journal) {
	if j == nil {
		return
	}
	if err := j.Close(); err != nil {
		utils.ShowError("Failed to write the result log", err, nil)
		return
	}
	if n := len(j.Files()); n > 0 {
		fmt.Fprintf(os.Stderr, "💾 Wrote %d log file(s) to %s\n", n, j.Dir())
	}
}

func validateThreshold(t float64) error {
	if t < 0 || math.IsNaN(t) {
		return fmt.Errorf("threshold must be a non-negative number, got %v", t)
	}
	return nil
}
