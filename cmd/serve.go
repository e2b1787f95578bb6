package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/aist/internal/server"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/andresmejia3/aist/internal/watch"
	"github.com/andresmejia3/aist/internal/worker"
	"github.com/spf13/cobra"
)

var (
	serveAddr   string
	serveDetect bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions and the gallery over HTTP",
	Long: `Routes:
  POST /v1/predict   image body, optional ?threshold=, returns every face and its match
  POST /v1/detect    image body, returns detected objects (needs --detect)
  GET  /v1/gallery   the gallery snapshot, usable with "aist gallery fetch"
  GET  /healthz`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if serveAddr == "" {
			serveAddr = cfg.Server.Addr
		}
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config: :8080)")
	serveCmd.Flags().BoolVar(&serveDetect, "detect", false, "Also start an object detection engine")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	g, err := loadGallery()
	if err != nil {
		utils.ShowError("Failed to load gallery", err, nil)
		return err
	}

	face, err := worker.NewFaceWorker(ctx, 0, workerConfig())
	if err != nil {
		return engineError("Failed to start face engine", err, nil)
	}
	defer face.Close()

	var w *watch.Watcher
	if serveDetect {
		det, err := worker.NewDetectWorker(ctx, 1, workerConfig(), cfg.Watch.Model)
		if err != nil {
			return engineError("Failed to start detection engine", err, nil)
		}
		defer det.Close()
		w = watch.New(det)
		w.Conf = cfg.Watch.Conf
	}

	srv, err := server.New(server.Config{Addr: serveAddr}, newRecognizer(g, face, cfg.Match.Threshold), w)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "🌐 Serving %d identities on %s. Ctrl+C to stop.\n", g.Len(), serveAddr)
	return srv.Start(ctx)
}
