package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/imageio"
	"github.com/andresmejia3/aist/internal/recognize"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/andresmejia3/aist/internal/worker"
	"github.com/spf13/cobra"
)

var (
	predictThreshold float64
	predictFromDB    bool
)

var predictCmd = &cobra.Command{
	Use:   "predict <image_path>",
	Short: "Identify the faces in an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !cmd.Flags().Changed("threshold") {
			predictThreshold = cfg.Match.Threshold
		}
		if err := validateThreshold(predictThreshold); err != nil {
			return err
		}
		return runPredict(cmd.Context(), args[0])
	},
}

func init() {
	predictCmd.Flags().Float64VarP(&predictThreshold, "threshold", "t", 0.7, "Match threshold (Euclidean distance, lower is stricter)")
	predictCmd.Flags().BoolVar(&predictFromDB, "db", false, "Match against the identities stored in Postgres instead of the gallery file")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(ctx context.Context, imagePath string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image", err, nil)
		return err
	}
	frame, err := imageio.ToJPEG(data)
	if err != nil {
		utils.ShowError("Unsupported image", err, nil)
		return err
	}

	engine, err := worker.NewFaceWorker(ctx, 0, workerConfig())
	if err != nil {
		return engineError("Failed to start face engine", err, nil)
	}
	defer engine.Close()

	var matches []recognize.FaceMatch
	if predictFromDB {
		matches, err = predictWithStore(ctx, engine, frame)
	} else {
		var g *identity.Gallery
		if g, err = loadGallery(); err == nil {
			matches, err = newRecognizer(g, engine, predictThreshold).PredictFaces(frame, predictThreshold)
		}
	}
	if err != nil {
		return engineError("Prediction failed", err, engine.PythonWorker)
	}

	if len(matches) == 0 {
		fmt.Println(identity.NoOneLabel)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE\tBOX\tRESULT\tDISTANCE")
	fmt.Fprintln(w, "----\t---\t------\t--------")
	for i, m := range matches {
		fmt.Fprintf(w, "%d\t%v\t%s\t%.4f\n", i+1, m.Face.Loc, m.Result, m.Result.Distance)
	}
	w.Flush()
	return nil
}

// predictWithStore embeds frame locally and resolves every face with a pgvector query.
func predictWithStore(ctx context.Context, e recognize.Embedder, frame []byte) ([]recognize.FaceMatch, error) {
	s, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	faces, err := e.Embed(frame)
	if err != nil {
		return nil, err
	}
	out := make([]recognize.FaceMatch, 0, len(faces))
	for _, f := range faces {
		res, err := s.Nearest(ctx, f.Vec, predictThreshold)
		if err != nil {
			return nil, err
		}
		out = append(out, recognize.FaceMatch{Face: f, Result: res})
	}
	return out, nil
}
