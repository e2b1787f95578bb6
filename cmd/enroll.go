package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/aist/internal/gallery"
	"github.com/andresmejia3/aist/internal/recognize"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/andresmejia3/aist/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	enrollImages []string
	enrollCamera string
	enrollLabel  string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Add a face to the gallery from image files or a camera",
	Long: `Embeds the largest face found and stores it in the gallery snapshot.
With several images and no label each face gets the next "User N" label.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if len(enrollImages) == 0 && enrollCamera == "" {
			return fmt.Errorf("pass --image or --camera")
		}
		if enrollLabel != "" && len(enrollImages)+min(len(enrollCamera), 1) > 1 {
			return fmt.Errorf("--label names a single face, drop it to enroll several")
		}
		return runEnroll(cmd.Context())
	},
}

func init() {
	enrollCmd.Flags().StringSliceVarP(&enrollImages, "image", "i", nil, "Image file(s) to enroll")
	enrollCmd.Flags().StringVarP(&enrollCamera, "camera", "c", "", "Camera to capture the face from (index, device, URL)")
	enrollCmd.Flags().StringVarP(&enrollLabel, "label", "l", "", "Identity label (default: User N)")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context) error {
	g, err := loadGallery()
	if err != nil {
		utils.ShowError("Failed to load gallery", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "⚙️  Starting face engine...")
	engine, err := worker.NewFaceWorker(ctx, 0, workerConfig())
	if err != nil {
		return engineError("Failed to start face engine", err, nil)
	}
	defer engine.Close()

	r := newRecognizer(g, engine, cfg.Match.Threshold)

	var enrolled []string
	if len(enrollImages) > 0 {
		bar := progressbar.NewOptions(len(enrollImages),
			progressbar.OptionSetDescription("🧑 Enrolling"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		for _, path := range enrollImages {
			used, err := r.EnrollImage(path, enrollLabel)
			bar.Add(1)
			if errors.Is(err, recognize.ErrNoFace) {
				fmt.Fprintf(os.Stderr, "\n⚠️  No face found in %s, skipping\n", path)
				continue
			}
			if err != nil {
				return engineError("Failed to enroll "+path, err, engine.PythonWorker)
			}
			enrolled = append(enrolled, used)
		}
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	if enrollCamera != "" {
		sources, err := openSources(ctx, []string{enrollCamera})
		if err != nil {
			utils.ShowError("Failed to open camera", err, nil)
			return err
		}
		defer sources[0].Close()

		fmt.Fprintln(os.Stderr, "📷 Look at the camera...")
		used, err := r.EnrollSource(ctx, sources[0], enrollLabel)
		if err != nil {
			return engineError("Failed to enroll from camera", err, engine.PythonWorker)
		}
		enrolled = append(enrolled, used)
	}

	if len(enrolled) == 0 {
		return recognize.ErrNoFace
	}
	if err := gallery.Save(cfg.Gallery, g); err != nil {
		utils.ShowError("Failed to save gallery", err, nil)
		return err
	}
	for _, l := range enrolled {
		fmt.Printf("✅ Enrolled '%s'\n", l)
	}
	fmt.Fprintf(os.Stderr, "💾 Gallery saved to %s (%d identities)\n", cfg.Gallery, g.Len())
	return nil
}
