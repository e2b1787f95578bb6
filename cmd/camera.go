package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/imageio"
	"github.com/andresmejia3/aist/internal/utils"
	"github.com/spf13/cobra"
)

var (
	cameraRef    string
	cameraFrames int
)

var cameraCmd = &cobra.Command{
	Use:   "camera",
	Short: "Camera utilities",
}

var cameraTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Grab frames from a camera and report the frame rate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if cameraFrames < 0 {
			return fmt.Errorf("--frames must not be negative")
		}
		return runCameraTest(cmd.Context())
	},
}

func init() {
	cameraTestCmd.Flags().StringVarP(&cameraRef, "camera", "c", "0", "Camera index, device, stream URL or video file")
	cameraTestCmd.Flags().IntVarP(&cameraFrames, "frames", "n", 100, "Frames to grab (0: until Ctrl+C)")
	cameraCmd.AddCommand(cameraTestCmd)
	rootCmd.AddCommand(cameraCmd)
}

// cameraStats is what a camera test measured.
type cameraStats struct {
	Frames        int
	Elapsed       time.Duration
	Width, Height int
}

func (s cameraStats) FPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}

// measure reads up to limit frames (0 for no limit) from src.
func measure(ctx context.Context, src capture.Source, limit int) (cameraStats, error) {
	var st cameraStats
	start := time.Now()

	for limit == 0 || st.Frames < limit {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) || (err != nil && ctx.Err() != nil) {
			break
		}
		if err != nil {
			st.Elapsed = time.Since(start)
			return st, err
		}
		if st.Frames == 0 {
			st.Width, st.Height, _ = imageio.Size(frame.Data)
		}
		st.Frames++
	}
	st.Elapsed = time.Since(start)
	return st, nil
}

func runCameraTest(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "📷 Opening camera %s (backends: %s)...\n", cameraRef, strings.Join(capture.Backends(), ", "))
	sources, err := openSources(ctx, []string{cameraRef})
	if err != nil {
		utils.ShowError("Failed to open camera", err, nil)
		return err
	}
	defer capture.CloseAll(sources)

	st, err := measure(ctx, sources[0], cameraFrames)
	if err != nil {
		utils.ShowError("Camera stopped delivering frames", err, nil)
		return err
	}
	if st.Frames == 0 {
		return fmt.Errorf("camera %s produced no frames: %w", cameraRef, capture.ErrGrab)
	}
	fmt.Printf("✅ %d frames (%dx%d) in %s, %.1f fps\n", st.Frames, st.Width, st.Height, utils.FmtTime(st.Elapsed.Seconds()), st.FPS())
	return nil
}
