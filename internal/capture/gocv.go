//go:build gocv

package capture

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/andresmejia3/aist/internal/types"
	"gocv.io/x/gocv"
)

// GocvSource reads frames straight from an OpenCV capture device.
// Built only with -tags gocv since it links against OpenCV.
type GocvSource struct {
	ref    string
	camera int
	seq    int
	dev    *gocv.VideoCapture
	img    gocv.Mat
}

func init() { gocvOpener = GocvOpener }

// GocvOpener opens devices through OpenCV instead of ffmpeg.
func GocvOpener() Opener {
	return func(ctx context.Context, ref string, camera int) (Source, error) {
		return OpenGocv(ref, camera)
	}
}

// OpenGocv opens a device index or a stream URL.
func OpenGocv(ref string, camera int) (*GocvSource, error) {
	var device interface{} = ref
	if idx, err := strconv.Atoi(ref); err == nil {
		device = idx
	}
	dev, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	return &GocvSource{ref: ref, camera: camera, dev: dev, img: gocv.NewMat()}, nil
}

func (s *GocvSource) Name() string { return s.ref }

func (s *GocvSource) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if ok := s.dev.Read(&s.img); !ok {
		return types.Frame{}, io.EOF
	}
	if s.img.Empty() {
		return types.Frame{}, fmt.Errorf("%s: %w: empty frame", s.ref, ErrGrab)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.img)
	if err != nil {
		return types.Frame{}, fmt.Errorf("%s: %w: %v", s.ref, ErrGrab, err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	s.seq++
	return types.Frame{Camera: s.camera, Seq: s.seq, At: time.Now(), Data: data}, nil
}

func (s *GocvSource) Close() error {
	s.img.Close()
	return s.dev.Close()
}
