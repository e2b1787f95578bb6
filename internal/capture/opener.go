package capture

import "fmt"

// Backends lists the capture backends compiled into this binary.
func Backends() []string {
	if gocvOpener == nil {
		return []string{"ffmpeg"}
	}
	return []string{"ffmpeg", "gocv"}
}

// gocvOpener is set by the gocv build.
var gocvOpener func() Opener

// NewOpener selects a capture backend by name.
func NewOpener(backend string, fps int) (Opener, error) {
	switch backend {
	case "", "ffmpeg":
		return FFmpegOpener(fps), nil
	case "gocv":
		if gocvOpener == nil {
			return nil, fmt.Errorf("capture backend %q not compiled in (build with -tags gocv)", backend)
		}
		return gocvOpener(), nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", backend)
	}
}
