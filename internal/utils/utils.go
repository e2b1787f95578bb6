package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose critical crash information if an engine dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps engine logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 AIST ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nENGINE CRASH LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for setup failures that leave nothing to clean up.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Frame Stream (Shared by every capture source) ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			// Trailing garbage, nothing left to find.
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// CameraInput maps a camera reference to an ffmpeg input. A bare index N becomes
// the platform capture device; anything else (path, rtsp:// URL) is used as is.
func CameraInput(ref string) (format, input string) {
	idx, err := strconv.Atoi(ref)
	if err != nil || idx < 0 {
		return "", ref
	}
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", strconv.Itoa(idx)
	case "windows":
		return "dshow", "video=" + ref
	default:
		return "v4l2", fmt.Sprintf("/dev/video%d", idx)
	}
}

// NewFFmpegCmd creates a standard decoder pipe for a camera, stream or file.
// It configures FFmpeg to output raw MJPEG frames to Stdout for ingestion.
func NewFFmpegCmd(ctx context.Context, ref string, fps int) *exec.Cmd {
	format, input := CameraInput(ref)
	// -hide_banner and -loglevel error keep the stderr buffer small
	args := []string{"-hide_banner", "-loglevel", "error"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, "-i", input)
	if fps > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%d", fps))
	}
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
	return exec.CommandContext(ctx, "ffmpeg", args...)
}

// --- 3. Naming ---

// OnlyDigits strips every non-digit rune, turning a timestamp into a file-system friendly name.
func OnlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// SessionName returns a digits-only name for a capture session started at t.
func SessionName(t time.Time) string {
	return OnlyDigits(t.Format("2006-01-02 15:04:05.000000"))
}

// FmtTime formats a duration in seconds as HH:MM:SS.
func FmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
