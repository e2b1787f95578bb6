// Package capture provides frame sources: cameras and streams read through
// ffmpeg, still images, in-memory frames and (with the gocv build tag) OpenCV
// capture devices. Every source yields JPEG encoded frames.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/andresmejia3/aist/internal/imageio"
	"github.com/andresmejia3/aist/internal/types"
	"github.com/andresmejia3/aist/internal/utils"
)

const megabyte = 1024 * 1024

// ErrGrab reports that a source could not deliver a frame.
var ErrGrab = errors.New("failed to grab frame")

// Source yields frames until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (types.Frame, error)
	Name() string
	Close() error
}

// Opener opens the source for a camera reference ("0", "/dev/video2",
// "rtsp://...", "clip.mp4"). camera is the position of the source in a scan.
type Opener func(ctx context.Context, ref string, camera int) (Source, error)

// FFmpegSource streams MJPEG frames from an ffmpeg child process.
type FFmpegSource struct {
	ref     string
	camera  int
	seq     int
	cmd     *exec.Cmd
	stderr  bytes.Buffer
	out     io.ReadCloser
	scanner *bufio.Scanner
	waited  bool
}

// FFmpegOpener returns an Opener that samples frames at fps (0 keeps the native rate).
func FFmpegOpener(fps int) Opener {
	return func(ctx context.Context, ref string, camera int) (Source, error) {
		return OpenFFmpeg(ctx, ref, camera, fps)
	}
}

// OpenFFmpeg starts ffmpeg on ref. The process dies with ctx.
func OpenFFmpeg(ctx context.Context, ref string, camera, fps int) (*FFmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	s := &FFmpegSource{ref: ref, camera: camera}
	s.cmd = utils.NewFFmpegCmd(ctx, ref, fps)
	s.cmd.Stderr = &s.stderr

	out, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg for %s: %w", ref, err)
	}
	s.out = out

	s.scanner = bufio.NewScanner(out)
	s.scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	s.scanner.Split(utils.SplitJpeg)
	return s, nil
}

func (s *FFmpegSource) Name() string { return s.ref }

// Next blocks until the next frame. A stream that ends cleanly returns io.EOF;
// one that dies returns ErrGrab with ffmpeg's own message.
func (s *FFmpegSource) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if s.scanner.Scan() {
		data := make([]byte, len(s.scanner.Bytes()))
		copy(data, s.scanner.Bytes())
		s.seq++
		return types.Frame{Camera: s.camera, Seq: s.seq, At: time.Now(), Data: data}, nil
	}

	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if err := s.scanner.Err(); err != nil {
		return types.Frame{}, fmt.Errorf("%s: %w: %v", s.ref, ErrGrab, err)
	}
	if err := s.wait(); err != nil {
		msg := bytes.TrimSpace(s.stderr.Bytes())
		return types.Frame{}, fmt.Errorf("%s: %w: %v: %s", s.ref, ErrGrab, err, msg)
	}
	return types.Frame{}, io.EOF
}

func (s *FFmpegSource) wait() error {
	if s.waited {
		return nil
	}
	s.waited = true
	return s.cmd.Wait()
}

// Close stops ffmpeg and releases the device.
func (s *FFmpegSource) Close() error {
	if s.waited {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.out.Close()
	_ = s.wait()
	return nil
}

// ImageSource yields each image file once, converted to JPEG.
type ImageSource struct {
	paths  []string
	camera int
	next   int
}

// NewImageSource returns a source over paths.
func NewImageSource(camera int, paths ...string) *ImageSource {
	return &ImageSource{paths: paths, camera: camera}
}

func (s *ImageSource) Name() string { return fmt.Sprintf("images(%d)", len(s.paths)) }

func (s *ImageSource) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if s.next >= len(s.paths) {
		return types.Frame{}, io.EOF
	}
	path := s.paths[s.next]
	s.next++

	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Frame{}, fmt.Errorf("%s: %w: %v", path, ErrGrab, err)
	}
	data, err := imageio.ToJPEG(raw)
	if err != nil {
		return types.Frame{}, fmt.Errorf("%s: %w", path, err)
	}
	return types.Frame{Camera: s.camera, Seq: s.next, At: time.Now(), Data: data}, nil
}

func (s *ImageSource) Close() error { return nil }

// MemorySource replays frames held in memory.
type MemorySource struct {
	name   string
	camera int
	frames [][]byte
	next   int
	closed bool
}

// NewMemorySource returns a source over already encoded frames.
func NewMemorySource(name string, camera int, frames ...[]byte) *MemorySource {
	return &MemorySource{name: name, camera: camera, frames: frames}
}

func (s *MemorySource) Name() string { return s.name }

func (s *MemorySource) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if s.closed {
		return types.Frame{}, fmt.Errorf("%s: %w: source closed", s.name, ErrGrab)
	}
	if s.next >= len(s.frames) {
		return types.Frame{}, io.EOF
	}
	f := types.Frame{Camera: s.camera, Seq: s.next + 1, At: time.Now(), Data: s.frames[s.next]}
	s.next++
	return f, nil
}

func (s *MemorySource) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *MemorySource) Closed() bool { return s.closed }

// OpenAll opens every ref with open. On failure the already opened sources are closed.
func OpenAll(ctx context.Context, open Opener, refs []string) ([]Source, error) {
	sources := make([]Source, 0, len(refs))
	for i, ref := range refs {
		s, err := open(ctx, ref, i)
		if err != nil {
			CloseAll(sources)
			return nil, fmt.Errorf("camera %s: %w", ref, err)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// CloseAll releases every source, ignoring errors.
func CloseAll(sources []Source) {
	for _, s := range sources {
		_ = s.Close()
	}
}
