// Package recognize runs face recognition over frames: enrolling new
// identities, answering one-off predictions and watching live sources.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/andresmejia3/aist/internal/capture"
	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/imageio"
	"github.com/andresmejia3/aist/internal/types"
)

var (
	ErrNoIdentities = errors.New("no identities in the gallery, enroll a face first")
	ErrNoFace       = errors.New("no face detected")
)

// Embedder finds faces in a JPEG frame and returns their embeddings.
type Embedder interface {
	Embed(frame []byte) ([]types.FaceResult, error)
}

// Engine is an Embedder owning a process that must be released.
type Engine interface {
	Embedder
	Close()
}

// EngineFactory starts one engine per concurrent source.
type EngineFactory func(ctx context.Context, id int) (Engine, error)

// FaceMatch pairs a detected face with its match.
type FaceMatch struct {
	Face   types.FaceResult
	Result identity.Result
}

// Recognizer matches faces from an Embedder against a gallery.
type Recognizer struct {
	Gallery   *identity.Gallery
	Embedder  Embedder
	Threshold float64

	// UseIndex switches matching to an HNSW index built at the start of each run.
	UseIndex   bool
	Candidates int

	Out    io.Writer // greetings
	Logger *slog.Logger
}

// New returns a recognizer printing to stdout and logging to slog.Default().
func New(g *identity.Gallery, e Embedder, threshold float64) *Recognizer {
	return &Recognizer{
		Gallery:   g,
		Embedder:  e,
		Threshold: threshold,
		Out:       os.Stdout,
		Logger:    slog.Default(),
	}
}

func (r *Recognizer) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func (r *Recognizer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Matcher returns the matcher used for a run at the given threshold.
func (r *Recognizer) Matcher(threshold float64) identity.Matcher {
	if r.UseIndex {
		idx := identity.NewIndex(r.Gallery, threshold)
		if r.Candidates > 0 {
			idx.Candidates = r.Candidates
		}
		return idx
	}
	return identity.LinearMatcher{Gallery: r.Gallery, Threshold: threshold}
}

func matchFaces(e Embedder, m identity.Matcher, frame []byte) ([]FaceMatch, error) {
	faces, err := e.Embed(frame)
	if err != nil {
		return nil, err
	}
	out := make([]FaceMatch, 0, len(faces))
	for _, f := range faces {
		res, err := m.Match(f.Vec)
		if err != nil {
			return nil, err
		}
		out = append(out, FaceMatch{Face: f, Result: res})
	}
	return out, nil
}

// Enroll embeds frame and adds its largest face under label. An empty label
// becomes "User N". It returns the label used.
func (r *Recognizer) Enroll(frame []byte, label string) (string, error) {
	faces, err := r.Embedder.Embed(frame)
	if err != nil {
		return "", err
	}
	if len(faces) == 0 {
		return "", ErrNoFace
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}

	if label == "" {
		label = r.Gallery.NextLabel()
	}
	if err := r.Gallery.Add(label, best.Vec); err != nil {
		return "", err
	}
	r.logger().Info("identity enrolled", "label", label, "faces_in_frame", len(faces), "dim", len(best.Vec))
	return label, nil
}

// EnrollImage enrolls the largest face of an image file in any supported format.
func (r *Recognizer) EnrollImage(path, label string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	frame, err := imageio.ToJPEG(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return r.Enroll(frame, label)
}

// EnrollSource reads frames from src until one contains a face and enrolls it.
func (r *Recognizer) EnrollSource(ctx context.Context, src capture.Source, label string) (string, error) {
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return "", ErrNoFace
		}
		if err != nil {
			return "", err
		}
		used, err := r.Enroll(frame.Data, label)
		if errors.Is(err, ErrNoFace) {
			continue
		}
		return used, err
	}
}

// PredictFaces matches every face in an encoded image of any supported format.
func (r *Recognizer) PredictFaces(image []byte, threshold float64) ([]FaceMatch, error) {
	frame, err := imageio.ToJPEG(image)
	if err != nil {
		return nil, err
	}
	return matchFaces(r.Embedder, r.Matcher(threshold), frame)
}

// PredictBytes returns the result for the last face found in image, or NoOne.
func (r *Recognizer) PredictBytes(image []byte, threshold float64) (identity.Result, error) {
	matches, err := r.PredictFaces(image, threshold)
	if err != nil {
		return identity.Result{}, err
	}
	res := identity.Result{Outcome: identity.NoOne}
	for _, m := range matches {
		res = m.Result
	}
	return res, nil
}
