// Package gallery persists identity galleries as whole-object snapshots,
// on disk or fetched from a URL.
package gallery

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/aist/internal/identity"
)

const (
	magic   = "aist.gallery"
	version = 1
)

// ErrNotGallery is returned when a snapshot decodes to something other than a gallery.
var ErrNotGallery = errors.New("file does not contain an identity gallery")

type envelope struct {
	Magic   string
	Version int
	Labels  []string
	Vecs    [][]float64
}

// Encode writes g to w.
func Encode(w io.Writer, g *identity.Gallery) error {
	entries := g.Entries()
	env := envelope{
		Magic:   magic,
		Version: version,
		Labels:  make([]string, len(entries)),
		Vecs:    make([][]float64, len(entries)),
	}
	for i, e := range entries {
		env.Labels[i] = e.Label
		env.Vecs[i] = e.Vec
	}
	if err := gob.NewEncoder(w).Encode(env); err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}
	return nil
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (*identity.Gallery, error) {
	var env envelope
	if err := gob.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotGallery, err)
	}
	if env.Magic != magic || len(env.Labels) != len(env.Vecs) {
		return nil, ErrNotGallery
	}
	if env.Version > version {
		return nil, fmt.Errorf("gallery snapshot version %d is newer than supported (%d)", env.Version, version)
	}

	g := identity.NewGallery()
	for i, label := range env.Labels {
		if err := g.Add(label, env.Vecs[i]); err != nil {
			return nil, fmt.Errorf("entry %q: %w", label, err)
		}
	}
	return g, nil
}

// Save writes a snapshot of g to path, replacing any existing file.
func Save(path string, g *identity.Gallery) error {
	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write gallery: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write gallery: %w", err)
	}
	return nil
}

// Load reads a snapshot from path.
func Load(path string) (*identity.Gallery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
