package identity

import (
	"errors"
	"fmt"
	"sync"
)

var ErrEmptyLabel = errors.New("label must not be empty")

// Entry is one labelled reference embedding.
type Entry struct {
	Label string
	Vec   Embedding
}

// Gallery is an insertion-ordered mapping from label to reference embedding.
// It is safe for concurrent use; embeddings are copied on the way in and
// must be treated as read-only on the way out.
type Gallery struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Embedding
	dim     int
}

// NewGallery returns an empty gallery.
func NewGallery() *Gallery {
	return &Gallery{entries: make(map[string]Embedding)}
}

// Add stores vec under label. Re-adding an existing label replaces its
// embedding but keeps its original position.
func (g *Gallery) Add(label string, vec Embedding) error {
	if label == "" {
		return ErrEmptyLabel
	}
	if len(vec) == 0 {
		return fmt.Errorf("identity %q: %w", label, ErrDimensionMismatch)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dim != 0 && len(vec) != g.dim {
		return dimensionError(len(vec), g.dim, label)
	}
	if _, exists := g.entries[label]; !exists {
		g.order = append(g.order, label)
	}
	cp := make(Embedding, len(vec))
	copy(cp, vec)
	g.entries[label] = cp
	g.dim = len(vec)
	return nil
}

// Get returns the embedding stored under label.
func (g *Gallery) Get(label string) (Embedding, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.entries[label]
	return v, ok
}

// Remove deletes label and reports whether it existed.
func (g *Gallery) Remove(label string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entries[label]; !ok {
		return false
	}
	delete(g.entries, label)
	for i, l := range g.order {
		if l == label {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	if len(g.order) == 0 {
		g.dim = 0
	}
	return true
}

// Rename moves the embedding stored under from to to, keeping its position.
func (g *Gallery) Rename(from, to string) error {
	if to == "" {
		return ErrEmptyLabel
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	vec, ok := g.entries[from]
	if !ok {
		return fmt.Errorf("identity %q not found", from)
	}
	if _, taken := g.entries[to]; taken && to != from {
		return fmt.Errorf("identity %q already exists", to)
	}
	delete(g.entries, from)
	g.entries[to] = vec
	for i, l := range g.order {
		if l == from {
			g.order[i] = to
			break
		}
	}
	return nil
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Dim returns the embedding dimensionality, or 0 for an empty gallery.
func (g *Gallery) Dim() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dim
}

// Labels returns labels in insertion order.
func (g *Gallery) Labels() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Entries returns a snapshot of all entries in insertion order.
func (g *Gallery) Entries() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Entry, 0, len(g.order))
	for _, l := range g.order {
		out = append(out, Entry{Label: l, Vec: g.entries[l]})
	}
	return out
}

// Replace swaps the whole content of g for entries, in order.
// On error g is left unchanged.
func (g *Gallery) Replace(entries []Entry) error {
	next := NewGallery()
	for _, e := range entries {
		if err := next.Add(e.Label, e.Vec); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.order = next.order
	g.entries = next.entries
	g.dim = next.dim
	return nil
}

// NextLabel returns the default label for a new identity, "User <N>", where
// N starts at the gallery size and counts up past labels already in use.
func (g *Gallery) NextLabel() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for n := len(g.order); ; n++ {
		label := fmt.Sprintf("User %d", n)
		if _, taken := g.entries[label]; !taken {
			return label
		}
	}
}
