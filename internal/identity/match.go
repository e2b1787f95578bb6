// Package identity holds face embeddings, the labelled gallery they are compared
// against, and the threshold nearest-neighbour matcher used by every pipeline.
package identity

import (
	"errors"
	"math"

	"github.com/samber/oops"
)

// Embedding is a fixed-length face descriptor produced by the engine for one face.
type Embedding []float64

// Display labels for results that do not name a gallery entry.
const (
	UnknownLabel = "Wrong person"
	NoOneLabel   = "No one was detected"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidThreshold  = errors.New("threshold must be non-negative")
)

// Outcome classifies a match.
type Outcome int

const (
	NoOne Outcome = iota
	Unknown
	Identified
)

func (o Outcome) String() string {
	switch o {
	case Identified:
		return "identified"
	case Unknown:
		return "unknown"
	default:
		return "none"
	}
}

// Result is the transient answer to a single match. Distance is the best
// distance seen (zero for NoOne).
type Result struct {
	Outcome  Outcome
	Label    string
	Distance float64
}

// String returns the label shown to users and written to logs.
func (r Result) String() string {
	switch r.Outcome {
	case Identified:
		return r.Label
	case Unknown:
		return UnknownLabel
	default:
		return NoOneLabel
	}
}

// Matcher resolves a query embedding against a set of references.
type Matcher interface {
	Match(query Embedding) (Result, error)
}

// EuclideanDistance returns the L2 distance between a and b.
// Callers must ensure len(a) == len(b).
func EuclideanDistance(a, b Embedding) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match returns the gallery label closest to query, Unknown when the best
// distance is >= threshold, or NoOne when the gallery is empty.
// Ties keep the entry inserted first.
func Match(query Embedding, g *Gallery, threshold float64) (Result, error) {
	return matchEntries(query, g.Entries(), threshold)
}

func matchEntries(query Embedding, entries []Entry, threshold float64) (Result, error) {
	if threshold < 0 || math.IsNaN(threshold) {
		return Result{}, oops.
			In("identity").
			Code("identity.threshold.invalid").
			With("threshold", threshold).
			Wrapf(ErrInvalidThreshold, "match threshold %v", threshold)
	}
	if len(entries) == 0 {
		return Result{Outcome: NoOne}, nil
	}

	best := -1
	minDist := math.Inf(1)
	for i, e := range entries {
		if len(e.Vec) != len(query) {
			return Result{}, dimensionError(len(query), len(e.Vec), e.Label)
		}
		if d := EuclideanDistance(query, e.Vec); d < minDist {
			minDist = d
			best = i
		}
	}

	if minDist >= threshold {
		return Result{Outcome: Unknown, Distance: minDist}, nil
	}
	return Result{Outcome: Identified, Label: entries[best].Label, Distance: minDist}, nil
}

func dimensionError(query, ref int, label string) error {
	return oops.
		In("identity").
		Code("identity.dimension_mismatch").
		With("query_dim", query).
		With("reference_dim", ref).
		With("label", label).
		Wrapf(ErrDimensionMismatch, "query has %d dimensions, %q has %d", query, label, ref)
}

// LinearMatcher runs the exact scan over a live gallery.
type LinearMatcher struct {
	Gallery   *Gallery
	Threshold float64
}

func (m LinearMatcher) Match(query Embedding) (Result, error) {
	return Match(query, m.Gallery, m.Threshold)
}
