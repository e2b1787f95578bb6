package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func galleryOf(t *testing.T, entries ...Entry) *Gallery {
	t.Helper()
	g := NewGallery()
	for _, e := range entries {
		require.NoError(t, g.Add(e.Label, e.Vec))
	}
	return g
}

func TestMatch(t *testing.T) {
	aliceBob := []Entry{
		{Label: "Alice", Vec: Embedding{0, 0}},
		{Label: "Bob", Vec: Embedding{10, 10}},
	}

	tests := []struct {
		name      string
		entries   []Entry
		query     Embedding
		threshold float64
		want      Outcome
		wantLabel string
	}{
		{
			name:      "Closest within threshold",
			entries:   aliceBob,
			query:     Embedding{1, 1},
			threshold: 5.0,
			want:      Identified,
			wantLabel: "Alice",
		},
		{
			name:      "Closest outside threshold",
			entries:   aliceBob,
			query:     Embedding{1, 1},
			threshold: 0.5,
			want:      Unknown,
		},
		{
			name:      "Empty gallery",
			query:     Embedding{1, 1},
			threshold: 5.0,
			want:      NoOne,
		},
		{
			name:      "Empty gallery with zero threshold",
			query:     Embedding{1, 1},
			threshold: 0,
			want:      NoOne,
		},
		{
			name:      "Exact hit",
			entries:   aliceBob,
			query:     Embedding{10, 10},
			threshold: 1e-9,
			want:      Identified,
			wantLabel: "Bob",
		},
		{
			name:      "Distance equal to threshold fails",
			entries:   []Entry{{Label: "Alice", Vec: Embedding{0, 0}}},
			query:     Embedding{3, 4}, // distance 5
			threshold: 5.0,
			want:      Unknown,
		},
		{
			name: "Tie keeps first inserted",
			entries: []Entry{
				{Label: "Left", Vec: Embedding{-1, 0}},
				{Label: "Right", Vec: Embedding{1, 0}},
			},
			query:     Embedding{0, 0},
			threshold: 2,
			want:      Identified,
			wantLabel: "Left",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := galleryOf(t, tt.entries...)
			got, err := Match(tt.query, g, tt.threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Outcome)
			assert.Equal(t, tt.wantLabel, got.Label)
		})
	}
}

func TestMatch_Strings(t *testing.T) {
	g := galleryOf(t, Entry{Label: "Alice", Vec: Embedding{0, 0}}, Entry{Label: "Bob", Vec: Embedding{10, 10}})

	hit, err := Match(Embedding{1, 1}, g, 5)
	require.NoError(t, err)
	assert.Equal(t, "Alice", hit.String())

	miss, err := Match(Embedding{1, 1}, g, 0.5)
	require.NoError(t, err)
	assert.Equal(t, UnknownLabel, miss.String())

	none, err := Match(Embedding{1, 1}, NewGallery(), 0.5)
	require.NoError(t, err)
	assert.Equal(t, NoOneLabel, none.String())
}

func TestMatch_Idempotent(t *testing.T) {
	g := galleryOf(t, Entry{Label: "Alice", Vec: Embedding{0, 0}}, Entry{Label: "Bob", Vec: Embedding{10, 10}})
	query := Embedding{4, 6}

	first, err := Match(query, g, 9)
	require.NoError(t, err)
	second, err := Match(query, g, 9)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, Embedding{4, 6}, query, "query must not be mutated")
	assert.Equal(t, []string{"Alice", "Bob"}, g.Labels())
}

func TestMatch_DimensionMismatch(t *testing.T) {
	g := galleryOf(t, Entry{Label: "Alice", Vec: Embedding{0, 0, 0}})

	_, err := Match(Embedding{1, 1}, g, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestMatch_NegativeThreshold(t *testing.T) {
	_, err := Match(Embedding{1}, NewGallery(), -1)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestEuclideanDistance(t *testing.T) {
	assert.InDelta(t, 5.0, EuclideanDistance(Embedding{0, 0}, Embedding{3, 4}), 1e-12)
	assert.InDelta(t, 0.0, EuclideanDistance(Embedding{}, Embedding{}), 1e-12)
}

func TestLinearMatcher(t *testing.T) {
	g := galleryOf(t, Entry{Label: "Alice", Vec: Embedding{0, 0}})
	m := LinearMatcher{Gallery: g, Threshold: 1}

	got, err := m.Match(Embedding{0.5, 0})
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Label)

	// The matcher sees gallery updates.
	require.NoError(t, g.Add("Bob", Embedding{0.5, 0}))
	got, err = m.Match(Embedding{0.5, 0})
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Label)
}

func TestIndex_AgreesWithLinearScan(t *testing.T) {
	g := NewGallery()
	for i := 0; i < 50; i++ {
		require.NoError(t, g.Add(fmt.Sprintf("id-%02d", i), Embedding{float64(i), float64(i % 7), 1}))
	}
	x := NewIndex(g, 0.75)
	x.Candidates = 10

	for _, q := range []Embedding{{3.1, 3, 1}, {20, 6, 1}, {100, 100, 100}} {
		want, err := Match(q, g, 0.75)
		require.NoError(t, err)
		got, err := x.Match(q)
		require.NoError(t, err)
		assert.Equal(t, want.Outcome, got.Outcome, "query %v", q)
		assert.Equal(t, want.Label, got.Label, "query %v", q)
	}
}

func TestIndex_Empty(t *testing.T) {
	x := NewIndex(NewGallery(), 1)
	got, err := x.Match(Embedding{1, 2})
	require.NoError(t, err)
	assert.Equal(t, NoOne, got.Outcome)
	assert.Equal(t, 0, x.Len())
}

func TestIndex_DimensionMismatch(t *testing.T) {
	x := NewIndex(galleryOf(t, Entry{Label: "Alice", Vec: Embedding{0, 0}}), 1)
	_, err := x.Match(Embedding{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
