package identity

import (
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// Index is an approximate matcher over a gallery snapshot. Candidates come
// from an HNSW graph; the final decision uses exact distances and the same
// threshold rules as Match. Index is safe for concurrent use.
type Index struct {
	mu        sync.Mutex // guards graph searches
	graph     *hnsw.Graph[int]
	entries   []Entry
	dim       int
	Threshold float64
	// Candidates is the number of graph neighbours re-ranked exactly.
	Candidates int
}

const defaultCandidates = 8

// NewIndex snapshots g into an HNSW graph. Later changes to g are not seen.
func NewIndex(g *Gallery, threshold float64) *Index {
	entries := g.Entries()
	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.EuclideanDistance

	for i, e := range entries {
		vec := make([]float32, len(e.Vec))
		for j, v := range e.Vec {
			vec[j] = float32(v)
		}
		graph.Add(hnsw.MakeNode(i, vec))
	}

	return &Index{
		graph:      graph,
		entries:    entries,
		dim:        g.Dim(),
		Threshold:  threshold,
		Candidates: defaultCandidates,
	}
}

// Len returns the number of indexed identities.
func (x *Index) Len() int { return len(x.entries) }

func (x *Index) Match(query Embedding) (Result, error) {
	if len(x.entries) == 0 {
		return matchEntries(query, nil, x.Threshold)
	}
	if len(query) != x.dim {
		return Result{}, dimensionError(len(query), x.dim, x.entries[0].Label)
	}

	k := x.Candidates
	if k <= 0 {
		k = defaultCandidates
	}
	if k > len(x.entries) {
		k = len(x.entries)
	}

	q := make([]float32, len(query))
	for i, v := range query {
		q[i] = float32(v)
	}

	x.mu.Lock()
	neighbours := x.graph.Search(q, k)
	x.mu.Unlock()
	keys := make([]int, 0, len(neighbours))
	for _, n := range neighbours {
		keys = append(keys, n.Key)
	}
	// Gallery order among candidates makes ties resolve like the linear scan.
	sort.Ints(keys)

	candidates := make([]Entry, 0, len(keys))
	for _, key := range keys {
		candidates = append(candidates, x.entries[key])
	}
	return matchEntries(query, candidates, x.Threshold)
}

