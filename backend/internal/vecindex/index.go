// Package vecindex is the semantic vector index: a flat inner-product index
// over unit vectors plus a row-aligned metadata table.
package vecindex

import (
	"fmt"
	"sort"

	"cinegraph/backend/pkg/errors"
)

// Hit is one search result
type Hit struct {
	Row   int     `json:"row"`
	Score float32 `json:"score"`
}

// Index stores fixed-size vectors contiguously and scores by inner product.
// It is filled once during a build and read-only afterwards; concurrent
// searches are safe only when no Add is in flight.
type Index struct {
	dims  int
	data  []float32
	build string
}

// NewIndex creates an empty index for vectors of size dims
func NewIndex(dims int) *Index {
	return &Index{dims: dims}
}

// Dims returns the vector size
func (x *Index) Dims() int {
	return x.dims
}

// BuildID identifies the build that produced the index; empty for an index
// assembled by hand.
func (x *Index) BuildID() string {
	return x.build
}

// Len returns the number of stored vectors
func (x *Index) Len() int {
	if x.dims == 0 {
		return 0
	}
	return len(x.data) / x.dims
}

// Add appends vectors; their rows are Len() .. Len()+len(vecs)-1. Either all
// vectors are added or none.
func (x *Index) Add(vecs [][]float32) error {
	for i, v := range vecs {
		if len(v) != x.dims {
			return errors.NewInvalidInput("vector", fmt.Sprintf("row %d has %d dimensions, index expects %d", i, len(v), x.dims))
		}
	}
	for _, v := range vecs {
		x.data = append(x.data, v...)
	}
	return nil
}

// Reconstruct returns a copy of the vector stored at row
func (x *Index) Reconstruct(row int) ([]float32, error) {
	if row < 0 || row >= x.Len() {
		return nil, errors.NewEntityNotFound("index row", fmt.Sprint(row))
	}
	out := make([]float32, x.dims)
	copy(out, x.data[row*x.dims:(row+1)*x.dims])
	return out, nil
}

// Search returns the k rows with the highest inner product against q, best
// first, ties by ascending row. k is clamped to Len().
func (x *Index) Search(q []float32, k int) ([]Hit, error) {
	if len(q) != x.dims {
		return nil, errors.NewInvalidInput("query", fmt.Sprintf("has %d dimensions, index expects %d", len(q), x.dims))
	}
	n := x.Len()
	if k > n {
		k = n
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	hits := make([]Hit, n)
	for row := 0; row < n; row++ {
		v := x.data[row*x.dims : (row+1)*x.dims]
		var dot float32
		for i := range v {
			dot += v[i] * q[i]
		}
		hits[row] = Hit{Row: row, Score: dot}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Row < hits[j].Row
	})
	return hits[:k], nil
}
