// Package embeddingtest provides deterministic embedders for tests.
package embeddingtest

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
)

// Fake returns fixed vectors for known texts and a hash-derived vector for
// everything else. Texts containing FailOn make the whole call fail.
type Fake struct {
	Dims    int
	Vectors map[string][]float32
	FailOn  string

	mu    sync.Mutex
	calls int
}

// New creates a Fake of the given dimension
func New(dims int) *Fake {
	return &Fake{Dims: dims, Vectors: make(map[string][]float32)}
}

// Set pins the vector returned for text
func (f *Fake) Set(text string, vec ...float32) *Fake {
	f.Vectors[text] = vec
	return f
}

// Calls returns how many times Embed was invoked
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.FailOn != "" && strings.Contains(text, f.FailOn) {
			return nil, fmt.Errorf("embedding service unavailable")
		}
		if v, ok := f.Vectors[text]; ok {
			out[i] = append([]float32(nil), v...)
			continue
		}
		out[i] = hashVector(text, f.Dims)
	}
	return out, nil
}

func hashVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%s", i, text)
		v[i] = float32(h.Sum32()%2000)/1000 - 1
	}
	return v
}
