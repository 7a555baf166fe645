// Package embedding turns text into vectors through an external model and
// provides the vector arithmetic shared by the indexes.
package embedding

import (
	"context"
	"math"
)

// Embedder maps a batch of texts to one vector each, in input order.
// Implementations either return len(texts) vectors or an error.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Norm returns the L2 norm of v
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Concat joins vectors end to end
func Concat(parts ...[]float32) []float32 {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	out := make([]float32, 0, size)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Mean averages equally sized vectors. It returns nil for no input.
func Mean(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	sum := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		for i := range sum {
			sum[i] += float64(v[i])
		}
	}
	out := make([]float32, len(sum))
	for i, s := range sum {
		out[i] = float32(s / float64(len(vecs)))
	}
	return out
}

// Dot returns the inner product of two equally sized vectors
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
