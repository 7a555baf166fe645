package node2vec

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegraph/backend/internal/relgraph"
	"cinegraph/backend/pkg/errors"
)

func smallOptions() Options {
	opts := DefaultOptions()
	opts.Dimensions = 16
	opts.WalkLength = 20
	opts.NumWalks = 5
	opts.Window = 4
	opts.Epochs = 2
	return opts
}

// twoClusters returns two genre stars joined by a single user
func twoClusters() *relgraph.Graph {
	g := relgraph.New()
	for i := 0; i < 4; i++ {
		g.AddEdge(fmt.Sprintf("m:a%d", i), "g:A")
		g.AddEdge(fmt.Sprintf("m:b%d", i), "g:B")
	}
	g.AddEdge("m:a0", "p:dirA")
	g.AddEdge("m:a1", "p:dirA")
	g.AddEdge("u:bridge", "m:a3")
	g.AddEdge("u:bridge", "m:b3")
	return g
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestTrain_RejectsEdgelessGraph(t *testing.T) {
	g := relgraph.New()
	g.AddNode("m:lonely")
	_, err := Train(g, smallOptions())
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeInput))
}

func TestTrain_Deterministic(t *testing.T) {
	g := twoClusters()
	first, err := Train(g, smallOptions())
	require.NoError(t, err)
	second, err := Train(g, smallOptions())
	require.NoError(t, err)

	require.Equal(t, first.Len(), second.Len())
	for _, n := range g.Nodes() {
		a, ok := first.Vector(n)
		require.True(t, ok)
		b, _ := second.Vector(n)
		assert.Equal(t, a, b, n)
	}
}

func TestTrain_SeedChangesVectors(t *testing.T) {
	g := twoClusters()
	opts := smallOptions()
	first, err := Train(g, opts)
	require.NoError(t, err)
	opts.Seed = 7
	second, err := Train(g, opts)
	require.NoError(t, err)

	a, _ := first.Vector("m:a0")
	b, _ := second.Vector("m:a0")
	assert.NotEqual(t, a, b)
}

func TestTrain_SharedNeighbourhoodIsCloser(t *testing.T) {
	opts := smallOptions()
	opts.NumWalks = 20
	opts.Epochs = 5
	m, err := Train(twoClusters(), opts)
	require.NoError(t, err)

	a0, _ := m.Vector("m:a0")
	a1, _ := m.Vector("m:a1")
	b1, _ := m.Vector("m:b1")
	assert.Greater(t, cosine(a0, a1), cosine(a0, b1))
}

func TestOptions_Validate(t *testing.T) {
	opts := smallOptions()
	opts.P = 0
	_, err := Train(twoClusters(), opts)
	assert.Error(t, err)
}

func TestAlias_DegenerateWeights(t *testing.T) {
	a := newAlias([]float64{0, 1})
	assert.Equal(t, 1.0, a.prob[1])
	assert.Equal(t, 1, a.alias[0])
}

func TestVectors_SaveLoad(t *testing.T) {
	m, err := Train(twoClusters(), smallOptions())
	require.NoError(t, err)

	nodes := []string{"m:a0", "m:b0", "m:unknown", "g:A"}
	v := LocalMovies(m, nodes, "")
	assert.Equal(t, []string{"a0", "b0"}, v.IDs)

	local := LocalMovies(m, nodes, "a")
	assert.Equal(t, []string{"a0"}, local.IDs)

	path := filepath.Join(t.TempDir(), "structural.json")
	require.NoError(t, v.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, v.IDs, loaded.IDs)
	assert.InDeltaSlice(t, v.Vectors[0], loaded.Vectors[0], 1e-6)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeArtifact))
}

func TestVectors_ValidateMismatch(t *testing.T) {
	v := &Vectors{Dimensions: 2, IDs: []string{"a", "b"}, Vectors: [][]float32{{1, 0}}}
	assert.True(t, errors.IsErrorType(v.Validate(), errors.ErrorTypeArtifact))
}
