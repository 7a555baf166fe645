package relgraph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegraph/backend/internal/factstore"
)

func TestGraph_NoSelfLoopsOrParallelEdges(t *testing.T) {
	g := New()
	assert.False(t, g.AddEdge("m:a", "m:a"))
	assert.True(t, g.AddEdge("m:a", "g:x"))
	assert.False(t, g.AddEdge("g:x", "m:a"))
	assert.Equal(t, 1, g.NumEdges())
	assert.Equal(t, 0, g.Degree("m:b"))
}

func TestAssemble_PrefixesKinds(t *testing.T) {
	rows := map[factstore.Relation][]factstore.Pair{
		factstore.RelHasGenre:    {{Subject: "M1", Object: "G1"}},
		factstore.RelHasDirector: {{Subject: "M1", Object: "P1"}},
		factstore.RelReviewed:    {{Subject: "U1", Object: "M1"}},
	}
	res := Assemble([]string{"M1", "M2"}, rows, DefaultConfig())

	assert.Equal(t, []string{"m:M1", "m:M2"}, res.MovieNodes)
	assert.True(t, res.Graph.HasEdge("m:M1", "g:G1"))
	assert.True(t, res.Graph.HasEdge("m:M1", "p:P1"))
	assert.True(t, res.Graph.HasEdge("u:U1", "m:M1"))
	assert.True(t, res.Graph.Has("m:M2"))
	assert.Equal(t, 0, res.Graph.Degree("m:M2"))
}

func TestAssemble_ActorEdgesCappedLexicographically(t *testing.T) {
	rows := map[factstore.Relation][]factstore.Pair{
		factstore.RelHasActor: {
			{Subject: "M1", Object: "d"},
			{Subject: "M1", Object: "b"},
			{Subject: "M1", Object: "a"},
			{Subject: "M1", Object: "c"},
			{Subject: "M1", Object: "a"},
		},
	}
	cfg := DefaultConfig()
	cfg.TopNActors = 2

	res := Assemble([]string{"M1"}, rows, cfg)
	assert.Equal(t, 0, res.Graph.Degree("m:M1"), "actor edges are off by default")

	cfg.IncludeActorEdges = true
	res = Assemble([]string{"M1"}, rows, cfg)
	assert.Equal(t, []string{"p:a", "p:b"}, res.Graph.Neighbors("m:M1"))
}

func TestAssemble_PrunesPersonHubs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PersonDegreeCap = 3

	var movies []string
	var directed []factstore.Pair
	for i := 0; i < 5; i++ {
		m := fmt.Sprintf("M%d", i)
		movies = append(movies, m)
		directed = append(directed, factstore.Pair{Subject: m, Object: "hub"})
	}
	directed = append(directed, factstore.Pair{Subject: "M0", Object: "niche"})
	rows := map[factstore.Relation][]factstore.Pair{factstore.RelHasDirector: directed}

	res := Assemble(movies, rows, cfg)
	assert.Equal(t, []string{"p:hub"}, res.Pruned)
	assert.False(t, res.Graph.Has("p:hub"))
	assert.True(t, res.Graph.HasEdge("m:M0", "p:niche"))
	for _, m := range movies {
		assert.False(t, res.Graph.HasEdge(NodeID(KindMovie, m), "p:hub"))
	}
	for _, n := range res.Graph.Nodes() {
		if k, _ := Split(n); k == KindPerson {
			assert.LessOrEqual(t, res.Graph.Degree(n), cfg.PersonDegreeCap)
		}
	}
}

func TestBuild_EmptyRelationsAreValid(t *testing.T) {
	store := factstore.NewMemoryStore()
	store.AddMovie(factstore.Movie{URI: "M1", Title: "One"})

	res, err := Build(context.Background(), store, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Graph.NumNodes())
	assert.Equal(t, 0, res.Graph.NumEdges())
}

type brokenStore struct {
	*factstore.MemoryStore
}

func (brokenStore) Edges(ctx context.Context, rel factstore.Relation) ([]factstore.Pair, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestBuild_StoreFailureIsFatal(t *testing.T) {
	_, err := Build(context.Background(), brokenStore{factstore.NewMemoryStore()}, DefaultConfig())
	require.Error(t, err)
}

func TestSplit(t *testing.T) {
	kind, uri := Split("m:http://x/y:z")
	assert.Equal(t, KindMovie, kind)
	assert.Equal(t, "http://x/y:z", uri)
}
