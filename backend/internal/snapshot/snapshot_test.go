package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegraph/backend/internal/catalog"
	"cinegraph/backend/internal/embedding/embeddingtest"
	"cinegraph/backend/internal/factstore"
	"cinegraph/backend/internal/fusion"
	"cinegraph/backend/internal/node2vec"
	"cinegraph/backend/internal/vecindex"
	"cinegraph/backend/pkg/errors"
)

func writeArtifacts(t *testing.T, dir string) (Paths, *factstore.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := factstore.NewMemoryStore()
	structural := &node2vec.Vectors{Dimensions: 2}
	var recs []catalog.Record
	for i := 0; i < 3; i++ {
		uri := fmt.Sprintf("%s%d", fusion.DefaultLocalPrefix, i)
		id := fmt.Sprintf("tt%d", i)
		store.AddMovie(factstore.Movie{URI: uri, Title: fmt.Sprintf("Movie %d", i), ExternalID: id})
		structural.IDs = append(structural.IDs, uri)
		structural.Vectors = append(structural.Vectors, []float32{float32(i), 1})
		recs = append(recs, catalog.Record{ID: id, Title: fmt.Sprintf("Movie %d", i), Description: "plot " + id})
	}
	sem, _, err := vecindex.Build(ctx, embeddingtest.New(4), recs, 64)
	require.NoError(t, err)

	paths := Paths{
		Structural: filepath.Join(dir, "structural.json"),
		Index:      filepath.Join(dir, "synopsis.index"),
		Metadata:   filepath.Join(dir, "synopsis.meta.sqlite"),
	}
	require.NoError(t, structural.Save(paths.Structural))
	require.NoError(t, sem.Save(ctx, paths.Index, paths.Metadata))
	return paths, store
}

func TestLoader_Load(t *testing.T) {
	paths, store := writeArtifacts(t, t.TempDir())
	loader := &Loader{Paths: paths, Store: store}

	snap, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Engine)
	assert.Equal(t, 3, snap.Engine.Len())
	title, ok := snap.Title(fusion.DefaultLocalPrefix + "1")
	assert.True(t, ok)
	assert.Equal(t, "Movie 1", title)
}

func TestLoader_MissingArtifactNamesIt(t *testing.T) {
	dir := t.TempDir()
	paths, store := writeArtifacts(t, dir)
	paths.Structural = filepath.Join(dir, "gone.json")

	_, err := (&Loader{Paths: paths, Store: store}).Load(context.Background())
	var missing *errors.ErrMissingArtifact
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "structural vectors", missing.Name)
	assert.Contains(t, err.Error(), "gone.json")
}

func TestLoader_EmptyFusedSetStillLoads(t *testing.T) {
	paths, _ := writeArtifacts(t, t.TempDir())
	// No external ids: nothing resolves, profile search must keep working
	snap, err := (&Loader{Paths: paths, Store: factstore.NewMemoryStore()}).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Engine)
	assert.Equal(t, 3, snap.Report.Count(fusion.StepExternalID))
}

func TestHolder_ReloadSwapsAndKeepsPreviousOnFailure(t *testing.T) {
	paths, store := writeArtifacts(t, t.TempDir())
	loader := &Loader{Paths: paths, Store: store}

	fail := false
	h := NewHolder(func(ctx context.Context) (*Snapshot, error) {
		if fail {
			return nil, errors.NewMissingArtifact("vector index", "x")
		}
		return loader.Load(ctx)
	})
	assert.Nil(t, h.Current())

	first, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, h.Current())

	fail = true
	_, err = h.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, first, h.Current())

	fail = false
	second, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Same(t, second, h.Current())
}

func TestHolder_ConcurrentReadersDuringReload(t *testing.T) {
	paths, store := writeArtifacts(t, t.TempDir())
	loader := &Loader{Paths: paths, Store: store}
	h := NewHolder(loader.Load)
	_, err := h.Reload(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap := h.Current()
				if snap == nil || snap.Engine == nil {
					t.Error("reader saw an incomplete snapshot")
					return
				}
				if _, err := snap.Engine.ItemToItem(fusion.DefaultLocalPrefix+"0", 2); err != nil {
					t.Errorf("ItemToItem failed: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 3; i++ {
		_, err := h.Reload(context.Background())
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestNewStaticHolder(t *testing.T) {
	snap := &Snapshot{}
	h := NewStaticHolder(snap)
	assert.Same(t, snap, h.Current())
}
