package vecindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegraph/backend/internal/catalog"
	"cinegraph/backend/internal/embedding"
	"cinegraph/backend/internal/embedding/embeddingtest"
	"cinegraph/backend/pkg/errors"
)

func records(n int) []catalog.Record {
	out := make([]catalog.Record, n)
	for i := range out {
		out[i] = catalog.Record{
			ID:          fmt.Sprintf("tt%07d", i),
			Title:       fmt.Sprintf("Movie %d", i),
			Year:        2000 + i,
			Genres:      []string{"Drama"},
			Description: fmt.Sprintf("synopsis number %d", i),
		}
	}
	return out
}

func TestIndex_SearchOrdersAndClamps(t *testing.T) {
	x := NewIndex(2)
	require.NoError(t, x.Add([][]float32{{1, 0}, {0, 1}, {1, 0}}))

	hits, err := x.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 0, hits[0].Row)
	assert.Equal(t, 2, hits[1].Row, "ties break by ascending row")
	assert.Equal(t, 1, hits[2].Row)

	_, err = x.Search([]float32{1}, 1)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeInput))
}

func TestIndex_AddRejectsWrongDims(t *testing.T) {
	x := NewIndex(2)
	err := x.Add([][]float32{{1, 0}, {1}})
	require.Error(t, err)
	assert.Equal(t, 0, x.Len())
}

func TestIndex_Reconstruct(t *testing.T) {
	x := NewIndex(2)
	require.NoError(t, x.Add([][]float32{{0.6, 0.8}}))
	v, err := x.Reconstruct(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, v)

	v[0] = 9
	again, _ := x.Reconstruct(0)
	assert.Equal(t, float32(0.6), again[0])

	_, err = x.Reconstruct(1)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))
}

func TestIndex_SaveLoad(t *testing.T) {
	x := NewIndex(3)
	require.NoError(t, x.Add([][]float32{{1, 2, 3}, {-1, 0.5, 0}}))
	path := filepath.Join(t.TempDir(), "synopsis.index")
	require.NoError(t, x.Save(path))

	loaded, err := LoadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, x.Dims(), loaded.Dims())
	assert.Equal(t, x.data, loaded.data)
}

func TestLoadIndex_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.index")
	require.NoError(t, os.WriteFile(path, []byte("NOTANIDX0000"), 0o644))
	_, err := LoadIndex(path)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeArtifact))
}

func TestBuild_FiltersEmptyAndNormalizes(t *testing.T) {
	fake := embeddingtest.New(3).Set("zero", 0, 0, 0).Set("long", 3, 4, 0)
	recs := []catalog.Record{
		{ID: "a", Description: "long"},
		{ID: "b", Description: "   "},
		{ID: "c", Description: "zero"},
		{ID: "d"},
	}

	sem, report, err := Build(context.Background(), fake, recs, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SkippedEmpty)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, []string{"a", "c"}, sem.Meta.IDs())

	a, ok := sem.Vector("a")
	require.True(t, ok)
	assert.InDelta(t, 1.0, embedding.Norm(a), 1e-6)

	c, _ := sem.Vector("c")
	assert.Equal(t, []float32{0, 0, 0}, c)
}

func TestBuild_FailedBatchLeavesOtherRowsIntact(t *testing.T) {
	recs := records(5)
	recs[2].Description = "FAIL please"
	fake := embeddingtest.New(4)
	fake.FailOn = "FAIL"

	sem, report, err := Build(context.Background(), fake, recs, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedBatches)
	assert.Equal(t, []string{recs[2].ID, recs[3].ID}, report.FailedIDs)
	assert.Equal(t, []string{recs[0].ID, recs[1].ID, recs[4].ID}, sem.Meta.IDs())
	require.NoError(t, sem.Validate())

	// Row of the last record is aligned with its own vector
	row, ok := sem.Meta.Row(recs[4].ID)
	require.True(t, ok)
	v, err := sem.Index.Reconstruct(row)
	require.NoError(t, err)
	want, _ := fake.Embed(context.Background(), []string{recs[4].Description})
	assert.InDeltaSlice(t, embedding.Normalize(want[0]), v, 1e-6)
}

func TestBuild_AllBatchesFail(t *testing.T) {
	fake := embeddingtest.New(4)
	fake.FailOn = "synopsis"
	_, _, err := Build(context.Background(), fake, records(3), 2)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeUpstream))
}

func TestBuild_NothingToIndex(t *testing.T) {
	_, _, err := Build(context.Background(), embeddingtest.New(2), []catalog.Record{{ID: "x"}}, 2)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeEmpty))
}

func TestBuild_Idempotent(t *testing.T) {
	ctx := context.Background()
	first, _, err := Build(ctx, embeddingtest.New(8), records(10), 3)
	require.NoError(t, err)
	second, _, err := Build(ctx, embeddingtest.New(8), records(10), 4)
	require.NoError(t, err)

	assert.Equal(t, first.Meta.IDs(), second.Meta.IDs())
	for row := 0; row < first.Index.Len(); row++ {
		a, _ := first.Index.Reconstruct(row)
		b, _ := second.Index.Reconstruct(row)
		assert.InDeltaSlice(t, a, b, 1e-6)
	}
}

func TestSemantic_SaveLoadAndSearch(t *testing.T) {
	ctx := context.Background()
	fake := embeddingtest.New(6)
	sem, _, err := Build(ctx, fake, records(4), 64)
	require.NoError(t, err)

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "synopsis.index")
	metaPath := filepath.Join(dir, "synopsis.meta.sqlite")
	require.NoError(t, sem.Save(ctx, indexPath, metaPath))

	loaded, err := LoadSemantic(ctx, indexPath, metaPath)
	require.NoError(t, err)
	assert.Equal(t, sem.Meta.IDs(), loaded.Meta.IDs())
	assert.NotEmpty(t, loaded.Index.BuildID())
	assert.Equal(t, sem.Index.BuildID(), loaded.Index.BuildID())
	assert.Equal(t, sem.Meta.BuildID(), loaded.Meta.BuildID())
	rec, ok := loaded.Meta.Record(1)
	require.True(t, ok)
	assert.Equal(t, records(4)[1], rec)

	matches, err := loaded.SearchText(ctx, fake, records(4)[2].Description, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, records(4)[2].ID, matches[0].Record.ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
}

func TestLoadSemantic_RowMismatch(t *testing.T) {
	ctx := context.Background()
	sem, _, err := Build(ctx, embeddingtest.New(4), records(3), 64)
	require.NoError(t, err)
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "synopsis.index")
	metaPath := filepath.Join(dir, "synopsis.meta.sqlite")
	require.NoError(t, sem.Save(ctx, indexPath, metaPath))

	// Rebuild the index alone with one more row
	bigger, _, err := Build(ctx, embeddingtest.New(4), records(4), 64)
	require.NoError(t, err)
	require.NoError(t, bigger.Index.Save(indexPath))

	_, err = LoadSemantic(ctx, indexPath, metaPath)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeArtifact))
}

func TestLoadSemantic_IndexFromAnotherBuild(t *testing.T) {
	ctx := context.Background()
	fake := embeddingtest.New(4)
	first, _, err := Build(ctx, fake, []catalog.Record{
		{ID: "tt1", Description: "a crew answers a distress call"},
		{ID: "tt2", Description: "a detective hunts a thief"},
	}, 64)
	require.NoError(t, err)
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "synopsis.index")
	metaPath := filepath.Join(dir, "synopsis.meta.sqlite")
	require.NoError(t, first.Save(ctx, indexPath, metaPath))

	// Same row count, different rows: only the index file is replaced
	second, _, err := Build(ctx, fake, []catalog.Record{
		{ID: "tt2", Description: "a detective hunts a thief"},
		{ID: "tt9", Description: "a shark terrorises a beach town"},
	}, 64)
	require.NoError(t, err)
	require.NotEqual(t, first.Index.BuildID(), second.Index.BuildID())
	require.NoError(t, second.Index.Save(indexPath))

	_, err = LoadSemantic(ctx, indexPath, metaPath)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeArtifact))
}

func TestLoadSemantic_Missing(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadSemantic(context.Background(), filepath.Join(dir, "a"), filepath.Join(dir, "b"))
	var missing *errors.ErrMissingArtifact
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "vector index", missing.Name)
}
