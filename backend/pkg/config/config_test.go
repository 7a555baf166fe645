package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegraph/backend/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ARTIFACT_DIR", "out")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 10*time.Minute, cfg.BatchQueryTimeout)
	assert.Equal(t, []string{"hasGenre", "hasDirector", "hasWriter", "reviewed"}, cfg.Graph.EdgeTypes)
	assert.False(t, cfg.Graph.IncludeActorEdges)
	assert.Equal(t, 200, cfg.Graph.PersonDegreeCap)
	assert.Equal(t, 7.0, cfg.Reco.MinRating)
	assert.Equal(t, filepath.Join("out", "synopsis.index"), cfg.IndexPath())
	assert.Equal(t, filepath.Join("out", "synopsis.meta.sqlite"), cfg.MetadataPath())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GRAPH_EDGE_TYPES", "hasGenre, hasActor ,")
	t.Setenv("GRAPH_INCLUDE_ACTORS", "yes")
	t.Setenv("FACTSTORE_QUERY_TIMEOUT", "3s")
	t.Setenv("N2V_Q", "0.5")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"hasGenre", "hasActor"}, cfg.Graph.EdgeTypes)
	assert.True(t, cfg.Graph.IncludeActorEdges)
	assert.Equal(t, 3*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 0.5, cfg.Walks.Q)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("N2V_P", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeConfig))

	var invalid *errors.ErrConfigValidationFailed
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "walks", invalid.Field)
}

func TestValidate_MissingRequired(t *testing.T) {
	err := (&Config{}).Validate()
	var missing *errors.ErrConfigMissingRequired
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "NEO4J_URI", missing.Field)
}

func TestLoadPipelineOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
walks:
  dimensions: 32
  walk_length: 20
  num_walks: 4
  window: 5
  p: 1
  q: 2
  seed: 9
`), 0o644))

	t.Setenv("PIPELINE_CONFIG", path)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Walks.Dimensions)
	assert.Equal(t, int64(9), cfg.Walks.Seed)
	assert.Equal(t, 5, cfg.Walks.Epochs, "keys missing from the file keep their value")
	// graph section absent from the file keeps its defaults
	assert.Equal(t, 200, cfg.Graph.PersonDegreeCap)
}

func TestLoadPipelineOverlay_MissingFile(t *testing.T) {
	cfg := &Config{}
	err := cfg.LoadPipelineOverlay(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
