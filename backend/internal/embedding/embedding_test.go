package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegraph/backend/internal/embedding/embeddingtest"
	"cinegraph/backend/pkg/errors"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)

	zero := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
	for _, x := range zero {
		assert.False(t, math.IsNaN(float64(x)))
	}
}

func TestMeanAndConcat(t *testing.T) {
	m := Mean([][]float32{{1, 0}, {0, 1}})
	assert.Equal(t, []float32{0.5, 0.5}, m)
	assert.Nil(t, Mean(nil))
	assert.Equal(t, []float32{1, 2, 3}, Concat([]float32{1}, []float32{2, 3}))
	assert.InDelta(t, 11.0, Dot([]float32{1, 2}, []float32{3, 4}), 1e-9)
}

func TestCachedEmbedder_ServesRepeats(t *testing.T) {
	fake := embeddingtest.New(4)
	c := NewCachedEmbedder(fake, 2)
	ctx := context.Background()

	first, err := c.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	again, err := c.Embed(ctx, []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Calls())
	assert.Equal(t, first[0], again[1])

	// "c" evicts the least recently used entry
	_, err = c.Embed(ctx, []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	_, err = c.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls(), "a was used after b and must survive")
}

func TestCachedEmbedder_PropagatesErrors(t *testing.T) {
	fake := embeddingtest.New(4)
	fake.FailOn = "boom"
	c := NewCachedEmbedder(fake, 10)

	_, err := c.Embed(context.Background(), []string{"ok", "boom"})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		// Reply out of order to exercise index sorting
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "", "test-model")
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0, 1}, vecs[0])
	assert.Equal(t, []float32{1, 1}, vecs[1])
}

func TestOpenAIEmbedder_FailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"down","type":"server_error"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "key", "test-model")
	e.backoff = 0
	_, err := e.Embed(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeUpstream))
}
