package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cinegraph/backend/internal/catalog"
	"cinegraph/backend/internal/embedding/embeddingtest"
	"cinegraph/backend/internal/factstore"
	"cinegraph/backend/internal/fusion"
	"cinegraph/backend/internal/node2vec"
	"cinegraph/backend/internal/recommend"
	"cinegraph/backend/internal/snapshot"
	"cinegraph/backend/internal/vecindex"
	"cinegraph/backend/pkg/config"
)

func setupRouter(t *testing.T, adminToken string) (*gin.Engine, *factstore.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	movies := []struct {
		id, title, ref, synopsis string
		vec, graph               []float32
	}{
		{"alien", "Alien", "tt1", "space horror", []float32{1, 0, 0}, []float32{1, 0}},
		{"aliens", "Aliens", "tt2", "space war", []float32{0.9, 0.1, 0}, []float32{1, 0.1}},
		{"heat", "Heat", "tt3", "heist", []float32{0, 1, 0}, []float32{0, 1}},
	}
	store := factstore.NewMemoryStore()
	fake := embeddingtest.New(3)
	structural := &node2vec.Vectors{Dimensions: 2}
	var recs []catalog.Record
	for _, m := range movies {
		uri := fusion.DefaultLocalPrefix + m.id
		store.AddMovie(factstore.Movie{URI: uri, Title: m.title, ExternalID: m.ref, Synopsis: m.synopsis})
		fake.Set(m.synopsis, m.vec...)
		structural.IDs = append(structural.IDs, uri)
		structural.Vectors = append(structural.Vectors, m.graph)
		recs = append(recs, catalog.Record{ID: m.ref, Title: m.title, Description: m.synopsis})
	}

	sem, _, err := vecindex.Build(ctx, fake, recs, 8)
	require.NoError(t, err)
	refs, _ := store.ExternalIDs(ctx)
	titles, _ := store.Titles(ctx)
	engine, report, err := fusion.Build(structural, sem, refs, fusion.Options{})
	require.NoError(t, err)

	holder := snapshot.NewStaticHolder(&snapshot.Snapshot{
		Structural: structural,
		Semantic:   sem,
		Engine:     engine,
		Report:     report,
		Titles:     titles,
		LoadedAt:   time.Now(),
	})
	service := recommend.NewService(store, fake, holder, recommend.DefaultConfig())
	return newRouter(&server{service: service, holder: holder, adminToken: adminToken, log: zap.NewNop()}), store
}

func do(router *gin.Engine, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewBuffer(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	return w, response
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupRouter(t, "")
	w, response := do(router, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", response["status"])
	assert.Equal(t, true, response["snapshot_loaded"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRecommendEndpoint(t *testing.T) {
	router, store := setupRouter(t, "")

	w, response := do(router, "GET", "/api/recommend/alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "empty", response["status"])

	require.NoError(t, store.InsertReview(context.Background(), factstore.Review{
		Username: "alice", MovieURI: fusion.DefaultLocalPrefix + "alien", Rating: 9,
	}))
	w, response = do(router, "GET", "/api/recommend/alice?k=1&min_rating=8", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", response["status"])
	value := response["value"].(map[string]interface{})
	recs := value["recommendations"].([]interface{})
	require.Len(t, recs, 1)
	assert.Equal(t, "Aliens", recs[0].(map[string]interface{})["title"])
}

func TestRecommendEndpoint_InvalidQuery(t *testing.T) {
	router, _ := setupRouter(t, "")
	for _, path := range []string{
		"/api/recommend/alice?k=ten",
		"/api/recommend/alice?min_rating=high",
		"/api/recommend/alice?exclude_watched=maybe",
	} {
		w, response := do(router, "GET", path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "invalid_input", response["status"], path)
	}
}

func TestSimilarEndpoint(t *testing.T) {
	router, _ := setupRouter(t, "")

	w, response := do(router, "GET", "/api/similar?title=alien&k=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	similar := response["value"].(map[string]interface{})["similar"].([]interface{})
	require.Len(t, similar, 1)
	assert.Equal(t, "Aliens", similar[0].(map[string]interface{})["title"])

	w, response = do(router, "GET", "/api/similar?title=Vertigo", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", response["status"])

	w, _ = do(router, "GET", "/api/similar", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	router, _ := setupRouter(t, "")
	w, response := do(router, "GET", "/api/search?q=heist&k=1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	hits := response["value"].([]interface{})
	require.Len(t, hits, 1)
	assert.Equal(t, "Heat", hits[0].(map[string]interface{})["title"])
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := setupRouter(t, "")
	w, response := do(router, "GET", "/api/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	value := response["value"].(map[string]interface{})
	assert.Equal(t, float64(3), value["fused_movies"])
}

func TestReviewEndpoint(t *testing.T) {
	router, store := setupRouter(t, "")

	w, _ := do(router, "POST", "/api/reviews", []byte(`{"username":"bob","title":"Heat","rating":8}`))
	assert.Equal(t, http.StatusCreated, w.Code)
	liked, err := store.LikedMovies(context.Background(), "bob", 7)
	require.NoError(t, err)
	require.Len(t, liked, 1)
	assert.Equal(t, "Heat", liked[0].Title)

	w, _ = do(router, "POST", "/api/reviews", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(router, "POST", "/api/reviews", []byte(`{"username":"bob","title":"Heat","rating":11}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(router, "POST", "/api/reviews", []byte(`{"username":"bob","title":"Vertigo","rating":5}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReloadEndpoint_RequiresToken(t *testing.T) {
	router, _ := setupRouter(t, "secret")

	w, _ := do(router, "POST", "/api/admin/reload", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	rec := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/admin/reload", nil)
	req.Header.Set("X-Admin-Token", "secret")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupRouter(t, "")
	do(router, "GET", "/health", nil)

	w, _ := do(router, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cinegraph_api_requests_total")
}

func TestGuards_SnapshotLoadsGetBatchBudget(t *testing.T) {
	cfg := &config.Config{
		QueryTimeout:         20 * time.Second,
		BatchQueryTimeout:    10 * time.Minute,
		MaxConcurrentQueries: 4,
	}
	interactive, batch := guards(factstore.NewMemoryStore(), cfg)
	assert.Equal(t, 20*time.Second, interactive.Timeout())
	assert.Equal(t, 10*time.Minute, batch.Timeout())
}
