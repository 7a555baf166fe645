package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cinegraph/backend/internal/metrics"
	"cinegraph/backend/internal/outcome"
	"cinegraph/backend/internal/recommend"
	"cinegraph/backend/internal/snapshot"
)

// server holds the handlers' collaborators
type server struct {
	service    *recommend.Service
	holder     *snapshot.Holder
	adminToken string
	log        *zap.Logger
}

func newRouter(s *server) *gin.Engine {
	router := gin.New()
	router.Use(requestID())
	router.Use(ginLogger(s.log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Admin-Token")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		snap := s.holder.Current()
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"snapshot_loaded": snap != nil,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/recommend/:username", s.handleRecommend)
		api.GET("/similar", s.handleSimilar)
		api.GET("/search", s.handleSearch)
		api.GET("/stats", s.handleStats)
		api.POST("/reviews", s.handleAddReview)

		admin := api.Group("/admin", s.requireAdmin)
		admin.POST("/reload", s.handleReload)
	}
	return router
}

// handleRecommend serves profile recommendations for one user
func (s *server) handleRecommend(c *gin.Context) {
	req := recommend.Request{Username: c.Param("username")}

	k, ok := queryInt(c, "k")
	if !ok {
		return
	}
	req.K = k

	if raw := c.Query("min_rating"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "min_rating must be a number")
			return
		}
		req.MinRating = &v
	}
	if raw := c.Query("exclude_watched"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "exclude_watched must be true or false")
			return
		}
		req.ExcludeWatched = &v
	}

	respond(c, s.service.Recommend(c.Request.Context(), req))
}

// handleSimilar serves item-to-item neighbours of a movie title
func (s *server) handleSimilar(c *gin.Context) {
	title := c.Query("title")
	if title == "" {
		badRequest(c, "title is required")
		return
	}
	k, ok := queryInt(c, "k")
	if !ok {
		return
	}
	respond(c, s.service.SimilarByTitle(c.Request.Context(), title, k))
}

func (s *server) handleSearch(c *gin.Context) {
	k, ok := queryInt(c, "k")
	if !ok {
		return
	}
	respond(c, s.service.Search(c.Request.Context(), c.Query("q"), k))
}

func (s *server) handleStats(c *gin.Context) {
	respond(c, s.service.Stats(c.Request.Context()))
}

func (s *server) handleAddReview(c *gin.Context) {
	var req recommend.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Title == "" && req.MovieURI == "" {
		badRequest(c, "title or movie_uri is required")
		return
	}
	out := s.service.AddReview(c.Request.Context(), req)
	if out.IsOk() {
		c.JSON(http.StatusCreated, out)
		return
	}
	respond(c, out)
}

// handleReload rebuilds the snapshot from the published artifacts
func (s *server) handleReload(c *gin.Context) {
	snap, err := s.holder.Reload(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	body := gin.H{"status": "reloaded", "loaded_at": snap.LoadedAt}
	if snap.Report != nil {
		body["fusion"] = snap.Report
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) requireAdmin(c *gin.Context) {
	if s.adminToken != "" && c.GetHeader("X-Admin-Token") != s.adminToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
		return
	}
	c.Next()
}

// respond writes an outcome with the HTTP status matching its cause
func respond[T any](c *gin.Context, out outcome.Outcome[T]) {
	c.JSON(httpStatus(out.Status), out)
}

func httpStatus(status outcome.Status) int {
	switch status {
	case outcome.StatusOk, outcome.StatusEmpty:
		return http.StatusOK
	case outcome.StatusNotFound:
		return http.StatusNotFound
	case outcome.StatusInvalid:
		return http.StatusBadRequest
	case outcome.StatusTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// queryInt reads an optional integer query parameter. It writes a 400 and
// returns false when the value does not parse.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": outcome.StatusInvalid, "detail": detail})
}

// requestID tags every request with an id, reusing the caller's when given
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}
