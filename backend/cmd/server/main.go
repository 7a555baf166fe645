package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cinegraph/backend/internal/embedding"
	"cinegraph/backend/internal/factstore"
	"cinegraph/backend/internal/recommend"
	"cinegraph/backend/internal/snapshot"
	"cinegraph/backend/pkg/config"
	"cinegraph/backend/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting recommendation API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	ctx := context.Background()
	driver, err := factstore.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Initialize dependencies
	store, batchStore := guards(factstore.NewNeo4jStore(driver, cfg.Neo4jDatabase), cfg)
	embedder := embedding.NewCachedEmbedder(
		embedding.NewOpenAIEmbedder(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel),
		cfg.EmbeddingCacheSize,
	)
	loader := &snapshot.Loader{
		Paths: snapshot.Paths{
			Structural: cfg.StructuralPath(),
			Index:      cfg.IndexPath(),
			Metadata:   cfg.MetadataPath(),
		},
		Store:       batchStore,
		LocalPrefix: cfg.Graph.LocalMoviePrefix,
	}
	holder := snapshot.NewHolder(loader.Load)
	if _, err := holder.Reload(ctx); err != nil {
		// Requests report the missing artifact until a reload succeeds
		log.Warn("Starting without a snapshot, run the indexer then POST /api/admin/reload", zap.Error(err))
	}

	service := recommend.NewService(store, embedder, holder, recommend.Config{
		MinRating:     cfg.Reco.MinRating,
		K:             cfg.Reco.K,
		Oversampling:  cfg.Reco.Oversampling,
		SnippetLength: cfg.Reco.SnippetLength,
	})

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(&server{
		service:    service,
		holder:     holder,
		adminToken: cfg.AdminToken,
		log:        log,
	})

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// SIGHUP reloads the snapshot, SIGINT and SIGTERM stop the server
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		log.Info("Reloading snapshot on SIGHUP")
		reloadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		_, _ = holder.Reload(reloadCtx)
		cancel()
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// guards returns the request-path guard and the guard for snapshot loads,
// which read the whole catalogue and get the batch budget
func guards(store factstore.Store, cfg *config.Config) (interactive, batch *factstore.Guard) {
	interactive = factstore.NewGuard(store, cfg.MaxConcurrentQueries, cfg.QueryTimeout)
	batch = factstore.NewGuard(store, cfg.MaxConcurrentQueries, cfg.BatchQueryTimeout)
	return interactive, batch
}
