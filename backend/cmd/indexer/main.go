package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"cinegraph/backend/internal/embedding"
	"cinegraph/backend/internal/factstore"
	"cinegraph/backend/internal/node2vec"
	"cinegraph/backend/internal/pipeline"
	"cinegraph/backend/internal/relgraph"
	"cinegraph/backend/internal/snapshot"
	"cinegraph/backend/internal/synopsis"
	"cinegraph/backend/pkg/config"
	"cinegraph/backend/pkg/logger"
)

func main() {
	stageName := flag.String("stage", "all", "Stage to rebuild: graph, semantic or all")
	queryTimeout := flag.Duration("query-timeout", 0, "Budget for each batch fact store query (defaults to FACTSTORE_BATCH_TIMEOUT)")
	fetchSynopses := flag.Bool("fetch-synopses", false, "Fill missing descriptions from Wikipedia (overrides SYNOPSIS_FETCH)")
	flag.Parse()

	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()

	stage, err := pipeline.ParseStage(*stageName)
	if err != nil {
		log.Fatal("Invalid stage", zap.Error(err))
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	pcfg, err := pipelineConfig(cfg)
	if err != nil {
		log.Fatal("Invalid pipeline configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Neo4j driver
	driver, err := factstore.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer driver.Close(context.Background())

	timeout := cfg.BatchQueryTimeout
	if *queryTimeout > 0 {
		timeout = *queryTimeout
	}
	store := factstore.NewGuard(factstore.NewNeo4jStore(driver, cfg.Neo4jDatabase), cfg.MaxConcurrentQueries, timeout)
	embedder := embedding.NewOpenAIEmbedder(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)

	p := pipeline.New(store, embedder, pcfg)
	if cfg.SynopsisFetch || *fetchSynopses {
		fetcher := synopsis.NewFetcher(
			synopsis.WithBaseURL(cfg.WikipediaURL),
			synopsis.WithUserAgent(cfg.WikipediaUserAgent),
			synopsis.WithSection(cfg.SynopsisSection),
			synopsis.WithRateLimit(cfg.WikipediaRate),
		)
		p.WithSynopses(fetcher, cfg.SynopsisFetchLimit)
	}

	log.Info("Starting rebuild",
		zap.String("stage", string(stage)),
		zap.String("artifact_dir", cfg.ArtifactDir),
	)
	report, err := p.Run(ctx, stage)
	if err != nil {
		log.Fatal("Rebuild failed, previously published artifacts are untouched", zap.Error(err))
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}

// pipelineConfig maps the environment configuration onto stage parameters
func pipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	graph := relgraph.Config{
		IncludeActorEdges: cfg.Graph.IncludeActorEdges,
		TopNActors:        cfg.Graph.TopNActors,
		PersonDegreeCap:   cfg.Graph.PersonDegreeCap,
	}
	for _, name := range cfg.Graph.EdgeTypes {
		rel, err := parseRelation(name)
		if err != nil {
			return pipeline.Config{}, err
		}
		graph.EdgeTypes = append(graph.EdgeTypes, rel)
	}
	if cfg.Walks.Seed < 0 {
		return pipeline.Config{}, fmt.Errorf("walk seed must not be negative")
	}

	return pipeline.Config{
		Graph: graph,
		Walks: node2vec.Options{
			Dimensions:   cfg.Walks.Dimensions,
			WalkLength:   cfg.Walks.WalkLength,
			NumWalks:     cfg.Walks.NumWalks,
			Window:       cfg.Walks.Window,
			P:            cfg.Walks.P,
			Q:            cfg.Walks.Q,
			Seed:         uint64(cfg.Walks.Seed),
			Epochs:       cfg.Walks.Epochs,
			Negative:     cfg.Walks.Negative,
			LearningRate: cfg.Walks.LearningRate,
		},
		LocalPrefix: cfg.Graph.LocalMoviePrefix,
		BatchSize:   cfg.EmbeddingBatchSize,
		CatalogPath: cfg.CatalogPath,
		Paths: snapshot.Paths{
			Structural: cfg.StructuralPath(),
			Index:      cfg.IndexPath(),
			Metadata:   cfg.MetadataPath(),
		},
	}, nil
}

func parseRelation(name string) (factstore.Relation, error) {
	for _, rel := range factstore.Relations {
		if string(rel) == name {
			return rel, nil
		}
	}
	return "", fmt.Errorf("unknown edge type %q", name)
}
