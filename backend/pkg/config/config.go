package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cinegraph/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port       string
	Env        string
	AdminToken string // Guards /api/admin routes when set

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Fact store guard
	QueryTimeout         time.Duration // Budget for interactive fact store queries
	BatchQueryTimeout    time.Duration // Budget for full-catalogue queries (indexer, snapshot loads)
	MaxConcurrentQueries int

	// Embedding service (OpenAI-compatible)
	EmbeddingURL       string
	EmbeddingAPIKey    string
	EmbeddingModel     string
	EmbeddingBatchSize int
	EmbeddingCacheSize int

	// Artifacts
	ArtifactDir    string
	CatalogPath    string // Catalogue TSV with synopsis column
	PipelineConfig string // Optional YAML overlay for Graph and Walks

	// Synopsis backfill from Wikipedia
	SynopsisFetch      bool
	SynopsisSection    string
	SynopsisFetchLimit int
	WikipediaURL       string
	WikipediaUserAgent string
	WikipediaRate      float64 // Requests per second, 0 for unlimited

	Graph GraphConfig
	Walks WalkConfig
	Reco  RecoConfig
}

// GraphConfig controls the relation graph builder
type GraphConfig struct {
	EdgeTypes         []string `yaml:"edge_types"`
	IncludeActorEdges bool     `yaml:"include_actor_edges"`
	TopNActors        int      `yaml:"top_n_actors"`
	PersonDegreeCap   int      `yaml:"person_degree_cap"`
	LocalMoviePrefix  string   `yaml:"local_movie_prefix"`
}

// WalkConfig controls the structural embedding trainer
type WalkConfig struct {
	Dimensions   int     `yaml:"dimensions"`
	WalkLength   int     `yaml:"walk_length"`
	NumWalks     int     `yaml:"num_walks"`
	Window       int     `yaml:"window"`
	P            float64 `yaml:"p"`
	Q            float64 `yaml:"q"`
	Seed         int64   `yaml:"seed"`
	Epochs       int     `yaml:"epochs"`
	Negative     int     `yaml:"negative"`
	LearningRate float64 `yaml:"learning_rate"`
}

// RecoConfig holds recommendation defaults
type RecoConfig struct {
	MinRating     float64
	K             int
	Oversampling  int
	SnippetLength int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	artifactDir := getEnv("ARTIFACT_DIR", "artifacts")

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		AdminToken:           getEnv("ADMIN_TOKEN", ""),
		Neo4jURI:             getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:            getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:        getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:        getEnv("NEO4J_DATABASE", ""),
		QueryTimeout:         getEnvDuration("FACTSTORE_QUERY_TIMEOUT", 20*time.Second),
		BatchQueryTimeout:    getEnvDuration("FACTSTORE_BATCH_TIMEOUT", 10*time.Minute),
		MaxConcurrentQueries: getEnvInt("FACTSTORE_MAX_CONCURRENT", 8),
		EmbeddingURL:         getEnv("EMBEDDING_URL", "http://localhost:4000"),
		EmbeddingAPIKey:      getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingBatchSize:   getEnvInt("EMBEDDING_BATCH_SIZE", 64),
		EmbeddingCacheSize:   getEnvInt("EMBEDDING_CACHE_SIZE", 1000),
		ArtifactDir:          artifactDir,
		CatalogPath:          getEnv("CATALOG_PATH", "datasets/title.basics.with_synopsis.tsv"),
		PipelineConfig:       getEnv("PIPELINE_CONFIG", ""),
		SynopsisFetch:        getEnvBool("SYNOPSIS_FETCH", false),
		SynopsisSection:      getEnv("SYNOPSIS_SECTION", "Synopsis"),
		SynopsisFetchLimit:   getEnvInt("SYNOPSIS_FETCH_LIMIT", 4),
		WikipediaURL:         getEnv("WIKIPEDIA_URL", "https://fr.wikipedia.org"),
		WikipediaUserAgent:   getEnv("WIKIPEDIA_USER_AGENT", "cinegraph-indexer/1.0"),
		WikipediaRate:        getEnvFloat("WIKIPEDIA_RATE", 5),
		Graph: GraphConfig{
			EdgeTypes:         getEnvList("GRAPH_EDGE_TYPES", []string{"hasGenre", "hasDirector", "hasWriter", "reviewed"}),
			IncludeActorEdges: getEnvBool("GRAPH_INCLUDE_ACTORS", false),
			TopNActors:        getEnvInt("GRAPH_TOP_N_ACTORS", 5),
			PersonDegreeCap:   getEnvInt("GRAPH_PERSON_DEGREE_CAP", 200),
			LocalMoviePrefix:  getEnv("GRAPH_LOCAL_PREFIX", "http://www.moviedb.fr/cinema#MotionPicture/"),
		},
		Walks: WalkConfig{
			Dimensions:   getEnvInt("N2V_DIMENSIONS", 128),
			WalkLength:   getEnvInt("N2V_WALK_LENGTH", 60),
			NumWalks:     getEnvInt("N2V_NUM_WALKS", 10),
			Window:       getEnvInt("N2V_WINDOW", 10),
			P:            getEnvFloat("N2V_P", 1.0),
			Q:            getEnvFloat("N2V_Q", 1.0),
			Seed:         int64(getEnvInt("N2V_SEED", 42)),
			Epochs:       getEnvInt("N2V_EPOCHS", 5),
			Negative:     getEnvInt("N2V_NEGATIVE", 5),
			LearningRate: getEnvFloat("N2V_LEARNING_RATE", 0.025),
		},
		Reco: RecoConfig{
			MinRating:     getEnvFloat("RECO_MIN_RATING", 7.0),
			K:             getEnvInt("RECO_K", 10),
			Oversampling:  getEnvInt("RECO_OVERSAMPLING", 3),
			SnippetLength: getEnvInt("RECO_SNIPPET_LENGTH", 200),
		},
	}

	if cfg.PipelineConfig != "" {
		if err := cfg.LoadPipelineOverlay(cfg.PipelineConfig); err != nil {
			return nil, fmt.Errorf("pipeline overlay: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// pipelineOverlay mirrors the YAML file layout
type pipelineOverlay struct {
	Graph *GraphConfig `yaml:"graph"`
	Walks *WalkConfig  `yaml:"walks"`
}

// LoadPipelineOverlay merges the graph and walk sections of a YAML file
// over the current values. Keys absent from the file are left untouched.
func (c *Config) LoadPipelineOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	graph, walks := c.Graph, c.Walks
	overlay := pipelineOverlay{Graph: &graph, Walks: &walks}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c.Graph, c.Walks = graph, walks
	return nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return errors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jUser == "" {
		return errors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.EmbeddingURL == "" {
		return errors.NewConfigMissingRequired("EMBEDDING_URL")
	}
	if c.EmbeddingModel == "" {
		return errors.NewConfigMissingRequired("EMBEDDING_MODEL")
	}
	if c.ArtifactDir == "" {
		return errors.NewConfigMissingRequired("ARTIFACT_DIR")
	}
	if c.QueryTimeout <= 0 {
		return errors.NewConfigValidationFailed("FACTSTORE_QUERY_TIMEOUT", "must be positive")
	}
	if c.BatchQueryTimeout <= 0 {
		return errors.NewConfigValidationFailed("FACTSTORE_BATCH_TIMEOUT", "must be positive")
	}
	if c.EmbeddingBatchSize < 1 {
		return errors.NewConfigValidationFailed("EMBEDDING_BATCH_SIZE", "must be at least 1")
	}
	if c.Graph.PersonDegreeCap < 1 {
		return errors.NewConfigValidationFailed("GRAPH_PERSON_DEGREE_CAP", "must be at least 1")
	}
	if c.Walks.Dimensions < 1 || c.Walks.WalkLength < 1 || c.Walks.NumWalks < 1 || c.Walks.Window < 1 {
		return errors.NewConfigValidationFailed("walks", "dimensions, length, count and window must be positive")
	}
	if c.Walks.P <= 0 || c.Walks.Q <= 0 {
		return errors.NewConfigValidationFailed("walks", "p and q must be positive")
	}
	if c.Reco.K < 1 || c.Reco.Oversampling < 1 {
		return errors.NewConfigValidationFailed("RECO_K", "RECO_K and RECO_OVERSAMPLING must be at least 1")
	}
	// The embedding API key is optional for local OpenAI-compatible gateways
	return nil
}

// StructuralPath is the node id -> structural vector mapping file
func (c *Config) StructuralPath() string {
	return filepath.Join(c.ArtifactDir, "structural.json")
}

// IndexPath is the semantic vector index file
func (c *Config) IndexPath() string {
	return filepath.Join(c.ArtifactDir, "synopsis.index")
}

// MetadataPath is the row-keyed metadata table
func (c *Config) MetadataPath() string {
	return filepath.Join(c.ArtifactDir, "synopsis.meta.sqlite")
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
