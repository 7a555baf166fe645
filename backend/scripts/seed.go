package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"cinegraph/backend/internal/catalog"
	"cinegraph/backend/internal/factstore"
	"cinegraph/backend/pkg/config"
	"cinegraph/backend/pkg/logger"
)

const genreNamespace = "http://www.moviedb.fr/cinema#Genre/"

func main() {
	catalogPath := flag.String("catalog", "", "Catalogue TSV to import as Movie and Genre nodes (schema only when empty)")
	batchSize := flag.Int("batch", 500, "Rows per import transaction")
	limit := flag.Int("limit", 0, "Import at most this many catalogue rows (0 for all)")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

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

	// Create constraints
	log.Info("Creating constraints...")
	if err := createConstraints(ctx, driver, cfg.Neo4jDatabase); err != nil {
		log.Warn("Failed to create some constraints (may already exist)", zap.Error(err))
	}

	// Create indexes for better performance
	log.Info("Creating indexes...")
	if err := createIndexes(ctx, driver, cfg.Neo4jDatabase); err != nil {
		log.Warn("Failed to create some indexes (may already exist)", zap.Error(err))
	}

	if *catalogPath == "" {
		log.Info("Schema ready, no catalogue given")
		return
	}

	records, err := catalog.LoadFile(*catalogPath)
	if err != nil {
		log.Fatal("Failed to read catalogue", zap.Error(err))
	}
	if *limit > 0 && len(records) > *limit {
		records = records[:*limit]
	}

	imported, err := importCatalog(ctx, driver, cfg.Neo4jDatabase, cfg.Graph.LocalMoviePrefix, records, *batchSize)
	if err != nil {
		log.Fatal("Catalogue import failed", zap.Int("imported", imported), zap.Error(err))
	}

	stats, err := factstore.NewNeo4jStore(driver, cfg.Neo4jDatabase).Statistics(ctx)
	if err != nil {
		log.Warn("Failed to read statistics", zap.Error(err))
	}
	log.Info("Seed completed",
		zap.Int("movies_imported", imported),
		zap.Int64("nodes", stats.Nodes),
		zap.Int64("relationships", stats.Relationships),
	)
}

// createConstraints creates Neo4j constraints for data integrity
func createConstraints(ctx context.Context, driver neo4j.DriverWithContext, database string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT movie_uri_unique IF NOT EXISTS FOR (m:Movie) REQUIRE m.uri IS UNIQUE",
		"CREATE CONSTRAINT genre_uri_unique IF NOT EXISTS FOR (g:Genre) REQUIRE g.uri IS UNIQUE",
		"CREATE CONSTRAINT person_uri_unique IF NOT EXISTS FOR (p:Person) REQUIRE p.uri IS UNIQUE",
		"CREATE CONSTRAINT user_name_unique IF NOT EXISTS FOR (u:User) REQUIRE u.name IS UNIQUE",
		"CREATE CONSTRAINT review_id_unique IF NOT EXISTS FOR (r:Review) REQUIRE r.id IS UNIQUE",
	}

	var firstErr error
	for _, constraint := range constraints {
		if _, err := session.Run(ctx, constraint, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// createIndexes creates Neo4j indexes for the lookups the fact store runs
func createIndexes(ctx context.Context, driver neo4j.DriverWithContext, database string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)

	indexes := []string{
		"CREATE INDEX movie_imdb_id IF NOT EXISTS FOR (m:Movie) ON (m.imdbId)",
		"CREATE INDEX movie_primary_title IF NOT EXISTS FOR (m:Movie) ON (m.primaryTitle)",
		"CREATE INDEX movie_original_title IF NOT EXISTS FOR (m:Movie) ON (m.originalTitle)",
		"CREATE INDEX review_created_at IF NOT EXISTS FOR (r:Review) ON (r.created_at)",
	}

	var firstErr error
	for _, index := range indexes {
		if _, err := session.Run(ctx, index, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// importCatalog merges one Movie node per record plus its Genre edges, in
// batches of batchSize rows per transaction.
func importCatalog(ctx context.Context, driver neo4j.DriverWithContext, database, prefix string, records []catalog.Record, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = 500
	}
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)

	query := `
		UNWIND $rows AS row
		MERGE (m:Movie {uri: row.uri})
		SET m.imdbId = row.tconst,
			m.primaryTitle = row.title,
			m.synopsis = row.synopsis,
			m.startYear = row.year
		WITH m, row
		UNWIND row.genres AS genre
		MERGE (g:Genre {uri: genre.uri})
		ON CREATE SET g.name = genre.name
		MERGE (m)-[:HAS_GENRE]->(g)
	`

	log := logger.Named("seed")
	imported := 0
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		rows := make([]map[string]interface{}, 0, end-start)
		for _, rec := range records[start:end] {
			rows = append(rows, movieRow(prefix, rec))
		}

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
			result, err := tx.Run(ctx, query, map[string]interface{}{"rows": rows})
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			return imported, fmt.Errorf("failed to import rows %d-%d: %w", start, end, err)
		}
		imported += len(rows)
		log.Info("Imported catalogue batch", zap.Int("imported", imported), zap.Int("total", len(records)))
	}
	return imported, nil
}

func movieRow(prefix string, rec catalog.Record) map[string]interface{} {
	genres := make([]map[string]interface{}, 0, len(rec.Genres))
	for _, g := range rec.Genres {
		genres = append(genres, map[string]interface{}{
			"uri":  genreNamespace + url.PathEscape(g),
			"name": g,
		})
	}
	var year interface{}
	if rec.Year > 0 {
		year = rec.Year
	}
	var synopsis interface{}
	if rec.HasText() {
		synopsis = rec.Description
	}
	return map[string]interface{}{
		"uri":      prefix + rec.ID,
		"tconst":   rec.ID,
		"title":    rec.Title,
		"synopsis": synopsis,
		"year":     year,
		"genres":   genres,
	}
}
