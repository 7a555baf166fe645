package factstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

// edgeQueries holds one pattern per relation. Every query returns
// DISTINCT subject/object URI columns.
var edgeQueries = map[Relation]string{
	RelHasGenre: `
		MATCH (m:Movie)-[:HAS_GENRE]->(o:Genre)
		RETURN DISTINCT m.uri AS subject, o.uri AS object`,
	RelHasDirector: `
		MATCH (m:Movie)-[:HAS_DIRECTOR]->(o:Person)
		RETURN DISTINCT m.uri AS subject, o.uri AS object`,
	RelHasWriter: `
		MATCH (m:Movie)-[:HAS_WRITER]->(o:Person)
		RETURN DISTINCT m.uri AS subject, o.uri AS object`,
	RelHasActor: `
		MATCH (m:Movie)-[:HAS_ACTOR]->(o:Person)
		RETURN DISTINCT m.uri AS subject, o.uri AS object`,
	RelReviewed: `
		MATCH (u:User)<-[:WRITTEN_BY]-(:Review)-[:REVIEW_OF]->(m:Movie)
		RETURN DISTINCT u.uri AS subject, m.uri AS object`,
}

// Neo4jStore answers fact store pattern queries from Neo4j
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewNeo4jStore creates a store bound to one database ("" for the default)
func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{
		driver:   driver,
		database: database,
		logger:   logger.Named("factstore"),
	}
}

// Connect opens a driver and checks that the server answers. Failures are
// reported as ErrGraphConnectionFailed.
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, errors.NewGraphConnectionFailed(uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.NewGraphConnectionFailed(uri, err)
	}
	return driver, nil
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// collect runs a read query and hands every record to fn
func (s *Neo4jStore) collect(ctx context.Context, name, query string, params map[string]interface{}, fn func(*neo4j.Record)) error {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return errors.NewGraphQueryFailed(name, err)
	}
	for result.Next(ctx) {
		fn(result.Record())
	}
	if err := result.Err(); err != nil {
		return errors.NewGraphQueryFailed(name, err)
	}
	return nil
}

// Movies returns every movie URI
func (s *Neo4jStore) Movies(ctx context.Context) ([]string, error) {
	query := `
		MATCH (m:Movie)
		WHERE m.uri IS NOT NULL
		RETURN DISTINCT m.uri AS uri
		ORDER BY uri
	`
	var movies []string
	err := s.collect(ctx, "movies", query, nil, func(record *neo4j.Record) {
		if uri := getStringFromRecord(record, "uri"); uri != "" {
			movies = append(movies, uri)
		}
	})
	return movies, err
}

// Edges returns every row of one relation
func (s *Neo4jStore) Edges(ctx context.Context, rel Relation) ([]Pair, error) {
	query, ok := edgeQueries[rel]
	if !ok {
		return nil, errors.NewInvalidInput("relation", string(rel))
	}
	var pairs []Pair
	err := s.collect(ctx, string(rel), query, nil, func(record *neo4j.Record) {
		subject := getStringFromRecord(record, "subject")
		object := getStringFromRecord(record, "object")
		if subject != "" && object != "" {
			pairs = append(pairs, Pair{Subject: subject, Object: object})
		}
	})
	return pairs, err
}

// ExternalIDs maps movie URI -> catalogue id
func (s *Neo4jStore) ExternalIDs(ctx context.Context) (map[string]string, error) {
	return s.movieProperty(ctx, "external ids", "imdbId")
}

// Titles maps movie URI -> primary title
func (s *Neo4jStore) Titles(ctx context.Context) (map[string]string, error) {
	return s.movieProperty(ctx, "titles", "primaryTitle")
}

func (s *Neo4jStore) movieProperty(ctx context.Context, name, property string) (map[string]string, error) {
	// Property names come from the two callers above, never from input
	query := fmt.Sprintf(`
		MATCH (m:Movie)
		WHERE m.uri IS NOT NULL AND m.%s IS NOT NULL
		RETURN DISTINCT m.uri AS uri, toString(m.%s) AS value
	`, property, property)

	out := make(map[string]string)
	err := s.collect(ctx, name, query, nil, func(record *neo4j.Record) {
		uri := getStringFromRecord(record, "uri")
		value := getStringFromRecord(record, "value")
		if uri != "" && value != "" {
			out[uri] = value
		}
	})
	return out, err
}

// LikedMovies returns movies the user rated at or above minRating
func (s *Neo4jStore) LikedMovies(ctx context.Context, username string, minRating float64) ([]LikedMovie, error) {
	query := `
		MATCH (u:User {name: $username})<-[:WRITTEN_BY]-(r:Review)-[:REVIEW_OF]->(m:Movie)
		WITH m, toFloat(r.rating) AS rating
		WHERE rating IS NOT NULL AND rating >= $minRating
		RETURN m.primaryTitle AS title, coalesce(m.synopsis, '') AS synopsis, rating
		ORDER BY rating DESC, title
	`
	var liked []LikedMovie
	err := s.collect(ctx, "liked movies", query, map[string]interface{}{
		"username":  username,
		"minRating": minRating,
	}, func(record *neo4j.Record) {
		rating, ok := getFloat64FromRecord(record, "rating")
		title := getStringFromRecord(record, "title")
		if !ok || title == "" {
			s.logger.Debug("Skipping review row without title or numeric rating",
				zap.String("username", username),
			)
			return
		}
		liked = append(liked, LikedMovie{
			Title:       title,
			Description: getStringFromRecord(record, "synopsis"),
			Rating:      rating,
		})
	})
	return liked, err
}

// WatchedTitles returns every title the user reviewed
func (s *Neo4jStore) WatchedTitles(ctx context.Context, username string) ([]string, error) {
	query := `
		MATCH (u:User {name: $username})<-[:WRITTEN_BY]-(:Review)-[:REVIEW_OF]->(m:Movie)
		WHERE m.primaryTitle IS NOT NULL
		RETURN DISTINCT m.primaryTitle AS title
	`
	var titles []string
	err := s.collect(ctx, "watched titles", query, map[string]interface{}{
		"username": username,
	}, func(record *neo4j.Record) {
		if title := getStringFromRecord(record, "title"); title != "" {
			titles = append(titles, title)
		}
	})
	return titles, err
}

// FindMovieByTitle resolves a title, trying originalTitle before primaryTitle
func (s *Neo4jStore) FindMovieByTitle(ctx context.Context, title string) (string, bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", false, errors.NewInvalidInput("title", "cannot be empty")
	}
	for _, property := range []string{"originalTitle", "primaryTitle"} {
		query := fmt.Sprintf(`
			MATCH (m:Movie)
			WHERE toLower(toString(m.%s)) = toLower($title)
			RETURN m.uri AS uri
			ORDER BY uri
			LIMIT 1
		`, property)

		var uri string
		err := s.collect(ctx, "movie by title", query, map[string]interface{}{"title": title}, func(record *neo4j.Record) {
			uri = getStringFromRecord(record, "uri")
		})
		if err != nil {
			return "", false, err
		}
		if uri != "" {
			return uri, true, nil
		}
	}
	return "", false, nil
}

// InsertReview appends a review fact written by the user about a movie
func (s *Neo4jStore) InsertReview(ctx context.Context, review Review) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := `
		MATCH (m:Movie {uri: $movieURI})
		MERGE (u:User {name: $username})
		ON CREATE SET u.uri = $userURI
		CREATE (r:Review {
			id: $reviewID,
			rating: $rating,
			text: $text,
			created_at: datetime($createdAt)
		})
		CREATE (u)<-[:WRITTEN_BY]-(r)-[:REVIEW_OF]->(m)
		RETURN r.id AS id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"movieURI":  review.MovieURI,
		"username":  review.Username,
		"userURI":   UserURI(review.Username),
		"reviewID":  review.ID,
		"rating":    review.Rating,
		"text":      review.Text,
		"createdAt": review.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.NewGraphQueryFailed("insert review", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return errors.NewGraphQueryFailed("insert review", err)
		}
		return errors.NewEntityNotFound("movie", review.MovieURI)
	}

	s.logger.Info("Review inserted",
		zap.String("review_id", review.ID),
		zap.String("username", review.Username),
		zap.String("movie_uri", review.MovieURI),
		zap.Float64("rating", review.Rating),
	)
	return nil
}

// Statistics reports node counts per label and the relationship total
func (s *Neo4jStore) Statistics(ctx context.Context) (Stats, error) {
	stats := Stats{ByType: make(map[string]int64)}

	err := s.collect(ctx, "node statistics", `
		MATCH (n)
		RETURN coalesce(head(labels(n)), 'Unlabelled') AS type, count(*) AS count
	`, nil, func(record *neo4j.Record) {
		count := getInt64FromRecord(record, "count")
		stats.ByType[getStringFromRecord(record, "type")] += count
		stats.Nodes += count
	})
	if err != nil {
		return stats, err
	}

	err = s.collect(ctx, "relationship statistics", `
		MATCH ()-[r]->()
		RETURN count(r) AS count
	`, nil, func(record *neo4j.Record) {
		stats.Relationships = getInt64FromRecord(record, "count")
	})
	return stats, err
}
