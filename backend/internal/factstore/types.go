// Package factstore is the read-mostly view over the movie knowledge graph.
// Every query is a fixed pattern returning entity URIs or scalars; the
// store's own query language never leaks out of this package.
package factstore

import (
	"context"
	"time"
)

// Relation names a movie-centric edge type in the knowledge graph
type Relation string

const (
	RelHasGenre    Relation = "hasGenre"
	RelHasDirector Relation = "hasDirector"
	RelHasWriter   Relation = "hasWriter"
	RelHasActor    Relation = "hasActor"
	// RelReviewed runs user -> movie, all others run movie -> object
	RelReviewed Relation = "reviewed"
)

// Relations lists every relation the store can answer for
var Relations = []Relation{RelHasGenre, RelHasDirector, RelHasWriter, RelHasActor, RelReviewed}

// UserNamespace prefixes user URIs derived from a username
const UserNamespace = "http://www.moviedb.fr/cinema#User/"

// Pair is one (subject, object) row of a pattern query
type Pair struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
}

// Movie is the fact store view of a catalogue item
type Movie struct {
	URI           string   `json:"uri"`
	Title         string   `json:"title"`
	OriginalTitle string   `json:"original_title,omitempty"`
	ExternalID    string   `json:"external_id,omitempty"`
	Synopsis      string   `json:"synopsis,omitempty"`
	Year          int      `json:"year,omitempty"`
	Genres        []string `json:"genres,omitempty"`
}

// LikedMovie is one row of a user's rated history
type LikedMovie struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Rating      float64 `json:"rating"`
}

// Review is the write-path fact created from user interaction
type Review struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	MovieURI  string    `json:"movie_uri"`
	Rating    float64   `json:"rating"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarises the fact store contents
type Stats struct {
	Nodes         int64            `json:"nodes"`
	Relationships int64            `json:"relationships"`
	ByType        map[string]int64 `json:"by_type"`
}

// Store is the pattern-query interface consumed by the graph builder, the
// fusion engine and the recommendation service.
type Store interface {
	// Movies returns every movie URI.
	Movies(ctx context.Context) ([]string, error)
	// Edges returns all rows of one relation; an empty slice is valid.
	Edges(ctx context.Context, rel Relation) ([]Pair, error)
	// ExternalIDs maps movie URI -> catalogue id.
	ExternalIDs(ctx context.Context) (map[string]string, error)
	// Titles maps movie URI -> primary title.
	Titles(ctx context.Context) (map[string]string, error)
	// LikedMovies returns movies the user rated at or above minRating.
	LikedMovies(ctx context.Context, username string, minRating float64) ([]LikedMovie, error)
	// WatchedTitles returns every title the user reviewed, regardless of rating.
	WatchedTitles(ctx context.Context, username string) ([]string, error)
	// FindMovieByTitle resolves a title case-insensitively, original title first.
	FindMovieByTitle(ctx context.Context, title string) (string, bool, error)
	// InsertReview appends a review fact.
	InsertReview(ctx context.Context, review Review) error
	// Statistics reports node and relationship counts.
	Statistics(ctx context.Context) (Stats, error)
}

// UserURI derives the user node URI from a username
func UserURI(username string) string {
	return UserNamespace + username
}
