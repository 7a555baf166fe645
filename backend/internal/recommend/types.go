package recommend

import (
	"time"

	"cinegraph/backend/internal/factstore"
)

// Config holds request defaults
type Config struct {
	MinRating     float64
	K             int
	Oversampling  int
	SnippetLength int
	// SearchSnippetLength applies to free-text search results
	SearchSnippetLength int
	MaxK                int
}

// DefaultConfig returns the service defaults
func DefaultConfig() Config {
	return Config{
		MinRating:           7.0,
		K:                   10,
		Oversampling:        3,
		SnippetLength:       200,
		SearchSnippetLength: 250,
		MaxK:                100,
	}
}

// Request asks for recommendations from a user's liked history
type Request struct {
	Username       string   `json:"username"`
	MinRating      *float64 `json:"min_rating,omitempty"`
	K              int      `json:"k,omitempty"`
	ExcludeWatched *bool    `json:"exclude_watched,omitempty"`
}

// Recommendation is one formatted candidate
type Recommendation struct {
	Title      string   `json:"title"`
	Year       int      `json:"year,omitempty"`
	ExternalID string   `json:"external_id"`
	Genres     []string `json:"genres"`
	Snippet    string   `json:"synopsis"`
	Score      float64  `json:"score"`
}

// ReferenceMovie is a liked movie that contributed to the profile
type ReferenceMovie struct {
	Title  string  `json:"title"`
	Rating float64 `json:"rating"`
}

// Result is the response to a Request. Both lists are always non-nil.
type Result struct {
	Username        string           `json:"username"`
	MinRating       float64          `json:"min_rating"`
	K               int              `json:"k"`
	Recommendations []Recommendation `json:"recommendations"`
	ReferenceMovies []ReferenceMovie `json:"reference_movies"`
}

// SimilarMovie is one item-to-item result
type SimilarMovie struct {
	Title string  `json:"title"`
	URI   string  `json:"uri"`
	Score float64 `json:"score"`
}

// SimilarResult answers a similar-by-title query
type SimilarResult struct {
	Query   string         `json:"query"`
	URI     string         `json:"uri"`
	Similar []SimilarMovie `json:"similar"`
}

// SearchHit is one free-text search result
type SearchHit struct {
	Title      string   `json:"title"`
	Year       int      `json:"year,omitempty"`
	ExternalID string   `json:"external_id"`
	Genres     []string `json:"genres"`
	Snippet    string   `json:"synopsis"`
	Score      float64  `json:"score"`
}

// Stats reports fact store and snapshot sizes
type Stats struct {
	FactStore        factstore.Stats `json:"fact_store"`
	StructuralMovies int             `json:"structural_movies"`
	SemanticMovies   int             `json:"semantic_movies"`
	FusedMovies      int             `json:"fused_movies"`
	SnapshotLoadedAt time.Time       `json:"snapshot_loaded_at"`
}

// ReviewRequest records a rating for a movie given by title or URI
type ReviewRequest struct {
	Username string  `json:"username" binding:"required"`
	Title    string  `json:"title"`
	MovieURI string  `json:"movie_uri"`
	Rating   float64 `json:"rating"`
	Text     string  `json:"text"`
}
