package factstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cinegraph/backend/pkg/errors"
)

// MemoryStore is an in-process Store used for fixtures and offline runs.
// Reviews are append-only; reads see every write that returned.
type MemoryStore struct {
	mu      sync.RWMutex
	movies  map[string]Movie
	edges   map[Relation][]Pair
	reviews []Review
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		movies: make(map[string]Movie),
		edges:  make(map[Relation][]Pair),
	}
}

// AddMovie registers or replaces a movie
func (s *MemoryStore) AddMovie(m Movie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movies[m.URI] = m
}

// Relate adds one edge. For RelReviewed the subject is a user URI.
func (s *MemoryStore) Relate(rel Relation, subject, object string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[rel] = append(s.edges[rel], Pair{Subject: subject, Object: object})
}

func (s *MemoryStore) Movies(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.movies))
	for uri := range s.movies {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Edges(ctx context.Context, rel Relation) ([]Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[Pair]struct{})
	var out []Pair
	add := func(p Pair) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range s.edges[rel] {
		add(p)
	}
	if rel == RelReviewed {
		for _, r := range s.reviews {
			add(Pair{Subject: UserURI(r.Username), Object: r.MovieURI})
		}
	}
	return out, nil
}

func (s *MemoryStore) ExternalIDs(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for uri, m := range s.movies {
		if m.ExternalID != "" {
			out[uri] = m.ExternalID
		}
	}
	return out, nil
}

func (s *MemoryStore) Titles(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for uri, m := range s.movies {
		if m.Title != "" {
			out[uri] = m.Title
		}
	}
	return out, nil
}

func (s *MemoryStore) LikedMovies(ctx context.Context, username string, minRating float64) ([]LikedMovie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LikedMovie
	for _, r := range s.reviews {
		if r.Username != username || r.Rating < minRating {
			continue
		}
		m, ok := s.movies[r.MovieURI]
		if !ok || m.Title == "" {
			continue
		}
		out = append(out, LikedMovie{Title: m.Title, Description: m.Synopsis, Rating: r.Rating})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (s *MemoryStore) WatchedTitles(ctx context.Context, username string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, r := range s.reviews {
		if r.Username != username {
			continue
		}
		title := s.movies[r.MovieURI].Title
		if _, dup := seen[title]; title == "" || dup {
			continue
		}
		seen[title] = struct{}{}
		out = append(out, title)
	}
	return out, nil
}

func (s *MemoryStore) FindMovieByTitle(ctx context.Context, title string) (string, bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", false, errors.NewInvalidInput("title", "cannot be empty")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	uris := make([]string, 0, len(s.movies))
	for uri := range s.movies {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	pick := func(field func(Movie) string) (string, bool) {
		for _, uri := range uris {
			if strings.EqualFold(field(s.movies[uri]), title) {
				return uri, true
			}
		}
		return "", false
	}
	if uri, ok := pick(func(m Movie) string { return m.OriginalTitle }); ok {
		return uri, true, nil
	}
	uri, ok := pick(func(m Movie) string { return m.Title })
	return uri, ok, nil
}

func (s *MemoryStore) InsertReview(ctx context.Context, review Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movies[review.MovieURI]; !ok {
		return errors.NewEntityNotFound("movie", review.MovieURI)
	}
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}
	s.reviews = append(s.reviews, review)
	return nil
}

func (s *MemoryStore) Statistics(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByType: map[string]int64{
		"Movie":  int64(len(s.movies)),
		"Review": int64(len(s.reviews)),
	}}
	users := make(map[string]struct{})
	for _, r := range s.reviews {
		users[r.Username] = struct{}{}
	}
	stats.ByType["User"] = int64(len(users))
	for _, pairs := range s.edges {
		stats.Relationships += int64(len(pairs))
	}
	// Each review contributes WRITTEN_BY and REVIEW_OF
	stats.Relationships += 2 * int64(len(s.reviews))
	for _, n := range stats.ByType {
		stats.Nodes += n
	}
	return stats, nil
}
