package factstore

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"cinegraph/backend/internal/metrics"
	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

// DefaultQueryTimeout bounds a single fact store query
const DefaultQueryTimeout = 20 * time.Second

// Guard runs fact store queries on a bounded set of workers with a time
// budget. A query that overruns is abandoned and reported as a timeout;
// its worker slot is released once the query actually returns.
type Guard struct {
	store   Store
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *zap.Logger
}

// NewGuard wraps store. Non-positive values fall back to the defaults.
func NewGuard(store Store, maxConcurrent int, timeout time.Duration) *Guard {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Guard{
		store:   store,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
		logger:  logger.Named("factstore.guard"),
	}
}

// Timeout returns the per-query budget
func (g *Guard) Timeout() time.Duration {
	return g.timeout
}

type guarded[T any] struct {
	value T
	err   error
}

// Do runs fn under the guard. The worker keeps running after a timeout but
// its result is discarded.
func Do[T any](ctx context.Context, g *Guard, operation string, fn func(ctx context.Context, s Store) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	defer metrics.ObserveQuery(operation, start)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return zero, g.interrupted(ctx, operation)
	}

	done := make(chan guarded[T], 1)
	go func() {
		defer g.sem.Release(1)
		v, err := fn(ctx, g.store)
		done <- guarded[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.IsErrorType(res.err, errors.ErrorTypeInput) || errors.IsErrorType(res.err, errors.ErrorTypeNotFound) {
				return zero, res.err
			}
			if ctx.Err() != nil {
				return zero, g.interrupted(ctx, operation)
			}
			return zero, errors.NewUpstreamFailure("fact store", res.err)
		}
		return res.value, nil
	case <-ctx.Done():
		return zero, g.interrupted(ctx, operation)
	}
}

// interrupted reports a query stopped by its context. Only an expired
// deadline is a timeout; a caller cancellation is returned unchanged.
func (g *Guard) interrupted(ctx context.Context, operation string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return g.timedOut(operation)
	}
	return ctx.Err()
}

func (g *Guard) timedOut(operation string) error {
	metrics.FactStoreTimeouts.WithLabelValues(operation).Inc()
	g.logger.Warn("Fact store query exceeded budget",
		zap.String("operation", operation),
		zap.Duration("timeout", g.timeout),
	)
	return errors.NewUpstreamTimeout(operation, g.timeout)
}

// Guard also satisfies Store so it can be dropped in front of any consumer.

func (g *Guard) Movies(ctx context.Context) ([]string, error) {
	return Do(ctx, g, "movies", func(ctx context.Context, s Store) ([]string, error) {
		return s.Movies(ctx)
	})
}

func (g *Guard) Edges(ctx context.Context, rel Relation) ([]Pair, error) {
	return Do(ctx, g, "edges", func(ctx context.Context, s Store) ([]Pair, error) {
		return s.Edges(ctx, rel)
	})
}

func (g *Guard) ExternalIDs(ctx context.Context) (map[string]string, error) {
	return Do(ctx, g, "external_ids", func(ctx context.Context, s Store) (map[string]string, error) {
		return s.ExternalIDs(ctx)
	})
}

func (g *Guard) Titles(ctx context.Context) (map[string]string, error) {
	return Do(ctx, g, "titles", func(ctx context.Context, s Store) (map[string]string, error) {
		return s.Titles(ctx)
	})
}

func (g *Guard) LikedMovies(ctx context.Context, username string, minRating float64) ([]LikedMovie, error) {
	return Do(ctx, g, "liked_movies", func(ctx context.Context, s Store) ([]LikedMovie, error) {
		return s.LikedMovies(ctx, username, minRating)
	})
}

func (g *Guard) WatchedTitles(ctx context.Context, username string) ([]string, error) {
	return Do(ctx, g, "watched_titles", func(ctx context.Context, s Store) ([]string, error) {
		return s.WatchedTitles(ctx, username)
	})
}

func (g *Guard) FindMovieByTitle(ctx context.Context, title string) (string, bool, error) {
	type found struct {
		uri string
		ok  bool
	}
	res, err := Do(ctx, g, "movie_by_title", func(ctx context.Context, s Store) (found, error) {
		uri, ok, err := s.FindMovieByTitle(ctx, title)
		return found{uri, ok}, err
	})
	return res.uri, res.ok, err
}

func (g *Guard) InsertReview(ctx context.Context, review Review) error {
	_, err := Do(ctx, g, "insert_review", func(ctx context.Context, s Store) (struct{}, error) {
		return struct{}{}, s.InsertReview(ctx, review)
	})
	return err
}

func (g *Guard) Statistics(ctx context.Context) (Stats, error) {
	return Do(ctx, g, "statistics", func(ctx context.Context, s Store) (Stats, error) {
		return s.Statistics(ctx)
	})
}
