// Package recommend answers online recommendation requests over the
// current snapshot and the fact store. Every public method returns an
// outcome.Outcome; errors never escape the service boundary.
package recommend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cinegraph/backend/internal/embedding"
	"cinegraph/backend/internal/factstore"
	"cinegraph/backend/internal/fusion"
	"cinegraph/backend/internal/metrics"
	"cinegraph/backend/internal/outcome"
	"cinegraph/backend/internal/snapshot"
	"cinegraph/backend/internal/vecindex"
	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

// Snapshots yields the currently published artifacts
type Snapshots interface {
	Current() *snapshot.Snapshot
}

// Stage names a step of the profile recommendation pipeline
type Stage string

const (
	StageFetchHistory  Stage = "fetch_history"
	StageEmbedLiked    Stage = "embed_liked_items"
	StageAggregate     Stage = "aggregate_profile"
	StageRank          Stage = "rank"
	StageFilterWatched Stage = "filter_watched"
	StageFormat        Stage = "format"
)

// Service orchestrates history retrieval, profile building and ranking
type Service struct {
	store     factstore.Store
	embedder  embedding.Embedder
	snapshots Snapshots
	cfg       Config
	logger    *zap.Logger
}

// NewService creates a service. store should already be guarded when it
// fronts a remote fact store.
func NewService(store factstore.Store, embedder embedding.Embedder, snapshots Snapshots, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.Oversampling <= 0 {
		cfg.Oversampling = def.Oversampling
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = def.SnippetLength
	}
	if cfg.SearchSnippetLength <= 0 {
		cfg.SearchSnippetLength = def.SearchSnippetLength
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = def.MaxK
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger.Named("recommend"),
	}
}

func (s *Service) clampK(k int) int {
	if k <= 0 {
		return s.cfg.K
	}
	if k > s.cfg.MaxK {
		return s.cfg.MaxK
	}
	return k
}

func (s *Service) current() (*snapshot.Snapshot, error) {
	snap := s.snapshots.Current()
	if snap == nil || snap.Semantic == nil {
		return nil, errors.NewMissingArtifact("snapshot", "not loaded")
	}
	return snap, nil
}

// history is the FETCH_HISTORY output
type history struct {
	liked   []factstore.LikedMovie
	watched map[string]struct{}
}

// Recommend builds a taste profile from the user's liked movies and ranks
// the catalogue against it.
func (s *Service) Recommend(ctx context.Context, req Request) (out outcome.Outcome[*Result]) {
	start := time.Now()
	defer func() { metrics.ObserveRecommendation("profile", string(out.Status), start) }()

	minRating := s.cfg.MinRating
	if req.MinRating != nil {
		minRating = *req.MinRating
	}
	exclude := true
	if req.ExcludeWatched != nil {
		exclude = *req.ExcludeWatched
	}
	res := &Result{
		Username:        req.Username,
		MinRating:       minRating,
		K:               s.clampK(req.K),
		Recommendations: []Recommendation{},
		ReferenceMovies: []ReferenceMovie{},
	}
	log := s.logger.With(zap.String("username", req.Username))

	if strings.TrimSpace(req.Username) == "" {
		return s.fail(log, StageFetchHistory, errors.NewInvalidInput("username", "cannot be empty"))
	}
	snap, err := s.current()
	if err != nil {
		return s.fail(log, StageRank, err)
	}

	// FETCH_HISTORY
	hist, err := s.fetchHistory(ctx, req.Username, minRating)
	if err != nil {
		return s.fail(log, StageFetchHistory, err)
	}
	if len(hist.liked) == 0 {
		log.Debug("No liked history", zap.Float64("min_rating", minRating))
		return outcome.Empty(res, "no liked movies at or above the rating threshold")
	}

	// EMBED_LIKED_ITEMS
	vecs, refs := s.embedLiked(ctx, log, hist.liked)
	if len(vecs) == 0 {
		return outcome.Empty(res, "no liked movie has an embeddable description")
	}
	res.ReferenceMovies = refs

	// AGGREGATE_PROFILE
	profile := embedding.Mean(vecs)
	if embedding.Norm(profile) > 0 {
		profile = embedding.Normalize(profile)
	}

	// RANK
	searchK := res.K
	if exclude {
		searchK = res.K * s.cfg.Oversampling
	}
	matches, err := fusion.ProfileToItem(snap.Semantic, profile, searchK)
	if err != nil {
		return s.fail(log, StageRank, err)
	}

	// FILTER_WATCHED
	if exclude {
		matches = filterWatched(matches, hist.watched)
	}

	// FORMAT
	for _, m := range matches {
		if len(res.Recommendations) >= res.K {
			break
		}
		res.Recommendations = append(res.Recommendations, s.format(m))
	}
	log.Info("Recommendations ready",
		zap.Int("liked", len(hist.liked)),
		zap.Int("reference", len(refs)),
		zap.Int("returned", len(res.Recommendations)),
	)
	if len(res.Recommendations) == 0 {
		return outcome.Empty(res, "every candidate was already watched")
	}
	return outcome.Ok(res)
}

// fetchHistory runs the liked and watched queries concurrently. History is
// read fresh on every request so new reviews count immediately.
func (s *Service) fetchHistory(ctx context.Context, username string, minRating float64) (*history, error) {
	var liked []factstore.LikedMovie
	var watched []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		liked, err = s.store.LikedMovies(gctx, username, minRating)
		return err
	})
	g.Go(func() error {
		var err error
		watched, err = s.store.WatchedTitles(gctx, username)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h := &history{watched: make(map[string]struct{}, len(watched))}
	for _, t := range watched {
		h.watched[strings.ToLower(t)] = struct{}{}
	}
	seen := make(map[string]struct{})
	for _, m := range liked {
		// Liked titles always join the watched set
		h.watched[strings.ToLower(m.Title)] = struct{}{}
		if _, dup := seen[m.Title]; dup {
			continue
		}
		seen[m.Title] = struct{}{}
		h.liked = append(h.liked, m)
	}
	return h, nil
}

// embedLiked embeds each description on its own so one bad item cannot
// sink the profile
func (s *Service) embedLiked(ctx context.Context, log *zap.Logger, liked []factstore.LikedMovie) ([][]float32, []ReferenceMovie) {
	var vecs [][]float32
	refs := []ReferenceMovie{}
	for _, m := range liked {
		if strings.TrimSpace(m.Description) == "" {
			continue
		}
		vec, err := embedding.EmbedOne(ctx, s.embedder, m.Description)
		if err != nil {
			log.Warn("Skipping liked movie, description failed to embed",
				zap.String("title", m.Title),
				zap.Error(err),
			)
			continue
		}
		vecs = append(vecs, vec)
		refs = append(refs, ReferenceMovie{Title: m.Title, Rating: m.Rating})
	}
	return vecs, refs
}

func filterWatched(matches []vecindex.Match, watched map[string]struct{}) []vecindex.Match {
	out := matches[:0:0]
	for _, m := range matches {
		if _, seen := watched[strings.ToLower(m.Record.Title)]; seen {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *Service) format(m vecindex.Match) Recommendation {
	return Recommendation{
		Title:      m.Record.Title,
		Year:       m.Record.Year,
		ExternalID: m.Record.ID,
		Genres:     nonNil(m.Record.Genres),
		Snippet:    m.Record.Snippet(s.cfg.SnippetLength),
		Score:      float64(m.Score),
	}
}

// fail converts an error into the matching outcome and logs it once
func (s *Service) fail(log *zap.Logger, stage Stage, err error) outcome.Outcome[*Result] {
	log.Error("Recommendation failed", zap.String("stage", string(stage)), zap.Error(err))
	return outcome.FromError[*Result](err)
}

// SimilarByTitle resolves a title to a movie and returns its nearest
// neighbours in the fused space.
func (s *Service) SimilarByTitle(ctx context.Context, title string, k int) (out outcome.Outcome[*SimilarResult]) {
	start := time.Now()
	defer func() { metrics.ObserveRecommendation("similar", string(out.Status), start) }()

	title = strings.TrimSpace(title)
	if title == "" {
		return outcome.FromError[*SimilarResult](errors.NewInvalidInput("title", "cannot be empty"))
	}
	snap, err := s.current()
	if err != nil {
		return outcome.FromError[*SimilarResult](err)
	}

	uri, found, err := s.store.FindMovieByTitle(ctx, title)
	if err != nil {
		return outcome.FromError[*SimilarResult](err)
	}
	if !found {
		return outcome.NotFound[*SimilarResult]("movie not found in the graph")
	}
	if snap.Engine == nil {
		return outcome.NotFound[*SimilarResult]("no fused embeddings are available")
	}

	neighbors, err := snap.Engine.ItemToItem(uri, s.clampK(k))
	if err != nil {
		if errors.IsErrorType(err, errors.ErrorTypeNotFound) {
			return outcome.NotFound[*SimilarResult]("movie not found in fused embeddings")
		}
		return outcome.FromError[*SimilarResult](err)
	}

	res := &SimilarResult{Query: title, URI: uri, Similar: make([]SimilarMovie, 0, len(neighbors))}
	for _, n := range neighbors {
		t, ok := snap.Title(n.URI)
		if !ok {
			t = "Unknown title"
		}
		res.Similar = append(res.Similar, SimilarMovie{Title: t, URI: n.URI, Score: n.Score})
	}
	if len(res.Similar) == 0 {
		return outcome.Empty(res, "no similar movies found")
	}
	return outcome.Ok(res)
}

// Search ranks catalogue records against free text
func (s *Service) Search(ctx context.Context, query string, k int) (out outcome.Outcome[[]SearchHit]) {
	start := time.Now()
	defer func() { metrics.ObserveRecommendation("search", string(out.Status), start) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return outcome.FromError[[]SearchHit](errors.NewInvalidInput("query", "cannot be empty"))
	}
	snap, err := s.current()
	if err != nil {
		return outcome.FromError[[]SearchHit](err)
	}
	matches, err := snap.Semantic.SearchText(ctx, s.embedder, query, s.clampK(k))
	if err != nil {
		return outcome.FromError[[]SearchHit](err)
	}

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, SearchHit{
			Title:      m.Record.Title,
			Year:       m.Record.Year,
			ExternalID: m.Record.ID,
			Genres:     nonNil(m.Record.Genres),
			Snippet:    m.Record.Snippet(s.cfg.SearchSnippetLength),
			Score:      float64(m.Score),
		})
	}
	if len(hits) == 0 {
		return outcome.Empty(hits, "semantic index is empty")
	}
	return outcome.Ok(hits)
}

// Stats reports fact store counts and the sizes of the current snapshot
func (s *Service) Stats(ctx context.Context) outcome.Outcome[*Stats] {
	facts, err := s.store.Statistics(ctx)
	if err != nil {
		return outcome.FromError[*Stats](err)
	}
	out := &Stats{FactStore: facts}
	if snap := s.snapshots.Current(); snap != nil {
		if snap.Structural != nil {
			out.StructuralMovies = snap.Structural.Len()
		}
		if snap.Semantic != nil {
			out.SemanticMovies = snap.Semantic.Index.Len()
		}
		if snap.Engine != nil {
			out.FusedMovies = snap.Engine.Len()
		}
		out.SnapshotLoadedAt = snap.LoadedAt
	}
	return outcome.Ok(out)
}

// AddReview appends a review fact. The movie is identified by URI or, when
// no URI is given, by title.
func (s *Service) AddReview(ctx context.Context, req ReviewRequest) outcome.Outcome[*factstore.Review] {
	if strings.TrimSpace(req.Username) == "" {
		return outcome.FromError[*factstore.Review](errors.NewInvalidInput("username", "cannot be empty"))
	}
	if req.Rating < 0 || req.Rating > 10 {
		return outcome.FromError[*factstore.Review](errors.NewInvalidInput("rating", fmt.Sprintf("%.1f is outside 0-10", req.Rating)))
	}

	uri := req.MovieURI
	if uri == "" {
		resolved, found, err := s.store.FindMovieByTitle(ctx, req.Title)
		if err != nil {
			return outcome.FromError[*factstore.Review](err)
		}
		if !found {
			return outcome.NotFound[*factstore.Review]("movie not found in the graph")
		}
		uri = resolved
	}

	review := &factstore.Review{
		ID:        uuid.New().String(),
		Username:  req.Username,
		MovieURI:  uri,
		Rating:    req.Rating,
		Text:      req.Text,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertReview(ctx, *review); err != nil {
		return outcome.FromError[*factstore.Review](err)
	}
	s.logger.Info("Review recorded",
		zap.String("username", req.Username),
		zap.String("movie_uri", uri),
		zap.Float64("rating", req.Rating),
	)
	return outcome.Ok(review)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
