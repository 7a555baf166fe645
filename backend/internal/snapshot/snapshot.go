// Package snapshot owns the loaded artifacts that online requests read.
// A Snapshot never changes after it is published; a reload builds a new
// one and swaps it in atomically, so in-flight requests finish on the
// snapshot they started with.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cinegraph/backend/internal/factstore"
	"cinegraph/backend/internal/fusion"
	"cinegraph/backend/internal/metrics"
	"cinegraph/backend/internal/node2vec"
	"cinegraph/backend/internal/vecindex"
	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

// Snapshot is one consistent set of artifacts
type Snapshot struct {
	Structural *node2vec.Vectors
	Semantic   *vecindex.Semantic
	// Engine is nil when no movie could be fused; profile queries still work
	Engine   *fusion.Engine
	Report   *fusion.Report
	Titles   map[string]string
	LoadedAt time.Time
}

// Title returns the primary title of a movie URI
func (s *Snapshot) Title(uri string) (string, bool) {
	t, ok := s.Titles[uri]
	return t, ok
}

// Paths locates the three persisted artifacts
type Paths struct {
	Structural string
	Index      string
	Metadata   string
}

// Loader reads artifacts from disk and joins them through the fact store
type Loader struct {
	Paths       Paths
	Store       factstore.Store
	LocalPrefix string
}

// Load builds a fresh snapshot. Missing or mutually inconsistent artifacts
// fail the load; an empty fused set does not.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	structural, err := node2vec.Load(l.Paths.Structural)
	if err != nil {
		return nil, err
	}
	semantic, err := vecindex.LoadSemantic(ctx, l.Paths.Index, l.Paths.Metadata)
	if err != nil {
		return nil, err
	}
	refs, err := l.Store.ExternalIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch external ids: %w", err)
	}
	titles, err := l.Store.Titles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch titles: %w", err)
	}

	snap := &Snapshot{
		Structural: structural,
		Semantic:   semantic,
		Titles:     titles,
		LoadedAt:   time.Now(),
	}
	engine, report, err := fusion.Build(structural, semantic, refs, fusion.Options{LocalPrefix: l.LocalPrefix})
	switch {
	case err == nil:
		snap.Engine = engine
	case errors.IsErrorType(err, errors.ErrorTypeEmpty):
		logger.Named("snapshot").Warn("Fused set is empty, item similarity disabled", zap.Error(err))
	default:
		return nil, err
	}
	snap.Report = report
	return snap, nil
}

// LoadFunc produces a snapshot
type LoadFunc func(ctx context.Context) (*Snapshot, error)

// Holder publishes the current snapshot
type Holder struct {
	current atomic.Pointer[Snapshot]
	load    LoadFunc
	// serializes reloads; readers never take it
	reloadMu sync.Mutex
	logger   *zap.Logger
}

// NewHolder creates a holder; call Reload to publish the first snapshot
func NewHolder(load LoadFunc) *Holder {
	return &Holder{load: load, logger: logger.Named("snapshot")}
}

// NewStaticHolder publishes snap and never reloads
func NewStaticHolder(snap *Snapshot) *Holder {
	h := NewHolder(func(ctx context.Context) (*Snapshot, error) { return snap, nil })
	h.publish(snap)
	return h
}

// Current returns the published snapshot, or nil before the first load
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Reload builds a new snapshot and swaps it in. On failure the previous
// snapshot stays published.
func (h *Holder) Reload(ctx context.Context) (*Snapshot, error) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	start := time.Now()
	snap, err := h.load(ctx)
	if err != nil {
		metrics.SnapshotReloads.WithLabelValues("error").Inc()
		h.logger.Error("Snapshot reload failed, keeping previous snapshot",
			zap.Error(err),
			zap.Bool("has_previous", h.Current() != nil),
		)
		return nil, err
	}
	h.publish(snap)
	metrics.SnapshotReloads.WithLabelValues("ok").Inc()
	h.logger.Info("Snapshot published",
		zap.Int("structural", snap.sizes()[0]),
		zap.Int("semantic", snap.sizes()[1]),
		zap.Int("fused", snap.sizes()[2]),
		zap.Duration("duration", time.Since(start)),
	)
	return snap, nil
}

func (h *Holder) publish(snap *Snapshot) {
	h.current.Store(snap)
	sizes := snap.sizes()
	metrics.IndexVectors.WithLabelValues("structural").Set(float64(sizes[0]))
	metrics.IndexVectors.WithLabelValues("semantic").Set(float64(sizes[1]))
	metrics.IndexVectors.WithLabelValues("fused").Set(float64(sizes[2]))
}

// sizes returns the structural, semantic and fused vector counts
func (s *Snapshot) sizes() [3]int {
	var out [3]int
	if s.Structural != nil {
		out[0] = s.Structural.Len()
	}
	if s.Semantic != nil {
		out[1] = s.Semantic.Index.Len()
	}
	if s.Engine != nil {
		out[2] = s.Engine.Len()
	}
	return out
}
