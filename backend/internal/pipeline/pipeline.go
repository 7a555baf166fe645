// Package pipeline runs the offline rebuild: relation graph and structural
// vectors, then the semantic index. Stages run sequentially and each one
// publishes its artifacts only after all of them were written.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cinegraph/backend/internal/catalog"
	"cinegraph/backend/internal/embedding"
	"cinegraph/backend/internal/factstore"
	"cinegraph/backend/internal/fusion"
	"cinegraph/backend/internal/node2vec"
	"cinegraph/backend/internal/relgraph"
	"cinegraph/backend/internal/snapshot"
	"cinegraph/backend/internal/vecindex"
	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

// Stage selects what to rebuild
type Stage string

const (
	StageGraph    Stage = "graph"
	StageSemantic Stage = "semantic"
	StageAll      Stage = "all"
)

// ParseStage validates a stage name
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageGraph, StageSemantic, StageAll:
		return Stage(s), nil
	}
	return "", errors.NewInvalidInput("stage", fmt.Sprintf("%q is not one of graph, semantic, all", s))
}

// Config gathers stage parameters
type Config struct {
	Graph       relgraph.Config
	Walks       node2vec.Options
	LocalPrefix string
	BatchSize   int
	CatalogPath string
	Paths       snapshot.Paths
}

// DefaultFetchLimit bounds concurrent synopsis downloads
const DefaultFetchLimit = 4

// SynopsisSource returns description text for an encyclopedia article title
type SynopsisSource interface {
	Fetch(ctx context.Context, title string) (string, error)
}

// Pipeline owns the collaborators of a rebuild
type Pipeline struct {
	store      factstore.Store
	embedder   embedding.Embedder
	synopses   SynopsisSource
	fetchLimit int
	cfg        Config
	logger     *zap.Logger
}

// New creates a pipeline
func New(store factstore.Store, embedder embedding.Embedder, cfg Config) *Pipeline {
	if cfg.LocalPrefix == "" {
		cfg.LocalPrefix = fusion.DefaultLocalPrefix
	}
	return &Pipeline{store: store, embedder: embedder, cfg: cfg, logger: logger.Named("pipeline")}
}

// WithSynopses makes the semantic stage fill records that have no
// description but name an article. limit bounds concurrent fetches.
func (p *Pipeline) WithSynopses(src SynopsisSource, limit int) *Pipeline {
	if limit < 1 {
		limit = DefaultFetchLimit
	}
	p.synopses = src
	p.fetchLimit = limit
	return p
}

// GraphReport summarises the graph stage
type GraphReport struct {
	Nodes         int `json:"nodes"`
	Edges         int `json:"edges"`
	Movies        int `json:"movies"`
	Genres        int `json:"genres"`
	Persons       int `json:"persons"`
	Users         int `json:"users"`
	PrunedPersons int `json:"pruned_persons"`
	Trained       int `json:"trained"`
	Persisted     int `json:"persisted"`
}

// Report is the outcome of a pipeline run
type Report struct {
	Graph    *GraphReport          `json:"graph,omitempty"`
	Semantic *vecindex.BuildReport `json:"semantic,omitempty"`
	Fusion   *fusion.Report        `json:"fusion,omitempty"`
	Duration time.Duration         `json:"duration"`
}

// Run executes the requested stages in order. The first failing stage stops
// the run; artifacts of stages that already finished stay published.
func (p *Pipeline) Run(ctx context.Context, stage Stage) (*Report, error) {
	start := time.Now()
	report := &Report{}
	if err := os.MkdirAll(filepath.Dir(p.cfg.Paths.Structural), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	if stage == StageGraph || stage == StageAll {
		g, err := p.RunGraph(ctx)
		if err != nil {
			p.logger.Error("Graph stage failed", zap.Error(err))
			return nil, err
		}
		report.Graph = g
	}
	if stage == StageSemantic || stage == StageAll {
		s, err := p.RunSemantic(ctx)
		if err != nil {
			p.logger.Error("Semantic stage failed", zap.Error(err))
			return nil, err
		}
		report.Semantic = s
	}
	if stage == StageAll {
		loader := &snapshot.Loader{Paths: p.cfg.Paths, Store: p.store, LocalPrefix: p.cfg.LocalPrefix}
		snap, err := loader.Load(ctx)
		if err != nil {
			p.logger.Error("Published artifacts failed to load", zap.Error(err))
			return nil, err
		}
		report.Fusion = snap.Report
	}

	report.Duration = time.Since(start)
	p.logger.Info("Pipeline finished", zap.String("stage", string(stage)), zap.Duration("duration", report.Duration))
	return report, nil
}

// RunGraph builds the relation graph, trains structural vectors and
// publishes the vectors of local movies.
func (p *Pipeline) RunGraph(ctx context.Context) (*GraphReport, error) {
	built, err := relgraph.Build(ctx, p.store, p.cfg.Graph)
	if err != nil {
		return nil, err
	}
	model, err := node2vec.Train(built.Graph, p.cfg.Walks)
	if err != nil {
		return nil, err
	}
	vectors := node2vec.LocalMovies(model, built.MovieNodes, p.cfg.LocalPrefix)

	err = publish(map[string]func(string) error{
		p.cfg.Paths.Structural: vectors.Save,
	})
	if err != nil {
		return nil, err
	}
	report := &GraphReport{
		Nodes:         built.Graph.NumNodes(),
		Edges:         built.Graph.NumEdges(),
		Movies:        built.Graph.CountKind(relgraph.KindMovie),
		Genres:        built.Graph.CountKind(relgraph.KindGenre),
		Persons:       built.Graph.CountKind(relgraph.KindPerson),
		Users:         built.Graph.CountKind(relgraph.KindUser),
		PrunedPersons: len(built.Pruned),
		Trained:       model.Len(),
		Persisted:     vectors.Len(),
	}
	p.logger.Info("Structural vectors published",
		zap.String("path", p.cfg.Paths.Structural),
		zap.Int("movies", report.Persisted),
	)
	return report, nil
}

// RunSemantic embeds the catalogue and publishes index and metadata together
func (p *Pipeline) RunSemantic(ctx context.Context) (*vecindex.BuildReport, error) {
	if p.cfg.CatalogPath == "" {
		return nil, errors.NewConfigMissingRequired("CATALOG_PATH")
	}
	records, err := catalog.LoadFile(p.cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	if p.synopses != nil {
		if err := p.fillDescriptions(ctx, records); err != nil {
			return nil, err
		}
	}
	sem, report, err := vecindex.Build(ctx, p.embedder, records, p.cfg.BatchSize)
	if err != nil {
		return report, err
	}

	err = publish(map[string]func(string) error{
		p.cfg.Paths.Index: sem.Index.Save,
		p.cfg.Paths.Metadata: func(path string) error {
			return sem.Meta.Save(ctx, path)
		},
	})
	if err != nil {
		return report, err
	}
	p.logger.Info("Semantic index published",
		zap.String("index", p.cfg.Paths.Index),
		zap.String("metadata", p.cfg.Paths.Metadata),
		zap.Int("rows", sem.Index.Len()),
	)
	return report, nil
}

// fillDescriptions fetches article text for records that lack a description.
// A failed fetch leaves the record without text; only cancellation aborts.
func (p *Pipeline) fillDescriptions(ctx context.Context, records []catalog.Record) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fetchLimit)

	filled := make([]bool, len(records))
	for i := range records {
		rec := &records[i]
		if rec.HasText() || rec.WikiTitle == "" {
			continue
		}
		idx := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := p.synopses.Fetch(gctx, rec.WikiTitle)
			if err != nil {
				p.logger.Warn("Synopsis fetch failed",
					zap.String("tconst", rec.ID),
					zap.String("article", rec.WikiTitle),
					zap.Error(err),
				)
				return nil
			}
			rec.Description = text
			filled[idx] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("synopsis fetch interrupted: %w", err)
	}

	count := 0
	for _, ok := range filled {
		if ok {
			count++
		}
	}
	p.logger.Info("Synopses fetched", zap.Int("filled", count))
	return nil
}

// publish writes every artifact to a temporary sibling and renames them into
// place only once all writes succeeded.
func publish(artifacts map[string]func(path string) error) error {
	tmp := make(map[string]string, len(artifacts))
	cleanup := func() {
		for _, t := range tmp {
			os.Remove(t)
		}
	}
	suffix := ".tmp-" + uuid.New().String()
	for path, write := range artifacts {
		t := path + suffix
		tmp[path] = t
		if err := write(t); err != nil {
			cleanup()
			return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
		}
	}
	for path, t := range tmp {
		if err := os.Rename(t, path); err != nil {
			cleanup()
			return fmt.Errorf("failed to publish %s: %w", filepath.Base(path), err)
		}
		delete(tmp, path)
	}
	return nil
}
