package vecindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cinegraph/backend/internal/catalog"
	"cinegraph/backend/internal/embedding"
	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

// DefaultBatchSize is the number of texts sent per embedding call
const DefaultBatchSize = 64

// Semantic pairs the vector index with its metadata table
type Semantic struct {
	Index *Index
	Meta  *Metadata
}

// Match is a search hit resolved to its record
type Match struct {
	Record catalog.Record `json:"record"`
	Row    int            `json:"row"`
	Score  float32        `json:"score"`
}

// Validate checks that index and metadata come from the same build and
// that their rows correspond one to one
func (s *Semantic) Validate() error {
	if s.Index.BuildID() != s.Meta.BuildID() {
		return errors.NewArtifactMismatch(fmt.Sprintf("vector index is from build %q but metadata is from build %q", s.Index.BuildID(), s.Meta.BuildID()))
	}
	if s.Index.Len() != s.Meta.Len() {
		return errors.NewArtifactMismatch(fmt.Sprintf("vector index has %d rows but metadata has %d", s.Index.Len(), s.Meta.Len()))
	}
	return nil
}

// Vector returns the stored unit vector for a catalogue id
func (s *Semantic) Vector(id string) ([]float32, bool) {
	row, ok := s.Meta.Row(id)
	if !ok {
		return nil, false
	}
	v, err := s.Index.Reconstruct(row)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Search ranks records against an already normalized query vector
func (s *Semantic) Search(q []float32, k int) ([]Match, error) {
	hits, err := s.Index.Search(q, k)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		rec, ok := s.Meta.Record(h.Row)
		if !ok {
			return nil, errors.NewArtifactMismatch(fmt.Sprintf("index row %d has no metadata", h.Row))
		}
		out = append(out, Match{Record: rec, Row: h.Row, Score: h.Score})
	}
	return out, nil
}

// SearchText embeds and normalizes text, then searches
func (s *Semantic) SearchText(ctx context.Context, e embedding.Embedder, text string, k int) ([]Match, error) {
	vec, err := embedding.EmbedOne(ctx, e, text)
	if err != nil {
		return nil, err
	}
	return s.Search(embedding.Normalize(vec), k)
}

// Save writes the index and metadata files
func (s *Semantic) Save(ctx context.Context, indexPath, metaPath string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := s.Index.Save(indexPath); err != nil {
		return err
	}
	return s.Meta.Save(ctx, metaPath)
}

// LoadSemantic reads both files and checks that they belong together
func LoadSemantic(ctx context.Context, indexPath, metaPath string) (*Semantic, error) {
	idx, err := LoadIndex(indexPath)
	if err != nil {
		return nil, err
	}
	meta, err := LoadMetadata(ctx, metaPath)
	if err != nil {
		return nil, err
	}
	s := &Semantic{Index: idx, Meta: meta}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// BuildReport summarises an index build
type BuildReport struct {
	Candidates    int      `json:"candidates"`
	SkippedEmpty  int      `json:"skipped_empty"`
	Indexed       int      `json:"indexed"`
	FailedBatches int      `json:"failed_batches"`
	FailedIDs     []string `json:"failed_ids,omitempty"`
}

// Build embeds every record with a description and indexes the unit
// vectors. Batches are independent: a failed batch is logged and its rows
// are left out while earlier and later batches still land. The build fails
// only when nothing could be indexed.
func Build(ctx context.Context, e embedding.Embedder, records []catalog.Record, batchSize int) (*Semantic, *BuildReport, error) {
	log := logger.Named("vecindex")
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	report := &BuildReport{}
	var usable []catalog.Record
	seen := make(map[string]struct{})
	for _, r := range records {
		if !r.HasText() {
			report.SkippedEmpty++
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		usable = append(usable, r)
	}
	report.Candidates = len(usable)
	if len(usable) == 0 {
		return nil, report, errors.NewEmptyResult("no records with description text to index")
	}

	var idx *Index
	meta := NewMetadata()
	for start := 0; start < len(usable); start += batchSize {
		end := start + batchSize
		if end > len(usable) {
			end = len(usable)
		}
		batch := usable[start:end]

		vecs, err := embedBatch(ctx, e, batch)
		if err == nil && idx == nil {
			idx = NewIndex(len(vecs[0]))
		}
		if err == nil {
			err = idx.Add(vecs)
		}
		if err != nil {
			report.FailedBatches++
			for _, r := range batch {
				report.FailedIDs = append(report.FailedIDs, r.ID)
			}
			log.Warn("Skipping embedding batch",
				zap.Int("start", start),
				zap.Int("end", end),
				zap.Error(err),
			)
			continue
		}
		// Index.Add succeeded for the whole batch, so the metadata append keeps rows aligned
		if err := meta.Append(batch); err != nil {
			return nil, report, err
		}
		report.Indexed += len(batch)
	}

	if idx == nil || idx.Len() == 0 {
		return nil, report, errors.NewUpstreamFailure("embedding", fmt.Errorf("all %d batches failed", report.FailedBatches))
	}
	build := uuid.NewString()
	idx.build, meta.build = build, build
	log.Info("Semantic index built",
		zap.String("build", build),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped_empty", report.SkippedEmpty),
		zap.Int("failed_batches", report.FailedBatches),
		zap.Int("dimensions", idx.Dims()),
	)
	return &Semantic{Index: idx, Meta: meta}, report, nil
}

func embedBatch(ctx context.Context, e embedding.Embedder, batch []catalog.Record) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.Description
	}
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vecs), len(batch))
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("embedding service returned an empty vector for %s", batch[i].ID)
		}
		out[i] = embedding.Normalize(v)
	}
	return out, nil
}
