// Package fusion joins structural and semantic vectors into one space and
// ranks items against it.
//
// A movie takes part in the fused set when it has a structural vector, is a
// locally defined catalogue item, and resolves in two steps (movie URI ->
// external id -> semantic row). Every movie that fails a step is reported
// with the step that failed.
package fusion

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"cinegraph/backend/internal/embedding"
	"cinegraph/backend/internal/node2vec"
	"cinegraph/backend/internal/vecindex"
	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

// DefaultLocalPrefix identifies first-class catalogue movies
const DefaultLocalPrefix = "http://www.moviedb.fr/cinema#MotionPicture/"

// Step names the resolution stage a movie failed
type Step string

const (
	StepLocality   Step = "locality"
	StepExternalID Step = "external_id"
	StepSemantic   Step = "semantic_row"
)

// Unresolved records why a structural movie is missing from the fused set
type Unresolved struct {
	URI    string `json:"uri"`
	Step   Step   `json:"step"`
	Detail string `json:"detail,omitempty"`
}

// Report summarises a fused set build
type Report struct {
	Structural int          `json:"structural"`
	Fused      int          `json:"fused"`
	Unresolved []Unresolved `json:"unresolved,omitempty"`
}

// Count returns how many movies failed at step
func (r *Report) Count(step Step) int {
	n := 0
	for _, u := range r.Unresolved {
		if u.Step == step {
			n++
		}
	}
	return n
}

// Neighbor is one item-to-item result
type Neighbor struct {
	URI   string  `json:"uri"`
	Score float64 `json:"score"`
}

// Distance is the cosine distance of the neighbour to the query
func (n Neighbor) Distance() float64 {
	return 1 - n.Score
}

// Options configures a build
type Options struct {
	// LocalPrefix is the URI prefix of locally defined movies; empty means DefaultLocalPrefix
	LocalPrefix string
}

// Engine holds the fused set. It is immutable once built and safe for
// concurrent queries.
type Engine struct {
	semantic *vecindex.Semantic
	fused    *vecindex.Index
	ids      []string
	rows     map[string]int
	refs     map[string]string
	gDims    int
}

// Resolve maps a movie URI to its semantic row through its external id
func Resolve(uri string, externalIDs map[string]string, meta *vecindex.Metadata) (int, *Unresolved) {
	ref, ok := externalIDs[uri]
	if !ok || strings.TrimSpace(ref) == "" {
		return 0, &Unresolved{URI: uri, Step: StepExternalID, Detail: "no external id in fact store"}
	}
	row, ok := meta.Row(ref)
	if !ok {
		return 0, &Unresolved{URI: uri, Step: StepSemantic, Detail: "external id " + ref + " not in semantic index"}
	}
	return row, nil
}

// Build fuses every resolvable local movie. Artifacts that disagree with
// each other are a hard error; a fused set with no members is an empty
// result.
func Build(structural *node2vec.Vectors, semantic *vecindex.Semantic, externalIDs map[string]string, opts Options) (*Engine, *Report, error) {
	log := logger.Named("fusion")
	if err := structural.Validate(); err != nil {
		return nil, nil, err
	}
	if err := semantic.Validate(); err != nil {
		return nil, nil, err
	}
	prefix := opts.LocalPrefix
	if prefix == "" {
		prefix = DefaultLocalPrefix
	}

	e := &Engine{
		semantic: semantic,
		fused:    vecindex.NewIndex(structural.Dimensions + semantic.Index.Dims()),
		rows:     make(map[string]int),
		refs:     make(map[string]string),
		gDims:    structural.Dimensions,
	}
	report := &Report{Structural: structural.Len()}

	var batch [][]float32
	for i, uri := range structural.IDs {
		if !strings.HasPrefix(uri, prefix) {
			report.Unresolved = append(report.Unresolved, Unresolved{URI: uri, Step: StepLocality})
			continue
		}
		row, miss := Resolve(uri, externalIDs, semantic.Meta)
		if miss != nil {
			report.Unresolved = append(report.Unresolved, *miss)
			continue
		}
		sem, err := semantic.Index.Reconstruct(row)
		if err != nil {
			return nil, nil, errors.NewArtifactMismatch(fmt.Sprintf("semantic row %d for %s is outside the index", row, uri))
		}
		fused := embedding.Normalize(embedding.Concat(
			embedding.Normalize(structural.Vectors[i]),
			embedding.Normalize(sem),
		))
		e.rows[uri] = len(e.ids)
		e.ids = append(e.ids, uri)
		e.refs[uri] = externalIDs[uri]
		batch = append(batch, fused)
	}
	if err := e.fused.Add(batch); err != nil {
		return nil, nil, errors.NewArtifactMismatch(err.Error())
	}
	report.Fused = len(e.ids)

	log.Info("Fused set built",
		zap.Int("structural", report.Structural),
		zap.Int("fused", report.Fused),
		zap.Int("non_local", report.Count(StepLocality)),
		zap.Int("no_external_id", report.Count(StepExternalID)),
		zap.Int("no_semantic_row", report.Count(StepSemantic)),
	)
	if len(e.ids) == 0 {
		return nil, report, errors.NewEmptyResult("no movies with both graph and synopsis embeddings")
	}
	return e, report, nil
}

// Len returns the fused set size
func (e *Engine) Len() int {
	return len(e.ids)
}

// Dims returns the fused vector size
func (e *Engine) Dims() int {
	return e.fused.Dims()
}

// Contains reports whether uri is in the fused set
func (e *Engine) Contains(uri string) bool {
	_, ok := e.rows[uri]
	return ok
}

// IDs returns the fused set in build order
func (e *Engine) IDs() []string {
	return append([]string(nil), e.ids...)
}

// Vector returns the fused vector of uri
func (e *Engine) Vector(uri string) ([]float32, bool) {
	row, ok := e.rows[uri]
	if !ok {
		return nil, false
	}
	v, err := e.fused.Reconstruct(row)
	return v, err == nil
}

// ExternalID returns the catalogue id uri was joined on
func (e *Engine) ExternalID(uri string) string {
	return e.refs[uri]
}

// ItemToItem returns the k fused items closest to uri by cosine similarity,
// never uri itself. Ties break by ascending URI; k is clamped to the number
// of other items.
func (e *Engine) ItemToItem(uri string, k int) ([]Neighbor, error) {
	row, ok := e.rows[uri]
	if !ok {
		return nil, errors.NewEntityNotFound("fused set", uri)
	}
	if k <= 0 {
		return nil, errors.NewInvalidInput("k", "must be positive")
	}
	q, err := e.fused.Reconstruct(row)
	if err != nil {
		return nil, err
	}
	hits, err := e.fused.Search(q, e.fused.Len())
	if err != nil {
		return nil, err
	}

	out := make([]Neighbor, 0, len(hits))
	for _, h := range hits {
		if h.Row == row {
			continue
		}
		out = append(out, Neighbor{URI: e.ids[h.Row], Score: float64(h.Score)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URI < out[j].URI
	})
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// ProfileToItem ranks catalogue items against a profile vector. Profiles
// have no structural signal, so ranking runs on the semantic index alone.
func (e *Engine) ProfileToItem(profile []float32, k int) ([]vecindex.Match, error) {
	return ProfileToItem(e.semantic, profile, k)
}

// ProfileToItem is the semantic-only ranking used for profiles; it needs no
// fused set and works while structural vectors are unavailable.
func ProfileToItem(semantic *vecindex.Semantic, profile []float32, k int) ([]vecindex.Match, error) {
	if len(profile) != semantic.Index.Dims() {
		return nil, errors.NewArtifactMismatch(fmt.Sprintf("profile has %d dimensions but the semantic index has %d, rebuild the index for the current embedding model", len(profile), semantic.Index.Dims()))
	}
	if k <= 0 {
		return []vecindex.Match{}, nil
	}
	return semantic.Search(profile, k)
}
