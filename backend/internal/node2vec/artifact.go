package node2vec

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"cinegraph/backend/internal/relgraph"
	"cinegraph/backend/pkg/errors"
)

// Vectors is the persisted structural artifact: retained ids in training
// order with one vector each.
type Vectors struct {
	Dimensions int         `json:"dimensions"`
	IDs        []string    `json:"ids"`
	Vectors    [][]float32 `json:"vectors"`
}

// Len returns the number of stored vectors
func (v *Vectors) Len() int {
	return len(v.IDs)
}

// LocalMovies extracts the vectors of movie nodes whose URI starts with
// prefix, keyed by URI and ordered as movieNodes. Movies the model never saw
// are skipped.
func LocalMovies(m *Model, movieNodes []string, prefix string) *Vectors {
	out := &Vectors{Dimensions: m.Dimensions()}
	for _, node := range movieNodes {
		kind, uri := relgraph.Split(node)
		if kind != relgraph.KindMovie || !strings.HasPrefix(uri, prefix) {
			continue
		}
		vec, ok := m.Vector(node)
		if !ok {
			continue
		}
		out.IDs = append(out.IDs, uri)
		out.Vectors = append(out.Vectors, vec)
	}
	return out
}

// Validate checks the id/vector correspondence
func (v *Vectors) Validate() error {
	if len(v.IDs) != len(v.Vectors) {
		return errors.NewArtifactMismatch(fmt.Sprintf("structural artifact has %d ids and %d vectors", len(v.IDs), len(v.Vectors)))
	}
	seen := make(map[string]struct{}, len(v.IDs))
	for i, id := range v.IDs {
		if _, dup := seen[id]; dup {
			return errors.NewArtifactMismatch("structural artifact repeats id " + id)
		}
		seen[id] = struct{}{}
		if len(v.Vectors[i]) != v.Dimensions {
			return errors.NewArtifactMismatch(fmt.Sprintf("structural vector %d has %d dimensions, expected %d", i, len(v.Vectors[i]), v.Dimensions))
		}
	}
	return nil
}

// Save writes the artifact as JSON
func (v *Vectors) Save(path string) error {
	if err := v.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode structural vectors: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write structural vectors: %w", err)
	}
	return nil
}

// Load reads and validates an artifact written by Save
func Load(path string) (*Vectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingArtifact("structural vectors", path)
		}
		return nil, fmt.Errorf("failed to read structural vectors: %w", err)
	}
	var v Vectors
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.NewArtifactMismatch("structural artifact is not valid JSON: " + err.Error())
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}
