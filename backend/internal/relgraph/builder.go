package relgraph

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"cinegraph/backend/internal/factstore"
	"cinegraph/backend/pkg/logger"
)

// Config selects which relations become edges and how hubs are pruned
type Config struct {
	EdgeTypes         []factstore.Relation
	IncludeActorEdges bool
	TopNActors        int
	PersonDegreeCap   int
}

// DefaultConfig mirrors the batch pipeline defaults
func DefaultConfig() Config {
	return Config{
		EdgeTypes: []factstore.Relation{
			factstore.RelHasGenre,
			factstore.RelHasDirector,
			factstore.RelHasWriter,
			factstore.RelReviewed,
		},
		TopNActors:      5,
		PersonDegreeCap: 200,
	}
}

// relations resolves the effective relation set. Actor edges are driven by
// IncludeActorEdges alone so the cap always applies to them.
func (c Config) relations() []factstore.Relation {
	seen := make(map[factstore.Relation]bool)
	var out []factstore.Relation
	for _, rel := range c.EdgeTypes {
		if rel == factstore.RelHasActor || seen[rel] {
			continue
		}
		seen[rel] = true
		out = append(out, rel)
	}
	if c.IncludeActorEdges {
		out = append(out, factstore.RelHasActor)
	}
	return out
}

// endpoints gives the node kinds of a relation's subject and object
func endpoints(rel factstore.Relation) (Kind, Kind) {
	switch rel {
	case factstore.RelHasGenre:
		return KindMovie, KindGenre
	case factstore.RelReviewed:
		return KindUser, KindMovie
	default:
		return KindMovie, KindPerson
	}
}

// Result is the built graph plus the movie nodes considered
type Result struct {
	Graph      *Graph
	MovieNodes []string
	Pruned     []string
}

// Build queries every configured relation from the store and assembles the
// graph. Any store failure aborts the build; an empty relation is fine.
func Build(ctx context.Context, store factstore.Store, cfg Config) (*Result, error) {
	log := logger.Named("relgraph")

	movies, err := store.Movies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch movies: %w", err)
	}

	rows := make(map[factstore.Relation][]factstore.Pair)
	for _, rel := range cfg.relations() {
		pairs, err := store.Edges(ctx, rel)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s edges: %w", rel, err)
		}
		rows[rel] = pairs
		log.Debug("Fetched relation", zap.String("relation", string(rel)), zap.Int("rows", len(pairs)))
	}

	res := Assemble(movies, rows, cfg)
	log.Info("Relation graph built",
		zap.Int("movies", len(res.MovieNodes)),
		zap.Int("nodes", res.Graph.NumNodes()),
		zap.Int("edges", res.Graph.NumEdges()),
		zap.Int("pruned_persons", len(res.Pruned)),
	)
	return res, nil
}

// Assemble builds the graph from already fetched rows. Relations missing
// from cfg are ignored even when present in rows.
func Assemble(movies []string, rows map[factstore.Relation][]factstore.Pair, cfg Config) *Result {
	g := New()
	movieNodes := make([]string, 0, len(movies))
	for _, uri := range movies {
		n := NodeID(KindMovie, uri)
		if !g.Has(n) {
			movieNodes = append(movieNodes, n)
		}
		g.AddNode(n)
	}

	for _, rel := range cfg.relations() {
		pairs := rows[rel]
		if rel == factstore.RelHasActor {
			pairs = topActors(pairs, cfg.TopNActors)
		}
		left, right := endpoints(rel)
		for _, p := range pairs {
			if p.Subject == "" || p.Object == "" {
				continue
			}
			g.AddEdge(NodeID(left, p.Subject), NodeID(right, p.Object))
		}
	}

	pruned := PruneHubs(g, KindPerson, cfg.PersonDegreeCap)
	return &Result{Graph: g, MovieNodes: movieNodes, Pruned: pruned}
}

// topActors keeps the first n distinct actors per movie in lexicographic order
func topActors(pairs []factstore.Pair, n int) []factstore.Pair {
	if n <= 0 {
		return nil
	}
	grouped := make(map[string]map[string]struct{})
	for _, p := range pairs {
		if grouped[p.Subject] == nil {
			grouped[p.Subject] = make(map[string]struct{})
		}
		grouped[p.Subject][p.Object] = struct{}{}
	}
	movies := make([]string, 0, len(grouped))
	for m := range grouped {
		movies = append(movies, m)
	}
	sort.Strings(movies)

	var out []factstore.Pair
	for _, m := range movies {
		actors := make([]string, 0, len(grouped[m]))
		for a := range grouped[m] {
			actors = append(actors, a)
		}
		sort.Strings(actors)
		if len(actors) > n {
			actors = actors[:n]
		}
		for _, a := range actors {
			out = append(out, factstore.Pair{Subject: m, Object: a})
		}
	}
	return out
}

// PruneHubs removes nodes of kind whose degree exceeds limit, with their
// edges, and returns the removed ids in ascending order. Degrees are taken
// once, before any removal. A non-positive limit disables pruning.
func PruneHubs(g *Graph, kind Kind, limit int) []string {
	if limit <= 0 {
		return nil
	}
	var hubs []string
	for _, n := range g.Nodes() {
		if k, _ := Split(n); k == kind && g.Degree(n) > limit {
			hubs = append(hubs, n)
		}
	}
	for _, n := range hubs {
		g.RemoveNode(n)
	}
	return hubs
}
