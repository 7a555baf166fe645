// Package relgraph builds the undirected multipartite movie graph that the
// structural trainer walks.
package relgraph

import (
	"sort"
	"strings"
)

// Kind is the namespace of a graph node
type Kind string

const (
	KindMovie  Kind = "m"
	KindGenre  Kind = "g"
	KindPerson Kind = "p"
	KindUser   Kind = "u"
)

// NodeID prefixes a URI with its kind so namespaces stay disjoint
func NodeID(kind Kind, uri string) string {
	return string(kind) + ":" + uri
}

// Split returns the kind and URI of a node id
func Split(node string) (Kind, string) {
	i := strings.IndexByte(node, ':')
	if i < 0 {
		return "", node
	}
	return Kind(node[:i]), node[i+1:]
}

// Graph is an undirected simple graph: no self-loops, no parallel edges
type Graph struct {
	adj map[string]map[string]struct{}
}

// New creates an empty graph
func New() *Graph {
	return &Graph{adj: make(map[string]map[string]struct{})}
}

// AddNode adds an isolated node; existing nodes are left as they are
func (g *Graph) AddNode(n string) {
	if _, ok := g.adj[n]; !ok {
		g.adj[n] = make(map[string]struct{})
	}
}

// AddEdge connects a and b. Self-loops are ignored.
func (g *Graph) AddEdge(a, b string) bool {
	if a == b {
		return false
	}
	g.AddNode(a)
	g.AddNode(b)
	if _, ok := g.adj[a][b]; ok {
		return false
	}
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
	return true
}

// RemoveNode deletes n and every edge incident to it
func (g *Graph) RemoveNode(n string) {
	for nb := range g.adj[n] {
		delete(g.adj[nb], n)
	}
	delete(g.adj, n)
}

// Has reports whether n is a node of the graph
func (g *Graph) Has(n string) bool {
	_, ok := g.adj[n]
	return ok
}

// HasEdge reports whether a and b are adjacent
func (g *Graph) HasEdge(a, b string) bool {
	_, ok := g.adj[a][b]
	return ok
}

// Degree returns the number of neighbours of n
func (g *Graph) Degree(n string) int {
	return len(g.adj[n])
}

// Neighbors returns the neighbours of n in ascending order
func (g *Graph) Neighbors(n string) []string {
	out := make([]string, 0, len(g.adj[n]))
	for nb := range g.adj[n] {
		out = append(out, nb)
	}
	sort.Strings(out)
	return out
}

// Nodes returns every node in ascending order
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.adj))
	for n := range g.adj {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NumNodes returns the node count
func (g *Graph) NumNodes() int {
	return len(g.adj)
}

// NumEdges returns the undirected edge count
func (g *Graph) NumEdges() int {
	total := 0
	for _, nbs := range g.adj {
		total += len(nbs)
	}
	return total / 2
}

// CountKind returns how many nodes belong to kind
func (g *Graph) CountKind(kind Kind) int {
	prefix := string(kind) + ":"
	count := 0
	for n := range g.adj {
		if strings.HasPrefix(n, prefix) {
			count++
		}
	}
	return count
}
