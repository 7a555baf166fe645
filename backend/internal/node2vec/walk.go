package node2vec

import (
	"math/rand/v2"
	"sort"

	"cinegraph/backend/internal/relgraph"
)

// walker holds the integer view of a graph and the second-order alias tables
type walker struct {
	nodes []string
	nbrs  [][]int
	p, q  float64
	// edge tables keyed by (prev, cur), built on first use
	edges map[[2]int]alias
}

func newWalker(g *relgraph.Graph, p, q float64) *walker {
	nodes := g.Nodes()
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}
	nbrs := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, nb := range g.Neighbors(n) {
			nbrs[i] = append(nbrs[i], index[nb])
		}
		sort.Ints(nbrs[i])
	}
	return &walker{nodes: nodes, nbrs: nbrs, p: p, q: q, edges: make(map[[2]int]alias)}
}

func (w *walker) adjacent(a, b int) bool {
	list := w.nbrs[a]
	i := sort.SearchInts(list, b)
	return i < len(list) && list[i] == b
}

// edgeAlias returns the transition table for stepping out of cur having
// arrived from prev: weight 1/p to return, 1 to stay at distance one from
// prev, 1/q to move outward.
func (w *walker) edgeAlias(prev, cur int) alias {
	key := [2]int{prev, cur}
	if a, ok := w.edges[key]; ok {
		return a
	}
	weights := make([]float64, len(w.nbrs[cur]))
	for i, next := range w.nbrs[cur] {
		switch {
		case next == prev:
			weights[i] = 1 / w.p
		case w.adjacent(next, prev):
			weights[i] = 1
		default:
			weights[i] = 1 / w.q
		}
	}
	a := newAlias(weights)
	w.edges[key] = a
	return a
}

func (w *walker) walk(rng *rand.Rand, start, length int) []int {
	path := make([]int, 1, length)
	path[0] = start
	for len(path) < length {
		cur := path[len(path)-1]
		nbrs := w.nbrs[cur]
		if len(nbrs) == 0 {
			break
		}
		if len(path) == 1 {
			path = append(path, nbrs[rng.IntN(len(nbrs))])
			continue
		}
		prev := path[len(path)-2]
		path = append(path, nbrs[w.edgeAlias(prev, cur).draw(rng)])
	}
	return path
}

// corpus runs numWalks rounds over every node in a shuffled order
func (w *walker) corpus(rng *rand.Rand, numWalks, length int) [][]int {
	order := make([]int, len(w.nodes))
	for i := range order {
		order[i] = i
	}
	walks := make([][]int, 0, numWalks*len(order))
	for r := 0; r < numWalks; r++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, start := range order {
			walks = append(walks, w.walk(rng, start, length))
		}
	}
	return walks
}
