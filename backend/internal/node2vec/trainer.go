// Package node2vec learns structural vectors for graph nodes from biased
// second-order random walks and a skip-gram model with negative sampling.
// Training is single-threaded so a fixed seed reproduces the same vectors.
package node2vec

import (
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"cinegraph/backend/internal/relgraph"
	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

// Options controls walks and skip-gram training
type Options struct {
	Dimensions   int
	WalkLength   int
	NumWalks     int
	Window       int
	P            float64
	Q            float64
	Seed         uint64
	Epochs       int
	Negative     int
	LearningRate float64
}

// DefaultOptions returns the trainer defaults
func DefaultOptions() Options {
	return Options{
		Dimensions:   128,
		WalkLength:   60,
		NumWalks:     10,
		Window:       10,
		P:            1,
		Q:            1,
		Seed:         42,
		Epochs:       5,
		Negative:     5,
		LearningRate: 0.025,
	}
}

func (o Options) validate() error {
	switch {
	case o.Dimensions <= 0:
		return errors.NewInvalidInput("dimensions", "must be positive")
	case o.WalkLength < 2:
		return errors.NewInvalidInput("walk_length", "must be at least 2")
	case o.NumWalks <= 0:
		return errors.NewInvalidInput("num_walks", "must be positive")
	case o.Window <= 0:
		return errors.NewInvalidInput("window", "must be positive")
	case o.P <= 0 || o.Q <= 0:
		return errors.NewInvalidInput("p/q", "must be positive")
	case o.Epochs <= 0:
		return errors.NewInvalidInput("epochs", "must be positive")
	case o.Negative < 0:
		return errors.NewInvalidInput("negative", "cannot be negative")
	case o.LearningRate <= 0:
		return errors.NewInvalidInput("learning_rate", "must be positive")
	}
	return nil
}

// Model maps every graph node to its structural vector
type Model struct {
	dims    int
	nodes   []string
	index   map[string]int
	vectors [][]float32
}

// Vector returns the vector of node, or false if the node was not trained
func (m *Model) Vector(node string) ([]float32, bool) {
	i, ok := m.index[node]
	if !ok {
		return nil, false
	}
	return m.vectors[i], true
}

// Dimensions returns the vector size
func (m *Model) Dimensions() int {
	return m.dims
}

// Len returns the number of trained nodes
func (m *Model) Len() int {
	return len(m.nodes)
}

const (
	maxExp          = 6.0
	unigramPower    = 0.75
	minLearningRate = 0.0001
)

// Train walks g and fits one vector per node. A graph without edges has no
// co-occurrence signal and is rejected.
func Train(g *relgraph.Graph, opts Options) (*Model, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if g.NumEdges() == 0 {
		return nil, errors.NewInvalidInput("graph", "has no edges, nothing to embed")
	}
	log := logger.Named("node2vec")

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	w := newWalker(g, opts.P, opts.Q)
	walks := w.corpus(rng, opts.NumWalks, opts.WalkLength)
	log.Info("Random walks generated",
		zap.Int("nodes", len(w.nodes)),
		zap.Int("walks", len(walks)),
	)

	sg := newSkipGram(len(w.nodes), opts, rng)
	sg.fit(walks)

	m := &Model{
		dims:    opts.Dimensions,
		nodes:   w.nodes,
		index:   make(map[string]int, len(w.nodes)),
		vectors: sg.in,
	}
	for i, n := range w.nodes {
		m.index[n] = i
	}
	log.Info("Structural embedding trained",
		zap.Int("nodes", len(m.nodes)),
		zap.Int("dimensions", m.dims),
		zap.Int("epochs", opts.Epochs),
	)
	return m, nil
}

type skipGram struct {
	opts    Options
	rng     *rand.Rand
	in      [][]float32
	out     [][]float32
	unigram []int
}

func newSkipGram(vocab int, opts Options, rng *rand.Rand) *skipGram {
	sg := &skipGram{
		opts: opts,
		rng:  rng,
		in:   make([][]float32, vocab),
		out:  make([][]float32, vocab),
	}
	for i := 0; i < vocab; i++ {
		sg.in[i] = make([]float32, opts.Dimensions)
		sg.out[i] = make([]float32, opts.Dimensions)
		for d := range sg.in[i] {
			sg.in[i][d] = float32((rng.Float64() - 0.5) / float64(opts.Dimensions))
		}
	}
	return sg
}

// buildUnigram fills the negative sampling table from corpus frequencies
func (sg *skipGram) buildUnigram(walks [][]int) {
	counts := make([]float64, len(sg.in))
	for _, walk := range walks {
		for _, n := range walk {
			counts[n]++
		}
	}
	const tableSize = 1 << 20
	var total float64
	for i := range counts {
		counts[i] = math.Pow(counts[i], unigramPower)
		total += counts[i]
	}
	sg.unigram = make([]int, 0, tableSize)
	for i, c := range counts {
		slots := int(math.Round(c / total * tableSize))
		for s := 0; s < slots; s++ {
			sg.unigram = append(sg.unigram, i)
		}
	}
	if len(sg.unigram) == 0 {
		for i := range counts {
			sg.unigram = append(sg.unigram, i)
		}
	}
}

func (sg *skipGram) fit(walks [][]int) {
	sg.buildUnigram(walks)

	var tokens int
	for _, walk := range walks {
		tokens += len(walk)
	}
	totalSteps := float64(tokens * sg.opts.Epochs)
	grad := make([]float32, sg.opts.Dimensions)

	var step int
	for epoch := 0; epoch < sg.opts.Epochs; epoch++ {
		for _, walk := range walks {
			for pos, center := range walk {
				alpha := sg.opts.LearningRate * (1 - float64(step)/totalSteps)
				if alpha < minLearningRate {
					alpha = minLearningRate
				}
				step++

				// Reduced window, as word2vec does
				span := 1 + sg.rng.IntN(sg.opts.Window)
				for c := pos - span; c <= pos+span; c++ {
					if c < 0 || c >= len(walk) || c == pos {
						continue
					}
					sg.update(walk[c], center, float32(alpha), grad)
				}
			}
		}
	}
}

// update applies one positive pair and its negatives to the context input vector
func (sg *skipGram) update(context, target int, alpha float32, grad []float32) {
	for d := range grad {
		grad[d] = 0
	}
	v := sg.in[context]
	for k := 0; k <= sg.opts.Negative; k++ {
		var label float32
		sample := target
		if k == 0 {
			label = 1
		} else {
			sample = sg.unigram[sg.rng.IntN(len(sg.unigram))]
			if sample == target {
				continue
			}
		}
		u := sg.out[sample]
		var dot float64
		for d := range v {
			dot += float64(v[d]) * float64(u[d])
		}
		g := (label - sigmoid(dot)) * alpha
		for d := range v {
			grad[d] += g * u[d]
			u[d] += g * v[d]
		}
	}
	for d := range v {
		v[d] += grad[d]
	}
}

func sigmoid(x float64) float32 {
	if x > maxExp {
		return 1
	}
	if x < -maxExp {
		return 0
	}
	return float32(1 / (1 + math.Exp(-x)))
}
