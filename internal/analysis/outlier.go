package analysis

import (
	"math"
	"math/rand/v2"
)

// OutlierModel labels each point of a one-dimensional sample.
// The returned slice has the same length as values; true marks an outlier.
type OutlierModel interface {
	Outliers(values []float64) []bool
}

// OutlierModelFunc adapts a plain function to OutlierModel.
type OutlierModelFunc func(values []float64) []bool

// Outliers calls f(values).
func (f OutlierModelFunc) Outliers(values []float64) []bool {
	return f(values)
}

const eulerGamma = 0.5772156649015329

// IsolationForest is a seeded isolation forest over scalar samples.
// With contamination left automatic, a point is an outlier when its
// anomaly score exceeds 0.5.
type IsolationForest struct {
	Trees      int
	MaxSamples int
	Seed       uint64
}

// NewIsolationForest returns a forest with 100 trees and 256 samples per tree.
func NewIsolationForest(seed uint64) *IsolationForest {
	return &IsolationForest{
		Trees:      100,
		MaxSamples: 256,
		Seed:       seed,
	}
}

type iNode struct {
	split       float64
	left, right *iNode
	size        int // leaf only
}

func (n *iNode) leaf() bool {
	return n.left == nil
}

// Outliers fits a fresh forest on values and labels every point.
// The RNG is reseeded per call, so equal input gives equal labels.
func (f *IsolationForest) Outliers(values []float64) []bool {
	n := len(values)
	labels := make([]bool, n)
	if n < 2 {
		return labels
	}

	scores := f.Scores(values)
	for i, s := range scores {
		labels[i] = s > 0.5
	}
	return labels
}

// Scores returns the anomaly score in (0, 1] for every point.
func (f *IsolationForest) Scores(values []float64) []float64 {
	n := len(values)
	scores := make([]float64, n)
	if n == 0 {
		return scores
	}

	trees := f.Trees
	if trees <= 0 {
		trees = 100
	}
	psi := f.MaxSamples
	if psi <= 0 || psi > n {
		psi = n
	}
	norm := averagePathLength(psi)
	if norm == 0 {
		return scores
	}

	rng := rand.New(rand.NewPCG(f.Seed, f.Seed^0x9e3779b97f4a7c15))
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	forest := make([]*iNode, trees)
	sample := make([]float64, psi)
	for t := range forest {
		perm := rng.Perm(n)
		for i := 0; i < psi; i++ {
			sample[i] = values[perm[i]]
		}
		forest[t] = buildTree(rng, append([]float64(nil), sample...), 0, maxDepth)
	}

	for i, v := range values {
		var total float64
		for _, root := range forest {
			total += pathLength(root, v, 0)
		}
		mean := total / float64(trees)
		scores[i] = math.Pow(2, -mean/norm)
	}
	return scores
}

func buildTree(rng *rand.Rand, vals []float64, depth, maxDepth int) *iNode {
	if depth >= maxDepth || len(vals) <= 1 {
		return &iNode{size: len(vals)}
	}

	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return &iNode{size: len(vals)}
	}

	split := lo + rng.Float64()*(hi-lo)

	var left, right []float64
	for _, v := range vals {
		if v <= split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &iNode{size: len(vals)}
	}

	return &iNode{
		split: split,
		left:  buildTree(rng, left, depth+1, maxDepth),
		right: buildTree(rng, right, depth+1, maxDepth),
	}
}

func pathLength(node *iNode, v float64, depth int) float64 {
	for !node.leaf() {
		if v <= node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.size)
}

// averagePathLength is the expected path length of an unsuccessful search
// in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// noEnsemble labels every point as an inlier.
var noEnsemble = OutlierModelFunc(func(values []float64) []bool {
	return make([]bool, len(values))
})
