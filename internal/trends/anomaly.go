package trends

import (
	"math"
	"math/rand"
	"time"
)

// isolationTree is one tree in an isolationForest: anomalous points
// isolate in fewer random splits than normal ones, so a short average
// path length across the forest is the anomaly signal.
type isolationTree struct {
	splitValue float64
	left       *isolationTree
	right      *isolationTree
	size       int
	isLeaf     bool
}

// isolationForest detects anomalies in a single scalar time series
// (Anna's daily error counts, disk growth samples, and similar single-
// metric windows) without assuming a distribution shape or requiring
// a labeled training set, per the Isolation Forest algorithm (Liu,
// Ting & Zhou 2008).
type isolationForest struct {
	trees         []*isolationTree
	numTrees      int
	subSampleSize int
	maxDepth      int
	rng           *rand.Rand
}

// newIsolationForest builds an untrained forest. numTrees=100 and
// maxDepth=8 are the values the algorithm's paper reports as
// sufficient for datasets under a few thousand points, comfortably
// above the handful of daily samples Anna's historian window holds.
func newIsolationForest(numTrees, subSampleSize, maxDepth int) *isolationForest {
	return &isolationForest{
		numTrees:      numTrees,
		subSampleSize: subSampleSize,
		maxDepth:      maxDepth,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (f *isolationForest) fit(values []float64) {
	f.trees = f.trees[:0]
	for i := 0; i < f.numTrees; i++ {
		f.trees = append(f.trees, f.buildTree(f.sample(values), 0))
	}
}

func (f *isolationForest) sample(values []float64) []float64 {
	size := f.subSampleSize
	if size > len(values) {
		size = len(values)
	}
	shuffled := make([]float64, len(values))
	copy(shuffled, values)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := f.rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:size]
}

func (f *isolationForest) buildTree(values []float64, depth int) *isolationTree {
	if len(values) <= 1 || depth >= f.maxDepth || allIdentical(values) {
		return &isolationTree{size: len(values), isLeaf: true}
	}

	minVal, maxVal := values[0], values[0]
	for _, v := range values {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	var left, right []float64
	for _, v := range values {
		if v < splitValue {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isolationTree{size: len(values), isLeaf: true}
	}

	return &isolationTree{
		splitValue: splitValue,
		left:       f.buildTree(left, depth+1),
		right:      f.buildTree(right, depth+1),
		size:       len(values),
	}
}

// score returns an anomaly score in (0, 1): above ~0.6 is the
// conventional threshold for "likely anomalous".
func (f *isolationForest) score(value float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var total float64
	for _, tree := range f.trees {
		total += pathLength(tree, value, 0)
	}
	avg := total / float64(len(f.trees))
	c := averagePathLength(f.subSampleSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -avg/c)
}

func pathLength(tree *isolationTree, value float64, depth int) float64 {
	if tree.isLeaf {
		return float64(depth) + averagePathLength(tree.size)
	}
	if value < tree.splitValue {
		return pathLength(tree.left, value, depth+1)
	}
	return pathLength(tree.right, value, depth+1)
}

// averagePathLength is c(n), the expected path length of an
// unsuccessful BST search over n points, used to normalize a raw path
// length into a 0-1 score.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // harmonic number via Euler-Mascheroni
	return 2*h - (2 * float64(n-1) / float64(n))
}

func allIdentical(values []float64) bool {
	for _, v := range values[1:] {
		if math.Abs(v-values[0]) > 1e-9 {
			return false
		}
	}
	return true
}
