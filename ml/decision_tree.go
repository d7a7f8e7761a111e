package ml

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// TypeDecisionTree is the model.type value for a single RegressionTree.
const TypeDecisionTree = "decision_tree"

// RegressionTree is a CART regressor split on squared-error reduction.
// Nodes are stored flat; child fields are absolute indices into Nodes.
type RegressionTree struct {
	Nodes    []TreeNode
	Features int

	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     float64
	Seed            int64
}

// TreeNode is a split or a leaf. MissingLeft sends NaN values to the left
// child; it is set when the left child saw at least as many samples.
type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	Value       float64 `json:"value"`
	Samples     int     `json:"samples"`
	MissingLeft bool    `json:"missing_left"`
	IsLeaf      bool    `json:"is_leaf"`
}

// NewRegressionTree returns an unfitted tree. NEstimators is ignored.
func NewRegressionTree(params ModelParams) *RegressionTree {
	tree := &RegressionTree{
		MaxDepth:        params.MaxDepth,
		MinSamplesSplit: params.MinSamplesSplit,
		MinSamplesLeaf:  params.MinSamplesLeaf,
		MaxFeatures:     params.MaxFeatures,
		Seed:            params.Seed,
	}
	tree.normalize()
	return tree
}

func (dt *RegressionTree) normalize() {
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	if dt.MinSamplesLeaf < 1 {
		dt.MinSamplesLeaf = 1
	}
	if dt.MaxFeatures <= 0 || dt.MaxFeatures > 1 {
		dt.MaxFeatures = 1
	}
}

func (dt *RegressionTree) Type() string { return TypeDecisionTree }

func (dt *RegressionTree) NumFeatures() int { return dt.Features }

// Fit grows the tree on every row of features.
func (dt *RegressionTree) Fit(features [][]float64, targets []float64) error {
	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	return dt.fitIndices(features, targets, indices)
}

// fitIndices grows the tree on the given rows; repeated indices act as
// bootstrap weights.
func (dt *RegressionTree) fitIndices(features [][]float64, targets []float64, indices []int) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	width := len(features[0])
	for i, row := range features {
		if len(row) != width {
			return errors.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	if len(indices) == 0 {
		return errors.New("no rows to fit")
	}

	dt.normalize()
	dt.Features = width
	dt.Nodes = dt.Nodes[:0]
	builder := &treeBuilder{
		tree:     dt,
		features: features,
		targets:  targets,
		rnd:      rand.New(rand.NewSource(dt.Seed)),
	}
	builder.grow(indices, 0)
	return nil
}

// Predict walks from the root to a leaf and returns its mean target.
func (dt *RegressionTree) Predict(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) != dt.Features {
		return 0, errors.Errorf("expected %d features, got %d", dt.Features, len(features))
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		value := features[node.FeatureIdx]
		switch {
		case math.IsNaN(value):
			if node.MissingLeft {
				idx = node.LeftChild
			} else {
				idx = node.RightChild
			}
		case value <= node.Threshold:
			idx = node.LeftChild
		default:
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (dt *RegressionTree) PredictBatch(features [][]float64) ([]float64, error) {
	return predictBatch(dt, features)
}

type treeBuilder struct {
	tree     *RegressionTree
	features [][]float64
	targets  []float64
	rnd      *rand.Rand
}

type split struct {
	feature   int
	threshold float64
	score     float64
}

// grow appends the subtree for indices and returns its root position.
func (b *treeBuilder) grow(indices []int, depth int) int {
	values := make([]float64, len(indices))
	for i, idx := range indices {
		values[i] = b.targets[idx]
	}
	position := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      stat.Mean(values, nil),
		Samples:    len(indices),
		IsLeaf:     true,
	})

	if b.tree.MaxDepth > 0 && depth >= b.tree.MaxDepth {
		return position
	}
	if len(indices) < b.tree.MinSamplesSplit || len(indices) < 2*b.tree.MinSamplesLeaf || isConstant(values) {
		return position
	}

	best, ok := b.findBestSplit(indices)
	if !ok {
		return position
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, idx := range indices {
		if b.features[idx][best.feature] <= best.threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	leftChild := b.grow(left, depth+1)
	rightChild := b.grow(right, depth+1)

	node := &b.tree.Nodes[position]
	node.FeatureIdx = best.feature
	node.Threshold = best.threshold
	node.LeftChild = leftChild
	node.RightChild = rightChild
	node.MissingLeft = len(left) >= len(right)
	node.IsLeaf = false
	return position
}

// findBestSplit maximises sumL²/nL + sumR²/nR, which is equivalent to
// minimising the summed squared error of both children.
func (b *treeBuilder) findBestSplit(indices []int) (split, bool) {
	best := split{feature: -1, score: math.Inf(-1)}
	minLeaf := b.tree.MinSamplesLeaf

	type pair struct {
		value  float64
		target float64
	}
	pairs := make([]pair, len(indices))

	for _, feature := range b.candidateFeatures() {
		for i, idx := range indices {
			pairs[i] = pair{value: b.features[idx][feature], target: b.targets[idx]}
		}
		sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].value < pairs[j].value })

		var total float64
		for _, p := range pairs {
			total += p.target
		}
		var leftSum float64
		n := len(pairs)
		for i := 1; i < n; i++ {
			leftSum += pairs[i-1].target
			if i < minLeaf || n-i < minLeaf {
				continue
			}
			if pairs[i-1].value == pairs[i].value {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(i) + rightSum*rightSum/float64(n-i)
			if score > best.score {
				best = split{
					feature:   feature,
					threshold: (pairs[i-1].value + pairs[i].value) / 2,
					score:     score,
				}
			}
		}
	}

	if best.feature == -1 {
		return best, false
	}
	return best, true
}

func (b *treeBuilder) candidateFeatures() []int {
	width := b.tree.Features
	if b.tree.MaxFeatures >= 1 {
		all := make([]int, width)
		for i := range all {
			all[i] = i
		}
		return all
	}
	count := int(b.tree.MaxFeatures * float64(width))
	if count < 1 {
		count = 1
	}
	picked := b.rnd.Perm(width)[:count]
	sort.Ints(picked)
	return picked
}

func isConstant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
