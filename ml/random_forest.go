package ml

import (
	"math/rand"

	"github.com/pkg/errors"
)

// TypeRandomForest is the default model.type.
const TypeRandomForest = "random_forest"

// RandomForest averages regression trees, each grown on a bootstrap sample
// with its own seed drawn from Seed.
type RandomForest struct {
	Trees    []*RegressionTree
	Features int

	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     float64
	Seed            int64

	progress func()
}

// NewRandomForest returns an unfitted forest with 100 trees unless
// NEstimators says otherwise.
func NewRandomForest(params ModelParams) *RandomForest {
	if params.NEstimators <= 0 {
		params.NEstimators = 100
	}
	return &RandomForest{
		NEstimators:     params.NEstimators,
		MaxDepth:        params.MaxDepth,
		MinSamplesSplit: params.MinSamplesSplit,
		MinSamplesLeaf:  params.MinSamplesLeaf,
		MaxFeatures:     params.MaxFeatures,
		Seed:            params.Seed,
	}
}

// OnTreeFitted registers a callback invoked after each tree is grown.
func (rf *RandomForest) OnTreeFitted(fn func()) {
	rf.progress = fn
}

func (rf *RandomForest) Type() string { return TypeRandomForest }

func (rf *RandomForest) NumFeatures() int { return rf.Features }

// Fit grows NEstimators trees, each on its own bootstrap sample.
func (rf *RandomForest) Fit(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}

	rnd := rand.New(rand.NewSource(rf.Seed))
	trees := make([]*RegressionTree, 0, rf.NEstimators)
	for i := 0; i < rf.NEstimators; i++ {
		treeSeed := rnd.Int63()
		tree := NewRegressionTree(ModelParams{
			MaxDepth:        rf.MaxDepth,
			MinSamplesSplit: rf.MinSamplesSplit,
			MinSamplesLeaf:  rf.MinSamplesLeaf,
			MaxFeatures:     rf.MaxFeatures,
			Seed:            treeSeed,
		})
		sample := bootstrap(len(features), rand.New(rand.NewSource(treeSeed)))
		if err := tree.fitIndices(features, targets, sample); err != nil {
			return errors.Wrapf(err, "fit tree %d", i)
		}
		trees = append(trees, tree)
		if rf.progress != nil {
			rf.progress()
		}
	}
	rf.Trees = trees
	rf.Features = len(features[0])
	return nil
}

// Predict averages the trees.
func (rf *RandomForest) Predict(features []float64) (float64, error) {
	if len(rf.Trees) == 0 {
		return 0, errors.New("model not trained")
	}
	var sum float64
	for i, tree := range rf.Trees {
		value, err := tree.Predict(features)
		if err != nil {
			return 0, errors.Wrapf(err, "tree %d", i)
		}
		sum += value
	}
	return sum / float64(len(rf.Trees)), nil
}

func (rf *RandomForest) PredictBatch(features [][]float64) ([]float64, error) {
	return predictBatch(rf, features)
}

func bootstrap(n int, rnd *rand.Rand) []int {
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rnd.Intn(n)
	}
	return sample
}
