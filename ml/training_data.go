package ml

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SplitDataset shuffles row indices with seed and holds out
// ceil(n*testRatio) of them, keeping at least one row on each side.
func SplitDataset(n int, testRatio float64, seed int64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, errors.Errorf("need at least 2 rows to split, got %d", n)
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, errors.Errorf("test ratio must be in (0, 1), got %v", testRatio)
	}
	testSize := int(math.Ceil(float64(n) * testRatio))
	if testSize >= n {
		testSize = n - 1
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)
	test = append([]int(nil), indices[:testSize]...)
	train = append([]int(nil), indices[testSize:]...)
	return train, test, nil
}

// SelectRows returns the frame rows at indices, sharing the row slices.
func SelectRows(frame *Frame, indices []int) [][]float64 {
	rows := make([][]float64, len(indices))
	for i, idx := range indices {
		rows[i] = frame.Rows[idx]
	}
	return rows
}

func SelectTargets(targets []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = targets[idx]
	}
	return out
}

// MeanAbsoluteError is mean(|actual - predicted|).
func MeanAbsoluteError(actual, predicted []float64) (float64, error) {
	if len(actual) == 0 {
		return 0, errors.New("no values to evaluate")
	}
	if len(actual) != len(predicted) {
		return 0, errors.New("actual and predicted size mismatch")
	}
	residuals := make([]float64, len(actual))
	floats.SubTo(residuals, actual, predicted)
	for i, r := range residuals {
		residuals[i] = math.Abs(r)
	}
	return stat.Mean(residuals, nil), nil
}
