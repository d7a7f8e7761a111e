package ml

import (
	"bytes"
	"math"
	"testing"
)

func TestRegressionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	targets := []float64{10, 12, 40, 42}

	model := NewRegressionTree(ModelParams{})
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	low, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low < 10 || low > 12 {
		t.Fatalf("expected prediction in [10, 12], got %f", low)
	}
	high, err := model.Predict([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if high < 40 || high > 42 {
		t.Fatalf("expected prediction in [40, 42], got %f", high)
	}
}

func TestRegressionTreeDeepIndicesAreAbsolute(t *testing.T) {
	features := make([][]float64, 0, 16)
	targets := make([]float64, 0, 16)
	for i := 0; i < 16; i++ {
		features = append(features, []float64{float64(i)})
		targets = append(targets, float64(i*i))
	}
	model := NewRegressionTree(ModelParams{})
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range features {
		got, err := model.Predict(row)
		if err != nil {
			t.Fatalf("row %d: unexpected error: %v", i, err)
		}
		if got != targets[i] {
			t.Fatalf("row %d: expected %f, got %f", i, targets[i], got)
		}
	}
}

func TestRegressionTreeMaxDepth(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	targets := []float64{1, 2, 3, 4}
	model := NewRegressionTree(ModelParams{MaxDepth: 1})
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.Nodes) != 3 {
		t.Fatalf("expected a single split, got %d nodes", len(model.Nodes))
	}
}

func TestRegressionTreeMissingValueFollowsLargerChild(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {10}}
	targets := []float64{5, 5, 5, 50}
	model := NewRegressionTree(ModelParams{MaxDepth: 1})
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := model.Predict([]float64{math.NaN()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5 {
		t.Fatalf("expected NaN to follow the three-sample branch, got %f", got)
	}
}

func TestRegressionTreeErrors(t *testing.T) {
	model := NewRegressionTree(ModelParams{})
	if _, err := model.Predict([]float64{1}); err == nil {
		t.Fatal("expected error for untrained model")
	}
	if err := model.Fit([][]float64{{1}}, []float64{1, 2}); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if err := model.Fit([][]float64{{1}, {2}}, []float64{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict([]float64{1, 2}); err == nil {
		t.Fatal("expected width mismatch error")
	}
}

func TestRandomForestDeterministic(t *testing.T) {
	features, targets := syntheticDurations(60)
	params := ModelParams{NEstimators: 15, Seed: 42, MaxFeatures: 0.5}

	first := NewRandomForest(params)
	second := NewRandomForest(params)
	fitted := 0
	first.OnTreeFitted(func() { fitted++ })
	if err := first.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := second.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fitted != 15 {
		t.Fatalf("expected 15 progress callbacks, got %d", fitted)
	}

	a, err := first.PredictBatch(features)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := second.PredictBatch(features)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("row %d: predictions differ %f vs %f", i, a[i], b[i])
		}
	}
}

func TestModelEncodeLoadRoundTrip(t *testing.T) {
	features, targets := syntheticDurations(30)
	model, err := NewModel(TypeRandomForest, ModelParams{NEstimators: 5, Seed: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := EncodeModel(&buf, model); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := LoadModel(TypeRandomForest, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := model.Predict(features[3])
	got, err := loaded.Predict(features[3])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want != got {
		t.Fatalf("expected %f after reload, got %f", want, got)
	}

	if _, err := NewModel("svm", ModelParams{}); err == nil {
		t.Fatal("expected unsupported model type error")
	}
}

// syntheticDurations returns [arrival, departure, flag] rows whose target is
// the stay length plus a bonus when flag is set.
func syntheticDurations(n int) ([][]float64, []float64) {
	features := make([][]float64, n)
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		arrival := float64(360 + (i*37)%600)
		departure := arrival + float64(10+(i*13)%50)
		flag := float64(i % 2)
		features[i] = []float64{arrival, departure, flag}
		targets[i] = departure - arrival + 5*flag
	}
	return features, targets
}
