package ml

// Regressor is a positional model: it knows feature indices, never names.
// Callers must present vectors laid out exactly as the manifest.
type Regressor interface {
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
	PredictBatch(features [][]float64) ([]float64, error)
	NumFeatures() int
	Type() string
}

// ModelParams carries the hyperparameters shared by both model types.
type ModelParams struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     float64
	Seed            int64
}

func predictBatch(model Regressor, features [][]float64) ([]float64, error) {
	predictions := make([]float64, len(features))
	for i, row := range features {
		value, err := model.Predict(row)
		if err != nil {
			return nil, err
		}
		predictions[i] = value
	}
	return predictions, nil
}
