package ml

import (
	"encoding/gob"
	"io"

	"github.com/pkg/errors"
)

// NewModel returns an unfitted model of the given type.
func NewModel(modelType string, params ModelParams) (Regressor, error) {
	switch modelType {
	case TypeRandomForest:
		return NewRandomForest(params), nil
	case TypeDecisionTree:
		return NewRegressionTree(params), nil
	default:
		return nil, errors.Errorf("unsupported model type %q", modelType)
	}
}

// EncodeModel gob-encodes a fitted model. LoadModel reverses it.
func EncodeModel(w io.Writer, model Regressor) error {
	switch model.(type) {
	case *RandomForest, *RegressionTree:
	default:
		return errors.Errorf("cannot encode model of type %T", model)
	}
	return errors.Wrap(gob.NewEncoder(w).Encode(model), "encode model")
}

// LoadModel decodes a model written by EncodeModel and rejects untrained
// ones.
func LoadModel(modelType string, r io.Reader) (Regressor, error) {
	var model Regressor
	switch modelType {
	case TypeRandomForest:
		model = &RandomForest{}
	case TypeDecisionTree:
		model = &RegressionTree{}
	default:
		return nil, errors.Errorf("unsupported model type %q", modelType)
	}
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return nil, errors.Wrapf(err, "decode %s model", modelType)
	}
	if model.NumFeatures() == 0 {
		return nil, errors.New("decoded model is not trained")
	}
	return model, nil
}
