package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"servicetime/artifact"
)

const (
	StageTrain   = "train"
	StagePredict = "predict"
)

// StageError names the pipeline stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RunResult holds the outcome of each stage that ran. Train is nil when
// training was skipped.
type RunResult struct {
	Train   *TrainResult
	Predict *PredictResult
}

// Run trains then predicts. A training failure stops the run before
// prediction. With skipTrain the bundle already in the store is used.
func (w *Workflow) Run(ctx context.Context, skipTrain bool) (*RunResult, error) {
	result := &RunResult{}
	var bundle *artifact.Bundle

	if skipTrain {
		w.log.Info("skipping training, loading existing artifacts", zap.String("dir", w.store.Dir()))
		loaded, err := w.store.Load()
		if err != nil {
			return result, &StageError{Stage: StagePredict, Err: err}
		}
		bundle = loaded
	} else {
		w.log.Info("training the model", zap.String("input", w.cfg.Data.TrainPath))
		trained, err := w.TrainFile(ctx)
		if err != nil {
			return result, &StageError{Stage: StageTrain, Err: err}
		}
		result.Train = trained
		bundle = trained.Bundle
	}

	w.log.Info("making predictions", zap.String("input", w.cfg.Data.PredictPath))
	predicted, err := w.PredictFileWith(ctx, bundle)
	if err != nil {
		return result, &StageError{Stage: StagePredict, Err: err}
	}
	result.Predict = predicted
	return result, nil
}
