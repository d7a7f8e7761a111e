package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/cheggaaa/pb.v1"

	"servicetime/artifact"
	"servicetime/db"
	"servicetime/ml"
	"servicetime/pipeline"
)

// TrainResult describes a successful training run and the bundle it saved.
type TrainResult struct {
	RunID     string
	MAE       float64
	TrainRows int
	TestRows  int
	Manifest  ml.Manifest
	Bundle    *artifact.Bundle
}

// TrainFile reads the configured training CSV and trains on it.
func (w *Workflow) TrainFile(ctx context.Context) (*TrainResult, error) {
	table, err := pipeline.ReadFile(w.cfg.Data.TrainPath, pipeline.ReaderConfig{
		Encoding:     w.cfg.Data.Encoding,
		Delimiter:    w.delimiter(),
		RequireLabel: true,
	})
	if err != nil {
		return nil, err
	}
	return w.Train(ctx, table)
}

// Train fits a model on table and persists the bundle. Nothing is written
// unless every record is valid and fitting succeeded.
func (w *Workflow) Train(ctx context.Context, table *pipeline.Table) (*TrainResult, error) {
	runID := uuid.New().String()
	log := w.log.With(zap.String("run_id", runID))
	start := time.Now()

	cleaner := pipeline.NewTrainingCleaner(log)
	records, _, err := cleaner.Clean(table.Records)
	if err != nil {
		return nil, errors.Wrap(err, "validate training data")
	}
	if len(records) < 2 {
		return nil, errors.Errorf("need at least 2 training records, got %d", len(records))
	}
	stats := cleaner.GetStats()
	log.Info("training data validated",
		zap.Int64("records", stats.TotalProcessed),
		zap.Int64("corrected", stats.Corrected))

	cleaned := &pipeline.Table{Header: table.Header, Records: records}
	samples := cleaned.Samples()
	targets := make([]float64, len(records))
	for i, record := range records {
		targets[i] = record.Duration
	}

	pre := ml.NewPreprocessor(nil)
	frame, err := pre.FitTransform(samples)
	if err != nil {
		return nil, errors.Wrap(err, "derive features")
	}
	manifest := ml.NewManifest(pre.Encoder())
	log.Info("features derived",
		zap.Int("rows", len(frame.Rows)),
		zap.Int("columns", len(manifest)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := ml.SplitDataset(len(frame.Rows), w.cfg.Training.TestRatio, w.cfg.Model.Seed)
	if err != nil {
		return nil, err
	}

	model, err := ml.NewModel(w.cfg.Model.Type, ml.ModelParams{
		NEstimators:     w.cfg.Model.NEstimators,
		MaxDepth:        w.cfg.Model.MaxDepth,
		MinSamplesSplit: w.cfg.Model.MinSamplesSplit,
		MinSamplesLeaf:  w.cfg.Model.MinSamplesLeaf,
		MaxFeatures:     w.cfg.Model.MaxFeatures,
		Seed:            w.cfg.Model.Seed,
	})
	if err != nil {
		return nil, err
	}

	var bar *pb.ProgressBar
	if forest, ok := model.(*ml.RandomForest); ok && w.progress != nil {
		bar = pb.New(forest.NEstimators)
		bar.Output = w.progress
		bar.Start()
		forest.OnTreeFitted(func() { bar.Increment() })
	}
	err = model.Fit(ml.SelectRows(frame, trainIdx), ml.SelectTargets(targets, trainIdx))
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, errors.Wrap(err, "fit model")
	}

	predicted, err := model.PredictBatch(ml.SelectRows(frame, testIdx))
	if err != nil {
		return nil, errors.Wrap(err, "evaluate model")
	}
	mae, err := ml.MeanAbsoluteError(ml.SelectTargets(targets, testIdx), predicted)
	if err != nil {
		return nil, errors.Wrap(err, "evaluate model")
	}
	w.printf("Mean Absolute Error: %v\n", mae)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundle := &artifact.Bundle{
		Model:    model,
		Encoder:  pre.Encoder(),
		Manifest: manifest,
		Metadata: artifact.Metadata{
			RunID:     runID,
			CreatedAt: time.Now().UTC(),
			MAE:       mae,
			TrainRows: len(trainIdx),
			TestRows:  len(testIdx),
		},
	}
	if err := w.store.Save(bundle); err != nil {
		return nil, errors.Wrap(err, "save artifacts")
	}
	log.Info("model trained",
		zap.String("model", model.Type()),
		zap.Float64("mae", mae),
		zap.Int("train_rows", len(trainIdx)),
		zap.Int("test_rows", len(testIdx)),
		zap.String("artifacts", w.store.Dir()),
		zap.Duration("elapsed", time.Since(start)))

	if w.runs != nil {
		entry := db.TrainingLog{
			RunID:     runID,
			ModelName: model.Type(),
			MAE:       mae,
			TrainRows: len(trainIdx),
			TestRows:  len(testIdx),
			Features:  len(manifest),
			TrainedAt: bundle.Metadata.CreatedAt,
		}
		if err := w.runs.SaveTrainingLog(ctx, entry); err != nil {
			log.Warn("failed to record training run", zap.Error(err))
		}
	}

	return &TrainResult{
		RunID:     runID,
		MAE:       mae,
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
		Manifest:  manifest,
		Bundle:    bundle,
	}, nil
}
