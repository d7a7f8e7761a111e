package workflow

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"servicetime/artifact"
	"servicetime/ml"
	"servicetime/pipeline"
)

// PredictResult holds one prediction per input record, in input order.
// MissingTimes counts the rows with at least one unparseable time; Issues
// has one entry per offending cell.
type PredictResult struct {
	Table        *pipeline.Table
	Predictions  []float64
	Schema       ml.SchemaStatus
	Missing      []string
	Extra        []string
	Issues       []pipeline.QualityIssue
	MissingTimes int
}

// PredictFile loads the bundle from the store, predicts the configured
// input file and writes the output CSV.
func (w *Workflow) PredictFile(ctx context.Context) (*PredictResult, error) {
	bundle, err := w.store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load artifacts")
	}
	return w.PredictFileWith(ctx, bundle)
}

// PredictFileWith predicts the configured input with an already loaded
// bundle and writes the output CSV.
func (w *Workflow) PredictFileWith(ctx context.Context, bundle *artifact.Bundle) (*PredictResult, error) {
	table, err := pipeline.ReadFile(w.cfg.Data.PredictPath, pipeline.ReaderConfig{
		Encoding:  w.cfg.Data.Encoding,
		Delimiter: w.delimiter(),
	})
	if err != nil {
		return nil, err
	}
	result, err := w.Predict(ctx, bundle, table)
	if err != nil {
		return nil, err
	}
	if err := pipeline.WriteFile(w.cfg.Data.OutputPath, result.Table, result.Predictions, w.delimiter()); err != nil {
		return nil, err
	}
	w.printf("Predictions saved to '%s'\n", w.cfg.Data.OutputPath)
	return result, nil
}

// Predict replays the training-time feature derivation with the bundle's
// encoder, aligns the result to the bundle's manifest and predicts every
// record in input order. Malformed times become missing values rather than
// errors; a feature table that cannot be aligned is an error.
func (w *Workflow) Predict(ctx context.Context, bundle *artifact.Bundle, table *pipeline.Table) (*PredictResult, error) {
	if bundle == nil {
		return nil, errors.Wrap(artifact.ErrBundleNotFound, "nil bundle")
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	if !sameColumns(bundle.Encoder.Columns, ml.CategoricalColumns) {
		return nil, &ml.SchemaError{Reason: fmt.Sprintf("encoder columns %v, want %v", bundle.Encoder.Columns, ml.CategoricalColumns)}
	}
	log := w.log.With(zap.String("run_id", bundle.Metadata.RunID))

	cleaner := pipeline.NewPredictionCleaner(log)
	records, issues, err := cleaner.Clean(table.Records)
	if err != nil {
		return nil, errors.Wrap(err, "validate prediction data")
	}
	stats := cleaner.GetStats()
	log.Info("prediction data validated",
		zap.Int64("records", stats.TotalProcessed),
		zap.Int64("corrected", stats.Corrected),
		zap.Int64("flagged", stats.Flagged))

	out := &pipeline.Table{Header: table.Header, Records: records}
	frame, timeIssues, err := ml.NewPreprocessor(bundle.Encoder).Transform(out.Samples())
	if err != nil {
		return nil, errors.Wrap(err, "derive features")
	}
	reconciled, err := ml.Reconcile(frame, bundle.Manifest)
	if err != nil {
		return nil, err
	}
	if reconciled.Status == ml.SchemaFilled {
		log.Warn("feature columns reconciled against manifest",
			zap.Strings("missing", reconciled.Missing),
			zap.Strings("extra", reconciled.Extra))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	predictions, err := bundle.Model.PredictBatch(reconciled.Frame.Rows)
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}

	if w.runs != nil {
		lines := make([]int, len(records))
		for i, record := range records {
			lines[i] = record.Line
		}
		if err := w.runs.SavePredictions(ctx, bundle.Metadata.RunID, lines, predictions); err != nil {
			log.Warn("failed to record predictions", zap.Error(err))
		}
	}
	log.Info("predictions computed",
		zap.Int("rows", len(predictions)),
		zap.Stringer("schema", reconciled.Status),
		zap.Int("rows_missing_times", missingTimeRows(timeIssues)))

	return &PredictResult{
		Table:        out,
		Predictions:  predictions,
		Schema:       reconciled.Status,
		Missing:      reconciled.Missing,
		Extra:        reconciled.Extra,
		Issues:       issues,
		MissingTimes: missingTimeRows(timeIssues),
	}, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func missingTimeRows(issues []ml.TimeIssue) int {
	rows := make(map[int]struct{}, len(issues))
	for _, issue := range issues {
		rows[issue.Row] = struct{}{}
	}
	return len(rows)
}
