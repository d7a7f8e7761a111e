package pipeline

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"servicetime/ml"
)

// CleaningRule checks or corrects a record. A returned error is a
// *RecordError describing the offending cell, or several of them combined
// with multierr.
type CleaningRule interface {
	Apply(*Record) (*Record, error)
	Name() string
}

// QualityIssue is one problem found by a lenient cleaner.
type QualityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // low, high
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   string `json:"column"`
}

// CleaningStats counts records per outcome and failures per rule.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Corrected      int64            `json:"corrected"`
	Flagged        int64            `json:"flagged"`
	Issues         map[string]int64 `json:"issues"`
}

// DataCleaner applies rules to every record. A strict cleaner stops at the
// first rule failure; a lenient one records the issue and keeps the record.
type DataCleaner struct {
	rules  []CleaningRule
	strict bool
	log    *zap.Logger
	stats  CleaningStats
}

func newDataCleaner(strict bool, log *zap.Logger, rules ...CleaningRule) *DataCleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &DataCleaner{
		rules:  rules,
		strict: strict,
		log:    log,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}
}

// NewTrainingCleaner fails fast: malformed training data stops the run.
func NewTrainingCleaner(log *zap.Logger) *DataCleaner {
	return newDataCleaner(true, log,
		NewTimeFormatRule(),
		NewCategoryPlaceholderRule(),
		NewLabelValidationRule(),
	)
}

// NewPredictionCleaner keeps every record so each input row gets a prediction.
func NewPredictionCleaner(log *zap.Logger) *DataCleaner {
	return newDataCleaner(false, log,
		NewTimeFormatRule(),
		NewCategoryPlaceholderRule(),
	)
}

// Clean runs every rule over records in order and returns the surviving
// records with the issues found.
func (dc *DataCleaner) Clean(records []*Record) ([]*Record, []QualityIssue, error) {
	cleaned := make([]*Record, 0, len(records))
	var issues []QualityIssue

	for _, record := range records {
		dc.stats.TotalProcessed++
		before := record.Sample
		flagged := false

		for _, rule := range dc.rules {
			out, err := rule.Apply(record)
			if err != nil {
				failures := multierr.Errors(err)
				dc.stats.Issues[rule.Name()] += int64(len(failures))
				if dc.strict {
					return nil, issues, failures[0]
				}
				for _, failure := range failures {
					issue := QualityIssue{
						Type:     rule.Name(),
						Severity: "low",
						Message:  failure.Error(),
						Line:     record.Line,
					}
					var recordErr *RecordError
					if errors.As(failure, &recordErr) {
						issue.Column = recordErr.Column
					}
					issues = append(issues, issue)
				}
				flagged = true
				continue
			}
			if out != nil {
				record = out
			}
		}

		switch {
		case flagged:
			dc.stats.Flagged++
		case record.Sample != before:
			dc.stats.Corrected++
			dc.stats.Passed++
		default:
			dc.stats.Passed++
		}
		cleaned = append(cleaned, record)
	}

	for _, issue := range issues {
		dc.log.Warn("record issue",
			zap.String("rule", issue.Type),
			zap.Int("line", issue.Line),
			zap.String("column", issue.Column),
			zap.String("message", issue.Message))
	}
	return cleaned, issues, nil
}

// GetStats returns the counters accumulated by Clean.
func (dc *DataCleaner) GetStats() CleaningStats {
	return dc.stats
}

// TimeFormatRule requires both time columns to parse as H:M. Every bad
// column is reported, combined with multierr.
type TimeFormatRule struct{}

func NewTimeFormatRule() *TimeFormatRule { return &TimeFormatRule{} }

func (r *TimeFormatRule) Name() string { return "time_format" }

func (r *TimeFormatRule) Apply(record *Record) (*Record, error) {
	fields := []struct {
		column string
		value  string
	}{
		{ml.ColArrival, record.ArrivalTime},
		{ml.ColDeparture, record.DepartureTime},
	}
	var err error
	for _, field := range fields {
		if _, parseErr := ml.TimeToMinutes(field.value); parseErr != nil {
			err = multierr.Append(err, &RecordError{Line: record.Line, Column: field.column, Value: field.value, Err: parseErr})
		}
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// CategoryPlaceholderRule replaces empty categorical values with
// ml.Placeholder.
type CategoryPlaceholderRule struct{}

func NewCategoryPlaceholderRule() *CategoryPlaceholderRule { return &CategoryPlaceholderRule{} }

func (r *CategoryPlaceholderRule) Name() string { return "category_placeholder" }

func (r *CategoryPlaceholderRule) Apply(record *Record) (*Record, error) {
	record.ServiceType = ml.FillPlaceholder(record.ServiceType)
	record.DayOfWeek = ml.FillPlaceholder(record.DayOfWeek)
	record.Hour = ml.FillPlaceholder(record.Hour)
	return record, nil
}

// LabelValidationRule parses the duration label into a finite number.
type LabelValidationRule struct{}

func NewLabelValidationRule() *LabelValidationRule { return &LabelValidationRule{} }

func (r *LabelValidationRule) Name() string { return "label_validation" }

func (r *LabelValidationRule) Apply(record *Record) (*Record, error) {
	raw := strings.TrimSpace(record.Label)
	if raw == "" {
		return nil, &RecordError{Line: record.Line, Column: ml.ColDuration, Value: record.Label, Err: errors.New("missing label")}
	}
	value, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, &RecordError{Line: record.Line, Column: ml.ColDuration, Value: record.Label, Err: errors.New("label is not a finite number")}
	}
	record.Duration = value
	record.HasDuration = true
	return record, nil
}
