package ml

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Frame is a named, row-major feature table.
type Frame struct {
	Columns []string
	Rows    [][]float64
}

// ColumnIndex returns the position of name, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, column := range f.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

// Manifest is the ordered column layout the model was fit on.
type Manifest []string

// NewManifest lays out the time columns followed by the encoder's indicator
// columns.
func NewManifest(encoder *OneHotEncoder) Manifest {
	columns := append([]string(nil), TimeColumns...)
	return Manifest(append(columns, encoder.FeatureNames()...))
}

// SchemaStatus describes how a frame was aligned to a manifest.
type SchemaStatus int

const (
	SchemaExact SchemaStatus = iota
	SchemaFilled
	SchemaIncompatible
)

func (s SchemaStatus) String() string {
	switch s {
	case SchemaExact:
		return "exact"
	case SchemaFilled:
		return "filled"
	case SchemaIncompatible:
		return "incompatible"
	default:
		return fmt.Sprintf("SchemaStatus(%d)", int(s))
	}
}

// ErrIncompatibleSchema is matched by every *SchemaError.
var ErrIncompatibleSchema = errors.New("feature schema incompatible with manifest")

// SchemaError explains why a frame cannot be aligned to a manifest.
type SchemaError struct {
	Reason  string
	Missing []string
	Extra   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%v: %s (missing %d, extra %d)", ErrIncompatibleSchema, e.Reason, len(e.Missing), len(e.Extra))
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrIncompatibleSchema
}

// ReconcileResult is the aligned frame plus the manifest columns that were
// zero-filled (Missing) and the frame columns that were dropped (Extra).
type ReconcileResult struct {
	Frame   *Frame
	Status  SchemaStatus
	Missing []string
	Extra   []string
}

// Reconcile reindexes frame to exactly the manifest columns and order.
// Manifest columns absent from frame are zero-filled; frame columns absent
// from the manifest are dropped. A frame lacking a time column, sharing no
// column with the manifest, or sharing none of its encoded columns is
// incompatible.
func Reconcile(frame *Frame, manifest Manifest) (*ReconcileResult, error) {
	if frame == nil {
		return nil, errors.New("nil frame")
	}
	if len(manifest) == 0 {
		return nil, &SchemaError{Reason: "empty manifest"}
	}

	present := make(map[string]int, len(frame.Columns))
	for i, column := range frame.Columns {
		present[column] = i
	}
	wanted := make(map[string]struct{}, len(manifest))
	for _, column := range manifest {
		wanted[column] = struct{}{}
	}

	timeColumn := make(map[string]bool, len(TimeColumns))
	for _, column := range TimeColumns {
		timeColumn[column] = true
	}

	result := &ReconcileResult{}
	source := make([]int, len(manifest))
	matched, indicators, matchedIndicators := 0, 0, 0
	for i, column := range manifest {
		if !timeColumn[column] {
			indicators++
		}
		idx, ok := present[column]
		if !ok {
			source[i] = -1
			result.Missing = append(result.Missing, column)
			continue
		}
		source[i] = idx
		matched++
		if !timeColumn[column] {
			matchedIndicators++
		}
	}
	for _, column := range frame.Columns {
		if _, ok := wanted[column]; !ok {
			result.Extra = append(result.Extra, column)
		}
	}

	for _, column := range TimeColumns {
		if _, inManifest := wanted[column]; !inManifest {
			continue
		}
		if _, ok := present[column]; !ok {
			return nil, &SchemaError{
				Reason:  "time column " + column + " absent from features",
				Missing: result.Missing,
				Extra:   result.Extra,
			}
		}
	}
	if matched == 0 {
		return nil, &SchemaError{
			Reason:  "no manifest column present (" + strings.Join(firstN(manifest, 3), ", ") + ", ...)",
			Missing: result.Missing,
			Extra:   result.Extra,
		}
	}
	if indicators > 0 && matchedIndicators == 0 {
		return nil, &SchemaError{
			Reason:  "no encoded column matches the manifest",
			Missing: result.Missing,
			Extra:   result.Extra,
		}
	}

	aligned := &Frame{
		Columns: append([]string(nil), manifest...),
		Rows:    make([][]float64, len(frame.Rows)),
	}
	for r, row := range frame.Rows {
		out := make([]float64, len(manifest))
		for i, idx := range source {
			if idx >= 0 {
				out[i] = row[idx]
			}
		}
		aligned.Rows[r] = out
	}
	result.Frame = aligned

	if len(result.Missing) > 0 || len(result.Extra) > 0 {
		result.Status = SchemaFilled
	} else {
		result.Status = SchemaExact
		for i, column := range frame.Columns {
			if manifest[i] != column {
				result.Status = SchemaFilled
				break
			}
		}
	}
	return result, nil
}

func firstN(values []string, n int) []string {
	if len(values) < n {
		return values
	}
	return values[:n]
}
