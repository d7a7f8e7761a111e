package ml

import (
	"sort"

	"github.com/pkg/errors"
)

// OneHotEncoder maps each categorical column to a fixed block of indicator
// columns. Categories are sorted per column at fit time and never change
// afterwards; values unseen at fit time encode as an all-zero block.
type OneHotEncoder struct {
	Columns    []string
	Categories [][]string
}

func NewOneHotEncoder(columns []string) *OneHotEncoder {
	return &OneHotEncoder{Columns: append([]string(nil), columns...)}
}

func (e *OneHotEncoder) Fitted() bool {
	return len(e.Categories) == len(e.Columns) && len(e.Columns) > 0
}

// Fit learns the sorted distinct values of each column. rows are laid out
// in Columns order.
func (e *OneHotEncoder) Fit(rows [][]string) error {
	if len(rows) == 0 {
		return errors.New("no rows to fit encoder")
	}
	seen := make([]map[string]struct{}, len(e.Columns))
	for i := range seen {
		seen[i] = make(map[string]struct{})
	}
	for r, row := range rows {
		if len(row) != len(e.Columns) {
			return errors.Errorf("row %d has %d categorical values, want %d", r, len(row), len(e.Columns))
		}
		for i, value := range row {
			seen[i][value] = struct{}{}
		}
	}
	categories := make([][]string, len(e.Columns))
	for i, set := range seen {
		values := make([]string, 0, len(set))
		for value := range set {
			values = append(values, value)
		}
		sort.Strings(values)
		categories[i] = values
	}
	e.Categories = categories
	return nil
}

// Transform never refits.
func (e *OneHotEncoder) Transform(rows [][]string) ([][]float64, error) {
	if !e.Fitted() {
		return nil, errors.New("encoder not fitted")
	}
	offsets := make([]int, len(e.Categories))
	lookup := make([]map[string]int, len(e.Categories))
	width := 0
	for i, values := range e.Categories {
		offsets[i] = width
		lookup[i] = make(map[string]int, len(values))
		for j, value := range values {
			lookup[i][value] = j
		}
		width += len(values)
	}

	encoded := make([][]float64, len(rows))
	for r, row := range rows {
		if len(row) != len(e.Columns) {
			return nil, errors.Errorf("row %d has %d categorical values, want %d", r, len(row), len(e.Columns))
		}
		vector := make([]float64, width)
		for i, value := range row {
			if j, ok := lookup[i][value]; ok {
				vector[offsets[i]+j] = 1
			}
		}
		encoded[r] = vector
	}
	return encoded, nil
}

func (e *OneHotEncoder) FitTransform(rows [][]string) ([][]float64, error) {
	if err := e.Fit(rows); err != nil {
		return nil, err
	}
	return e.Transform(rows)
}

// FeatureNames returns "<column>_<category>" for every indicator column.
func (e *OneHotEncoder) FeatureNames() []string {
	names := make([]string, 0)
	for i, values := range e.Categories {
		for _, value := range values {
			names = append(names, e.Columns[i]+"_"+value)
		}
	}
	return names
}
