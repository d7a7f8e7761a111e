package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"servicetime/ml"
)

// WriteCSV writes the input header and raw cells with the prediction
// appended as ml.ColPredicted.
func WriteCSV(w io.Writer, table *Table, predictions []float64, delimiter rune) error {
	if len(predictions) != len(table.Records) {
		return errors.Errorf("have %d predictions for %d records", len(predictions), len(table.Records))
	}
	writer := csv.NewWriter(w)
	if delimiter != 0 {
		writer.Comma = delimiter
	}
	header := append(append([]string(nil), table.Header...), ml.ColPredicted)
	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, record := range table.Records {
		row := make([]string, len(table.Header), len(table.Header)+1)
		copy(row, record.Raw)
		row = append(row, strconv.FormatFloat(predictions[i], 'f', -1, 64))
		if err := writer.Write(row); err != nil {
			return errors.Wrapf(err, "write line %d", record.Line)
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flush csv")
}

// WriteFile creates path, and its directory if needed, and writes the
// predictions CSV into it.
func WriteFile(path string, table *Table, predictions []float64, delimiter rune) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := WriteCSV(file, table, predictions, delimiter); err != nil {
		file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "close %s", path)
}
