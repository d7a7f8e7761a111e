package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"servicetime/ml"
)

var (
	ErrMissingColumn   = errors.New("missing required column")
	ErrMalformedRecord = errors.New("malformed record")
)

// Record is one input row. Raw keeps the original cells in header order so
// predictions can be written next to the untouched input.
type Record struct {
	ml.Sample
	Label       string
	Duration    float64
	HasDuration bool
	Line        int
	Raw         []string
}

// Table is a parsed CSV: the normalised header and one Record per data
// line.
type Table struct {
	Header  []string
	Records []*Record
}

// Samples returns the feature attributes of every record, in order.
func (t *Table) Samples() []ml.Sample {
	samples := make([]ml.Sample, len(t.Records))
	for i, record := range t.Records {
		samples[i] = record.Sample
	}
	return samples
}

// RecordError locates a malformed value in the input file.
type RecordError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d column %s value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

func (e *RecordError) Is(target error) bool { return target == ErrMalformedRecord }

// ReaderConfig selects the input charset (empty means UTF-8), the
// delimiter (0 means comma) and whether the label column is required.
type ReaderConfig struct {
	Encoding     string
	Delimiter    rune
	RequireLabel bool
}

// ReadFile opens path and parses it with ReadCSV.
func ReadFile(path string, cfg ReaderConfig) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()
	table, err := ReadCSV(file, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return table, nil
}

// ReadCSV decodes r into UTF-8, NFC-normalises header and cells, and maps
// the required columns. Columns not used for features are carried in Raw.
func ReadCSV(r io.Reader, cfg ReaderConfig) (*Table, error) {
	enc, err := lookupEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(transform.NewReader(r, enc.NewDecoder()))
	if cfg.Delimiter != 0 {
		reader.Comma = cfg.Delimiter
	}
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("empty input")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	for i, name := range header {
		header[i] = normalizeHeader(name)
	}

	required := append(append([]string(nil), ml.TimeColumns...), ml.CategoricalColumns...)
	if cfg.RequireLabel {
		required = append(required, ml.ColDuration)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	for _, column := range required {
		if _, ok := index[column]; !ok {
			return nil, errors.Wrapf(ErrMissingColumn, "%s", column)
		}
	}

	table := &Table{Header: header}
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read record")
		}
		line, _ := reader.FieldPos(0)
		if len(cells) == 1 && strings.TrimSpace(cells[0]) == "" {
			continue
		}
		for i, cell := range cells {
			cells[i] = norm.NFC.String(cell)
		}
		cell := func(column string) string {
			idx, ok := index[column]
			if !ok || idx >= len(cells) {
				return ""
			}
			return cells[idx]
		}
		record := &Record{
			Sample: ml.Sample{
				ArrivalTime:   cell(ml.ColArrival),
				DepartureTime: cell(ml.ColDeparture),
				ServiceType:   cell(ml.ColServiceType),
				DayOfWeek:     cell(ml.ColDayOfWeek),
				Hour:          cell(ml.ColHour),
			},
			Label: cell(ml.ColDuration),
			Line:  line,
			Raw:   cells,
		}
		table.Records = append(table.Records, record)
	}
	return table, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unsupported encoding %q", name)
	}
	return enc, nil
}

func normalizeHeader(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return norm.NFC.String(strings.TrimSpace(name))
}
