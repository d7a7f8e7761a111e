package ml

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

const timeCacheSize = 4096

// TimeIssue records a time value that could not be parsed on the lenient
// path. Row is the index into the samples slice.
type TimeIssue struct {
	Row    int
	Column string
	Value  string
	Err    error
}

type parsedTime struct {
	minutes int
	err     error
}

// Preprocessor turns samples into feature frames. Training calls
// FitTransform, which fails on the first malformed time; prediction calls
// Transform with the persisted encoder, which substitutes NaN instead.
type Preprocessor struct {
	encoder *OneHotEncoder
	times   *lru.Cache[string, parsedTime]
}

// NewPreprocessor wraps encoder, or a fresh unfitted encoder when nil.
func NewPreprocessor(encoder *OneHotEncoder) *Preprocessor {
	if encoder == nil {
		encoder = NewOneHotEncoder(CategoricalColumns)
	}
	cache, err := lru.New[string, parsedTime](timeCacheSize)
	if err != nil {
		panic(err)
	}
	return &Preprocessor{encoder: encoder, times: cache}
}

func (p *Preprocessor) Encoder() *OneHotEncoder {
	return p.encoder
}

// Minutes is TimeToMinutes memoised in an LRU cache; failures are cached
// too.
func (p *Preprocessor) Minutes(value string) (int, error) {
	if cached, ok := p.times.Get(value); ok {
		return cached.minutes, cached.err
	}
	minutes, err := TimeToMinutes(value)
	p.times.Add(value, parsedTime{minutes: minutes, err: err})
	return minutes, err
}

// FitTransform fits the encoder and returns the training frame. The first
// malformed time is an error.
func (p *Preprocessor) FitTransform(samples []Sample) (*Frame, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples")
	}
	times := make([][2]float64, len(samples))
	for i, sample := range samples {
		for j, raw := range []string{sample.ArrivalTime, sample.DepartureTime} {
			minutes, err := p.Minutes(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %s", i, TimeColumns[j])
			}
			times[i][j] = float64(minutes)
		}
	}
	if err := p.encoder.Fit(categoryRows(samples)); err != nil {
		return nil, err
	}
	return p.assemble(times, samples)
}

// Transform encodes samples with the already fitted encoder. Malformed
// times become NaN and are returned as issues.
func (p *Preprocessor) Transform(samples []Sample) (*Frame, []TimeIssue, error) {
	var issues []TimeIssue
	times := make([][2]float64, len(samples))
	for i, sample := range samples {
		for j, raw := range []string{sample.ArrivalTime, sample.DepartureTime} {
			minutes, err := p.Minutes(raw)
			if err != nil {
				times[i][j] = math.NaN()
				issues = append(issues, TimeIssue{Row: i, Column: TimeColumns[j], Value: raw, Err: err})
				continue
			}
			times[i][j] = float64(minutes)
		}
	}
	frame, err := p.assemble(times, samples)
	if err != nil {
		return nil, issues, err
	}
	return frame, issues, nil
}

func (p *Preprocessor) assemble(times [][2]float64, samples []Sample) (*Frame, error) {
	encoded, err := p.encoder.Transform(categoryRows(samples))
	if err != nil {
		return nil, err
	}
	frame := &Frame{
		Columns: append(append([]string(nil), TimeColumns...), p.encoder.FeatureNames()...),
		Rows:    make([][]float64, len(samples)),
	}
	for i := range samples {
		row := make([]float64, 0, len(frame.Columns))
		row = append(row, times[i][0], times[i][1])
		row = append(row, encoded[i]...)
		frame.Rows[i] = row
	}
	return frame, nil
}

func categoryRows(samples []Sample) [][]string {
	rows := make([][]string, len(samples))
	for i, sample := range samples {
		rows[i] = sample.Categories()
	}
	return rows
}
