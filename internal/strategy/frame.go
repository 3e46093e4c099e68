package strategy

import (
	"fmt"
	"math"

	"tradelab/internal/domain"
)

// Frame is a columnar view over candles and reconciled indicator
// series, aligned by bar index. Indicator columns may contain NaN where
// a value is undefined or missing for a bar.
type Frame struct {
	BeginMs []int64
	Open    []float64
	High    []float64
	Low     []float64
	Close   []float64
	Volume  []float64

	columns map[string][]float64 // by value key
}

// NewFrame builds a frame from candles and long-format indicator
// points. Points that do not line up with a candle timestamp are
// dropped; candles without a point for some value key get NaN.
func NewFrame(candles []*domain.Candle, values []*domain.IndicatorValue) *Frame {
	n := len(candles)
	f := &Frame{
		BeginMs: make([]int64, n),
		Open:    make([]float64, n),
		High:    make([]float64, n),
		Low:     make([]float64, n),
		Close:   make([]float64, n),
		Volume:  make([]float64, n),
		columns: make(map[string][]float64),
	}

	index := make(map[int64]int, n)
	for i, c := range candles {
		f.BeginMs[i] = c.BeginMs
		f.Open[i] = c.Open
		f.High[i] = c.High
		f.Low[i] = c.Low
		f.Close[i] = c.Close
		f.Volume[i] = c.Volume
		index[c.BeginMs] = i
	}

	for _, v := range values {
		i, ok := index[v.BeginMs]
		if !ok {
			continue
		}
		col, ok := f.columns[v.ValueKey]
		if !ok {
			col = nanColumn(n)
			f.columns[v.ValueKey] = col
		}
		col[i] = v.Value
	}

	return f
}

// Len returns the number of bars.
func (f *Frame) Len() int { return len(f.BeginMs) }

// AddColumn attaches a computed series under a value key. The series
// must match the frame length.
func (f *Frame) AddColumn(valueKey string, series []float64) error {
	if len(series) != f.Len() {
		return fmt.Errorf("%w: column %s has %d points, frame has %d",
			domain.ErrFatalConfig, valueKey, len(series), f.Len())
	}
	f.columns[valueKey] = series
	return nil
}

// Column returns the series for a value key, or an error when the
// frame has no data for it.
func (f *Frame) Column(valueKey string) ([]float64, error) {
	col, ok := f.columns[valueKey]
	if !ok {
		return nil, fmt.Errorf("%w: no series for value key %q", domain.ErrDataUnavailable, valueKey)
	}
	return col, nil
}

// ValueKeys returns the attached indicator value keys.
func (f *Frame) ValueKeys() []string {
	keys := make([]string, 0, len(f.columns))
	for k := range f.columns {
		keys = append(keys, k)
	}
	return keys
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
