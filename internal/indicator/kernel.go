package indicator

import (
	"fmt"
	"math"

	"tradelab/internal/domain"
)

// Window is a contiguous run of OHLCV series aligned by index. All
// slices have equal length.
type Window struct {
	BeginMs []int64
	Open    []float64
	High    []float64
	Low     []float64
	Close   []float64
	Volume  []float64
}

// Len returns the number of bars in the window.
func (w Window) Len() int { return len(w.Close) }

// Compute evaluates a resolved definition over a window and returns one
// series per value key, aligned index-for-index with the input. Points
// where the indicator is undefined (the warmup region, or NaN inputs)
// are NaN. Compute is pure: same window and definition always produce
// the same output, and an undefined point is never an error.
func Compute(def Definition, w Window) (map[string][]float64, error) {
	if def.spec == nil {
		return nil, fmt.Errorf("%w: definition for %q was not resolved through a registry",
			domain.ErrFatalConfig, def.Name)
	}
	if w.Len() == 0 {
		out := make(map[string][]float64, len(def.Suffixes))
		for _, k := range def.ValueKeys() {
			out[k] = nil
		}
		return out, nil
	}

	raw := def.spec.compute(def.Params, w)

	out := make(map[string][]float64, len(raw))
	for suffix, series := range raw {
		out[def.BaseKey+domain.ValueKeySeparator+suffix] = series
	}
	return out, nil
}

// maskWarmup overwrites the first n points with NaN. The underlying
// talib port zero-fills its unstable region instead of marking it, so
// every builtin masks its own warmup length explicitly.
func maskWarmup(series []float64, n int) []float64 {
	if n > len(series) {
		n = len(series)
	}
	for i := 0; i < n; i++ {
		series[i] = math.NaN()
	}
	return series
}
