package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow(closes []float64) Window {
	w := Window{
		BeginMs: make([]int64, len(closes)),
		Open:    make([]float64, len(closes)),
		High:    make([]float64, len(closes)),
		Low:     make([]float64, len(closes)),
		Close:   closes,
		Volume:  make([]float64, len(closes)),
	}
	for i, c := range closes {
		w.BeginMs[i] = int64(i) * 60_000
		w.Open[i] = c
		w.High[i] = c + 1
		w.Low[i] = c - 1
		w.Volume[i] = 100
	}
	return w
}

func TestComputeSmaValues(t *testing.T) {
	r := NewRegistry()
	def, err := r.Resolve("sma", map[string]float64{"timeperiod": 3})
	require.NoError(t, err)

	out, err := Compute(def, testWindow([]float64{1, 2, 3, 4, 5}))
	require.NoError(t, err)

	series := out["sma_timeperiod_3_value"]
	require.Len(t, series, 5)

	// First period-1 points are undefined.
	assert.True(t, math.IsNaN(series[0]))
	assert.True(t, math.IsNaN(series[1]))
	assert.InDelta(t, 2.0, series[2], 1e-9)
	assert.InDelta(t, 3.0, series[3], 1e-9)
	assert.InDelta(t, 4.0, series[4], 1e-9)
}

func TestComputeWarmupIsNaNNotZero(t *testing.T) {
	r := NewRegistry()
	def, err := r.Resolve("rsi", map[string]float64{"timeperiod": 14})
	require.NoError(t, err)

	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}
	out, err := Compute(def, testWindow(closes))
	require.NoError(t, err)

	series := out["rsi_timeperiod_14_value"]
	require.Len(t, series, 40)
	for i := 0; i < 14; i++ {
		assert.True(t, math.IsNaN(series[i]), "index %d should be undefined", i)
	}
	for i := 14; i < 40; i++ {
		assert.False(t, math.IsNaN(series[i]), "index %d should be defined", i)
	}
}

func TestComputeMacdOutputsAllKeys(t *testing.T) {
	r := NewRegistry()
	def, err := r.Resolve("macd", nil)
	require.NoError(t, err)

	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 50 + 10*math.Sin(float64(i)/9)
	}
	out, err := Compute(def, testWindow(closes))
	require.NoError(t, err)
	require.Len(t, out, 3)

	for _, key := range def.ValueKeys() {
		require.Contains(t, out, key)
		require.Len(t, out[key], 120)
		assert.False(t, math.IsNaN(out[key][119]), "%s tail should be defined", key)
	}
	// Signal line warms up later than the macd line.
	macd := out[def.BaseKey+"_macd"]
	signal := out[def.BaseKey+"_signal"]
	assert.False(t, math.IsNaN(macd[25]))
	assert.True(t, math.IsNaN(signal[25]))
	assert.False(t, math.IsNaN(signal[33]))
}

func TestComputeDeterministic(t *testing.T) {
	r := NewRegistry()
	def, err := r.Resolve("ema", map[string]float64{"timeperiod": 10})
	require.NoError(t, err)

	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = float64(1000 + i*3%17)
	}

	first, err := Compute(def, testWindow(closes))
	require.NoError(t, err)
	key := "ema_timeperiod_10_value"
	for run := 0; run < 5; run++ {
		again, err := Compute(def, testWindow(closes))
		require.NoError(t, err)
		require.Len(t, again[key], len(first[key]))
		for i := range first[key] {
			if math.IsNaN(first[key][i]) {
				assert.True(t, math.IsNaN(again[key][i]))
				continue
			}
			assert.Equal(t, first[key][i], again[key][i])
		}
	}
}

func TestComputeEmptyWindow(t *testing.T) {
	r := NewRegistry()
	def, err := r.Resolve("sma", nil)
	require.NoError(t, err)

	out, err := Compute(def, Window{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Empty(t, out["sma_timeperiod_30_value"])
}

func TestComputeUnresolvedDefinition(t *testing.T) {
	_, err := Compute(Definition{Name: "sma"}, testWindow([]float64{1, 2, 3}))
	require.Error(t, err)
}
