package indicator

import (
	talib "github.com/markcheno/go-talib"
)

// Output suffixes for multi-value indicators.
const (
	suffixValue  = "value"
	suffixMacd   = "macd"
	suffixSignal = "signal"
	suffixHist   = "hist"
	suffixUpper  = "upper"
	suffixMiddle = "middle"
	suffixLower  = "lower"
	suffixSlowK  = "slow_k"
	suffixSlowD  = "slow_d"
)

// builtins returns the catalog of supported indicators. Lookback is a
// conservative history requirement (roughly twice the talib unstable
// period) so that the first value inside a requested range is already
// stable; the per-series warmup masks mark exactly where talib output
// is undefined.
func builtins() []*builtinSpec {
	return []*builtinSpec{
		{
			name:     "sma",
			params:   []paramSpec{{name: "timeperiod", def: 30, minimum: 2, integral: true}},
			suffixes: []string{suffixValue},
			lookback: func(p map[string]float64) int { return 2 * int(p["timeperiod"]) },
			compute: func(p map[string]float64, w Window) map[string][]float64 {
				period := int(p["timeperiod"])
				return map[string][]float64{
					suffixValue: maskWarmup(talib.Sma(w.Close, period), period-1),
				}
			},
		},
		{
			name:     "ema",
			params:   []paramSpec{{name: "timeperiod", def: 30, minimum: 2, integral: true}},
			suffixes: []string{suffixValue},
			lookback: func(p map[string]float64) int { return 2 * int(p["timeperiod"]) },
			compute: func(p map[string]float64, w Window) map[string][]float64 {
				period := int(p["timeperiod"])
				return map[string][]float64{
					suffixValue: maskWarmup(talib.Ema(w.Close, period), period-1),
				}
			},
		},
		{
			name:     "rsi",
			params:   []paramSpec{{name: "timeperiod", def: 14, minimum: 2, integral: true}},
			suffixes: []string{suffixValue},
			lookback: func(p map[string]float64) int { return 2 * int(p["timeperiod"]) },
			compute: func(p map[string]float64, w Window) map[string][]float64 {
				period := int(p["timeperiod"])
				return map[string][]float64{
					suffixValue: maskWarmup(talib.Rsi(w.Close, period), period),
				}
			},
		},
		{
			name: "macd",
			params: []paramSpec{
				{name: "fastperiod", def: 12, minimum: 2, integral: true},
				{name: "slowperiod", def: 26, minimum: 2, integral: true},
				{name: "signalperiod", def: 9, minimum: 1, integral: true},
			},
			suffixes: []string{suffixMacd, suffixSignal, suffixHist},
			lookback: func(p map[string]float64) int {
				return 2 * int(p["slowperiod"]+p["signalperiod"])
			},
			compute: func(p map[string]float64, w Window) map[string][]float64 {
				fast := int(p["fastperiod"])
				slow := int(p["slowperiod"])
				signal := int(p["signalperiod"])
				macd, sig, hist := talib.Macd(w.Close, fast, slow, signal)
				return map[string][]float64{
					suffixMacd:   maskWarmup(macd, slow-1),
					suffixSignal: maskWarmup(sig, slow+signal-2),
					suffixHist:   maskWarmup(hist, slow+signal-2),
				}
			},
		},
		{
			name: "bbands",
			params: []paramSpec{
				{name: "timeperiod", def: 20, minimum: 2, integral: true},
				{name: "nbdevup", def: 2, minimum: 0},
				{name: "nbdevdn", def: 2, minimum: 0},
			},
			suffixes: []string{suffixUpper, suffixMiddle, suffixLower},
			lookback: func(p map[string]float64) int { return 2 * int(p["timeperiod"]) },
			compute: func(p map[string]float64, w Window) map[string][]float64 {
				period := int(p["timeperiod"])
				upper, middle, lower := talib.BBands(
					w.Close, period, p["nbdevup"], p["nbdevdn"], talib.SMA)
				return map[string][]float64{
					suffixUpper:  maskWarmup(upper, period-1),
					suffixMiddle: maskWarmup(middle, period-1),
					suffixLower:  maskWarmup(lower, period-1),
				}
			},
		},
		{
			name:     "atr",
			params:   []paramSpec{{name: "timeperiod", def: 14, minimum: 1, integral: true}},
			suffixes: []string{suffixValue},
			lookback: func(p map[string]float64) int { return 2 * int(p["timeperiod"]) },
			compute: func(p map[string]float64, w Window) map[string][]float64 {
				period := int(p["timeperiod"])
				return map[string][]float64{
					suffixValue: maskWarmup(talib.Atr(w.High, w.Low, w.Close, period), period),
				}
			},
		},
		{
			name:     "adx",
			params:   []paramSpec{{name: "timeperiod", def: 14, minimum: 2, integral: true}},
			suffixes: []string{suffixValue},
			lookback: func(p map[string]float64) int { return 4 * int(p["timeperiod"]) },
			compute: func(p map[string]float64, w Window) map[string][]float64 {
				period := int(p["timeperiod"])
				return map[string][]float64{
					suffixValue: maskWarmup(talib.Adx(w.High, w.Low, w.Close, period), 2*period-1),
				}
			},
		},
		{
			name: "stoch",
			params: []paramSpec{
				{name: "fastk_period", def: 5, minimum: 1, integral: true},
				{name: "slowk_period", def: 3, minimum: 1, integral: true},
				{name: "slowd_period", def: 3, minimum: 1, integral: true},
			},
			suffixes: []string{suffixSlowK, suffixSlowD},
			lookback: func(p map[string]float64) int {
				return 2 * int(p["fastk_period"]+p["slowk_period"]+p["slowd_period"])
			},
			compute: func(p map[string]float64, w Window) map[string][]float64 {
				fastK := int(p["fastk_period"])
				slowK := int(p["slowk_period"])
				slowD := int(p["slowd_period"])
				k, d := talib.Stoch(w.High, w.Low, w.Close,
					fastK, slowK, talib.SMA, slowD, talib.SMA)
				return map[string][]float64{
					suffixSlowK: maskWarmup(k, fastK+slowK-2),
					suffixSlowD: maskWarmup(d, fastK+slowK+slowD-3),
				}
			},
		},
		{
			name:     "mfi",
			params:   []paramSpec{{name: "timeperiod", def: 14, minimum: 2, integral: true}},
			suffixes: []string{suffixValue},
			lookback: func(p map[string]float64) int { return 2 * int(p["timeperiod"]) },
			compute: func(p map[string]float64, w Window) map[string][]float64 {
				period := int(p["timeperiod"])
				return map[string][]float64{
					suffixValue: maskWarmup(talib.Mfi(w.High, w.Low, w.Close, w.Volume, period), period),
				}
			},
		},
	}
}
