package domain

import "fmt"

// Candle is a single OHLCV bar for a ticker at a given timeframe.
// Corresponds to the candles table in ClickHouse.
type Candle struct {
	Ticker    string  // instrument identifier
	Timeframe string  // timeframe token, e.g. "1h"
	BeginMs   int64   // bar open timestamp, Unix ms
	Open      float64 // open price
	High      float64 // high price
	Low       float64 // low price
	Close     float64 // close price
	Volume    float64 // traded volume
}

// Supported timeframe tokens.
const (
	Timeframe1Min  = "1m"
	Timeframe5Min  = "5m"
	Timeframe15Min = "15m"
	Timeframe30Min = "30m"
	Timeframe1Hour = "1h"
	Timeframe4Hour = "4h"
	Timeframe1Day  = "1d"
)

var timeframeDurations = map[string]int64{
	Timeframe1Min:  60_000,
	Timeframe5Min:  300_000,
	Timeframe15Min: 900_000,
	Timeframe30Min: 1_800_000,
	Timeframe1Hour: 3_600_000,
	Timeframe4Hour: 14_400_000,
	Timeframe1Day:  86_400_000,
}

// TimeframeDurationMs returns the bar duration for a timeframe token.
func TimeframeDurationMs(timeframe string) (int64, error) {
	d, ok := timeframeDurations[timeframe]
	if !ok {
		return 0, fmt.Errorf("%w: unknown timeframe %q", ErrFatalConfig, timeframe)
	}
	return d, nil
}

// ExpectedBars returns how many bars a fully covered [startMs, endMs)
// range contains for the given timeframe.
func ExpectedBars(timeframe string, startMs, endMs int64) (int64, error) {
	d, err := TimeframeDurationMs(timeframe)
	if err != nil {
		return 0, err
	}
	if endMs <= startMs {
		return 0, nil
	}
	return (endMs - startMs + d - 1) / d, nil
}
