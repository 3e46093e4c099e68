package domain

// IndicatorValue is one computed indicator point in long format.
// Corresponds to the indicator_values table in ClickHouse
// (ReplacingMergeTree keyed by version).
type IndicatorValue struct {
	Ticker       string  // instrument identifier
	Timeframe    string  // timeframe token
	BeginMs      int64   // bar timestamp the value belongs to, Unix ms
	IndicatorKey string  // base key, e.g. "rsi_timeperiod_14"
	ValueKey     string  // output series key, e.g. "rsi_timeperiod_14_value"
	Value        float64 // computed value, NaN when undefined
	Version      int64   // write version, Unix microseconds
}

// ValueKeySeparator joins an indicator base key with an output suffix.
const ValueKeySeparator = "_"
