package domain

// BacktestMetrics is the aggregate result of one simulation run,
// computed as a pure reduction over the final trade list.
// Corresponds to the backtest_results table in Postgres.
type BacktestMetrics struct {
	JobID string

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRatePct    float64 // winners over total, percent

	InitialBalance  float64
	FinalBalance    float64 // net of commissions
	GrossBalance    float64 // ignoring commissions
	NetProfit       float64
	NetProfitPct    float64
	TotalCommission float64

	ProfitFactor   float64 // gross wins over gross losses
	MaxDrawdownPct float64 // worst peak-to-trough on the net equity curve
	SharpeRatio    float64 // mean over stddev of per-trade net pct

	AvgWinPct  float64
	AvgLossPct float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	// StabilityScore grades equity curve smoothness in [0, 1]; higher
	// means returns accrued evenly rather than from a few outliers.
	StabilityScore float64
}
