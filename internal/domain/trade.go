package domain

// Direction of a position or trade.
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Trade is one completed round trip produced by the simulation.
// Immutable once emitted. Corresponds to the backtest_trades table.
type Trade struct {
	JobID     string // backtest job that produced the trade
	Direction string // "LONG" | "SHORT"

	EntryTimeMs int64   // entry bar timestamp, Unix ms
	EntryPrice  float64 // fill price at entry
	ExitTimeMs  int64   // exit bar timestamp, Unix ms
	ExitPrice   float64 // fill price at exit
	ExitReason  string  // reason code

	Quantity   float64 // units traded, multiple of lot size
	Commission float64 // total commission for both legs

	GrossProfit float64 // before commission
	NetProfit   float64 // after commission
	ProfitPct   float64 // net profit over entry notional

	BalanceAfter float64 // running capital after this trade
}

// Exit reason codes.
const (
	ExitReasonSignal    = "SIGNAL"
	ExitReasonFlip      = "FLIP"
	ExitReasonEndOfData = "END_OF_DATA"
)
