package domain

import (
	"encoding/json"
	"fmt"
)

// StrategyConfig describes a trading strategy: four condition trees over
// indicator value keys plus execution parameters. Condition trees are
// kept as raw JSON here; the strategy package parses them into an AST.
// Corresponds to the strategies table in Postgres.
type StrategyConfig struct {
	ID          string // strategy identifier
	Name        string // human readable name
	Description string

	EntryBuy  json.RawMessage // open long condition
	EntrySell json.RawMessage // open short condition
	ExitLong  json.RawMessage // close long condition
	ExitShort json.RawMessage // close short condition

	Execution ExecutionParams

	CreatedAtMs int64 // creation timestamp, Unix ms
}

// ExecutionParams control position sizing and costs during simulation.
type ExecutionParams struct {
	InitialBalance  float64 // starting capital in quote currency
	CommissionPct   float64 // commission per leg as a fraction, e.g. 0.001
	PositionSizePct float64 // percent of capital per position, 50..500
	LotSize         float64 // minimum tradeable increment for the ticker
}

// Position sizing bounds. Values above 100 mean leverage.
const (
	MinPositionSizePct = 50.0
	MaxPositionSizePct = 500.0
)

// Validate checks execution parameters against configured bounds.
func (p ExecutionParams) Validate() error {
	if p.InitialBalance <= 0 {
		return fmt.Errorf("%w: initial balance must be positive, got %v", ErrFatalConfig, p.InitialBalance)
	}
	if p.CommissionPct < 0 {
		return fmt.Errorf("%w: commission must be non-negative, got %v", ErrFatalConfig, p.CommissionPct)
	}
	if p.PositionSizePct < MinPositionSizePct || p.PositionSizePct > MaxPositionSizePct {
		return fmt.Errorf("%w: position size pct must be in [%v, %v], got %v",
			ErrFatalConfig, MinPositionSizePct, MaxPositionSizePct, p.PositionSizePct)
	}
	if p.LotSize <= 0 {
		return fmt.Errorf("%w: lot size must be positive, got %v", ErrFatalConfig, p.LotSize)
	}
	return nil
}
