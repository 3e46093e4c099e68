// Package backtest replays a compiled strategy over a candle frame and
// reduces the resulting trade list into performance metrics.
package backtest

import (
	"fmt"

	"tradelab/internal/strategy"
)

// Signals holds the per-bar boolean masks for the four condition trees.
// A nil tree yields an all-false mask of frame length.
type Signals struct {
	EntryBuy  []bool
	EntrySell []bool
	ExitLong  []bool
	ExitShort []bool
}

// ComputeSignals evaluates all four condition trees against the frame.
func ComputeSignals(c *strategy.Compiled, f *strategy.Frame) (*Signals, error) {
	entryBuy, err := strategy.EvaluateMask(c.EntryBuy, f)
	if err != nil {
		return nil, fmt.Errorf("evaluate entry_buy: %w", err)
	}
	entrySell, err := strategy.EvaluateMask(c.EntrySell, f)
	if err != nil {
		return nil, fmt.Errorf("evaluate entry_sell: %w", err)
	}
	exitLong, err := strategy.EvaluateMask(c.ExitLong, f)
	if err != nil {
		return nil, fmt.Errorf("evaluate exit_long: %w", err)
	}
	exitShort, err := strategy.EvaluateMask(c.ExitShort, f)
	if err != nil {
		return nil, fmt.Errorf("evaluate exit_short: %w", err)
	}

	return &Signals{
		EntryBuy:  entryBuy,
		EntrySell: entrySell,
		ExitLong:  exitLong,
		ExitShort: exitShort,
	}, nil
}
