package strategy

import (
	"fmt"

	"tradelab/internal/domain"
)

// Compiled is a strategy with all four condition trees parsed and
// execution parameters validated. Compile once per job; evaluation is
// then allocation-cheap.
type Compiled struct {
	ID        string
	EntryBuy  *Node
	EntrySell *Node
	ExitLong  *Node
	ExitShort *Node
	Execution domain.ExecutionParams
}

// Compile parses a stored strategy. A strategy with no entry
// conditions at all is a configuration error; missing exit conditions
// are allowed (positions then close on flip or end of data).
func Compile(cfg *domain.StrategyConfig) (*Compiled, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil strategy", domain.ErrFatalConfig)
	}
	if err := cfg.Execution.Validate(); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", cfg.ID, err)
	}

	entryBuy, err := Parse(cfg.EntryBuy)
	if err != nil {
		return nil, fmt.Errorf("strategy %s entry_buy: %w", cfg.ID, err)
	}
	entrySell, err := Parse(cfg.EntrySell)
	if err != nil {
		return nil, fmt.Errorf("strategy %s entry_sell: %w", cfg.ID, err)
	}
	exitLong, err := Parse(cfg.ExitLong)
	if err != nil {
		return nil, fmt.Errorf("strategy %s exit_long: %w", cfg.ID, err)
	}
	exitShort, err := Parse(cfg.ExitShort)
	if err != nil {
		return nil, fmt.Errorf("strategy %s exit_short: %w", cfg.ID, err)
	}

	if entryBuy == nil && entrySell == nil {
		return nil, fmt.Errorf("%w: strategy %s has no entry conditions", domain.ErrFatalConfig, cfg.ID)
	}

	return &Compiled{
		ID:        cfg.ID,
		EntryBuy:  entryBuy,
		EntrySell: entrySell,
		ExitLong:  exitLong,
		ExitShort: exitShort,
		Execution: cfg.Execution,
	}, nil
}

// RequiredValueKeys returns every indicator value key any of the four
// trees references.
func (c *Compiled) RequiredValueKeys() []string {
	return RequiredValueKeys(c.EntryBuy, c.EntrySell, c.ExitLong, c.ExitShort)
}
