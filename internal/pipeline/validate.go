// Package pipeline computes indicator values over candle data, both as
// historical batches and incrementally as new candles arrive.
package pipeline

import (
	"context"
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// Validator checks candle coverage before any indicator computation.
type Validator struct {
	candleStore storage.CandleStore
}

// NewValidator creates a coverage validator.
func NewValidator(candleStore storage.CandleStore) *Validator {
	return &Validator{candleStore: candleStore}
}

// ValidateRange verifies the range [startMs, endMs) is fully covered:
// the stored bar count must equal the expected count for the
// timeframe. A shortfall means gaps or missing history.
func (v *Validator) ValidateRange(ctx context.Context, ticker, timeframe string, startMs, endMs int64) error {
	expected, err := domain.ExpectedBars(timeframe, startMs, endMs)
	if err != nil {
		return err
	}
	if expected == 0 {
		return fmt.Errorf("%w: empty range [%d, %d)", domain.ErrFatalConfig, startMs, endMs)
	}

	actual, err := v.candleStore.CountRange(ctx, ticker, timeframe, startMs, endMs)
	if err != nil {
		return fmt.Errorf("count candles: %w", err)
	}
	if actual < expected {
		return fmt.Errorf("%w: %s %s has %d of %d bars in [%d, %d)",
			domain.ErrDataUnavailable, ticker, timeframe, actual, expected, startMs, endMs)
	}
	return nil
}

// ValidateLookback verifies at least lookback bars exist strictly
// before startMs, so warmup does not eat into the requested range.
func (v *Validator) ValidateLookback(ctx context.Context, ticker, timeframe string, startMs, lookback int64) error {
	if lookback <= 0 {
		return nil
	}
	available, err := v.candleStore.CountBefore(ctx, ticker, timeframe, startMs)
	if err != nil {
		return fmt.Errorf("count lookback candles: %w", err)
	}
	if available < lookback {
		return fmt.Errorf("%w: %s %s has %d of %d lookback bars before %d",
			domain.ErrDataUnavailable, ticker, timeframe, available, lookback, startMs)
	}
	return nil
}

// Validate runs both checks. Used as the gate before batch compute and
// before a backtest job leaves PENDING.
func (v *Validator) Validate(ctx context.Context, ticker, timeframe string, startMs, endMs, lookback int64) error {
	if err := v.ValidateRange(ctx, ticker, timeframe, startMs, endMs); err != nil {
		return err
	}
	return v.ValidateLookback(ctx, ticker, timeframe, startMs, lookback)
}
