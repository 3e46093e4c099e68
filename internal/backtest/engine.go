package backtest

import (
	"context"
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/indicator"
	"tradelab/internal/storage"
	"tradelab/internal/strategy"
)

// Engine runs one backtest end to end: load data, evaluate signals,
// simulate, reduce metrics.
type Engine struct {
	candleStore         storage.CandleStore
	indicatorValueStore storage.IndicatorValueStore
	registry            *indicator.Registry
}

// EngineOptions contains configuration for creating an Engine.
type EngineOptions struct {
	CandleStore         storage.CandleStore
	IndicatorValueStore storage.IndicatorValueStore
	Registry            *indicator.Registry
}

// NewEngine creates a backtest engine.
func NewEngine(opts EngineOptions) *Engine {
	return &Engine{
		candleStore:         opts.CandleStore,
		indicatorValueStore: opts.IndicatorValueStore,
		registry:            opts.Registry,
	}
}

// Result bundles the output of one backtest run.
type Result struct {
	Metrics *domain.BacktestMetrics
	Trades  []*domain.Trade
}

// Run executes a backtest for an already validated job.
// Steps:
//  1. Resolve indicator definitions from the strategy's value keys
//  2. Load candles for the job range
//  3. Load reconciled indicator values for the resolved keys
//  4. Build the aligned frame
//  5. Evaluate the four signal masks
//  6. Simulate bar by bar
//  7. Reduce the trade list into metrics
func (e *Engine) Run(ctx context.Context, job *domain.Job, compiled *strategy.Compiled) (*Result, error) {
	// 1. Resolve indicator definitions from value keys
	defs, err := e.registry.DefinitionsForValueKeys(compiled.RequiredValueKeys())
	if err != nil {
		return nil, err
	}

	// 2. Load candles
	candles, err := e.candleStore.QueryRange(ctx, job.Ticker, job.Timeframe, job.StartMs, job.EndMs)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s %s in [%d, %d)",
			domain.ErrDataUnavailable, job.Ticker, job.Timeframe, job.StartMs, job.EndMs)
	}

	// 3. Load reconciled indicator values
	indicatorKeys := make([]string, 0, len(defs))
	for _, d := range defs {
		indicatorKeys = append(indicatorKeys, d.BaseKey)
	}
	var values []*domain.IndicatorValue
	if len(indicatorKeys) > 0 {
		values, err = e.indicatorValueStore.QueryRange(ctx, job.Ticker, job.Timeframe, indicatorKeys, job.StartMs, job.EndMs)
		if err != nil {
			return nil, fmt.Errorf("load indicator values: %w", err)
		}
	}

	// 4. Build the frame
	frame := strategy.NewFrame(candles, values)
	for _, vk := range compiled.RequiredValueKeys() {
		if _, err := frame.Column(vk); err != nil {
			return nil, err
		}
	}

	// 5. Evaluate signal masks
	signals, err := ComputeSignals(compiled, frame)
	if err != nil {
		return nil, err
	}

	// 6. Simulate
	trades, err := Simulate(ctx, job.ID, compiled.Execution, frame, signals)
	if err != nil {
		return nil, err
	}

	// 7. Reduce metrics
	metrics := ComputeMetrics(job.ID, compiled.Execution, trades)

	return &Result{Metrics: metrics, Trades: trades}, nil
}
