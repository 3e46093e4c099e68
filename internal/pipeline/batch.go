package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/events"
	"tradelab/internal/idhash"
	"tradelab/internal/indicator"
	"tradelab/internal/lock"
	"tradelab/internal/logger"
	"tradelab/internal/observability"
	"tradelab/internal/storage"
)

// BatchRequest asks for indicator computation over a historical range.
type BatchRequest struct {
	Ticker        string
	Timeframe     string
	StartMs       int64
	EndMs         int64
	IndicatorKeys []string
}

// BatchResult summarizes one batch run.
type BatchResult struct {
	TaskKey       string
	IndicatorKeys []string
	PointsWritten int
}

// BatchRunner computes indicators over historical ranges. Concurrent
// runs over the same (ticker, timeframe, indicator set) are excluded
// by a lease; writes are at-least-once and reconciled on read, so a
// retried batch never corrupts data.
type BatchRunner struct {
	candleStore storage.CandleStore
	valueStore  storage.IndicatorValueStore
	registry    *indicator.Registry
	locks       *lock.Manager
	validator   *Validator
	publisher   events.Publisher
	now         func() time.Time
}

// BatchRunnerOptions contains configuration for creating a BatchRunner.
type BatchRunnerOptions struct {
	CandleStore         storage.CandleStore
	IndicatorValueStore storage.IndicatorValueStore
	Registry            *indicator.Registry
	Locks               *lock.Manager
	Publisher           events.Publisher // optional
	Clock               func() time.Time // optional, defaults to time.Now
}

// NewBatchRunner creates a batch pipeline runner.
func NewBatchRunner(opts BatchRunnerOptions) *BatchRunner {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &BatchRunner{
		candleStore: opts.CandleStore,
		valueStore:  opts.IndicatorValueStore,
		registry:    opts.Registry,
		locks:       opts.Locks,
		validator:   NewValidator(opts.CandleStore),
		publisher:   opts.Publisher,
		now:         now,
	}
}

// Run executes one batch computation.
// Steps:
//  1. Resolve indicator definitions from the requested keys
//  2. Acquire the resource lease, failing fast on denial
//  3. Validate range coverage and lookback history before any write
//  4. Load the trailing window plus the requested range
//  5. Compute each indicator and collect in-range points
//  6. Write all points under one fresh version
//  7. Announce the update
func (b *BatchRunner) Run(ctx context.Context, req BatchRequest) (res *BatchResult, err error) {
	started := time.Now()
	defer func() {
		status := "success"
		points := 0
		if err != nil {
			status = "failure"
		} else {
			points = res.PointsWritten
		}
		observability.RecordBatchRun(status, time.Since(started).Seconds(), points)
	}()

	// 1. Resolve definitions
	defs := make([]indicator.Definition, 0, len(req.IndicatorKeys))
	maxLookback := 0
	for _, key := range req.IndicatorKeys {
		def, err := b.registry.ParseBaseKey(key)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
		if def.Lookback > maxLookback {
			maxLookback = def.Lookback
		}
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no indicators requested", domain.ErrFatalConfig)
	}
	taskKey := idhash.ComputeTaskKey(req.Ticker, req.Timeframe, req.StartMs, req.EndMs, req.IndicatorKeys)
	logger.Infof("batch %s: %s %s [%d, %d), %d indicators",
		taskKey, req.Ticker, req.Timeframe, req.StartMs, req.EndMs, len(defs))

	// 2. Acquire the resource lease
	resourceKey := idhash.ComputeResourceKey(req.Ticker, req.Timeframe, req.IndicatorKeys)
	lease, err := b.locks.Acquire(ctx, resourceKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warnf("release lease %s: %v", resourceKey, err)
		}
	}()

	// 3. Validate before any write
	if err := b.validator.Validate(ctx, req.Ticker, req.Timeframe, req.StartMs, req.EndMs, int64(maxLookback)); err != nil {
		return nil, err
	}

	// 4. Load trailing window plus range
	trailing, err := b.candleStore.QueryBefore(ctx, req.Ticker, req.Timeframe, req.StartMs, int64(maxLookback))
	if err != nil {
		return nil, fmt.Errorf("load trailing window: %w", err)
	}
	inRange, err := b.candleStore.QueryRange(ctx, req.Ticker, req.Timeframe, req.StartMs, req.EndMs)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	candles := append(trailing, inRange...)
	window := windowFromCandles(candles)

	// 5. Compute and collect points inside the requested range
	version := b.now().UnixMicro()
	var points []*domain.IndicatorValue
	for _, def := range defs {
		series, err := indicator.Compute(def, window)
		if err != nil {
			return nil, err
		}
		points = append(points, collectPoints(req.Ticker, req.Timeframe, def, window, series, req.StartMs, version)...)
	}

	// 6. Write
	select {
	case <-lease.Lost():
		return nil, fmt.Errorf("%w: lease lost for %s", domain.ErrLockDenied, resourceKey)
	default:
	}
	if err := b.valueStore.InsertBulk(ctx, points); err != nil {
		return nil, fmt.Errorf("write indicator values: %w", err)
	}

	// 7. Announce
	if b.publisher != nil && len(candles) > 0 {
		e := events.IndicatorsUpdated{
			Ticker:        req.Ticker,
			Timeframe:     req.Timeframe,
			BeginMs:       candles[len(candles)-1].BeginMs,
			IndicatorKeys: req.IndicatorKeys,
		}
		if err := b.publisher.Publish(ctx, e); err != nil {
			logger.Warnf("publish indicators updated: %v", err)
		}
	}

	logger.Infof("batch %s: wrote %d points", taskKey, len(points))
	return &BatchResult{TaskKey: taskKey, IndicatorKeys: req.IndicatorKeys, PointsWritten: len(points)}, nil
}

// collectPoints turns computed series into storable points, keeping
// only defined values at or after fromMs.
func collectPoints(ticker, timeframe string, def indicator.Definition, w indicator.Window, series map[string][]float64, fromMs int64, version int64) []*domain.IndicatorValue {
	var points []*domain.IndicatorValue
	for valueKey, values := range series {
		for i, v := range values {
			if w.BeginMs[i] < fromMs || math.IsNaN(v) {
				continue
			}
			points = append(points, &domain.IndicatorValue{
				Ticker:       ticker,
				Timeframe:    timeframe,
				BeginMs:      w.BeginMs[i],
				IndicatorKey: def.BaseKey,
				ValueKey:     valueKey,
				Value:        v,
				Version:      version,
			})
		}
	}
	return points
}

func windowFromCandles(candles []*domain.Candle) indicator.Window {
	w := indicator.Window{
		BeginMs: make([]int64, len(candles)),
		Open:    make([]float64, len(candles)),
		High:    make([]float64, len(candles)),
		Low:     make([]float64, len(candles)),
		Close:   make([]float64, len(candles)),
		Volume:  make([]float64, len(candles)),
	}
	for i, c := range candles {
		w.BeginMs[i] = c.BeginMs
		w.Open[i] = c.Open
		w.High[i] = c.High
		w.Low[i] = c.Low
		w.Close[i] = c.Close
		w.Volume[i] = c.Volume
	}
	return w
}
