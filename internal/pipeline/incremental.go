package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/events"
	"tradelab/internal/indicator"
	"tradelab/internal/logger"
	"tradelab/internal/observability"
	"tradelab/internal/storage"
)

// ErrOutOfOrder is returned when a candle arrives at or before the
// partition's high-water mark. The feed replays in order after
// reconnect, so late candles are rejected rather than buffered.
var ErrOutOfOrder = errors.New("candle out of order")

// IncrementalProcessor computes the newest bar of each subscribed
// indicator as closed candles arrive. Per-partition monotonicity is
// tracked with a high-water mark keyed by (ticker, timeframe).
type IncrementalProcessor struct {
	candleStore storage.CandleStore
	valueStore  storage.IndicatorValueStore
	publisher   events.Publisher
	now         func() time.Time

	defs        []indicator.Definition
	maxLookback int

	mu        sync.Mutex
	highWater map[string]int64
}

// IncrementalOptions contains configuration for creating an
// IncrementalProcessor.
type IncrementalOptions struct {
	CandleStore         storage.CandleStore
	IndicatorValueStore storage.IndicatorValueStore
	Registry            *indicator.Registry
	IndicatorKeys       []string
	Publisher           events.Publisher // optional
	Clock               func() time.Time // optional, defaults to time.Now
}

// NewIncrementalProcessor creates a processor for the given indicator
// set.
func NewIncrementalProcessor(opts IncrementalOptions) (*IncrementalProcessor, error) {
	defs := make([]indicator.Definition, 0, len(opts.IndicatorKeys))
	maxLookback := 0
	for _, key := range opts.IndicatorKeys {
		def, err := opts.Registry.ParseBaseKey(key)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
		if def.Lookback > maxLookback {
			maxLookback = def.Lookback
		}
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no indicators subscribed", domain.ErrFatalConfig)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &IncrementalProcessor{
		candleStore: opts.CandleStore,
		valueStore:  opts.IndicatorValueStore,
		publisher:   opts.Publisher,
		now:         now,
		defs:        defs,
		maxLookback: maxLookback,
		highWater:   make(map[string]int64),
	}, nil
}

// Attach subscribes the processor to new-candle events on the bus.
// Rejected and failed candles are logged, not fatal to the bus.
func (p *IncrementalProcessor) Attach(bus *events.Bus) {
	bus.Subscribe(events.TopicNewCandle, func(ctx context.Context, e events.Event) error {
		candle := e.(events.NewCandle).Candle
		if err := p.OnCandle(ctx, candle); err != nil {
			if errors.Is(err, ErrOutOfOrder) {
				observability.RecordCandleRejected("out_of_order")
				logger.Warnf("dropping candle: %v", err)
				return nil
			}
			return err
		}
		observability.RecordCandleProcessed(candle.Timeframe, candle.BeginMs)
		return nil
	})
}

// latestWritten returns the newest begin timestamp any subscribed
// indicator has stored for the partition, if there is one.
func (p *IncrementalProcessor) latestWritten(ctx context.Context, ticker, timeframe string) (int64, bool, error) {
	var latest int64
	found := false
	for _, def := range p.defs {
		begin, err := p.valueStore.LatestBegin(ctx, ticker, timeframe, def.BaseKey)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, false, err
		}
		if !found || begin > latest {
			latest, found = begin, true
		}
	}
	return latest, found, nil
}

// OnCandle processes one closed candle: validates ordering, computes
// the newest point of every subscribed indicator, and writes them
// under a fresh version.
func (p *IncrementalProcessor) OnCandle(ctx context.Context, c domain.Candle) error {
	partition := c.Ticker + "|" + c.Timeframe

	p.mu.Lock()
	hw, seen := p.highWater[partition]
	p.mu.Unlock()
	if !seen {
		// First candle for this partition since startup: seed the mark
		// from what is already stored so a restart does not rewrite
		// bars it has covered.
		boot, ok, err := p.latestWritten(ctx, c.Ticker, c.Timeframe)
		if err != nil {
			return fmt.Errorf("bootstrap high-water for %s: %w", partition, err)
		}
		if ok {
			hw, seen = boot, true
			p.mu.Lock()
			p.highWater[partition] = boot
			p.mu.Unlock()
		}
	}
	if seen && c.BeginMs <= hw {
		return fmt.Errorf("%w: %s %s candle %d at or before high-water %d",
			ErrOutOfOrder, c.Ticker, c.Timeframe, c.BeginMs, hw)
	}

	// Trailing history plus the new bar. The candle itself may not be
	// queryable yet, so it is appended explicitly.
	trailing, err := p.candleStore.QueryBefore(ctx, c.Ticker, c.Timeframe, c.BeginMs, int64(p.maxLookback))
	if err != nil {
		return fmt.Errorf("load trailing window: %w", err)
	}
	window := windowFromCandles(append(trailing, &c))
	last := window.Len() - 1

	version := p.now().UnixMicro()
	var points []*domain.IndicatorValue
	var updatedKeys []string
	for _, def := range p.defs {
		series, err := indicator.Compute(def, window)
		if err != nil {
			return err
		}
		wrote := false
		for valueKey, values := range series {
			v := values[last]
			if math.IsNaN(v) {
				continue
			}
			wrote = true
			points = append(points, &domain.IndicatorValue{
				Ticker:       c.Ticker,
				Timeframe:    c.Timeframe,
				BeginMs:      c.BeginMs,
				IndicatorKey: def.BaseKey,
				ValueKey:     valueKey,
				Value:        v,
				Version:      version,
			})
		}
		if wrote {
			updatedKeys = append(updatedKeys, def.BaseKey)
		}
	}

	if len(points) > 0 {
		if err := p.valueStore.InsertBulk(ctx, points); err != nil {
			return fmt.Errorf("write indicator values: %w", err)
		}
	}

	p.mu.Lock()
	p.highWater[partition] = c.BeginMs
	p.mu.Unlock()

	if p.publisher != nil && len(updatedKeys) > 0 {
		e := events.IndicatorsUpdated{
			Ticker:        c.Ticker,
			Timeframe:     c.Timeframe,
			BeginMs:       c.BeginMs,
			IndicatorKeys: updatedKeys,
		}
		if err := p.publisher.Publish(ctx, e); err != nil {
			logger.Warnf("publish indicators updated: %v", err)
		}
	}

	return nil
}
