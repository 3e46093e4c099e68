package pipeline

import (
	"context"
	"errors"
	"testing"

	"tradelab/internal/domain"
	"tradelab/internal/events"
	"tradelab/internal/indicator"
	"tradelab/internal/storage/memory"
)

func newIncrementalFixture(t *testing.T, keys []string) (*IncrementalProcessor, *memory.CandleStore, *memory.IndicatorValueStore, *capturePublisher) {
	t.Helper()
	candles := memory.NewCandleStore()
	values := memory.NewIndicatorValueStore()
	pub := &capturePublisher{}
	proc, err := NewIncrementalProcessor(IncrementalOptions{
		CandleStore:         candles,
		IndicatorValueStore: values,
		Registry:            indicator.NewRegistry(),
		IndicatorKeys:       keys,
		Publisher:           pub,
	})
	if err != nil {
		t.Fatalf("NewIncrementalProcessor() error = %v", err)
	}
	return proc, candles, values, pub
}

func hourlyCandle(ticker string, bar int, close float64) domain.Candle {
	return domain.Candle{
		Ticker:    ticker,
		Timeframe: domain.Timeframe1Hour,
		BeginMs:   int64(bar) * hourMs,
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    1000,
	}
}

func TestIncremental_ComputesNewestBar(t *testing.T) {
	proc, candles, values, pub := newIncrementalFixture(t, []string{"sma_timeperiod_2"})
	seedHourly(candles, "SBER", 0, 5) // closes 100..104, history for the new bar

	err := proc.OnCandle(context.Background(), hourlyCandle("SBER", 5, 106))
	if err != nil {
		t.Fatalf("OnCandle() error = %v", err)
	}

	got, err := values.QueryRange(context.Background(), "SBER", domain.Timeframe1Hour,
		[]string{"sma_timeperiod_2"}, 0, 10*hourMs)
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 point, got %d", len(got))
	}
	if got[0].BeginMs != 5*hourMs {
		t.Errorf("expected point at the new bar, got %d", got[0].BeginMs)
	}
	// sma(2) of closes 104, 106.
	if got[0].Value != 105 {
		t.Errorf("expected sma 105, got %v", got[0].Value)
	}

	evs := pub.all()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	upd := evs[0].(events.IndicatorsUpdated)
	if upd.BeginMs != 5*hourMs || len(upd.IndicatorKeys) != 1 {
		t.Errorf("unexpected event: %+v", upd)
	}
}

func TestIncremental_RejectsOutOfOrder(t *testing.T) {
	proc, candles, _, _ := newIncrementalFixture(t, []string{"sma_timeperiod_2"})
	seedHourly(candles, "SBER", 0, 5)

	ctx := context.Background()
	if err := proc.OnCandle(ctx, hourlyCandle("SBER", 5, 106)); err != nil {
		t.Fatalf("OnCandle() error = %v", err)
	}

	// Same bar again
	err := proc.OnCandle(ctx, hourlyCandle("SBER", 5, 106))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder for duplicate, got %v", err)
	}

	// Older bar
	err = proc.OnCandle(ctx, hourlyCandle("SBER", 3, 100))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder for older bar, got %v", err)
	}
}

func TestIncremental_BootstrapsHighWaterFromStore(t *testing.T) {
	proc, candles, values, _ := newIncrementalFixture(t, []string{"sma_timeperiod_2"})
	seedHourly(candles, "SBER", 0, 6)

	ctx := context.Background()
	// A previous process already wrote the point for bar 5.
	err := values.InsertBulk(ctx, []*domain.IndicatorValue{{
		Ticker: "SBER", Timeframe: domain.Timeframe1Hour, BeginMs: 5 * hourMs,
		IndicatorKey: "sma_timeperiod_2", ValueKey: "sma_timeperiod_2_value",
		Value: 104.5, Version: 1,
	}})
	if err != nil {
		t.Fatalf("InsertBulk() error = %v", err)
	}

	// A replayed candle at or before the stored bar is rejected even
	// though this processor has never seen the partition.
	err = proc.OnCandle(ctx, hourlyCandle("SBER", 5, 106))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder for covered bar, got %v", err)
	}

	if err := proc.OnCandle(ctx, hourlyCandle("SBER", 6, 107)); err != nil {
		t.Fatalf("OnCandle() error = %v", err)
	}
}

func TestIncremental_PartitionsAreIndependent(t *testing.T) {
	proc, candles, _, _ := newIncrementalFixture(t, []string{"sma_timeperiod_2"})
	seedHourly(candles, "SBER", 0, 10)
	seedHourly(candles, "GAZP", 0, 10)

	ctx := context.Background()
	if err := proc.OnCandle(ctx, hourlyCandle("SBER", 10, 100)); err != nil {
		t.Fatalf("OnCandle(SBER) error = %v", err)
	}
	// An earlier bar on a different ticker is fine.
	if err := proc.OnCandle(ctx, hourlyCandle("GAZP", 10, 100)); err != nil {
		t.Fatalf("OnCandle(GAZP) error = %v", err)
	}
}

func TestIncremental_WarmupBarWritesNothing(t *testing.T) {
	// No history at all: sma(2) is undefined on a single bar.
	proc, _, values, pub := newIncrementalFixture(t, []string{"sma_timeperiod_2"})

	err := proc.OnCandle(context.Background(), hourlyCandle("SBER", 0, 100))
	if err != nil {
		t.Fatalf("OnCandle() error = %v", err)
	}

	got, err := values.QueryRange(context.Background(), "SBER", domain.Timeframe1Hour,
		[]string{"sma_timeperiod_2"}, 0, 10*hourMs)
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no points during warmup, got %d", len(got))
	}
	if len(pub.all()) != 0 {
		t.Error("expected no event during warmup")
	}

	// High-water still advances: replaying the same bar is rejected.
	err = proc.OnCandle(context.Background(), hourlyCandle("SBER", 0, 100))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
}

func TestIncremental_AttachDropsOutOfOrderQuietly(t *testing.T) {
	proc, candles, values, _ := newIncrementalFixture(t, []string{"sma_timeperiod_2"})
	seedHourly(candles, "SBER", 0, 5)

	bus := events.NewBus()
	proc.Attach(bus)

	ctx := context.Background()
	mustPublish := func(bar int, close float64) {
		t.Helper()
		if err := bus.Publish(ctx, events.NewCandle{Candle: hourlyCandle("SBER", bar, close)}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	mustPublish(5, 106)
	mustPublish(5, 106) // duplicate, dropped
	mustPublish(6, 108)

	bus.Close()

	got, err := values.QueryRange(context.Background(), "SBER", domain.Timeframe1Hour,
		[]string{"sma_timeperiod_2"}, 0, 10*hourMs)
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
}

func TestIncremental_RequiresIndicators(t *testing.T) {
	_, err := NewIncrementalProcessor(IncrementalOptions{
		CandleStore:         memory.NewCandleStore(),
		IndicatorValueStore: memory.NewIndicatorValueStore(),
		Registry:            indicator.NewRegistry(),
	})
	if !errors.Is(err, domain.ErrFatalConfig) {
		t.Fatalf("expected ErrFatalConfig, got %v", err)
	}
}
