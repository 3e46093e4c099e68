package memory

import (
	"context"
	"testing"

	"tradelab/internal/domain"
)

func TestIndicatorValueStore_ReconcilesToMaxVersion(t *testing.T) {
	store := NewIndicatorValueStore()
	ctx := context.Background()

	point := func(version int64, value float64) *domain.IndicatorValue {
		return &domain.IndicatorValue{
			Ticker:       "BTCUSDT",
			Timeframe:    "1h",
			BeginMs:      1000,
			IndicatorKey: "rsi_timeperiod_14",
			ValueKey:     "rsi_timeperiod_14_value",
			Value:        value,
			Version:      version,
		}
	}

	// Writes land out of version order, as concurrent batch runs would.
	if err := store.InsertBulk(ctx, []*domain.IndicatorValue{point(300, 55.5)}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.IndicatorValue{point(100, 50.0), point(200, 52.5)}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.QueryRange(ctx, "BTCUSDT", "1h", []string{"rsi_timeperiod_14"}, 0, 2000)
	if err != nil {
		t.Fatalf("QueryRange failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected exactly one reconciled row, got %d", len(got))
	}
	if got[0].Version != 300 || got[0].Value != 55.5 {
		t.Errorf("Expected max-version row (300, 55.5), got (%d, %f)", got[0].Version, got[0].Value)
	}
}

func TestIndicatorValueStore_QueryRangeFilters(t *testing.T) {
	store := NewIndicatorValueStore()
	ctx := context.Background()

	values := []*domain.IndicatorValue{
		{Ticker: "BTCUSDT", Timeframe: "1h", BeginMs: 1000, IndicatorKey: "rsi_timeperiod_14", ValueKey: "rsi_timeperiod_14_value", Value: 1, Version: 1},
		{Ticker: "BTCUSDT", Timeframe: "1h", BeginMs: 2000, IndicatorKey: "sma_timeperiod_30", ValueKey: "sma_timeperiod_30_value", Value: 2, Version: 1},
		{Ticker: "BTCUSDT", Timeframe: "4h", BeginMs: 1000, IndicatorKey: "rsi_timeperiod_14", ValueKey: "rsi_timeperiod_14_value", Value: 3, Version: 1},
		{Ticker: "BTCUSDT", Timeframe: "1h", BeginMs: 9000, IndicatorKey: "rsi_timeperiod_14", ValueKey: "rsi_timeperiod_14_value", Value: 4, Version: 1},
	}
	if err := store.InsertBulk(ctx, values); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.QueryRange(ctx, "BTCUSDT", "1h",
		[]string{"rsi_timeperiod_14", "sma_timeperiod_30"}, 0, 5000)
	if err != nil {
		t.Fatalf("QueryRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(got))
	}
	if got[0].BeginMs != 1000 || got[1].BeginMs != 2000 {
		t.Errorf("Rows not ordered by begin: %d, %d", got[0].BeginMs, got[1].BeginMs)
	}
}

func TestIndicatorValueStore_LatestBegin(t *testing.T) {
	store := NewIndicatorValueStore()
	ctx := context.Background()

	_, err := store.LatestBegin(ctx, "BTCUSDT", "1h", "rsi_timeperiod_14")
	if err == nil {
		t.Error("Expected error for empty store")
	}

	err = store.InsertBulk(ctx, []*domain.IndicatorValue{
		{Ticker: "BTCUSDT", Timeframe: "1h", BeginMs: 1000, IndicatorKey: "rsi_timeperiod_14", ValueKey: "rsi_timeperiod_14_value", Version: 1},
		{Ticker: "BTCUSDT", Timeframe: "1h", BeginMs: 7000, IndicatorKey: "rsi_timeperiod_14", ValueKey: "rsi_timeperiod_14_value", Version: 1},
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	latest, err := store.LatestBegin(ctx, "BTCUSDT", "1h", "rsi_timeperiod_14")
	if err != nil {
		t.Fatalf("LatestBegin failed: %v", err)
	}
	if latest != 7000 {
		t.Errorf("Expected 7000, got %d", latest)
	}
}
