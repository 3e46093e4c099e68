package backtest

import (
	"context"
	"math"
	"testing"

	"tradelab/internal/domain"
	"tradelab/internal/strategy"
)

func testFrame(closes []float64) *strategy.Frame {
	candles := make([]*domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = &domain.Candle{
			Ticker:    "SBER",
			Timeframe: domain.Timeframe1Hour,
			BeginMs:   int64(i) * 3_600_000,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return strategy.NewFrame(candles, nil)
}

func emptySignals(n int) *Signals {
	return &Signals{
		EntryBuy:  make([]bool, n),
		EntrySell: make([]bool, n),
		ExitLong:  make([]bool, n),
		ExitShort: make([]bool, n),
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSimulate_LongRoundTrip(t *testing.T) {
	// Capital 100000, position size 100%, lot 10, price 50:
	// floor(100000 / (50*10)) * 10 = 2000 units.
	// Exit at 55 with 0.1% commission on the exit notional:
	// gross = 5 * 2000 = 10000, commission = 0.001 * 55 * 2000 = 110,
	// net = 9890, net over entry notional = 9890 / 100000 = 9.89%.
	f := testFrame([]float64{50, 52, 55})
	sig := emptySignals(3)
	sig.EntryBuy[0] = true
	sig.ExitLong[2] = true

	exec := domain.ExecutionParams{
		InitialBalance:  100_000,
		CommissionPct:   0.001,
		PositionSizePct: 100,
		LotSize:         10,
	}

	trades, err := Simulate(context.Background(), "job-1", exec, f, sig)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	tr := trades[0]
	if tr.Direction != domain.DirectionLong {
		t.Errorf("expected LONG, got %s", tr.Direction)
	}
	if tr.Quantity != 2000 {
		t.Errorf("expected quantity 2000, got %v", tr.Quantity)
	}
	if !approxEqual(tr.GrossProfit, 10000) {
		t.Errorf("expected gross 10000, got %v", tr.GrossProfit)
	}
	if !approxEqual(tr.Commission, 110) {
		t.Errorf("expected commission 110, got %v", tr.Commission)
	}
	if !approxEqual(tr.NetProfit, 9890) {
		t.Errorf("expected net 9890, got %v", tr.NetProfit)
	}
	if !approxEqual(tr.ProfitPct, 9.89) {
		t.Errorf("expected profit pct 9.89, got %v", tr.ProfitPct)
	}
	if tr.ExitReason != domain.ExitReasonSignal {
		t.Errorf("expected SIGNAL exit, got %s", tr.ExitReason)
	}
	if !approxEqual(tr.BalanceAfter, 109_890) {
		t.Errorf("expected balance 109890, got %v", tr.BalanceAfter)
	}
}

func TestSimulate_ShortRoundTrip(t *testing.T) {
	f := testFrame([]float64{100, 90})
	sig := emptySignals(2)
	sig.EntrySell[0] = true
	sig.ExitShort[1] = true

	exec := domain.ExecutionParams{
		InitialBalance:  10_000,
		CommissionPct:   0,
		PositionSizePct: 100,
		LotSize:         1,
	}

	trades, err := Simulate(context.Background(), "job-1", exec, f, sig)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	tr := trades[0]
	if tr.Direction != domain.DirectionShort {
		t.Errorf("expected SHORT, got %s", tr.Direction)
	}
	// 100 units, price falls 100 -> 90.
	if !approxEqual(tr.GrossProfit, 1000) {
		t.Errorf("expected gross 1000, got %v", tr.GrossProfit)
	}
	if !approxEqual(tr.BalanceAfter, 11_000) {
		t.Errorf("expected balance 11000, got %v", tr.BalanceAfter)
	}
}

func TestSimulate_FlipChargesBothLegs(t *testing.T) {
	// Assumption: a flip pays commission on its opening leg as well as
	// the usual exit leg, since the reversal is a forced market order.
	// Planned entries while flat pay no entry commission.
	f := testFrame([]float64{10, 12, 11})
	sig := emptySignals(3)
	sig.EntryBuy[0] = true
	sig.EntrySell[1] = true // flips long -> short
	sig.ExitShort[2] = true

	exec := domain.ExecutionParams{
		InitialBalance:  1_000,
		CommissionPct:   0.01,
		PositionSizePct: 100,
		LotSize:         1,
	}

	trades, err := Simulate(context.Background(), "job-1", exec, f, sig)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	first := trades[0]
	if first.ExitReason != domain.ExitReasonFlip {
		t.Errorf("expected FLIP exit, got %s", first.ExitReason)
	}
	// The reversal is atomic: the long closes and the short opens on
	// the same bar.
	if first.ExitTimeMs != 1*3_600_000 {
		t.Errorf("expected flip exit at bar 1, got %d", first.ExitTimeMs)
	}
	if trades[1].EntryTimeMs != first.ExitTimeMs {
		t.Errorf("flip legs split across bars: close %d, open %d",
			first.ExitTimeMs, trades[1].EntryTimeMs)
	}
	// 100 units long at 10, flipped at 12: exit leg only.
	if !approxEqual(first.Commission, 0.01*12*100) {
		t.Errorf("expected commission 12, got %v", first.Commission)
	}

	second := trades[1]
	if second.Direction != domain.DirectionShort {
		t.Errorf("expected SHORT, got %s", second.Direction)
	}
	// Short opened by the flip at 12 after capital grew to
	// 1000 + (200 - 12) = 1188: floor(1188/12) = 99 units.
	if second.Quantity != 99 {
		t.Errorf("expected quantity 99, got %v", second.Quantity)
	}
	// Exit leg at 11 plus the flip's entry leg at 12.
	wantCommission := 0.01*11*99 + 0.01*12*99
	if !approxEqual(second.Commission, wantCommission) {
		t.Errorf("expected commission %v, got %v", wantCommission, second.Commission)
	}
}

func TestSimulate_EndOfDataClosesPosition(t *testing.T) {
	f := testFrame([]float64{10, 11, 12})
	sig := emptySignals(3)
	sig.EntryBuy[0] = true

	exec := domain.ExecutionParams{
		InitialBalance:  1_000,
		CommissionPct:   0,
		PositionSizePct: 100,
		LotSize:         1,
	}

	trades, err := Simulate(context.Background(), "job-1", exec, f, sig)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].ExitReason != domain.ExitReasonEndOfData {
		t.Errorf("expected END_OF_DATA exit, got %s", trades[0].ExitReason)
	}
	if trades[0].ExitTimeMs != f.BeginMs[2] {
		t.Errorf("expected exit at last bar, got %d", trades[0].ExitTimeMs)
	}
}

func TestSimulate_AmbiguousSignalsOpenNothing(t *testing.T) {
	f := testFrame([]float64{10, 11})
	sig := emptySignals(2)
	sig.EntryBuy[0] = true
	sig.EntrySell[0] = true

	exec := domain.ExecutionParams{
		InitialBalance:  1_000,
		CommissionPct:   0,
		PositionSizePct: 100,
		LotSize:         1,
	}

	trades, err := Simulate(context.Background(), "job-1", exec, f, sig)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
}

func TestSimulate_SkipsEntryWhenCapitalBelowOneLot(t *testing.T) {
	// One lot costs 50*100 = 5000 but only 40% of 1000 is available.
	f := testFrame([]float64{50, 55})
	sig := emptySignals(2)
	sig.EntryBuy[0] = true

	exec := domain.ExecutionParams{
		InitialBalance:  1_000,
		CommissionPct:   0,
		PositionSizePct: 50,
		LotSize:         100,
	}

	trades, err := Simulate(context.Background(), "job-1", exec, f, sig)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
}

func TestSimulate_ExitSignalTakesPriorityOverFlip(t *testing.T) {
	f := testFrame([]float64{10, 12})
	sig := emptySignals(2)
	sig.EntryBuy[0] = true
	sig.ExitLong[1] = true
	sig.EntrySell[1] = true

	exec := domain.ExecutionParams{
		InitialBalance:  1_000,
		CommissionPct:   0,
		PositionSizePct: 100,
		LotSize:         1,
	}

	trades, err := Simulate(context.Background(), "job-1", exec, f, sig)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].ExitReason != domain.ExitReasonSignal {
		t.Errorf("expected SIGNAL exit, got %s", trades[0].ExitReason)
	}
}

func TestSimulate_Cancellation(t *testing.T) {
	f := testFrame([]float64{10, 11, 12})
	sig := emptySignals(3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := domain.ExecutionParams{
		InitialBalance:  1_000,
		CommissionPct:   0,
		PositionSizePct: 100,
		LotSize:         1,
	}

	_, err := Simulate(ctx, "job-1", exec, f, sig)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPositionQuantity_LotRounding(t *testing.T) {
	// 150% of 100000 is 150000; one lot at 70*10 = 700;
	// floor(150000/700) = 214 lots = 2140 units.
	got := positionQuantity(100_000, 150, 70, 10)
	if got != 2140 {
		t.Errorf("expected 2140, got %v", got)
	}

	if q := positionQuantity(100, 100, 500, 1); q != 0 {
		t.Errorf("expected 0 when capital cannot cover a lot, got %v", q)
	}
}
