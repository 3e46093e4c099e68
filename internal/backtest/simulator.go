package backtest

import (
	"context"
	"math"

	"tradelab/internal/domain"
	"tradelab/internal/strategy"
)

// position is the single open position during a simulation run.
type position struct {
	direction       string
	entryTimeMs     int64
	entryPrice      float64
	quantity        float64
	entryCommission float64 // charged only when the position was opened by a flip
}

// Simulate replays the signal masks bar by bar and returns the
// completed trades in chronological order. At most one position is
// open at any time. Fills happen at the close of the signal bar.
//
// Commission is charged on the exit notional of every trade. A flip
// additionally charges commission on the entry notional of the
// position it opens, since the flip is a forced market order rather
// than a planned entry.
func Simulate(ctx context.Context, jobID string, exec domain.ExecutionParams, f *strategy.Frame, sig *Signals) ([]*domain.Trade, error) {
	capital := exec.InitialBalance
	rate := exec.CommissionPct

	var pos *position
	var trades []*domain.Trade

	closePosition := func(i int, reason string) {
		price := f.Close[i]
		gross := (price - pos.entryPrice) * pos.quantity
		if pos.direction == domain.DirectionShort {
			gross = -gross
		}
		commission := rate*price*pos.quantity + pos.entryCommission
		net := gross - commission
		capital += net

		trades = append(trades, &domain.Trade{
			JobID:        jobID,
			Direction:    pos.direction,
			EntryTimeMs:  pos.entryTimeMs,
			EntryPrice:   pos.entryPrice,
			ExitTimeMs:   f.BeginMs[i],
			ExitPrice:    price,
			ExitReason:   reason,
			Quantity:     pos.quantity,
			Commission:   commission,
			GrossProfit:  gross,
			NetProfit:    net,
			ProfitPct:    net / (pos.entryPrice * pos.quantity) * 100,
			BalanceAfter: capital,
		})
		pos = nil
	}

	openPosition := func(i int, direction string, flip bool) {
		price := f.Close[i]
		qty := positionQuantity(capital, exec.PositionSizePct, price, exec.LotSize)
		if qty <= 0 {
			return
		}
		var entryCommission float64
		if flip {
			entryCommission = rate * price * qty
		}
		pos = &position{
			direction:       direction,
			entryTimeMs:     f.BeginMs[i],
			entryPrice:      price,
			quantity:        qty,
			entryCommission: entryCommission,
		}
	}

	n := f.Len()
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if pos != nil {
			switch pos.direction {
			case domain.DirectionLong:
				if sig.ExitLong[i] {
					closePosition(i, domain.ExitReasonSignal)
				} else if sig.EntrySell[i] {
					closePosition(i, domain.ExitReasonFlip)
					openPosition(i, domain.DirectionShort, true)
				}
			case domain.DirectionShort:
				if sig.ExitShort[i] {
					closePosition(i, domain.ExitReasonSignal)
				} else if sig.EntryBuy[i] {
					closePosition(i, domain.ExitReasonFlip)
					openPosition(i, domain.DirectionLong, true)
				}
			}
			continue
		}

		// Flat. Simultaneous buy and sell signals are ambiguous and
		// open nothing.
		buy, sell := sig.EntryBuy[i], sig.EntrySell[i]
		switch {
		case buy && sell:
		case buy:
			openPosition(i, domain.DirectionLong, false)
		case sell:
			openPosition(i, domain.DirectionShort, false)
		}
	}

	if pos != nil && n > 0 {
		closePosition(n-1, domain.ExitReasonEndOfData)
	}

	return trades, nil
}

// positionQuantity sizes a position as a whole number of lots from the
// current capital. Returns 0 when capital cannot cover a single lot.
func positionQuantity(capital, sizePct, price, lotSize float64) float64 {
	if price <= 0 || lotSize <= 0 {
		return 0
	}
	target := capital * sizePct / 100
	lots := math.Floor(target / (price * lotSize))
	if lots <= 0 {
		return 0
	}
	return lots * lotSize
}
