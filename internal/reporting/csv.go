package reporting

import (
	"fmt"
	"strings"

	"tradelab/internal/domain"
)

// RenderTradesCSV renders the trade log as a CSV string. Trades are
// emitted in the order given, one row per completed round trip.
func RenderTradesCSV(trades []*domain.Trade) string {
	var sb strings.Builder

	// Header
	sb.WriteString("entry_time_ms,exit_time_ms,direction,entry_price,exit_price,quantity,")
	sb.WriteString("gross_profit,commission,net_profit,profit_pct,balance_after,exit_reason\n")

	// Rows
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%d,%d,%s,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%s\n",
			t.EntryTimeMs,
			t.ExitTimeMs,
			t.Direction,
			t.EntryPrice,
			t.ExitPrice,
			t.Quantity,
			t.GrossProfit,
			t.Commission,
			t.NetProfit,
			t.ProfitPct,
			t.BalanceAfter,
			t.ExitReason,
		))
	}

	return sb.String()
}
