package reporting

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RenderMarkdown renders the run summary as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", r.Strategy.Name))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Run parameters
	sb.WriteString("## Run\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Job ID | %s |\n", r.Job.ID))
	sb.WriteString(fmt.Sprintf("| Strategy | %s (%s) |\n", r.Strategy.Name, r.Strategy.ID))
	sb.WriteString(fmt.Sprintf("| Ticker | %s |\n", r.Job.Ticker))
	sb.WriteString(fmt.Sprintf("| Timeframe | %s |\n", r.Job.Timeframe))
	sb.WriteString(fmt.Sprintf("| Range | %s to %s |\n", formatMs(r.Job.StartMs), formatMs(r.Job.EndMs)))
	sb.WriteString(fmt.Sprintf("| Initial Balance | %.2f |\n", r.Strategy.Execution.InitialBalance))
	sb.WriteString(fmt.Sprintf("| Commission | %.4f%% per leg |\n", r.Strategy.Execution.CommissionPct*100))
	sb.WriteString(fmt.Sprintf("| Position Size | %.0f%% |\n", r.Strategy.Execution.PositionSizePct))
	sb.WriteString(fmt.Sprintf("| Lot Size | %g |\n", r.Strategy.Execution.LotSize))
	sb.WriteString("\n")

	// Performance metrics
	m := r.Metrics
	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", m.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Winning / Losing | %d / %d |\n", m.WinningTrades, m.LosingTrades))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", m.WinRatePct))
	sb.WriteString(fmt.Sprintf("| Final Balance | %.2f |\n", m.FinalBalance))
	sb.WriteString(fmt.Sprintf("| Net Profit | %.2f (%.2f%%) |\n", m.NetProfit, m.NetProfitPct))
	sb.WriteString(fmt.Sprintf("| Total Commission | %.2f |\n", m.TotalCommission))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %s |\n", formatRatio(m.ProfitFactor)))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", m.MaxDrawdownPct))
	sb.WriteString(fmt.Sprintf("| Sharpe Ratio | %.4f |\n", m.SharpeRatio))
	sb.WriteString(fmt.Sprintf("| Avg Win / Avg Loss | %.2f%% / %.2f%% |\n", m.AvgWinPct, m.AvgLossPct))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Wins / Losses | %d / %d |\n", m.MaxConsecutiveWins, m.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Stability Score | %.4f |\n", m.StabilityScore))
	sb.WriteString("\n")

	// Trades
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| Entry | Exit | Dir | Entry Px | Exit Px | Qty | Net | Pct | Balance | Reason |\n")
		sb.WriteString("|-------|------|-----|----------|---------|-----|-----|-----|---------|--------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.4f | %.4f | %g | %.2f | %.2f%% | %.2f | %s |\n",
				formatMs(t.EntryTimeMs), formatMs(t.ExitTimeMs), t.Direction,
				t.EntryPrice, t.ExitPrice, t.Quantity,
				t.NetProfit, t.ProfitPct, t.BalanceAfter, t.ExitReason))
		}
	} else {
		sb.WriteString("No trades executed.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// formatRatio keeps an infinite profit factor readable in the table.
func formatRatio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.4f", v)
}
