// Package reporting renders completed backtest jobs as human readable
// artifacts: a Markdown run summary and a CSV trade log.
package reporting

import (
	"time"

	"tradelab/internal/domain"
)

// Report bundles everything needed to render one completed job.
type Report struct {
	GeneratedAt time.Time

	Job      *domain.Job
	Strategy *domain.StrategyConfig
	Metrics  *domain.BacktestMetrics
	Trades   []*domain.Trade
}
