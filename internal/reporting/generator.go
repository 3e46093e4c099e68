package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// Generator assembles reports for finished jobs from stored data.
type Generator struct {
	jobs       storage.JobStore
	strategies storage.StrategyStore
	results    storage.BacktestResultStore
	now        func() time.Time // injectable for deterministic output
}

// NewGenerator creates a report generator.
func NewGenerator(jobs storage.JobStore, strategies storage.StrategyStore, results storage.BacktestResultStore) *Generator {
	return &Generator{
		jobs:       jobs,
		strategies: strategies,
		results:    results,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads the job, its strategy and its stored result. Only
// COMPLETED jobs have results to report on.
func (g *Generator) Generate(ctx context.Context, jobID string) (*Report, error) {
	job, err := g.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.State != domain.JobStateCompleted {
		return nil, fmt.Errorf("%w: job %s is %s, nothing to report", domain.ErrDataUnavailable, jobID, job.State)
	}

	strat, err := g.strategies.GetByID(ctx, job.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("load strategy %s: %w", job.StrategyID, err)
	}

	metrics, err := g.results.GetMetrics(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load metrics for job %s: %w", jobID, err)
	}

	trades, err := g.results.GetTrades(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load trades for job %s: %w", jobID, err)
	}

	return &Report{
		GeneratedAt: g.now(),
		Job:         job,
		Strategy:    strat,
		Metrics:     metrics,
		Trades:      trades,
	}, nil
}

// WriteFiles renders the report into dir as report.md and trades.csv,
// creating the directory if needed.
func (g *Generator) WriteFiles(r *Report, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}

	mdPath := filepath.Join(dir, "report.md")
	if err := os.WriteFile(mdPath, []byte(RenderMarkdown(r)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", mdPath, err)
	}

	csvPath := filepath.Join(dir, "trades.csv")
	if err := os.WriteFile(csvPath, []byte(RenderTradesCSV(r.Trades)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", csvPath, err)
	}

	return nil
}
