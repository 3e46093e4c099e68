// Package main runs one backtest end to end: load a strategy, compute
// the indicators it needs over the requested range, simulate, and write
// the report artifacts to disk.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"tradelab/internal/backtest"
	"tradelab/internal/config"
	"tradelab/internal/domain"
	"tradelab/internal/indicator"
	"tradelab/internal/job"
	"tradelab/internal/lock"
	"tradelab/internal/logger"
	"tradelab/internal/pipeline"
	"tradelab/internal/reporting"
	"tradelab/internal/storage"
	"tradelab/internal/storage/clickhouse"
	"tradelab/internal/storage/migrations"
	"tradelab/internal/storage/postgres"
	"tradelab/internal/strategy"
)

// strategyFile is the on-disk JSON shape of a strategy definition.
type strategyFile struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	EntryBuy    json.RawMessage `json:"entry_buy"`
	EntrySell   json.RawMessage `json:"entry_sell"`
	ExitLong    json.RawMessage `json:"exit_long"`
	ExitShort   json.RawMessage `json:"exit_short"`
	Execution   struct {
		InitialBalance  float64 `json:"initial_balance"`
		CommissionPct   float64 `json:"commission_pct"`
		PositionSizePct float64 `json:"position_size_pct"`
		LotSize         float64 `json:"lot_size"`
	} `json:"execution"`
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional, env vars override)")
	strategyPath := flag.String("strategy-file", "", "Path to JSON strategy definition")
	strategyID := flag.String("strategy-id", "", "ID of an already stored strategy")
	ticker := flag.String("ticker", "", "Instrument ticker (required)")
	timeframe := flag.String("timeframe", "1h", "Candle timeframe")
	startStr := flag.String("start", "", "Range start, RFC3339 (required)")
	endStr := flag.String("end", "", "Range end, RFC3339, exclusive (required)")
	outputDir := flag.String("output-dir", "output", "Directory for report.md and trades.csv")
	skipCompute := flag.Bool("skip-compute", false, "Assume indicator values are already computed")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	if *ticker == "" || *startStr == "" || *endStr == "" {
		fmt.Fprintln(os.Stderr, "--ticker, --start and --end are required")
		os.Exit(1)
	}
	if (*strategyPath == "") == (*strategyID == "") {
		fmt.Fprintln(os.Stderr, "exactly one of --strategy-file or --strategy-id is required")
		os.Exit(1)
	}

	start, err := time.Parse(time.RFC3339, *startStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse --start: %v\n", err)
		os.Exit(1)
	}
	end, err := time.Parse(time.RFC3339, *endStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse --end: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, runParams{
		strategyPath: *strategyPath,
		strategyID:   *strategyID,
		ticker:       *ticker,
		timeframe:    *timeframe,
		startMs:      start.UnixMilli(),
		endMs:        end.UnixMilli(),
		outputDir:    *outputDir,
		skipCompute:  *skipCompute,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "\nbacktest failed: %v\n", err)
		os.Exit(1)
	}
}

type runParams struct {
	strategyPath string
	strategyID   string
	ticker       string
	timeframe    string
	startMs      int64
	endMs        int64
	outputDir    string
	skipCompute  bool
}

func run(ctx context.Context, cfg *config.Config, p runParams) error {
	pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
	if err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	defer conn.Close()

	candleStore := clickhouse.NewCandleStore(conn)
	valueStore := clickhouse.NewIndicatorValueStore(conn)
	strategyStore := postgres.NewStrategyStore(pool)
	jobStore := postgres.NewJobStore(pool)
	resultStore := postgres.NewBacktestResultStore(pool)
	lockStore := postgres.NewLockStore(pool)

	// Fail before any work if the candle data cannot cover the range.
	latest, err := candleStore.LatestBegin(ctx, p.ticker, p.timeframe)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no candles stored for %s %s", p.ticker, p.timeframe)
	}
	if err != nil {
		return fmt.Errorf("check candle data: %w", err)
	}
	if latest < p.startMs {
		return fmt.Errorf("candle data for %s %s ends at %d, before the requested start %d",
			p.ticker, p.timeframe, latest, p.startMs)
	}

	registry := indicator.NewRegistry()
	bar := initProgressBar(4)

	// 1. Strategy
	strat, err := loadStrategy(ctx, strategyStore, p)
	if err != nil {
		return err
	}
	bar.Add(1)

	// 2. Indicator values over the range
	if !p.skipCompute {
		if err := computeIndicators(ctx, p, strat, registry, pipeline.NewBatchRunner(pipeline.BatchRunnerOptions{
			CandleStore:         candleStore,
			IndicatorValueStore: valueStore,
			Registry:            registry,
			Locks:               lock.NewManager(lockStore, lock.WithTTL(cfg.Lock.TTL)),
		})); err != nil {
			return err
		}
	}
	bar.Add(1)

	// 3. The job itself
	coordinator := job.NewCoordinator(job.CoordinatorOptions{
		JobStore:      jobStore,
		StrategyStore: strategyStore,
		ResultStore:   resultStore,
		CandleStore:   candleStore,
		Engine: backtest.NewEngine(backtest.EngineOptions{
			CandleStore:         candleStore,
			IndicatorValueStore: valueStore,
			Registry:            registry,
		}),
		Registry:   registry,
		JobTimeout: cfg.Jobs.Timeout,
	})

	j := &domain.Job{
		StrategyID: strat.ID,
		Ticker:     p.ticker,
		Timeframe:  p.timeframe,
		StartMs:    p.startMs,
		EndMs:      p.endMs,
	}
	if err := coordinator.Submit(ctx, j); err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	if err := coordinator.Execute(ctx, j.ID); err != nil {
		return fmt.Errorf("run job %s: %w", j.ID, err)
	}
	bar.Add(1)

	// 4. Report
	generator := reporting.NewGenerator(jobStore, strategyStore, resultStore)
	report, err := generator.Generate(ctx, j.ID)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	if err := generator.WriteFiles(report, p.outputDir); err != nil {
		return err
	}
	bar.Add(1)

	m := report.Metrics
	fmt.Printf("\n\nJob %s completed\n", j.ID)
	fmt.Printf("  Trades:        %d (%.2f%% win rate)\n", m.TotalTrades, m.WinRatePct)
	fmt.Printf("  Net profit:    %.2f (%.2f%%)\n", m.NetProfit, m.NetProfitPct)
	fmt.Printf("  Final balance: %.2f\n", m.FinalBalance)
	fmt.Printf("  Max drawdown:  %.2f%%\n", m.MaxDrawdownPct)
	fmt.Printf("  Report:        %s/report.md\n", p.outputDir)
	fmt.Printf("  Trade log:     %s/trades.csv\n", p.outputDir)
	return nil
}

// loadStrategy reads the strategy from a file or from the store. A file
// strategy is persisted so the job can reference it; re-running with an
// ID that already exists keeps the stored version.
func loadStrategy(ctx context.Context, store storage.StrategyStore, p runParams) (*domain.StrategyConfig, error) {
	if p.strategyID != "" {
		strat, err := store.GetByID(ctx, p.strategyID)
		if err != nil {
			return nil, fmt.Errorf("load strategy %s: %w", p.strategyID, err)
		}
		return strat, nil
	}

	data, err := os.ReadFile(p.strategyPath)
	if err != nil {
		return nil, fmt.Errorf("read strategy file: %w", err)
	}
	var sf strategyFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse strategy file: %w", err)
	}
	if sf.ID == "" {
		return nil, fmt.Errorf("%w: strategy file needs an id", domain.ErrFatalConfig)
	}

	strat := &domain.StrategyConfig{
		ID:          sf.ID,
		Name:        sf.Name,
		Description: sf.Description,
		EntryBuy:    sf.EntryBuy,
		EntrySell:   sf.EntrySell,
		ExitLong:    sf.ExitLong,
		ExitShort:   sf.ExitShort,
		Execution: domain.ExecutionParams{
			InitialBalance:  sf.Execution.InitialBalance,
			CommissionPct:   sf.Execution.CommissionPct,
			PositionSizePct: sf.Execution.PositionSizePct,
			LotSize:         sf.Execution.LotSize,
		},
	}
	if err := strat.Execution.Validate(); err != nil {
		return nil, err
	}
	if _, err := strategy.Compile(strat); err != nil {
		return nil, fmt.Errorf("compile strategy %s: %w", strat.ID, err)
	}

	err = store.Insert(ctx, strat)
	if errors.Is(err, storage.ErrDuplicateKey) {
		logger.Warnf("strategy %s already stored, using the stored version", strat.ID)
		return store.GetByID(ctx, strat.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("store strategy %s: %w", strat.ID, err)
	}
	return strat, nil
}

// computeIndicators runs the batch pipeline for every indicator the
// strategy references so the engine finds its series in place.
func computeIndicators(ctx context.Context, p runParams, strat *domain.StrategyConfig, registry *indicator.Registry, runner *pipeline.BatchRunner) error {
	compiled, err := strategy.Compile(strat)
	if err != nil {
		return fmt.Errorf("compile strategy %s: %w", strat.ID, err)
	}
	defs, err := registry.DefinitionsForValueKeys(compiled.RequiredValueKeys())
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}

	keys := make([]string, len(defs))
	for i, def := range defs {
		keys[i] = def.BaseKey
	}
	res, err := runner.Run(ctx, pipeline.BatchRequest{
		Ticker:        p.ticker,
		Timeframe:     p.timeframe,
		StartMs:       p.startMs,
		EndMs:         p.endMs,
		IndicatorKeys: keys,
	})
	if err != nil {
		return fmt.Errorf("compute indicators: %w", err)
	}
	logger.Infof("computed %d indicator points for %v", res.PointsWritten, keys)
	return nil
}

func initProgressBar(steps int) *progressbar.ProgressBar {
	return progressbar.NewOptions(steps,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
