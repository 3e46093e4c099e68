// Package main runs the tradelab engine: WebSocket market data ingress,
// the incremental and batch indicator pipelines, and the backtest job
// coordinator, all wired together over the in-process event bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradelab/internal/backtest"
	"tradelab/internal/config"
	"tradelab/internal/events"
	"tradelab/internal/indicator"
	"tradelab/internal/job"
	"tradelab/internal/lock"
	"tradelab/internal/logger"
	"tradelab/internal/observability"
	"tradelab/internal/pipeline"
	"tradelab/internal/storage/clickhouse"
	"tradelab/internal/storage/migrations"
	"tradelab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional, env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		sig := <-sigCh
		logger.Infof("received signal %v, initiating graceful shutdown", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Errorf("received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Errorf("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Errorf("engine error: %v", err)
		os.Exit(1)
	}
	logger.Infof("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Metrics endpoint
	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Infof("metrics server listening on %s", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server error: %v", err)
			}
		}()
	}

	// Postgres: strategies, jobs, results, locks
	pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse: candles, indicator values
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

	registry := indicator.NewRegistry()
	locks := lock.NewManager(lockStore, lock.WithTTL(cfg.Lock.TTL))

	bus := events.NewBus()
	defer bus.Close()

	// Incremental pipeline consumes closed candles from the bus
	if len(cfg.Pipeline.IndicatorKeys) > 0 {
		incremental, err := pipeline.NewIncrementalProcessor(pipeline.IncrementalOptions{
			CandleStore:         candleStore,
			IndicatorValueStore: valueStore,
			Registry:            registry,
			IndicatorKeys:       cfg.Pipeline.IndicatorKeys,
			Publisher:           bus,
		})
		if err != nil {
			return fmt.Errorf("create incremental processor: %w", err)
		}
		incremental.Attach(bus)
	} else {
		logger.Warnf("no indicator keys configured, incremental pipeline disabled")
	}

	// Batch pipeline serves historical compute requests
	batchRunner := pipeline.NewBatchRunner(pipeline.BatchRunnerOptions{
		CandleStore:         candleStore,
		IndicatorValueStore: valueStore,
		Registry:            registry,
		Locks:               locks,
		Publisher:           bus,
	})
	bus.Subscribe(events.TopicBatchComputeRequested, func(ctx context.Context, e events.Event) error {
		req := e.(events.BatchComputeRequested)
		_, err := batchRunner.Run(ctx, pipeline.BatchRequest{
			Ticker:        req.Ticker,
			Timeframe:     req.Timeframe,
			StartMs:       req.StartMs,
			EndMs:         req.EndMs,
			IndicatorKeys: req.IndicatorKeys,
		})
		return err
	})

	// Backtest coordinator serves job requests
	engine := backtest.NewEngine(backtest.EngineOptions{
		CandleStore:         candleStore,
		IndicatorValueStore: valueStore,
		Registry:            registry,
	})
	coordinator := job.NewCoordinator(job.CoordinatorOptions{
		JobStore:      jobStore,
		StrategyStore: strategyStore,
		ResultStore:   resultStore,
		CandleStore:   candleStore,
		Engine:        engine,
		Registry:      registry,
		Publisher:     bus,
		JobTimeout:    cfg.Jobs.Timeout,
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
	})
	bus.Subscribe(events.TopicBacktestJobRequested, func(ctx context.Context, e events.Event) error {
		return coordinator.Execute(ctx, e.(events.BacktestJobRequested).JobID)
	})

	// Market data feed
	if cfg.Feed.Endpoint != "" {
		ingress, err := events.NewWSIngress(ctx, cfg.Feed.Endpoint, events.Subscription{
			Tickers:    cfg.Feed.Tickers,
			Timeframes: cfg.Feed.Timeframes,
		}, bus, nil)
		if err != nil {
			return fmt.Errorf("connect market data feed: %w", err)
		}
		defer ingress.Close()
		logger.Infof("market data feed connected: %s", cfg.Feed.Endpoint)
	} else {
		logger.Warnf("no feed endpoint configured, running without live candles")
	}

	logger.Infof("engine started")
	<-ctx.Done()
	return ctx.Err()
}
