package storage

import (
	"context"

	"tradelab/internal/domain"
)

// CandleStore provides read-only access to candle storage. The engine
// never writes candles; ingestion is owned by an upstream system.
type CandleStore interface {
	// QueryRange retrieves candles for (ticker, timeframe) within
	// [start, end), ordered by begin timestamp ASC.
	QueryRange(ctx context.Context, ticker, timeframe string, startMs, endMs int64) ([]*domain.Candle, error)

	// CountRange returns the number of candles within [start, end).
	CountRange(ctx context.Context, ticker, timeframe string, startMs, endMs int64) (int64, error)

	// CountBefore returns the number of candles strictly before start.
	// Used to verify lookback history availability.
	CountBefore(ctx context.Context, ticker, timeframe string, startMs int64) (int64, error)

	// QueryBefore retrieves up to limit candles strictly before start,
	// ordered by begin timestamp ASC (the trailing window).
	QueryBefore(ctx context.Context, ticker, timeframe string, startMs int64, limit int64) ([]*domain.Candle, error)

	// LatestBegin returns the begin timestamp of the newest candle for
	// (ticker, timeframe). Returns ErrNotFound if no candles exist.
	LatestBegin(ctx context.Context, ticker, timeframe string) (int64, error)
}

// IndicatorValueStore provides access to indicator_values storage.
// Writes are at-least-once: re-inserting a natural key with a newer
// version is expected, and reads reconcile to the max-version row.
type IndicatorValueStore interface {
	// InsertBulk adds multiple points. Duplicate natural keys are not
	// an error; the versioned read path resolves them.
	InsertBulk(ctx context.Context, values []*domain.IndicatorValue) error

	// QueryRange retrieves reconciled points for (ticker, timeframe)
	// and the given indicator keys within [start, end), ordered by
	// begin timestamp ASC. Exactly one row per natural key.
	QueryRange(ctx context.Context, ticker, timeframe string, indicatorKeys []string, startMs, endMs int64) ([]*domain.IndicatorValue, error)

	// LatestBegin returns the newest begin timestamp stored for
	// (ticker, timeframe, indicatorKey). Returns ErrNotFound if none.
	LatestBegin(ctx context.Context, ticker, timeframe, indicatorKey string) (int64, error)
}

// StrategyStore provides access to strategies storage.
type StrategyStore interface {
	// Insert adds a new strategy. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, s *domain.StrategyConfig) error

	// GetByID retrieves a strategy by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, strategyID string) (*domain.StrategyConfig, error)

	// GetAll retrieves all strategies ordered by creation time ASC.
	GetAll(ctx context.Context) ([]*domain.StrategyConfig, error)
}

// JobStore provides access to jobs storage.
type JobStore interface {
	// Insert adds a new job in its initial state. Returns
	// ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, j *domain.Job) error

	// GetByID retrieves a job by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, jobID string) (*domain.Job, error)

	// GetByParentID retrieves all members of a batch, ordered by creation ASC.
	GetByParentID(ctx context.Context, parentID string) ([]*domain.Job, error)

	// UpdateState transitions a job between states. Returns
	// ErrInvalidInput if the transition is not allowed from the job's
	// current state, ErrNotFound if the job does not exist.
	UpdateState(ctx context.Context, jobID, fromState, toState, reason string, atMs int64) error
}

// BacktestResultStore provides access to backtest trades and metrics.
type BacktestResultStore interface {
	// SaveResult persists the trade list and metrics for a completed
	// job atomically. Returns ErrDuplicateKey if a result for the job
	// already exists.
	SaveResult(ctx context.Context, metrics *domain.BacktestMetrics, trades []*domain.Trade) error

	// GetMetrics retrieves metrics by job ID. Returns ErrNotFound if not exists.
	GetMetrics(ctx context.Context, jobID string) (*domain.BacktestMetrics, error)

	// GetTrades retrieves all trades for a job, ordered by entry time ASC.
	GetTrades(ctx context.Context, jobID string) ([]*domain.Trade, error)
}

// LockStore provides the atomic primitive the lock manager is built on.
// Implementations must make each method a single atomic step.
type LockStore interface {
	// TryAcquire grants the lock if no unexpired lock exists for the
	// key, or if the existing lock is held by the same holder (renew).
	// Returns false without blocking when another holder owns it.
	TryAcquire(ctx context.Context, key, holderID string, expiresAtMs, nowMs int64) (bool, error)

	// Release deletes the lock if held by holderID. Releasing a lock
	// that is not held is not an error.
	Release(ctx context.Context, key, holderID string) error

	// Get retrieves the current lock row for a key, expired or not.
	// Returns ErrNotFound if no row exists.
	Get(ctx context.Context, key string) (*domain.Lock, error)
}
