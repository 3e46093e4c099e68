// Package events defines the typed events flowing through the engine
// and the contracts for publishing and consuming them.
package events

import (
	"context"

	"tradelab/internal/domain"
)

// Topics. One topic per event type; delivery within a topic is ordered.
const (
	TopicNewCandle             = "candle.new"
	TopicBatchComputeRequested = "pipeline.batch.requested"
	TopicBacktestJobRequested  = "job.requested"
	TopicIndicatorsUpdated     = "indicators.updated"
	TopicJobCompleted          = "job.completed"
	TopicJobFailed             = "job.failed"
)

// Event is anything that can travel over the bus.
type Event interface {
	Topic() string
}

// NewCandle announces a closed candle arriving from the market data feed.
type NewCandle struct {
	Candle domain.Candle `json:"candle"`
}

func (NewCandle) Topic() string { return TopicNewCandle }

// BatchComputeRequested asks the pipeline to compute indicators over a
// historical range.
type BatchComputeRequested struct {
	Ticker        string   `json:"ticker"`
	Timeframe     string   `json:"timeframe"`
	StartMs       int64    `json:"start_ms"`
	EndMs         int64    `json:"end_ms"`
	IndicatorKeys []string `json:"indicator_keys"`
}

func (BatchComputeRequested) Topic() string { return TopicBatchComputeRequested }

// BacktestJobRequested asks the coordinator to run a submitted job.
type BacktestJobRequested struct {
	JobID string `json:"job_id"`
}

func (BacktestJobRequested) Topic() string { return TopicBacktestJobRequested }

// IndicatorsUpdated announces freshly written indicator points.
type IndicatorsUpdated struct {
	Ticker        string   `json:"ticker"`
	Timeframe     string   `json:"timeframe"`
	BeginMs       int64    `json:"begin_ms"`
	IndicatorKeys []string `json:"indicator_keys"`
}

func (IndicatorsUpdated) Topic() string { return TopicIndicatorsUpdated }

// JobCompleted announces a job reaching COMPLETED.
type JobCompleted struct {
	JobID string `json:"job_id"`
}

func (JobCompleted) Topic() string { return TopicJobCompleted }

// JobFailed announces a job reaching FAILED with its reason code.
type JobFailed struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

func (JobFailed) Topic() string { return TopicJobFailed }

// Publisher emits events. Implementations must not block indefinitely.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Handler consumes one event. A handler error is logged by the bus and
// does not stop delivery to other handlers.
type Handler func(ctx context.Context, e Event) error
