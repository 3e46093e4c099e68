// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	CandlesProcessed *prometheus.CounterVec
	CandlesRejected  *prometheus.CounterVec
	FeedReconnects   prometheus.Counter
	HighestBarSeen   *prometheus.GaugeVec

	// Pipeline metrics
	IndicatorPointsWritten prometheus.Counter
	BatchRunsTotal         *prometheus.CounterVec
	BatchDuration          prometheus.Histogram

	// Lock metrics
	LockAcquisitions *prometheus.CounterVec

	// Job metrics
	JobsFinished       *prometheus.CounterVec
	TradesSimulated    prometheus.Counter
	SimulationDuration prometheus.Histogram

	// Health metrics
	LastCandleTimestamp prometheus.Gauge
	UptimeSeconds       prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tradelab"
	}

	return &Metrics{
		// Ingestion metrics
		CandlesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "candles_processed_total",
			Help:      "Total number of candles processed by timeframe",
		}, []string{"timeframe"}),
		CandlesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "candles_rejected_total",
			Help:      "Total number of candles rejected by reason",
		}, []string{"reason"}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_reconnects_total",
			Help:      "Total number of market data feed reconnects",
		}),
		HighestBarSeen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_bar_seen_ms",
			Help:      "High-water mark bar timestamp per timeframe, Unix ms",
		}, []string{"timeframe"}),

		// Pipeline metrics
		IndicatorPointsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "indicator_points_written_total",
			Help:      "Total number of indicator points written",
		}),
		BatchRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_runs_total",
			Help:      "Total number of batch pipeline runs by status",
		}, []string{"status"}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Batch pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		// Lock metrics
		LockAcquisitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "acquisitions_total",
			Help:      "Total number of lock acquisition attempts by result",
		}, []string{"result"}),

		// Job metrics
		JobsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Total number of jobs reaching a terminal state",
		}, []string{"state", "reason"}),
		TradesSimulated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "trades_simulated_total",
			Help:      "Total number of trades simulated",
		}),
		SimulationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "simulation_duration_seconds",
			Help:      "Backtest simulation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Health metrics
		LastCandleTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_candle_timestamp",
			Help:      "Unix timestamp of the last candle processed",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCandleProcessed increments the candles processed counter.
func RecordCandleProcessed(timeframe string, beginMs int64) {
	DefaultMetrics.CandlesProcessed.WithLabelValues(timeframe).Inc()
	DefaultMetrics.HighestBarSeen.WithLabelValues(timeframe).Set(float64(beginMs))
	DefaultMetrics.LastCandleTimestamp.SetToCurrentTime()
}

// RecordCandleRejected increments the candles rejected counter.
func RecordCandleRejected(reason string) {
	DefaultMetrics.CandlesRejected.WithLabelValues(reason).Inc()
}

// RecordBatchRun records one batch pipeline run.
func RecordBatchRun(status string, durationSeconds float64, pointsWritten int) {
	DefaultMetrics.BatchRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.BatchDuration.Observe(durationSeconds)
	DefaultMetrics.IndicatorPointsWritten.Add(float64(pointsWritten))
}

// RecordLockAcquisition records a lock acquisition attempt.
func RecordLockAcquisition(result string) {
	DefaultMetrics.LockAcquisitions.WithLabelValues(result).Inc()
}

// RecordJobFinished records a job reaching a terminal state.
func RecordJobFinished(state, reason string) {
	DefaultMetrics.JobsFinished.WithLabelValues(state, reason).Inc()
}

// RecordSimulation records one completed simulation.
func RecordSimulation(durationSeconds float64, trades int) {
	DefaultMetrics.SimulationDuration.Observe(durationSeconds)
	DefaultMetrics.TradesSimulated.Add(float64(trades))
}

// RecordFeedReconnect increments the feed reconnect counter.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}
