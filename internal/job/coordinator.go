// Package job drives backtest jobs through their lifecycle: claiming,
// validation, simulation, persistence and terminal transitions.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tradelab/internal/backtest"
	"tradelab/internal/domain"
	"tradelab/internal/events"
	"tradelab/internal/indicator"
	"tradelab/internal/logger"
	"tradelab/internal/observability"
	"tradelab/internal/pipeline"
	"tradelab/internal/storage"
	"tradelab/internal/strategy"
)

// Reason strings outside the error taxonomy.
const (
	reasonCancelled = "cancelled"
	reasonTimeout   = "timeout"
)

// Default execution limits.
const (
	DefaultJobTimeout    = 30 * time.Minute
	DefaultMaxConcurrent = 4
)

// Coordinator owns the job state machine. All transitions go through
// the store's compare-and-swap update, so two workers racing on one
// job cannot both run it.
type Coordinator struct {
	jobs       storage.JobStore
	strategies storage.StrategyStore
	results    storage.BacktestResultStore
	engine     *backtest.Engine
	validator  *pipeline.Validator
	registry   *indicator.Registry
	publisher  events.Publisher
	timeout    time.Duration
	maxWorkers int
	now        func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// CoordinatorOptions contains configuration for creating a Coordinator.
type CoordinatorOptions struct {
	JobStore      storage.JobStore
	StrategyStore storage.StrategyStore
	ResultStore   storage.BacktestResultStore
	CandleStore   storage.CandleStore
	Engine        *backtest.Engine
	Registry      *indicator.Registry
	Publisher     events.Publisher // optional
	JobTimeout    time.Duration    // optional, defaults to DefaultJobTimeout
	MaxConcurrent int              // optional, bounds batch fan-out
	Clock         func() time.Time // optional, defaults to time.Now
}

// NewCoordinator creates a job coordinator.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	maxWorkers := opts.MaxConcurrent
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxConcurrent
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		jobs:       opts.JobStore,
		strategies: opts.StrategyStore,
		results:    opts.ResultStore,
		engine:     opts.Engine,
		validator:  pipeline.NewValidator(opts.CandleStore),
		registry:   opts.Registry,
		publisher:  opts.Publisher,
		timeout:    timeout,
		maxWorkers: maxWorkers,
		now:        now,
		running:    make(map[string]context.CancelFunc),
	}
}

// Submit persists a new job in PENDING. An empty ID is assigned.
func (c *Coordinator) Submit(ctx context.Context, j *domain.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Kind == "" {
		j.Kind = domain.JobKindSingle
	}
	j.State = domain.JobStatePending
	j.CreatedAtMs = c.now().UnixMilli()
	return c.jobs.Insert(ctx, j)
}

// SubmitBatch persists one PENDING member per strategy, all sharing a
// parent ID, and returns the parent ID.
func (c *Coordinator) SubmitBatch(ctx context.Context, template *domain.Job, strategyIDs []string) (string, error) {
	if len(strategyIDs) == 0 {
		return "", fmt.Errorf("%w: batch with no strategies", domain.ErrFatalConfig)
	}
	parentID := uuid.NewString()
	for _, sid := range strategyIDs {
		member := *template
		member.ID = uuid.NewString()
		member.Kind = domain.JobKindBatchMember
		member.ParentID = parentID
		member.StrategyID = sid
		member.State = domain.JobStatePending
		member.CreatedAtMs = c.now().UnixMilli()
		if err := c.jobs.Insert(ctx, &member); err != nil {
			return "", err
		}
	}
	return parentID, nil
}

// Execute runs one PENDING job to a terminal state. The returned error
// reports infrastructure trouble only; a job failing validation or
// simulation is a normal outcome recorded on the job itself.
func (c *Coordinator) Execute(ctx context.Context, jobID string) error {
	j, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	// Claim. Losing the race means another worker owns the job.
	if err := c.transition(ctx, jobID, domain.JobStatePending, domain.JobStateValidating, ""); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	c.mu.Lock()
	c.running[jobID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.running, jobID)
		c.mu.Unlock()
	}()

	compiled, lookback, err := c.prepare(runCtx, j)
	if err != nil {
		return c.fail(ctx, jobID, domain.JobStateValidating, err)
	}

	if err := c.validator.Validate(runCtx, j.Ticker, j.Timeframe, j.StartMs, j.EndMs, lookback); err != nil {
		return c.fail(ctx, jobID, domain.JobStateValidating, err)
	}

	if err := c.transition(ctx, jobID, domain.JobStateValidating, domain.JobStateRunning, ""); err != nil {
		return err
	}

	started := time.Now()
	result, err := c.engine.Run(runCtx, j, compiled)
	if err != nil {
		return c.fail(ctx, jobID, domain.JobStateRunning, err)
	}
	observability.RecordSimulation(time.Since(started).Seconds(), len(result.Trades))

	if err := c.results.SaveResult(ctx, result.Metrics, result.Trades); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return c.fail(ctx, jobID, domain.JobStateRunning, err)
		}
		logger.Warnf("result for job %s already persisted", jobID)
	}

	if err := c.transition(ctx, jobID, domain.JobStateRunning, domain.JobStateCompleted, ""); err != nil {
		return err
	}
	observability.RecordJobFinished(domain.JobStateCompleted, "")
	c.publish(ctx, events.JobCompleted{JobID: jobID})
	return nil
}

// ExecuteBatch runs every still-pending member of a batch. Members run
// concurrently up to the worker bound; one member failing its backtest
// does not stop the others.
func (c *Coordinator) ExecuteBatch(ctx context.Context, parentID string) error {
	members, err := c.jobs.GetByParentID(ctx, parentID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("%w: batch %s has no members", storage.ErrNotFound, parentID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for _, m := range members {
		if m.State != domain.JobStatePending {
			continue
		}
		jobID := m.ID
		g.Go(func() error {
			if err := c.Execute(gctx, jobID); err != nil {
				logger.Errorf("batch %s member %s: %v", parentID, jobID, err)
			}
			// Member outcomes live on the jobs; never abort siblings.
			return nil
		})
	}
	return g.Wait()
}

// Cancel stops a job. A running job's context is cancelled and the
// in-flight worker records the terminal state; a still-pending job is
// failed directly.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) error {
	c.mu.Lock()
	cancel, inFlight := c.running[jobID]
	c.mu.Unlock()
	if inFlight {
		cancel()
		return nil
	}

	j, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if domain.IsTerminal(j.State) {
		return nil
	}
	if err := c.transition(ctx, jobID, j.State, domain.JobStateFailed, reasonCancelled); err != nil {
		return err
	}
	c.publish(ctx, events.JobFailed{JobID: jobID, Reason: reasonCancelled})
	return nil
}

// prepare loads and compiles the strategy and computes the combined
// lookback requirement of its indicators.
func (c *Coordinator) prepare(ctx context.Context, j *domain.Job) (*strategy.Compiled, int64, error) {
	cfg, err := c.strategies.GetByID(ctx, j.StrategyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w: strategy %s not found", domain.ErrFatalConfig, j.StrategyID)
		}
		return nil, 0, err
	}

	compiled, err := strategy.Compile(cfg)
	if err != nil {
		return nil, 0, err
	}

	defs, err := c.registry.DefinitionsForValueKeys(compiled.RequiredValueKeys())
	if err != nil {
		return nil, 0, err
	}
	var lookback int64
	for _, d := range defs {
		if int64(d.Lookback) > lookback {
			lookback = int64(d.Lookback)
		}
	}
	return compiled, lookback, nil
}

// fail records a terminal FAILED state with the reason derived from
// the error. Context errors map to cancellation reasons rather than
// taxonomy classes.
func (c *Coordinator) fail(ctx context.Context, jobID, fromState string, cause error) error {
	reason := domain.FailureReason(cause)
	switch {
	case errors.Is(cause, context.Canceled):
		reason = reasonCancelled
	case errors.Is(cause, context.DeadlineExceeded):
		reason = reasonTimeout
	}

	logger.Warnf("job %s failed: reason=%s err=%v", jobID, reason, cause)
	if err := c.transition(ctx, jobID, fromState, domain.JobStateFailed, reason); err != nil {
		return err
	}
	observability.RecordJobFinished(domain.JobStateFailed, reason)
	c.publish(ctx, events.JobFailed{JobID: jobID, Reason: reason})
	return nil
}

func (c *Coordinator) transition(ctx context.Context, jobID, from, to, reason string) error {
	return c.jobs.UpdateState(ctx, jobID, from, to, reason, c.now().UnixMilli())
}

func (c *Coordinator) publish(ctx context.Context, e events.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, e); err != nil {
		logger.Warnf("publish %s: %v", e.Topic(), err)
	}
}
