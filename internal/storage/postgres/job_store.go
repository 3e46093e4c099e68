package postgres

import (
	"context"
	"fmt"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// JobStore implements storage.JobStore using PostgreSQL.
type JobStore struct {
	pool *Pool
}

// NewJobStore creates a new JobStore.
func NewJobStore(pool *Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JobStore = (*JobStore)(nil)

// Insert adds a new job. Returns ErrDuplicateKey if the ID exists.
func (s *JobStore) Insert(ctx context.Context, j *domain.Job) error {
	if j == nil || j.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO jobs (
			job_id, kind, parent_id,
			strategy_id, ticker, timeframe, start_ms, end_ms,
			state, reason, counts_towards_limit,
			created_at_ms, started_at_ms, finished_at_ms
		) VALUES (
			$1, $2, NULLIF($3, ''),
			$4, $5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14
		)
	`

	_, err := s.pool.Exec(ctx, query,
		j.ID, j.Kind, j.ParentID,
		j.StrategyID, j.Ticker, j.Timeframe, j.StartMs, j.EndMs,
		j.State, j.Reason, j.CountsTowardsLimit,
		j.CreatedAtMs, j.StartedAtMs, j.FinishedAtMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return classify("insert job", err)
	}
	return nil
}

// GetByID retrieves a job by its ID.
func (s *JobStore) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := jobSelect + ` WHERE job_id = $1`

	row := s.pool.QueryRow(ctx, query, jobID)
	j, err := scanJob(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, classify("get job by id", err)
	}
	return j, nil
}

// GetByParentID retrieves all members of a batch, ordered by creation ASC.
func (s *JobStore) GetByParentID(ctx context.Context, parentID string) ([]*domain.Job, error) {
	query := jobSelect + ` WHERE parent_id = $1 ORDER BY created_at_ms ASC, job_id ASC`

	rows, err := s.pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, classify("query jobs by parent", err)
	}
	defer rows.Close()

	var result []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		result = append(result, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return result, nil
}

// UpdateState transitions a job between states. The WHERE clause on the
// current state makes the transition a compare-and-swap: a concurrent
// worker that lost the race updates zero rows.
func (s *JobStore) UpdateState(ctx context.Context, jobID, fromState, toState, reason string, atMs int64) error {
	if !domain.ValidTransition(fromState, toState) {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE jobs
		SET state = $1,
			reason = $2,
			started_at_ms = CASE WHEN $3 = 'PENDING' THEN $4 ELSE started_at_ms END,
			finished_at_ms = CASE WHEN $1 IN ('COMPLETED', 'FAILED') THEN $4 ELSE finished_at_ms END
		WHERE job_id = $5 AND state = $3
	`

	tag, err := s.pool.Exec(ctx, query, toState, reason, fromState, atMs, jobID)
	if err != nil {
		return classify("update job state", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing job from a stale transition.
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE job_id = $1)`, jobID).Scan(&exists)
		if err != nil {
			return classify("check job exists", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrInvalidInput
	}
	return nil
}

const jobSelect = `
	SELECT job_id, kind, COALESCE(parent_id, ''),
		strategy_id, ticker, timeframe, start_ms, end_ms,
		state, reason, counts_towards_limit,
		created_at_ms, started_at_ms, finished_at_ms
	FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.Kind, &j.ParentID,
		&j.StrategyID, &j.Ticker, &j.Timeframe, &j.StartMs, &j.EndMs,
		&j.State, &j.Reason, &j.CountsTowardsLimit,
		&j.CreatedAtMs, &j.StartedAtMs, &j.FinishedAtMs,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
