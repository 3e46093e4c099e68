package memory

import (
	"context"
	"sort"
	"sync"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// JobStore is an in-memory implementation of storage.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Job // keyed by job ID
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		data: make(map[string]*domain.Job),
	}
}

// Insert adds a new job. Returns ErrDuplicateKey if the ID exists.
func (s *JobStore) Insert(_ context.Context, j *domain.Job) error {
	if j == nil || j.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[j.ID]; exists {
		return storage.ErrDuplicateKey
	}

	jobCopy := *j
	s.data[j.ID] = &jobCopy
	return nil
}

// GetByID retrieves a job by its ID.
func (s *JobStore) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, exists := s.data[jobID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	jobCopy := *j
	return &jobCopy, nil
}

// GetByParentID retrieves all members of a batch, ordered by creation ASC.
func (s *JobStore) GetByParentID(_ context.Context, parentID string) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Job
	for _, j := range s.data {
		if j.ParentID == parentID {
			jobCopy := *j
			result = append(result, &jobCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAtMs != result[j].CreatedAtMs {
			return result[i].CreatedAtMs < result[j].CreatedAtMs
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// UpdateState transitions a job between states. The compare against
// fromState makes concurrent transitions race-safe: only one caller
// observes the expected current state.
func (s *JobStore) UpdateState(_ context.Context, jobID, fromState, toState, reason string, atMs int64) error {
	if !domain.ValidTransition(fromState, toState) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.data[jobID]
	if !exists {
		return storage.ErrNotFound
	}
	if j.State != fromState {
		return storage.ErrInvalidInput
	}

	j.State = toState
	j.Reason = reason
	if fromState == domain.JobStatePending {
		j.StartedAtMs = atMs
	}
	if domain.IsTerminal(toState) {
		j.FinishedAtMs = atMs
	}
	return nil
}

var _ storage.JobStore = (*JobStore)(nil)
