package memory

import (
	"context"
	"sort"
	"sync"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// BacktestResultStore is an in-memory implementation of
// storage.BacktestResultStore.
type BacktestResultStore struct {
	mu      sync.RWMutex
	metrics map[string]*domain.BacktestMetrics // keyed by job ID
	trades  map[string][]*domain.Trade
}

// NewBacktestResultStore creates a new in-memory result store.
func NewBacktestResultStore() *BacktestResultStore {
	return &BacktestResultStore{
		metrics: make(map[string]*domain.BacktestMetrics),
		trades:  make(map[string][]*domain.Trade),
	}
}

// SaveResult persists metrics and trades for a job atomically.
func (s *BacktestResultStore) SaveResult(_ context.Context, metrics *domain.BacktestMetrics, trades []*domain.Trade) error {
	if metrics == nil || metrics.JobID == "" {
		return storage.ErrInvalidInput
	}
	for _, t := range trades {
		if t == nil || t.JobID != metrics.JobID {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.metrics[metrics.JobID]; exists {
		return storage.ErrDuplicateKey
	}

	metricsCopy := *metrics
	s.metrics[metrics.JobID] = &metricsCopy

	stored := make([]*domain.Trade, len(trades))
	for i, t := range trades {
		tradeCopy := *t
		stored[i] = &tradeCopy
	}
	s.trades[metrics.JobID] = stored

	return nil
}

// GetMetrics retrieves metrics by job ID.
func (s *BacktestResultStore) GetMetrics(_ context.Context, jobID string) (*domain.BacktestMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.metrics[jobID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	metricsCopy := *m
	return &metricsCopy, nil
}

// GetTrades retrieves all trades for a job, ordered by entry time ASC.
func (s *BacktestResultStore) GetTrades(_ context.Context, jobID string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.trades[jobID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	result := make([]*domain.Trade, len(stored))
	for i, t := range stored {
		tradeCopy := *t
		result[i] = &tradeCopy
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].EntryTimeMs < result[j].EntryTimeMs
	})

	return result, nil
}

var _ storage.BacktestResultStore = (*BacktestResultStore)(nil)
