package memory

import (
	"context"
	"sort"
	"sync"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// StrategyStore is an in-memory implementation of storage.StrategyStore.
type StrategyStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StrategyConfig // keyed by strategy ID
}

// NewStrategyStore creates a new in-memory strategy store.
func NewStrategyStore() *StrategyStore {
	return &StrategyStore{
		data: make(map[string]*domain.StrategyConfig),
	}
}

// Insert adds a new strategy. Returns ErrDuplicateKey if the ID exists.
func (s *StrategyStore) Insert(_ context.Context, cfg *domain.StrategyConfig) error {
	if cfg == nil || cfg.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[cfg.ID]; exists {
		return storage.ErrDuplicateKey
	}

	cfgCopy := *cfg
	s.data[cfg.ID] = &cfgCopy
	return nil
}

// GetByID retrieves a strategy by its ID.
func (s *StrategyStore) GetByID(_ context.Context, strategyID string) (*domain.StrategyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, exists := s.data[strategyID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cfgCopy := *cfg
	return &cfgCopy, nil
}

// GetAll retrieves all strategies ordered by creation time ASC.
func (s *StrategyStore) GetAll(_ context.Context) ([]*domain.StrategyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.StrategyConfig, 0, len(s.data))
	for _, cfg := range s.data {
		cfgCopy := *cfg
		result = append(result, &cfgCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAtMs != result[j].CreatedAtMs {
			return result[i].CreatedAtMs < result[j].CreatedAtMs
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

var _ storage.StrategyStore = (*StrategyStore)(nil)
