package memory

import (
	"context"
	"sync"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// LockStore is an in-memory implementation of storage.LockStore. The
// mutex makes each operation a single atomic step, matching what the
// Postgres backend achieves with a conditional upsert.
type LockStore struct {
	mu   sync.Mutex
	data map[string]*domain.Lock // keyed by resource key
}

// NewLockStore creates a new in-memory lock store.
func NewLockStore() *LockStore {
	return &LockStore{
		data: make(map[string]*domain.Lock),
	}
}

// TryAcquire grants the lock if free, expired, or already held by the
// same holder. Never blocks.
func (s *LockStore) TryAcquire(_ context.Context, key, holderID string, expiresAtMs, nowMs int64) (bool, error) {
	if key == "" || holderID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[key]
	if exists && existing.HolderID != holderID && existing.ExpiresAtMs > nowMs {
		return false, nil
	}

	s.data[key] = &domain.Lock{
		ResourceKey: key,
		HolderID:    holderID,
		ExpiresAtMs: expiresAtMs,
	}
	return true, nil
}

// Release deletes the lock if held by holderID.
func (s *LockStore) Release(_ context.Context, key, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[key]
	if exists && existing.HolderID == holderID {
		delete(s.data, key)
	}
	return nil
}

// Get retrieves the current lock row for a key, expired or not.
func (s *LockStore) Get(_ context.Context, key string) (*domain.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.data[key]
	if !exists {
		return nil, storage.ErrNotFound
	}

	lockCopy := *l
	return &lockCopy, nil
}

var _ storage.LockStore = (*LockStore)(nil)
