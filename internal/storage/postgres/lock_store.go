package postgres

import (
	"context"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

// LockStore implements storage.LockStore using PostgreSQL. A single
// conditional upsert makes acquisition atomic: the insert wins the race
// on the primary key, and the ON CONFLICT branch only steals rows whose
// lease has expired or that the same holder is renewing.
type LockStore struct {
	pool *Pool
}

// NewLockStore creates a new LockStore.
func NewLockStore(pool *Pool) *LockStore {
	return &LockStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LockStore = (*LockStore)(nil)

// TryAcquire grants the lock if free, expired, or held by the same
// holder. Never blocks on contention.
func (s *LockStore) TryAcquire(ctx context.Context, key, holderID string, expiresAtMs, nowMs int64) (bool, error) {
	if key == "" || holderID == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO locks (resource_key, holder_id, expires_at_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource_key) DO UPDATE
		SET holder_id = EXCLUDED.holder_id,
			expires_at_ms = EXCLUDED.expires_at_ms
		WHERE locks.holder_id = EXCLUDED.holder_id
			OR locks.expires_at_ms <= $4
	`

	tag, err := s.pool.Exec(ctx, query, key, holderID, expiresAtMs, nowMs)
	if err != nil {
		return false, classify("acquire lock", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release deletes the lock if held by holderID.
func (s *LockStore) Release(ctx context.Context, key, holderID string) error {
	query := `DELETE FROM locks WHERE resource_key = $1 AND holder_id = $2`

	if _, err := s.pool.Exec(ctx, query, key, holderID); err != nil {
		return classify("release lock", err)
	}
	return nil
}

// Get retrieves the current lock row for a key, expired or not.
func (s *LockStore) Get(ctx context.Context, key string) (*domain.Lock, error) {
	query := `SELECT resource_key, holder_id, expires_at_ms FROM locks WHERE resource_key = $1`

	var l domain.Lock
	err := s.pool.QueryRow(ctx, query, key).Scan(&l.ResourceKey, &l.HolderID, &l.ExpiresAtMs)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, classify("get lock", err)
	}
	return &l, nil
}
