// Package lock provides lease-based mutual exclusion over a LockStore.
// Acquisition is non-blocking: contention is reported to the caller
// immediately instead of queueing. Leases expire on their own if the
// holder dies, so a crashed worker never wedges a resource.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradelab/internal/domain"
	"tradelab/internal/observability"
	"tradelab/internal/storage"
)

// DefaultTTL bounds how long a dead holder can block a resource.
const DefaultTTL = 5 * time.Minute

// Manager acquires and maintains leases on named resources.
type Manager struct {
	store storage.LockStore
	ttl   time.Duration
	now   func() time.Time // injectable for tests
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the lease duration.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a lock manager over the given store.
func NewManager(store storage.LockStore, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire attempts to take the lock for resourceKey. On contention it
// returns ErrLockDenied immediately. On success the returned lease is
// kept alive by a background renewal loop until Release is called or
// ctx is cancelled.
func (m *Manager) Acquire(ctx context.Context, resourceKey string) (*Lease, error) {
	holderID := uuid.NewString()
	nowMs := m.now().UnixMilli()

	ok, err := m.store.TryAcquire(ctx, resourceKey, holderID, nowMs+m.ttl.Milliseconds(), nowMs)
	if err != nil {
		observability.RecordLockAcquisition("error")
		return nil, fmt.Errorf("acquire %s: %w", resourceKey, err)
	}
	if !ok {
		observability.RecordLockAcquisition("denied")
		return nil, fmt.Errorf("acquire %s: %w", resourceKey, domain.ErrLockDenied)
	}
	observability.RecordLockAcquisition("granted")

	renewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &Lease{
		manager:     m,
		resourceKey: resourceKey,
		holderID:    holderID,
		lost:        make(chan struct{}),
		cancelRenew: cancel,
	}
	go l.renewLoop(renewCtx, m.ttl/3)
	return l, nil
}

// Lease is a held lock. The holder must watch Lost and abort its work
// if the lease slips away (renewal failing past expiry).
type Lease struct {
	manager     *Manager
	resourceKey string
	holderID    string
	cancelRenew context.CancelFunc

	lost     chan struct{}
	lostOnce sync.Once
}

// ResourceKey returns the locked resource.
func (l *Lease) ResourceKey() string { return l.resourceKey }

// Lost is closed when the lease could not be renewed before expiry.
// Work guarded by the lease must stop once this fires.
func (l *Lease) Lost() <-chan struct{} { return l.lost }

// Release stops renewal and frees the lock. Safe to call more than
// once; releasing an already lost lease is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	l.cancelRenew()
	if err := l.manager.store.Release(ctx, l.resourceKey, l.holderID); err != nil {
		return fmt.Errorf("release %s: %w", l.resourceKey, err)
	}
	return nil
}

// renewLoop extends the lease at a fraction of the TTL. A renewal
// refused by the store means another holder took over after expiry;
// transient store errors are tolerated until the lease actually runs
// out.
func (l *Lease) renewLoop(ctx context.Context, interval time.Duration) {
	m := l.manager
	expiresAtMs := m.now().UnixMilli() + m.ttl.Milliseconds()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nowMs := m.now().UnixMilli()
			if nowMs >= expiresAtMs {
				l.markLost()
				return
			}
			ok, err := m.store.TryAcquire(ctx, l.resourceKey, l.holderID, nowMs+m.ttl.Milliseconds(), nowMs)
			if err != nil {
				continue
			}
			if !ok {
				l.markLost()
				return
			}
			expiresAtMs = nowMs + m.ttl.Milliseconds()
		}
	}
}

func (l *Lease) markLost() {
	l.lostOnce.Do(func() { close(l.lost) })
}
