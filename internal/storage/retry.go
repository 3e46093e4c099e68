package storage

import (
	"context"
	"errors"
	"time"

	"tradelab/internal/domain"
)

// RetryPolicy bounds transient failure retries at the adapter boundary.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap for the doubled delay
}

// DefaultRetryPolicy is used by backends unless overridden.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 4,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// Retry runs op, retrying with exponential backoff while the returned
// error is classified transient. Non-transient errors and context
// cancellation stop immediately; the last error is surfaced unchanged
// once attempts are exhausted.
func Retry(ctx context.Context, p RetryPolicy, op func() error) error {
	if p.MaxAttempts < 1 {
		p = DefaultRetryPolicy
	}
	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, domain.ErrTransientIO) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
