package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestLockStore_MutualExclusion(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "res1", "holderA", 10_000, 1000)
	if err != nil || !ok {
		t.Fatalf("First acquire failed: ok=%v err=%v", ok, err)
	}

	ok, err = store.TryAcquire(ctx, "res1", "holderB", 10_000, 1000)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if ok {
		t.Error("Second holder must be denied while lease is valid")
	}
}

func TestLockStore_ExpiredLockTakeover(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	if ok, _ := store.TryAcquire(ctx, "res1", "holderA", 5000, 1000); !ok {
		t.Fatal("First acquire failed")
	}

	// Lease expired at 5000; a new holder may take over afterwards.
	ok, err := store.TryAcquire(ctx, "res1", "holderB", 20_000, 6000)
	if err != nil || !ok {
		t.Fatalf("Takeover of expired lock failed: ok=%v err=%v", ok, err)
	}
}

func TestLockStore_RenewBySameHolder(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	if ok, _ := store.TryAcquire(ctx, "res1", "holderA", 5000, 1000); !ok {
		t.Fatal("Acquire failed")
	}
	ok, err := store.TryAcquire(ctx, "res1", "holderA", 9000, 2000)
	if err != nil || !ok {
		t.Fatalf("Renew by holder failed: ok=%v err=%v", ok, err)
	}

	l, err := store.Get(ctx, "res1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if l.ExpiresAtMs != 9000 {
		t.Errorf("Expected extended expiry 9000, got %d", l.ExpiresAtMs)
	}
}

func TestLockStore_ReleaseOnlyByHolder(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	if ok, _ := store.TryAcquire(ctx, "res1", "holderA", 10_000, 1000); !ok {
		t.Fatal("Acquire failed")
	}

	// A non-holder release is a no-op.
	if err := store.Release(ctx, "res1", "holderB"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if ok, _ := store.TryAcquire(ctx, "res1", "holderC", 10_000, 1000); ok {
		t.Error("Lock should still be held after non-holder release")
	}

	if err := store.Release(ctx, "res1", "holderA"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if ok, _ := store.TryAcquire(ctx, "res1", "holderC", 10_000, 1000); !ok {
		t.Error("Lock should be free after holder release")
	}
}

func TestLockStore_ConcurrentAcquireGrantsOne(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	const workers = 32
	var granted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-start
			ok, err := store.TryAcquire(ctx, "res1", string(rune('a'+id)), 60_000, 1000)
			if err != nil {
				t.Errorf("TryAcquire failed: %v", err)
				return
			}
			if ok {
				granted.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if got := granted.Load(); got != 1 {
		t.Errorf("Expected exactly 1 grant, got %d", got)
	}
}
