package memory

import (
	"context"
	"errors"
	"testing"

	"tradelab/internal/domain"
	"tradelab/internal/storage"
)

func pendingJob(id string) *domain.Job {
	return &domain.Job{
		ID:          id,
		Kind:        domain.JobKindSingle,
		StrategyID:  "strat1",
		Ticker:      "BTCUSDT",
		Timeframe:   "1h",
		StartMs:     0,
		EndMs:       1000,
		State:       domain.JobStatePending,
		CreatedAtMs: 1,
	}
}

func TestJobStore_StateTransitions(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	if err := store.Insert(ctx, pendingJob("j1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	steps := []struct{ from, to string }{
		{domain.JobStatePending, domain.JobStateValidating},
		{domain.JobStateValidating, domain.JobStateRunning},
		{domain.JobStateRunning, domain.JobStateCompleted},
	}
	for _, s := range steps {
		if err := store.UpdateState(ctx, "j1", s.from, s.to, "", 100); err != nil {
			t.Fatalf("UpdateState %s -> %s failed: %v", s.from, s.to, err)
		}
	}

	got, err := store.GetByID(ctx, "j1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.State != domain.JobStateCompleted {
		t.Errorf("Expected COMPLETED, got %s", got.State)
	}
	if got.FinishedAtMs != 100 {
		t.Errorf("Expected finished timestamp set, got %d", got.FinishedAtMs)
	}
}

func TestJobStore_TerminalStateImmutable(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	job := pendingJob("j1")
	job.State = domain.JobStateFailed
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := store.UpdateState(ctx, "j1", domain.JobStateFailed, domain.JobStateRunning, "", 100)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for transition out of FAILED, got %v", err)
	}
}

func TestJobStore_StaleTransitionRejected(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	if err := store.Insert(ctx, pendingJob("j1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.UpdateState(ctx, "j1", domain.JobStatePending, domain.JobStateValidating, "", 50); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	// A second worker still believing the job is PENDING must lose.
	err := store.UpdateState(ctx, "j1", domain.JobStatePending, domain.JobStateValidating, "", 60)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for stale transition, got %v", err)
	}
}

func TestJobStore_PendingToFailedOnValidation(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	if err := store.Insert(ctx, pendingJob("j1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := store.UpdateState(ctx, "j1", domain.JobStatePending, domain.JobStateFailed, "data_unavailable", 10)
	if err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "j1")
	if got.State != domain.JobStateFailed || got.Reason != "data_unavailable" {
		t.Errorf("Expected FAILED/data_unavailable, got %s/%s", got.State, got.Reason)
	}
}

func TestJobStore_GetByParentID(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	for i, id := range []string{"m1", "m2", "m3"} {
		j := pendingJob(id)
		j.Kind = domain.JobKindBatchMember
		j.ParentID = "batch1"
		j.CreatedAtMs = int64(i + 1)
		if err := store.Insert(ctx, j); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := store.Insert(ctx, pendingJob("other")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	members, err := store.GetByParentID(ctx, "batch1")
	if err != nil {
		t.Fatalf("GetByParentID failed: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("Expected 3 members, got %d", len(members))
	}
	if members[0].ID != "m1" || members[2].ID != "m3" {
		t.Errorf("Members not in creation order: %s, %s, %s", members[0].ID, members[1].ID, members[2].ID)
	}
}
