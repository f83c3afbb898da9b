package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func newTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.NewTaskParams{
		CreatedBy:   "office",
		Signature:   "ab",
		Description: "Move cartons to dock",
		Urgency:     domain.Urgency15Min,
		Category:    domain.CategoryCarton,
	}, t0)
	require.NoError(t, err)
	return task
}

func ptr[T any](v T) *T { return &v }

func TestTaskStore_CreateCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newTask(t)

	require.NoError(t, s.Create(ctx, task))
	assert.ErrorIs(t, s.Create(ctx, task), store.ErrDuplicate)

	task.Description = "mutated after create"
	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Move cartons to dock", got.Description)

	got.Description = "mutated after read"
	again, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Move cartons to dock", again.Description)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	bad := newTask(t)
	bad.State = "archived"
	assert.ErrorIs(t, s.Create(ctx, bad), store.ErrInvalidEntity)
}

func TestTaskStore_ApplyTransition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newTask(t)
	require.NoError(t, s.Create(ctx, task))

	got, err := s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
		From: domain.StateRequested, To: domain.StateInProgress, At: t0.Add(time.Minute), ClaimFor: ptr("crown"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, got.State)
	assert.Equal(t, "crown", *got.AssignedTo)
	assert.Equal(t, t0.Add(time.Minute), got.StateChangedAt)
	assert.Equal(t, task.Version+1, got.Version)

	_, err = s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
		From: domain.StateRequested, To: domain.StateInProgress, At: t0.Add(2 * time.Minute),
	})
	assert.ErrorIs(t, err, store.ErrStateConflict)

	assigned, err := s.Assign(ctx, task.ID, "electric", t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, got.Version+1, assigned.Version)

	_, err = s.ApplyTransition(ctx, uuid.New(), store.TransitionUpdate{From: domain.StateRequested, To: domain.StatePaused})
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	// Rejection fields must accompany the rejected state.
	_, err = s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
		From: domain.StateInProgress, To: domain.StateRejected, At: t0,
	})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	unchanged, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, unchanged.State)
	assert.Equal(t, assigned.Version, unchanged.Version)
}

func TestTaskStore_ConcurrentClaimHasOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newTask(t)
	require.NoError(t, s.Create(ctx, task))

	const workers = 16
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
				From: domain.StateRequested, To: domain.StateInProgress, At: t0, ClaimFor: ptr("crown"),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, store.ErrStateConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestTaskStore_ListingAndDeletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()

	open := newTask(t)
	rejected := newTask(t)
	done := newTask(t)
	for _, task := range []*domain.Task{open, rejected, done} {
		require.NoError(t, s.Create(ctx, task))
	}

	expires := t0.Add(domain.RejectionTTL)
	_, err := s.ApplyTransition(ctx, rejected.ID, store.TransitionUpdate{
		From: domain.StateRequested, To: domain.StateRejected, At: t0,
		RejectionReason: ptr("wrong bay"), RejectionExpires: &expires,
	})
	require.NoError(t, err)
	_, err = s.ApplyTransition(ctx, done.ID, store.TransitionUpdate{
		From: domain.StateRequested, To: domain.StateCompleted, At: t0,
	})
	require.NoError(t, err)

	active, err := s.ListActive(ctx, expires)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	active, err = s.ListActive(ctx, expires.Add(time.Nanosecond))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)

	completed, err := s.ListByState(ctx, domain.StateCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)

	removed, err := s.DeleteCompleted(ctx, open.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	removed, err = s.DeleteCompleted(ctx, done.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	ids, err := s.DeleteExpiredRejections(ctx, expires)
	require.NoError(t, err)
	assert.Empty(t, ids, "a rejection is not hard-expired at its expiry instant")
	ids, err = s.DeleteExpiredRejections(ctx, expires.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{rejected.ID}, ids)

	assigned, err := s.Assign(ctx, open.ID, "electric", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "electric", *assigned.AssignedTo)
	assert.Equal(t, domain.StateRequested, assigned.State)
	_, err = s.Assign(ctx, done.ID, "crown", t0)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}
