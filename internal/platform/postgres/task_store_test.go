//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/platform/postgres"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/cpcomms/dispatch/internal/testdb"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func newTestTask(t *testing.T, urgency domain.Urgency) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.NewTaskParams{
		CreatedBy:   "office",
		Signature:   "jd",
		Description: "Bring two pallets to bay 4",
		Urgency:     urgency,
		Category:    domain.CategoryPallets,
	}, baseTime)
	require.NoError(t, err)
	return task
}

func strPtr(s string) *string { return &s }

func TestPostgresTaskStore_CreateAndGet(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresTaskStore(tx, nil)
		task := newTestTask(t, domain.Urgency15Min)

		require.NoError(t, s.Create(ctx, task))

		got, err := s.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, "J.D", got.Signature)
		assert.Equal(t, domain.StateRequested, got.State)
		assert.True(t, task.Deadline.Equal(got.Deadline))
		assert.Nil(t, got.AssignedTo)
		assert.Nil(t, got.RejectionReason)

		err = s.Create(ctx, task)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		s := postgres.NewPostgresTaskStore(tx, nil)
		_, err := s.GetByID(context.Background(), uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestPostgresTaskStore_ApplyTransition(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresTaskStore(tx, nil)
		task := newTestTask(t, domain.UrgencyNow)
		require.NoError(t, s.Create(ctx, task))

		at := baseTime.Add(time.Minute)
		got, err := s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
			From:     domain.StateRequested,
			To:       domain.StateInProgress,
			At:       at,
			ClaimFor: strPtr("crown"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StateInProgress, got.State)
		assert.True(t, at.Equal(got.StateChangedAt))
		assert.Equal(t, int64(2), got.Version)
		require.NotNil(t, got.AssignedTo)
		assert.Equal(t, "crown", *got.AssignedTo)

		// The observed state is stale now.
		_, err = s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
			From:     domain.StateRequested,
			To:       domain.StateInProgress,
			At:       at,
			ClaimFor: strPtr("electric"),
		})
		assert.ErrorIs(t, err, store.ErrStateConflict)

		// A claim never overwrites an existing assignee.
		paused, err := s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
			From: domain.StateInProgress, To: domain.StatePaused, At: at.Add(time.Minute),
		})
		require.NoError(t, err)
		resumed, err := s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
			From: paused.State, To: domain.StateInProgress, At: at.Add(2 * time.Minute), ClaimFor: strPtr("electric"),
		})
		require.NoError(t, err)
		assert.Equal(t, "crown", *resumed.AssignedTo)
		assert.Equal(t, int64(4), resumed.Version)

		_, err = s.ApplyTransition(ctx, uuid.New(), store.TransitionUpdate{
			From: domain.StateRequested, To: domain.StateInProgress, At: at,
		})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestPostgresTaskStore_RejectionVisibility(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresTaskStore(tx, nil)

		rejected := newTestTask(t, domain.UrgencyToday)
		open := newTestTask(t, domain.UrgencyNow)
		require.NoError(t, s.Create(ctx, rejected))
		require.NoError(t, s.Create(ctx, open))

		expires := baseTime.Add(domain.RejectionTTL)
		_, err := s.ApplyTransition(ctx, rejected.ID, store.TransitionUpdate{
			From:             domain.StateRequested,
			To:               domain.StateRejected,
			At:               baseTime,
			RejectionReason:  strPtr("No driver on shift"),
			RejectionExpires: &expires,
		})
		require.NoError(t, err)

		active, err := s.ListActive(ctx, expires)
		require.NoError(t, err)
		assert.Len(t, active, 2, "a rejection is visible up to and including its expiry instant")

		active, err = s.ListActive(ctx, expires.Add(time.Second))
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, open.ID, active[0].ID)

		hidden, err := s.ListByState(ctx, domain.StateRejected)
		require.NoError(t, err)
		require.Len(t, hidden, 1, "soft-expired rows stay stored until swept")

		ids, err := s.DeleteExpiredRejections(ctx, expires.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{rejected.ID}, ids)

		_, err = s.GetByID(ctx, rejected.ID)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestPostgresTaskStore_AssignAndDeleteCompleted(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresTaskStore(tx, nil)
		task := newTestTask(t, domain.Urgency1Hour)
		require.NoError(t, s.Create(ctx, task))

		assigned, err := s.Assign(ctx, task.ID, "electric", baseTime.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "electric", *assigned.AssignedTo)
		assert.Equal(t, domain.StateRequested, assigned.State)
		assert.Equal(t, task.Version+1, assigned.Version)

		removed, err := s.DeleteCompleted(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, removed, "only completed rows are deleted")

		for _, step := range []domain.State{domain.StateInProgress, domain.StateCompleted} {
			current, err := s.GetByID(ctx, task.ID)
			require.NoError(t, err)
			_, err = s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
				From: current.State, To: step, At: baseTime.Add(2 * time.Minute),
			})
			require.NoError(t, err)
		}

		removed, err = s.DeleteCompleted(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.DeleteCompleted(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		_, err = s.Assign(ctx, task.ID, "crown", baseTime)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

// TestPostgresTaskStore_ConcurrentClaim commits real rows so the competing
// updates run on separate connections.
func TestPostgresTaskStore_ConcurrentClaim(t *testing.T) {
	db := testdb.GetTestDBWithT(t)
	testdb.ResetTables(t, db)
	t.Cleanup(func() { testdb.ResetTables(t, db) })

	ctx := context.Background()
	s := postgres.NewPostgresTaskStore(db, nil)
	task := newTestTask(t, domain.UrgencyNow)
	require.NoError(t, s.Create(ctx, task))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyTransition(ctx, task.ID, store.TransitionUpdate{
				From:     domain.StateRequested,
				To:       domain.StateInProgress,
				At:       baseTime.Add(time.Minute),
				ClaimFor: strPtr("crown"),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, store.ErrStateConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)
}
