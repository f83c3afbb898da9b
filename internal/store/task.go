package store

import (
	"context"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/google/uuid"
)

// TransitionUpdate is the set of state fields written by one conditional
// transition. It applies only while the stored state equals From.
type TransitionUpdate struct {
	From domain.State
	To   domain.State
	At   time.Time

	// ClaimFor sets assigned_to to this actor when assigned_to is NULL at
	// write time. A concurrent assignment is never overwritten.
	ClaimFor *string

	// Rejection fields are written verbatim; nil clears them.
	RejectionReason  *string
	RejectionExpires *time.Time
}

// TaskStore persists active tasks.
type TaskStore interface {
	// Create inserts a new task. Returns ErrDuplicate if the id exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID returns the stored task or ErrTaskNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListActive returns every task visible at now: completed rows and
	// rejections whose rejection_expires is before now are excluded.
	// Order is unspecified; callers sort with domain.SortTasks.
	ListActive(ctx context.Context, now time.Time) ([]*domain.Task, error)

	// ListByState returns all rows in the given state, including rows that
	// ListActive would hide.
	ListByState(ctx context.Context, state domain.State) ([]*domain.Task, error)

	// ApplyTransition performs the compare-and-update described by u and
	// returns the row as written. Returns ErrTaskNotFound if the row is gone
	// and ErrStateConflict if its state is no longer u.From.
	ApplyTransition(ctx context.Context, id uuid.UUID, u TransitionUpdate) (*domain.Task, error)

	// Assign sets assigned_to and state_changed_at without touching state.
	// Returns ErrTaskNotFound if the row does not exist.
	Assign(ctx context.Context, id uuid.UUID, assignee string, at time.Time) (*domain.Task, error)

	// DeleteCompleted removes the row only while it is in state completed.
	// It reports whether a row was removed.
	DeleteCompleted(ctx context.Context, id uuid.UUID) (bool, error)

	// DeleteExpiredRejections removes rejected rows whose rejection_expires
	// is before now and returns their ids.
	DeleteExpiredRejections(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}
