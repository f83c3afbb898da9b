package store

import (
	"context"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/google/uuid"
)

// HistoryStore persists archived snapshots of completed tasks.
type HistoryStore interface {
	// Upsert stores rec unless a record for rec.OriginalTaskID already
	// exists. It returns the stored record (the existing one on conflict)
	// and whether this call created it.
	Upsert(ctx context.Context, rec *domain.HistoryRecord) (*domain.HistoryRecord, bool, error)

	// GetByTaskID returns the record for an original task id or ErrHistoryNotFound.
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.HistoryRecord, error)

	// List returns records ordered by completed_at descending, restricted
	// to the period when it is non-nil.
	List(ctx context.Context, period *domain.HistoryPeriod) ([]*domain.HistoryRecord, error)

	// DeleteExpired removes records whose delete_after is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MessagePurger is the chat store's retention hook.
type MessagePurger interface {
	// PurgeBefore deletes messages created before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
