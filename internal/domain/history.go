package domain

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is the archived snapshot of a completed task.
// It is written once and never updated.
type HistoryRecord struct {
	ID             uuid.UUID `json:"id"`
	OriginalTaskID uuid.UUID `json:"original_task_id"`
	TaskSnapshot   Task      `json:"task_snapshot"`
	CompletedAt    time.Time `json:"completed_at"`
	DeleteAfter    time.Time `json:"delete_after"`
}

// NewHistoryRecord snapshots a completed task. The completion time is the
// task's state_changed_at so that repeated archival of the same row yields
// the same record.
func NewHistoryRecord(t *Task) (*HistoryRecord, error) {
	if t.State != StateCompleted {
		return nil, NewValidationError("state", "must be completed to archive", ErrValidation)
	}
	completedAt := t.StateChangedAt.UTC()
	return &HistoryRecord{
		ID:             uuid.New(),
		OriginalTaskID: t.ID,
		TaskSnapshot:   *t.Clone(),
		CompletedAt:    completedAt,
		DeleteAfter:    completedAt.Add(HistoryRetention),
	}, nil
}

// HistoryPeriod optionally restricts history listings to one calendar month.
type HistoryPeriod struct {
	Month int
	Year  int
}

// NewHistoryPeriod validates an optional month/year pair. Both nil means
// no filter.
func NewHistoryPeriod(month, year *int) (*HistoryPeriod, error) {
	if month == nil && year == nil {
		return nil, nil
	}
	if month == nil || year == nil {
		return nil, ErrInvalidPeriod
	}
	if *month < 1 || *month > 12 {
		return nil, NewValidationError("month", "must be between 1 and 12", ErrValidation)
	}
	if *year < 2000 || *year > 9999 {
		return nil, NewValidationError("year", "is out of range", ErrValidation)
	}
	return &HistoryPeriod{Month: *month, Year: *year}, nil
}

// Bounds returns the half-open UTC interval [start, end) covered by the period.
func (p HistoryPeriod) Bounds() (time.Time, time.Time) {
	start := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
