package service

import (
	"context"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/google/uuid"
)

// RejectionManager owns the time-bounded rejected sub-state. A rejection
// is written through the Authority, hidden from listings once it expires
// (soft expiry), and deleted by the archival sweep afterwards (hard expiry).
type RejectionManager struct {
	authority *Authority
	now       Clock
}

// NewRejectionManager creates a rejection manager.
func NewRejectionManager(authority *Authority, now Clock) *RejectionManager {
	return &RejectionManager{authority: authority, now: now.orDefault()}
}

// Reject declines a requested task with a reason. The rejection is listed
// for domain.RejectionTTL.
func (m *RejectionManager) Reject(
	ctx context.Context,
	taskID uuid.UUID,
	reason string,
	actor domain.Actor,
) (*domain.Task, error) {
	if err := actor.Require(domain.OpReject); err != nil {
		return nil, err
	}
	return m.authority.Transition(ctx, TransitionRequest{
		TaskID: taskID,
		Target: domain.StateRejected,
		Actor:  actor,
		Reason: reason,
	})
}

// Visible drops soft-expired rejections and completed rows. Stores already
// filter, but a list read just before the expiry instant may be returned
// just after it.
func (m *RejectionManager) Visible(tasks []*domain.Task) []*domain.Task {
	now := m.now()
	out := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Active(now) {
			out = append(out, t)
		}
	}
	return out
}

// ListActive reads the active list and applies the soft-expiry filter.
func (m *RejectionManager) ListActive(ctx context.Context, tasks store.TaskStore) ([]*domain.Task, error) {
	list, err := tasks.ListActive(ctx, m.now())
	if err != nil {
		return nil, translateStoreError(err)
	}
	return m.Visible(list), nil
}
