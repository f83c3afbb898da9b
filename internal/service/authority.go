package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/events"
	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/google/uuid"
)

// TransitionRequest asks the Authority to move one task.
type TransitionRequest struct {
	TaskID uuid.UUID
	Target domain.State
	Actor  domain.Actor

	// Reason is required when Target is rejected and ignored otherwise.
	Reason string

	// ExpectedState, when set, must match the stored state or the request
	// fails with a conflict before anything is written.
	ExpectedState *domain.State
}

// Authority is the only writer of task state. It validates the requested
// pair against the lifecycle table and applies it with a conditional update
// keyed on the state it read.
type Authority struct {
	tasks    store.TaskStore
	archival *ArchivalEngine
	events   events.Publisher
	now      Clock
	logger   *slog.Logger
}

// NewAuthority creates a transition authority.
func NewAuthority(
	tasks store.TaskStore,
	archival *ArchivalEngine,
	publisher events.Publisher,
	now Clock,
	logger *slog.Logger,
) *Authority {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authority{
		tasks:    tasks,
		archival: archival,
		events:   publisher,
		now:      now.orDefault(),
		logger:   logger.With(slog.String("component", "transition_authority")),
	}
}

// Transition applies req and returns the task as written. Completing a
// task archives it; retrying a completion whose archival failed resumes
// the archival instead of failing.
func (a *Authority) Transition(ctx context.Context, req TransitionRequest) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, a.logger).With(
		slog.String("task_id", req.TaskID.String()),
		slog.String("target", string(req.Target)),
		slog.String("actor_id", req.Actor.ID))

	if err := req.Actor.Require(domain.OpTransition); err != nil {
		return nil, err
	}
	if !req.Target.Valid() {
		return nil, domain.ErrInvalidTarget
	}

	var reason string
	if req.Target == domain.StateRejected {
		if err := req.Actor.Require(domain.OpReject); err != nil {
			return nil, err
		}
		r, err := domain.NormalizeRejectionReason(req.Reason)
		if err != nil {
			return nil, err
		}
		reason = r
	}

	current, err := a.tasks.GetByID(ctx, req.TaskID)
	if err != nil {
		return nil, translateStoreError(err)
	}

	if req.ExpectedState != nil && *req.ExpectedState != current.State {
		log.Debug("expected state does not match",
			slog.String("expected", string(*req.ExpectedState)),
			slog.String("observed", string(current.State)))
		return nil, fmt.Errorf("%w: task is %s, not %s", domain.ErrConflict, current.State, *req.ExpectedState)
	}

	if current.State == domain.StateCompleted && req.Target == domain.StateCompleted {
		log.Info("resuming archival of completed task")
		if _, err := a.archival.Archive(ctx, current); err != nil {
			return nil, err
		}
		return current, nil
	}

	if !domain.CanTransition(current.State, req.Target) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current.State, req.Target)
	}

	now := a.now()
	update := store.TransitionUpdate{From: current.State, To: req.Target, At: now}
	if current.State == domain.StateRequested && req.Target == domain.StateInProgress {
		claimant := req.Actor.ID
		update.ClaimFor = &claimant
	}
	if req.Target == domain.StateRejected {
		expires := domain.RejectionExpiry(now)
		update.RejectionReason = &reason
		update.RejectionExpires = &expires
	}

	updated, err := a.tasks.ApplyTransition(ctx, req.TaskID, update)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("lost transition race", slog.String("observed", string(current.State)))
		}
		return nil, translateStoreError(err)
	}

	if updated.State == domain.StateCompleted {
		// The row is claimed; archival publishes the single deleted event.
		if _, err := a.archival.Archive(ctx, updated); err != nil {
			return nil, err
		}
		return updated, nil
	}

	publish(ctx, a.events, log, events.TaskUpdated(updated, now))
	return updated, nil
}
