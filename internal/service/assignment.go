package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/events"
	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/google/uuid"
)

// AssignmentResolver routes tasks to fleets. Assignment never changes a
// task's state, and a later assignment replaces an earlier one.
type AssignmentResolver struct {
	tasks  store.TaskStore
	fleets []string
	events events.Publisher
	now    Clock
	logger *slog.Logger
}

// NewAssignmentResolver creates a resolver for the configured fleets.
func NewAssignmentResolver(
	tasks store.TaskStore,
	fleets []string,
	publisher events.Publisher,
	now Clock,
	logger *slog.Logger,
) *AssignmentResolver {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AssignmentResolver{
		tasks:  tasks,
		fleets: slices.Clone(fleets),
		events: publisher,
		now:    now.orDefault(),
		logger: logger.With(slog.String("component", "assignment_resolver")),
	}
}

// Fleets returns the configured fleet ids in configuration order.
func (r *AssignmentResolver) Fleets() []string {
	return slices.Clone(r.fleets)
}

// IsFleet reports whether id is a configured fleet.
func (r *AssignmentResolver) IsFleet(id string) bool {
	return slices.Contains(r.fleets, id)
}

// Assign routes a task to a fleet.
func (r *AssignmentResolver) Assign(
	ctx context.Context,
	taskID uuid.UUID,
	fleetID string,
	actor domain.Actor,
) (*domain.Task, error) {
	if err := actor.Require(domain.OpAssign); err != nil {
		return nil, err
	}

	fleetID = strings.TrimSpace(fleetID)
	if !r.IsFleet(fleetID) {
		return nil, domain.ErrUnknownFleet
	}

	log := logger.FromContextOrDefault(ctx, r.logger).With(
		slog.String("task_id", taskID.String()),
		slog.String("fleet_id", fleetID))

	now := r.now()
	updated, err := r.tasks.Assign(ctx, taskID, fleetID, now)
	if err != nil {
		return nil, translateStoreError(err)
	}

	log.Info("task assigned", slog.String("actor_id", actor.ID))
	publish(ctx, r.events, log, events.TaskUpdated(updated, now))
	return updated, nil
}

// Board partitions an already sorted active list by fleet.
func (r *AssignmentResolver) Board(tasks []*domain.Task) domain.Board {
	return domain.Partition(tasks, r.fleets)
}
