package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/events"
	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/google/uuid"
)

// Config wires a TaskService.
type Config struct {
	Tasks   store.TaskStore
	History store.HistoryStore

	// Messages is the chat store's retention hook. Optional.
	Messages store.MessagePurger

	// Events receives committed changes. Defaults to events.Discard.
	Events events.Publisher

	// Fleets are the valid assignment targets, in board order.
	Fleets []string

	MessageRetention time.Duration
	Clock            Clock
	Logger           *slog.Logger
}

// CreateTaskInput holds the caller-supplied fields of a new task.
type CreateTaskInput struct {
	Signature   string
	Description string
	Urgency     domain.Urgency
	Category    domain.Category
	AssignedTo  *string
}

// TaskService is the entry point for transports. It checks capabilities,
// delegates to the lifecycle components, and publishes creation events.
type TaskService struct {
	tasks      store.TaskStore
	history    store.HistoryStore
	authority  *Authority
	resolver   *AssignmentResolver
	rejections *RejectionManager
	archival   *ArchivalEngine
	events     events.Publisher
	now        Clock
	logger     *slog.Logger
}

// NewTaskService builds the lifecycle components from cfg.
// It returns an error if a required store is missing.
func NewTaskService(cfg Config) (*TaskService, error) {
	if cfg.Tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", domain.ErrValidation)
	}
	if cfg.History == nil {
		return nil, domain.NewValidationError("history", "cannot be nil", domain.ErrValidation)
	}
	if len(cfg.Fleets) == 0 {
		return nil, domain.NewValidationError("fleets", "at least one fleet is required", domain.ErrValidation)
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	now := cfg.Clock.orDefault()

	archival := NewArchivalEngine(cfg.Tasks, cfg.History, cfg.Messages, cfg.Events, now, cfg.MessageRetention, cfg.Logger)
	authority := NewAuthority(cfg.Tasks, archival, cfg.Events, now, cfg.Logger)

	return &TaskService{
		tasks:      cfg.Tasks,
		history:    cfg.History,
		authority:  authority,
		resolver:   NewAssignmentResolver(cfg.Tasks, cfg.Fleets, cfg.Events, now, cfg.Logger),
		rejections: NewRejectionManager(authority, now),
		archival:   archival,
		events:     cfg.Events,
		now:        now,
		logger:     cfg.Logger.With(slog.String("component", "task_service")),
	}, nil
}

// Archival exposes the archival engine to the sweep scheduler.
func (s *TaskService) Archival() *ArchivalEngine {
	return s.archival
}

// Fleets returns the configured fleet ids.
func (s *TaskService) Fleets() []string {
	return s.resolver.Fleets()
}

// Now returns the service clock's current time.
func (s *TaskService) Now() time.Time {
	return s.now()
}

// List returns the visible active tasks in canonical order.
func (s *TaskService) List(ctx context.Context, actor domain.Actor) ([]*domain.Task, error) {
	if err := actor.Require(domain.OpListTasks); err != nil {
		return nil, err
	}

	tasks, err := s.rejections.ListActive(ctx, s.tasks)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list tasks",
			slog.String("error", err.Error()))
		return nil, NewServiceError("list", "failed to read tasks", err)
	}
	domain.SortTasks(tasks)
	return tasks, nil
}

// Board returns the active list partitioned by fleet.
func (s *TaskService) Board(ctx context.Context, actor domain.Actor) (domain.Board, error) {
	tasks, err := s.List(ctx, actor)
	if err != nil {
		return domain.Board{}, err
	}
	return s.resolver.Board(tasks), nil
}

// Create stores a new requested task on behalf of actor.
func (s *TaskService) Create(ctx context.Context, actor domain.Actor, in CreateTaskInput) (*domain.Task, error) {
	if err := actor.Require(domain.OpCreateTask); err != nil {
		return nil, err
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := s.now()
	task, err := domain.NewTask(domain.NewTaskParams{
		CreatedBy:   actor.ID,
		Signature:   in.Signature,
		Description: in.Description,
		Urgency:     in.Urgency,
		Category:    in.Category,
		AssignedTo:  in.AssignedTo,
	}, now)
	if err != nil {
		log.Debug("rejected invalid task", slog.String("error", err.Error()))
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		log.Error("failed to store task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return nil, NewServiceError("create", "failed to store task", translateStoreError(err))
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("urgency", string(task.Urgency)),
		slog.String("actor_id", actor.ID))
	publish(ctx, s.events, log, events.TaskCreated(task, now))
	return task, nil
}

// SetState moves a task to one of the settable targets. Rejection has its
// own operation because it needs a reason.
func (s *TaskService) SetState(
	ctx context.Context,
	actor domain.Actor,
	taskID uuid.UUID,
	target domain.State,
	expected *domain.State,
) (*domain.Task, error) {
	if err := actor.Require(domain.OpTransition); err != nil {
		return nil, err
	}
	if !domain.SettableTarget(target) {
		return nil, domain.ErrInvalidTarget
	}
	return s.authority.Transition(ctx, TransitionRequest{
		TaskID:        taskID,
		Target:        target,
		Actor:         actor,
		ExpectedState: expected,
	})
}

// Assign routes a task to a fleet.
func (s *TaskService) Assign(ctx context.Context, actor domain.Actor, taskID uuid.UUID, fleetID string) (*domain.Task, error) {
	return s.resolver.Assign(ctx, taskID, fleetID, actor)
}

// Reject declines a requested task.
func (s *TaskService) Reject(ctx context.Context, actor domain.Actor, taskID uuid.UUID, reason string) (*domain.Task, error) {
	return s.rejections.Reject(ctx, taskID, reason, actor)
}

// ListHistory returns archived tasks, newest first, optionally limited to
// one calendar month. month and year must be given together.
func (s *TaskService) ListHistory(
	ctx context.Context,
	actor domain.Actor,
	month, year *int,
) ([]*domain.HistoryRecord, error) {
	if err := actor.Require(domain.OpListHistory); err != nil {
		return nil, err
	}
	period, err := domain.NewHistoryPeriod(month, year)
	if err != nil {
		return nil, err
	}

	records, err := s.history.List(ctx, period)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list history",
			slog.String("error", err.Error()))
		return nil, NewServiceError("list_history", "failed to read history", translateStoreError(err))
	}
	return records, nil
}
