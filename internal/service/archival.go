package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/events"
	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/store"
)

// DefaultMessageRetention is how long chat messages are kept.
const DefaultMessageRetention = 14 * 24 * time.Hour

// ArchivalEngine moves completed tasks into history and garbage-collects
// expired rows. Every step is idempotent, so a failed archive is finished by
// a retry of the completion or by the next sweep.
type ArchivalEngine struct {
	tasks            store.TaskStore
	history          store.HistoryStore
	messages         store.MessagePurger
	events           events.Publisher
	now              Clock
	messageRetention time.Duration
	logger           *slog.Logger
}

// NewArchivalEngine creates an archival engine. messages may be nil, in
// which case message purging is a no-op.
func NewArchivalEngine(
	tasks store.TaskStore,
	history store.HistoryStore,
	messages store.MessagePurger,
	publisher events.Publisher,
	now Clock,
	messageRetention time.Duration,
	logger *slog.Logger,
) *ArchivalEngine {
	if publisher == nil {
		publisher = events.Discard
	}
	if messageRetention <= 0 {
		messageRetention = DefaultMessageRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchivalEngine{
		tasks:            tasks,
		history:          history,
		messages:         messages,
		events:           publisher,
		now:              now.orDefault(),
		messageRetention: messageRetention,
		logger:           logger.With(slog.String("component", "archival_engine")),
	}
}

// Archive writes the history record for a completed task, removes the task
// row, and announces the removal. It returns the stored history record,
// which is the first one written if the task was archived before.
func (e *ArchivalEngine) Archive(ctx context.Context, task *domain.Task) (*domain.HistoryRecord, error) {
	rec, _, err := e.archive(ctx, task)
	return rec, err
}

func (e *ArchivalEngine) archive(ctx context.Context, task *domain.Task) (*domain.HistoryRecord, bool, error) {
	log := logger.FromContextOrDefault(ctx, e.logger).With(slog.String("task_id", task.ID.String()))

	rec, err := domain.NewHistoryRecord(task)
	if err != nil {
		return nil, false, err
	}

	stored, created, err := e.history.Upsert(ctx, rec)
	if err != nil {
		log.Error("failed to write history record", slog.String("error", err.Error()))
		return nil, false, NewServiceError("archive", "failed to write history", transient(err))
	}

	removed, err := e.tasks.DeleteCompleted(ctx, task.ID)
	if err != nil {
		log.Error("failed to remove archived task row", slog.String("error", err.Error()))
		return nil, false, NewServiceError("archive", "failed to remove task row", transient(err))
	}

	if removed {
		publish(ctx, e.events, log, events.TaskDeleted(task.ID, e.now()))
	}

	log.Info("task archived",
		slog.Bool("history_created", created),
		slog.Bool("row_removed", removed))
	return stored, removed, nil
}

// RepairCompletions archives every task row still in state completed and
// returns how many rows it removed.
func (e *ArchivalEngine) RepairCompletions(ctx context.Context) (int, error) {
	stranded, err := e.tasks.ListByState(ctx, domain.StateCompleted)
	if err != nil {
		return 0, transient(err)
	}

	var (
		repaired int
		errs     []error
	)
	for _, task := range stranded {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, removed, err := e.archive(ctx, task)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		if removed {
			repaired++
		}
	}
	return repaired, errors.Join(errs...)
}

// ExpireRejections deletes rejections past their expiry and announces each
// deletion so clients drop the rows.
func (e *ArchivalEngine) ExpireRejections(ctx context.Context) (int, error) {
	now := e.now()
	ids, err := e.tasks.DeleteExpiredRejections(ctx, now)
	if err != nil {
		return 0, transient(err)
	}

	log := logger.FromContextOrDefault(ctx, e.logger)
	for _, id := range ids {
		publish(ctx, e.events, log, events.TaskDeleted(id, now))
	}
	return len(ids), nil
}

// ExpireHistory deletes history records past their retention.
func (e *ArchivalEngine) ExpireHistory(ctx context.Context) (int64, error) {
	n, err := e.history.DeleteExpired(ctx, e.now())
	if err != nil {
		return 0, transient(err)
	}
	return n, nil
}

// PurgeMessages asks the chat store to drop messages older than the
// retention window.
func (e *ArchivalEngine) PurgeMessages(ctx context.Context) (int64, error) {
	if e.messages == nil {
		return 0, nil
	}
	n, err := e.messages.PurgeBefore(ctx, e.now().Add(-e.messageRetention))
	if err != nil {
		return 0, transient(err)
	}
	return n, nil
}

// SweepReport summarizes one full sweep.
type SweepReport struct {
	RepairedCompletions int
	ExpiredRejections   int
	ExpiredHistory      int64
	PurgedMessages      int64
	Errors              []error
}

// Err joins the failures of all steps, or returns nil.
func (r SweepReport) Err() error {
	return errors.Join(r.Errors...)
}

// Sweep runs every garbage-collection step. A failing step does not stop
// the others.
func (e *ArchivalEngine) Sweep(ctx context.Context) SweepReport {
	log := logger.FromContextOrDefault(ctx, e.logger)
	var report SweepReport

	step := func(name string, err error) {
		if err != nil {
			log.Error("sweep step failed", slog.String("step", name), slog.String("error", err.Error()))
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", name, err))
		}
	}

	var err error
	report.RepairedCompletions, err = e.RepairCompletions(ctx)
	step("repair_completions", err)
	report.ExpiredRejections, err = e.ExpireRejections(ctx)
	step("expire_rejections", err)
	report.ExpiredHistory, err = e.ExpireHistory(ctx)
	step("expire_history", err)
	report.PurgedMessages, err = e.PurgeMessages(ctx)
	step("purge_messages", err)

	log.Info("sweep finished",
		slog.Int("repaired_completions", report.RepairedCompletions),
		slog.Int("expired_rejections", report.ExpiredRejections),
		slog.Int64("expired_history", report.ExpiredHistory),
		slog.Int64("purged_messages", report.PurgedMessages),
		slog.Int("failed_steps", len(report.Errors)))
	return report
}

// publish sends a committed event. The change is already stored, so a
// delivery failure is logged and not returned; clients recover through
// their next snapshot.
func publish(ctx context.Context, p events.Publisher, log *slog.Logger, e events.Event) {
	if err := p.Publish(ctx, e); err != nil {
		log.Error("failed to publish event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(e.Type)),
			slog.String("task_id", e.TaskID.String()))
	}
}
