package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/google/uuid"
)

const taskColumns = `id, created_by, signature, category, description, urgency, assigned_to,
	state, state_changed_at, created_at, deadline, rejection_reason, rejection_expires, version`

// PostgresTaskStore implements store.TaskStore on the tasks table.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a task store over a connection or transaction.
// If logger is nil, the default logger is used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                domain.Task
		category         string
		urgency          string
		state            string
		assignedTo       sql.NullString
		rejectionReason  sql.NullString
		rejectionExpires sql.NullTime
	)

	err := row.Scan(
		&t.ID,
		&t.CreatedBy,
		&t.Signature,
		&category,
		&t.Description,
		&urgency,
		&assignedTo,
		&state,
		&t.StateChangedAt,
		&t.CreatedAt,
		&t.Deadline,
		&rejectionReason,
		&rejectionExpires,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}

	t.Category = domain.Category(category)
	t.Urgency = domain.Urgency(urgency)
	t.State = domain.State(state)
	t.StateChangedAt = t.StateChangedAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.Deadline = t.Deadline.UTC()
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if rejectionReason.Valid {
		t.RejectionReason = &rejectionReason.String
	}
	if rejectionExpires.Valid {
		exp := rejectionExpires.Time.UTC()
		t.RejectionExpires = &exp
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*domain.Task, error) {
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Create implements store.TaskStore.Create.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.CreatedBy,
		task.Signature,
		string(task.Category),
		task.Description,
		string(task.Urgency),
		task.AssignedTo,
		string(task.State),
		task.StateChangedAt,
		task.CreatedAt,
		task.Deadline,
		task.RejectionReason,
		task.RejectionExpires,
		task.Version,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("created_by", task.CreatedBy))
	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}
	return t, nil
}

// ListActive implements store.TaskStore.ListActive.
// Rejections expiring exactly at now are still visible.
func (s *PostgresTaskStore) ListActive(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE state <> 'completed'
		  AND NOT (state = 'rejected' AND rejection_expires < $1)
		ORDER BY deadline ASC
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list active tasks",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return scanTasks(rows)
}

// ListByState implements store.TaskStore.ListByState.
func (s *PostgresTaskStore) ListByState(ctx context.Context, state domain.State) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE state = $1 ORDER BY state_changed_at ASC`

	rows, err := s.db.QueryContext(ctx, query, string(state))
	if err != nil {
		return nil, MapError(err)
	}
	return scanTasks(rows)
}

// ApplyTransition implements store.TaskStore.ApplyTransition.
// The update and the follow-up existence check share a transaction so a
// miss is classified against the same snapshot it was applied to.
func (s *PostgresTaskStore) ApplyTransition(
	ctx context.Context,
	id uuid.UUID,
	u store.TransitionUpdate,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET state = $3,
		    state_changed_at = $4,
		    assigned_to = COALESCE(assigned_to, $5),
		    rejection_reason = $6,
		    rejection_expires = $7,
		    version = version + 1
		WHERE id = $1 AND state = $2
		RETURNING ` + taskColumns

	var updated *domain.Task
	err := store.WithinTx(ctx, s.db, func(ctx context.Context, q store.DBTX) error {
		t, err := scanTask(q.QueryRowContext(ctx, query,
			id,
			string(u.From),
			string(u.To),
			u.At,
			u.ClaimFor,
			u.RejectionReason,
			u.RejectionExpires,
		))
		if err == nil {
			updated = t
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return MapError(err)
		}

		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
			return MapError(err)
		}
		if !exists {
			return store.ErrTaskNotFound
		}
		return store.ErrStateConflict
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			log.Debug("conditional transition did not apply",
				slog.String("task_id", id.String()),
				slog.String("from", string(u.From)),
				slog.String("to", string(u.To)),
				slog.String("reason", err.Error()))
		} else {
			log.Error("failed to apply transition",
				slog.String("error", err.Error()),
				slog.String("task_id", id.String()))
		}
		return nil, err
	}

	log.Info("task transitioned",
		slog.String("task_id", id.String()),
		slog.String("from", string(u.From)),
		slog.String("to", string(u.To)))
	return updated, nil
}

// Assign implements store.TaskStore.Assign.
func (s *PostgresTaskStore) Assign(ctx context.Context, id uuid.UUID, assignee string, at time.Time) (*domain.Task, error) {
	query := `
		UPDATE tasks
		SET assigned_to = $2, state_changed_at = $3, version = version + 1
		WHERE id = $1
		RETURNING ` + taskColumns

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id, assignee, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to assign task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}
	return t, nil
}

// DeleteCompleted implements store.TaskStore.DeleteCompleted.
func (s *PostgresTaskStore) DeleteCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND state = 'completed'`, id)
	if err != nil {
		return false, MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpiredRejections implements store.TaskStore.DeleteExpiredRejections.
func (s *PostgresTaskStore) DeleteExpiredRejections(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM tasks WHERE state = 'rejected' AND rejection_expires < $1 RETURNING id`, now)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
