package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/store"
	"github.com/google/uuid"
)

const historyColumns = `id, original_task_id, task_snapshot, completed_at, delete_after`

// PostgresHistoryStore implements store.HistoryStore on the task_history table.
type PostgresHistoryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresHistoryStore creates a history store.
func NewPostgresHistoryStore(db store.DBTX, logger *slog.Logger) *PostgresHistoryStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresHistoryStore{
		db:     db,
		logger: logger.With(slog.String("component", "history_store")),
	}
}

var _ store.HistoryStore = (*PostgresHistoryStore)(nil)

func scanHistory(row rowScanner) (*domain.HistoryRecord, error) {
	var (
		rec      domain.HistoryRecord
		snapshot []byte
	)
	if err := row.Scan(&rec.ID, &rec.OriginalTaskID, &snapshot, &rec.CompletedAt, &rec.DeleteAfter); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &rec.TaskSnapshot); err != nil {
		return nil, fmt.Errorf("decode task snapshot %s: %w", rec.ID, err)
	}
	rec.CompletedAt = rec.CompletedAt.UTC()
	rec.DeleteAfter = rec.DeleteAfter.UTC()
	return &rec, nil
}

// Upsert implements store.HistoryStore.Upsert.
// ON CONFLICT DO NOTHING keeps the first snapshot; the existing row is then
// read back so callers always see what is stored.
func (s *PostgresHistoryStore) Upsert(
	ctx context.Context,
	rec *domain.HistoryRecord,
) (*domain.HistoryRecord, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	snapshot, err := json.Marshal(rec.TaskSnapshot)
	if err != nil {
		return nil, false, fmt.Errorf("%w: encode task snapshot: %v", store.ErrInvalidEntity, err)
	}

	var (
		stored  *domain.HistoryRecord
		created bool
	)
	err = store.WithinTx(ctx, s.db, func(ctx context.Context, q store.DBTX) error {
		insert := `
			INSERT INTO task_history (` + historyColumns + `)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (original_task_id) DO NOTHING
			RETURNING ` + historyColumns
		r, err := scanHistory(q.QueryRowContext(ctx, insert,
			rec.ID, rec.OriginalTaskID, snapshot, rec.CompletedAt, rec.DeleteAfter))
		if err == nil {
			stored, created = r, true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return MapError(err)
		}

		existing := `SELECT ` + historyColumns + ` FROM task_history WHERE original_task_id = $1`
		r, err = scanHistory(q.QueryRowContext(ctx, existing, rec.OriginalTaskID))
		if err != nil {
			return MapError(err)
		}
		stored = r
		return nil
	})
	if err != nil {
		log.Error("failed to upsert history record",
			slog.String("error", err.Error()),
			slog.String("task_id", rec.OriginalTaskID.String()))
		return nil, false, err
	}

	log.Debug("history record stored",
		slog.String("task_id", rec.OriginalTaskID.String()),
		slog.Bool("created", created))
	return stored, created, nil
}

// GetByTaskID implements store.HistoryStore.GetByTaskID.
func (s *PostgresHistoryStore) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM task_history WHERE original_task_id = $1`
	rec, err := scanHistory(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrHistoryNotFound
		}
		return nil, MapError(err)
	}
	return rec, nil
}

// List implements store.HistoryStore.List.
func (s *PostgresHistoryStore) List(
	ctx context.Context,
	period *domain.HistoryPeriod,
) ([]*domain.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM task_history`
	var args []any
	if period != nil {
		start, end := period.Bounds()
		query += ` WHERE completed_at >= $1 AND completed_at < $2`
		args = append(args, start, end)
	}
	query += ` ORDER BY completed_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list history",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	records := []*domain.HistoryRecord{}
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteExpired implements store.HistoryStore.DeleteExpired.
func (s *PostgresHistoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task_history WHERE delete_after < $1`, now)
	if err != nil {
		return 0, MapError(err)
	}
	return rowsAffected(result)
}
