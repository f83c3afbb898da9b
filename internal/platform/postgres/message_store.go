package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/store"
)

// PostgresMessageStore owns retention for the messages table. Message
// delivery lives elsewhere; this store only purges.
type PostgresMessageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMessageStore creates a message store.
func NewPostgresMessageStore(db store.DBTX, logger *slog.Logger) *PostgresMessageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMessageStore{
		db:     db,
		logger: logger.With(slog.String("component", "message_store")),
	}
}

var _ store.MessagePurger = (*PostgresMessageStore)(nil)

// PurgeBefore implements store.MessagePurger.PurgeBefore.
func (s *PostgresMessageStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to purge messages",
			slog.String("error", err.Error()))
		return 0, MapError(err)
	}
	return rowsAffected(result)
}
