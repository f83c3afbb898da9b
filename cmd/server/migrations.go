package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cpcomms/dispatch/internal/platform/postgres/migrations"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
)

// migrationCommands are the goose commands exposed through -migrate.
var migrationCommands = []string{"up", "down", "status", "version"}

func validMigrationCommand(cmd string) bool {
	return slices.Contains(migrationCommands, cmd)
}

// slogGooseLogger adapts the goose logger interface to slog.
type slogGooseLogger struct {
	logger  *slog.Logger
	verbose bool
}

// Printf forwards goose progress messages. They are logged at debug level
// unless verbose is set.
func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	level := slog.LevelDebug
	if l.verbose {
		level = slog.LevelInfo
	}
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

// Fatalf logs at error level. It does not exit; goose's error is returned
// to main, which owns the exit code.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// runMigrations executes one goose command against the embedded migrations.
func runMigrations(ctx context.Context, db *sql.DB, command string, verbose bool, logger *slog.Logger) error {
	if !validMigrationCommand(command) {
		return fmt.Errorf("unknown migrate command %q", command)
	}

	log := logger.With(
		"correlation_id", uuid.New().String(),
		"component", "migrations",
		"command", command)

	goose.SetLogger(&slogGooseLogger{logger: log, verbose: verbose})
	goose.SetTableName(migrations.TableName)
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	start := time.Now()
	log.Info("Starting migration operation")

	var err error
	switch command {
	case "up":
		err = goose.UpContext(ctx, db, ".")
	case "down":
		err = goose.DownContext(ctx, db, ".")
	case "status":
		err = goose.StatusContext(ctx, db, ".")
	case "version":
		var version int64
		version, err = goose.GetDBVersionContext(ctx, db)
		if err == nil {
			log.Info("Current schema version", "version", version)
		}
	}

	log.Info("Migration operation completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"success", err == nil)
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	return nil
}
