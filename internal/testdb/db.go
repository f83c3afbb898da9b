//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cpcomms/dispatch/internal/platform/postgres/migrations"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

// MigrationTableName is the goose version table.
const MigrationTableName = migrations.TableName

// TestTimeout bounds setup queries.
const TestTimeout = 5 * time.Second

var migrateOnce sync.Once

// testGooseLogger routes goose output through the test log.
type testGooseLogger struct {
	t *testing.T
}

func (l *testGooseLogger) Fatalf(format string, v ...any) { l.t.Fatalf(format, v...) }
func (l *testGooseLogger) Printf(format string, v ...any) { l.t.Logf(format, v...) }

// GetTestDBWithT opens the test database, applies migrations once per test
// binary, and closes the pool when the test finishes. The test is skipped when
// no database is configured.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skipf("integration test requires one of %v", databaseURLEnvVars)
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "open test database %s", MaskDatabaseURL(dbURL))

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("ping test database %s: %v", MaskDatabaseURL(dbURL), err)
	}

	var migrateErr error
	migrateOnce.Do(func() {
		migrateErr = ApplyMigrations(t, db)
	})
	require.NoError(t, migrateErr, "apply migrations")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close test database: %v", err)
		}
	})
	return db
}

// ApplyMigrations runs every embedded migration against db.
func ApplyMigrations(t *testing.T, db *sql.DB) error {
	goose.SetLogger(&testGooseLogger{t: t})
	goose.SetTableName(MigrationTableName)
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction that is rolled back afterwards, so
// tests never observe each other's rows.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	// The transaction outlives any setup timeout, so it uses a background context.
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err, "begin test transaction")

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("roll back test transaction: %v", err)
		}
	}()

	fn(t, tx)
}

// ResetTables empties the dispatch tables. Use it for tests that need
// committed data, such as concurrent writers on separate connections.
func ResetTables(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	_, err := db.ExecContext(ctx, `TRUNCATE tasks, task_history, messages`)
	require.NoError(t, err, "truncate tables")
}
