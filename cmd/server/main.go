// Package main runs the dispatch server: the task lifecycle API, the
// subscription socket, the event bus relay, and the retention sweeps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cpcomms/dispatch/internal/config"
	"github.com/cpcomms/dispatch/internal/platform/logger"
)

// options holds the command line flags.
type options struct {
	migrate string
	verbose bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("dispatch", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.migrate, "migrate", "",
		"run a database migration command and exit (up, down, status, version)")
	fs.BoolVar(&opts.verbose, "verbose", false, "log every migration step")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.migrate != "" && !validMigrationCommand(opts.migrate) {
		return options{}, fmt.Errorf("unknown migrate command %q", opts.migrate)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		slog.Error("dispatch exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}

// run loads configuration and either executes a migration command or
// serves until ctx is cancelled.
func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"broadcast_backend", cfg.Broadcast.Backend,
		"fleets", cfg.Fleets.IDs)

	if opts.migrate != "" {
		if cfg.Database.URL == "" {
			return errors.New("database URL is empty: set DISPATCH_DATABASE_URL to run migrations")
		}
		db, err := setupAppDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()
		return runMigrations(ctx, db, opts.migrate, opts.verbose, log)
	}

	var app *application
	if cfg.Database.URL == "" {
		log.Warn("No database URL configured; using in-memory stores. Data is lost on restart.")
		app, err = newApplication(ctx, cfg, log, nil)
	} else {
		db, dbErr := setupAppDatabase(ctx, cfg.Database, log)
		if dbErr != nil {
			return dbErr
		}
		app, err = newApplication(ctx, cfg, log, db)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
