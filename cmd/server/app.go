package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"

	"github.com/cpcomms/dispatch/internal/config"
	"github.com/cpcomms/dispatch/internal/events"
	"github.com/cpcomms/dispatch/internal/platform/memory"
	"github.com/cpcomms/dispatch/internal/platform/postgres"
	"github.com/cpcomms/dispatch/internal/scheduler"
	"github.com/cpcomms/dispatch/internal/service"
	"github.com/cpcomms/dispatch/internal/service/auth"
	"github.com/cpcomms/dispatch/internal/store"
	"golang.org/x/sync/errgroup"
)

// application holds the shared dependencies and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore    store.TaskStore
	historyStore store.HistoryStore
	messages     store.MessagePurger

	backplane events.Backplane
	hub       *events.Hub
	bus       *events.Bus

	jwtService  auth.JWTService
	taskService *service.TaskService
	scheduler   *scheduler.Scheduler
}

// newApplication wires every component. A nil db selects the in-memory
// stores.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT verification initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	if db != nil {
		app.taskStore = postgres.NewPostgresTaskStore(db, logger)
		app.historyStore = postgres.NewPostgresHistoryStore(db, logger)
		app.messages = postgres.NewPostgresMessageStore(db, logger)
	} else {
		app.taskStore = memory.NewTaskStore()
		app.historyStore = memory.NewHistoryStore()
		app.messages = &memory.MessagePurger{}
	}

	app.backplane, err = newBackplane(cfg.Broadcast, logger)
	if err != nil {
		app.cleanup()
		return nil, err
	}
	logger.Info("Event backplane connected", "backend", cfg.Broadcast.Backend)

	app.hub = events.NewHub(cfg.Broadcast.BufferSize, logger)
	app.bus, err = events.NewBus(app.backplane, app.hub, cfg.Broadcast.Subject, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	app.taskService, err = service.NewTaskService(service.Config{
		Tasks:            app.taskStore,
		History:          app.historyStore,
		Messages:         app.messages,
		Events:           app.bus,
		Fleets:           cfg.Fleets.IDs,
		MessageRetention: cfg.Sweep.MessageRetention,
		Logger:           logger,
	})
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	if cfg.Sweep.Enabled {
		app.scheduler = scheduler.New(logger)
		jobs := scheduler.SweepJobs(app.taskService.Archival(), cfg.Sweep, logger)
		if err := app.scheduler.RegisterAll(jobs); err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to register sweep jobs: %w", err)
		}
	} else {
		logger.Warn("Retention sweeps disabled")
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

func newBackplane(cfg config.BroadcastConfig, logger *slog.Logger) (events.Backplane, error) {
	switch cfg.Backend {
	case "nats":
		natsCfg := events.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.BufferSize = cfg.BufferSize
		natsCfg.Logger = logger
		bp, err := events.NewNATSBackplane(natsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect NATS backplane: %w", err)
		}
		return bp, nil
	case "memory", "":
		return events.NewMemoryBackplane(cfg.BufferSize), nil
	default:
		return nil, fmt.Errorf("unknown broadcast backend %q", cfg.Backend)
	}
}

// Run listens on the configured port and serves until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		app.cleanup()
		return fmt.Errorf("failed to listen: %w", err)
	}
	return app.serve(ctx, ln)
}

// serve runs the HTTP server, the bus relay, and the sweep scheduler until
// ctx is cancelled or one of them fails, then releases every resource.
func (app *application) serve(ctx context.Context, ln net.Listener) error {
	defer app.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.bus.Run(gctx)
	})
	if app.scheduler != nil {
		g.Go(func() error {
			return app.scheduler.Run(gctx)
		})
	}
	g.Go(func() error {
		return app.startHTTPServer(gctx, ln, app.setupRouter())
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup closes the hub, the backplane, and the database. It is safe to
// call on a partly initialized application.
func (app *application) cleanup() {
	if app.hub != nil {
		app.hub.Close()
	}
	if app.backplane != nil {
		if err := app.backplane.Close(); err != nil {
			app.logger.Error("Error closing event backplane", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
	app.logger.Info("Application shutdown completed")
}
