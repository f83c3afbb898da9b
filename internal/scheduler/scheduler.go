package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrAlreadyStarted is returned when jobs are registered or the scheduler is
// started a second time after Start.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Job is a unit of periodic work.
type Job struct {
	// Name identifies the job in logs. Must be unique per scheduler.
	Name string

	// Interval between the end of one scheduled tick and the next.
	Interval time.Duration

	// Run performs one pass. The context is cancelled when the scheduler stops.
	Run func(ctx context.Context) error
}

// Scheduler manages periodic jobs.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	started bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
	logger *slog.Logger

	// errHandler is called after a failed or panicking run.
	errHandler func(job string, err error)
}

// New creates an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scheduler"))
	return &Scheduler{
		logger: logger,
		errHandler: func(job string, err error) {
			logger.Error("job failed", "job", job, "error", err)
		},
	}
}

// SetErrorHandler replaces the default error handler, which only logs.
func (s *Scheduler) SetErrorHandler(handler func(job string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errHandler = handler
}

// Register adds a job. It must be called before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: run function is required", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	for _, j := range s.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("job %s: already registered", job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches every registered job. Jobs stop when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// in-flight runs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop cancels all jobs and waits for in-flight runs to return.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	log := s.logger.With("job", job.Name)
	log.Debug("starting job loop", "interval", job.Interval)

	s.runOnce(ctx, job, log)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("stopping job loop")
			return
		case <-ticker.C:
			s.runOnce(ctx, job, log)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job, log *slog.Logger) {
	start := time.Now()
	err := safeRun(ctx, job)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			log.Debug("job interrupted by shutdown", "duration", elapsed)
			return
		}
		s.mu.Lock()
		handler := s.errHandler
		s.mu.Unlock()
		handler(job.Name, err)
		return
	}
	log.Debug("job completed", "duration", elapsed)
}

// safeRun converts a panic in job.Run into an error.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v\n%s", job.Name, r, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
