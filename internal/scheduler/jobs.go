package scheduler

import (
	"context"
	"log/slog"

	"github.com/cpcomms/dispatch/internal/config"
	"github.com/cpcomms/dispatch/internal/service"
)

// Job names.
const (
	JobRepairCompletions = "repair-completions"
	JobExpireRejections  = "expire-rejections"
	JobExpireHistory     = "expire-history"
	JobPurgeMessages     = "purge-messages"
)

// SweepJobs builds the retention jobs for engine from cfg.
func SweepJobs(engine *service.ArchivalEngine, cfg config.SweepConfig, logger *slog.Logger) []Job {
	if logger == nil {
		logger = slog.Default()
	}
	logCount := func(name string, n int64) {
		if n > 0 {
			logger.Info("sweep removed rows", "job", name, "count", n)
		}
	}

	return []Job{
		{
			Name:     JobRepairCompletions,
			Interval: cfg.RejectedInterval,
			Run: func(ctx context.Context) error {
				n, err := engine.RepairCompletions(ctx)
				logCount(JobRepairCompletions, int64(n))
				return err
			},
		},
		{
			Name:     JobExpireRejections,
			Interval: cfg.RejectedInterval,
			Run: func(ctx context.Context) error {
				n, err := engine.ExpireRejections(ctx)
				logCount(JobExpireRejections, int64(n))
				return err
			},
		},
		{
			Name:     JobExpireHistory,
			Interval: cfg.HistoryInterval,
			Run: func(ctx context.Context) error {
				n, err := engine.ExpireHistory(ctx)
				logCount(JobExpireHistory, n)
				return err
			},
		},
		{
			Name:     JobPurgeMessages,
			Interval: cfg.MessageInterval,
			Run: func(ctx context.Context) error {
				n, err := engine.PurgeMessages(ctx)
				logCount(JobPurgeMessages, n)
				return err
			},
		},
	}
}

// RegisterAll registers jobs in order, stopping at the first error.
func (s *Scheduler) RegisterAll(jobs []Job) error {
	for _, j := range jobs {
		if err := s.Register(j); err != nil {
			return err
		}
	}
	return nil
}
