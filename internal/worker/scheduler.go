package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"fintrack/internal/log"
)

const (
	DefaultSyncSchedule   = "*/5 * * * *"
	DefaultDigestSchedule = "0 8 * * *"

	jobTimeout = 5 * time.Minute
)

// Scheduler runs the periodic sweep and the daily digest.
type Scheduler struct {
	cron   *cron.Cron
	worker *SyncWorker
	logger *log.Logger
}

func NewScheduler(w *SyncWorker, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default().WithComponent(log.ComponentScheduler)
	}
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	return &Scheduler{cron: c, worker: w, logger: logger}
}

// Start registers both jobs with standard five-field specs and starts the
// scheduler. An empty spec disables that job.
func (s *Scheduler) Start(syncSpec, digestSpec string) error {
	if syncSpec != "" {
		if _, err := s.cron.AddFunc(syncSpec, s.sweep); err != nil {
			return err
		}
	}
	if digestSpec != "" {
		if _, err := s.cron.AddFunc(digestSpec, s.digest); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("Cron scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop halts scheduling; the returned context is done once running jobs
// finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Cron scheduler stopping")
	return s.cron.Stop()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.worker.SweepPending(ctx); err != nil {
		s.logger.Error("Periodic sync failed", log.FieldError, err)
	}
}

func (s *Scheduler) digest() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.worker.Digest(ctx); err != nil {
		s.logger.Error("Insight digest failed", log.FieldError, err)
	}
}
