package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is the periodic work the scheduler triggers
type Job interface {
	Run(ctx context.Context) error
}

// cronParser accepts standard 5-field expressions (minute, hour, dom, month, dow)
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs a job on a cron schedule
type Scheduler struct {
	job      Job
	schedule cron.Schedule
	expr     string
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// New creates a new scheduler for a cron expression
func New(job Job, expr string, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", expr, err)
	}
	return &Scheduler{
		job:      job,
		schedule: schedule,
		expr:     expr,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Next returns the first fire time after t
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("monitoring scheduler started", "schedule", s.expr)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("monitoring scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		timer := time.NewTimer(time.Until(s.schedule.Next(time.Now())))
		select {
		case <-timer.C:
			s.process(ctx)
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) process(ctx context.Context) {
	s.logger.Debug("running monitoring digest")

	if err := s.job.Run(ctx); err != nil {
		s.logger.Error("monitoring digest failed", "error", err)
	}
}
