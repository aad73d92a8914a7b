package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"coffeeleaf/internal/logger"
)

// Job is a named unit of periodic work.
type Job func(ctx context.Context) error

// Scheduler runs registered jobs on cron schedules in UTC.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger

	mu      sync.Mutex
	jobs    map[string]Job
	running bool
}

func New(log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
		log:    logger.OrNop(log).With("component", "scheduler"),
		jobs:   make(map[string]Job),
	}
}

// Add registers job under name on a standard five-field cron spec. An empty
// spec leaves the job registered for RunNow only.
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { _ = s.run(name, job) }); err != nil {
			return fmt.Errorf("scheduler: job %q: %w", name, err)
		}
	}
	s.jobs[name] = job
	s.log.Info("job registered", "job", name, "schedule", spec)
	return nil
}

// RunNow runs a registered job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) error {
	started := time.Now()
	s.log.Debug("job triggered", "job", name)
	if err := job(s.ctx); err != nil {
		s.log.Error("job failed", "job", name, "error", err)
		return err
	}
	s.log.Info("job finished", "job", name, "took", time.Since(started).String())
	return nil
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop waits for running jobs to finish, then cancels their context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		<-s.cron.Stop().Done()
	}
	s.cancel()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && len(s.cron.Entries()) > 0
}
