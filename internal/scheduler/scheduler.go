package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"rightblock/internal/models"
	"rightblock/internal/store"
)

// JobFunc is one periodic task
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	spec string
	fn   JobFunc
}

// Scheduler runs the controller's periodic tasks
type Scheduler struct {
	cron      *cron.Cron
	log       *zap.Logger
	mu        sync.Mutex
	jobs      map[string]job
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
}

// NewScheduler creates a new scheduler. A job still running when its next
// tick fires skips that tick.
func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log,
		jobs: make(map[string]job),
	}
}

// Add registers fn under name with a cron spec such as "@every 5s"
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("scheduler: duplicate job %q", name)
	}
	j := job{name: name, spec: spec, fn: fn}
	if _, err := s.cron.AddFunc(spec, func() { s.run(j) }); err != nil {
		return fmt.Errorf("scheduler: job %q: %w", name, err)
	}
	s.jobs[name] = j
	return nil
}

// Start starts the scheduler; jobs stop when ctx ends or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.isRunning = true
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow runs a registered job once on the caller's goroutine
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return j.fn(ctx)
}

func (s *Scheduler) run(j job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if err := j.fn(ctx); err != nil {
		s.log.Warn("scheduled job failed", zap.String("job", j.name), zap.Error(err))
	}
}

// Scanner is the part of the selection scanner the fallback scan needs
type Scanner interface {
	Scan(ctx context.Context) (int, error)
}

// ScanJob rescans the page in case a mutation event was missed
func ScanJob(sc Scanner, log *zap.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := sc.Scan(ctx)
		if err != nil {
			return err
		}
		if n > 0 && log != nil {
			log.Debug("fallback scan added markers", zap.Int("count", n))
		}
		return nil
	}
}

// InvalidateJob drops cached copies of keys other contexts write, then
// asks for a refresh
func InvalidateJob(s *store.Store, refresh func()) JobFunc {
	return func(ctx context.Context) error {
		s.InvalidateAll(models.SharedKeys)
		if refresh != nil {
			refresh()
		}
		return nil
	}
}
