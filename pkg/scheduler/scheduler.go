package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

// Job is a maintenance task run on a fixed interval.
type Job struct {
	Name     string
	Schedule string
	Func     func(ctx context.Context) error
}

type Scheduler struct {
	jobs    []entry
	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

type entry struct {
	job      Job
	interval time.Duration
	next     time.Time
	busy     bool
}

func New() *Scheduler {
	return &Scheduler{
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

func (s *Scheduler) Add(job Job) error {
	if job.Func == nil {
		return fmt.Errorf("scheduler: job %q has no func", job.Name)
	}
	interval, err := parseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = append(s.jobs, entry{
		job:      job,
		interval: interval,
		next:     s.now().Add(interval),
	})
	return nil
}

// Len reports the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start runs due jobs until ctx is done or Stop is called, then waits for
// running jobs to return. Start after Stop returns at once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()

	logger := telemetry.FromContext(ctx).With(slog.String("component", "scheduler"))
	logger.Info("scheduler started", slog.Int("jobs", n))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx, s.now(), logger)
		}
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		close(s.stopCh)
		s.stopped = true
	}
}

// RunNow runs every job once, synchronously, and returns the first error.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	for i, e := range s.jobs {
		jobs[i] = e.job
	}
	s.mu.Unlock()

	var first error
	for _, j := range jobs {
		if err := s.run(ctx, j, telemetry.FromContext(ctx)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Scheduler) tick(ctx context.Context, now time.Time, logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		e := &s.jobs[i]
		if e.busy || now.Before(e.next) {
			continue
		}

		e.next = now.Add(e.interval)
		e.busy = true
		s.wg.Add(1)
		go func(idx int, j Job) {
			defer s.wg.Done()
			_ = s.run(ctx, j, logger)
			s.mu.Lock()
			s.jobs[idx].busy = false
			s.mu.Unlock()
		}(i, e.job)
	}
}

func (s *Scheduler) run(ctx context.Context, j Job, logger *slog.Logger) error {
	start := time.Now()
	err := j.Func(ctx)
	if err != nil {
		telemetry.Metrics.ErrorsTotal.WithLabelValues("scheduler").Inc()
		logger.Error("job failed",
			slog.String("job", j.Name),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("scheduler: job %q: %w", j.Name, err)
	}
	logger.Debug("job finished",
		slog.String("job", j.Name),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func parseSchedule(s string) (time.Duration, error) {
	switch s {
	case "@hourly":
		return time.Hour, nil
	case "@daily":
		return 24 * time.Hour, nil
	case "@weekly":
		return 7 * 24 * time.Hour, nil
	}

	if rest, ok := strings.CutPrefix(s, "@every "); ok {
		s = rest
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	return d, nil
}
