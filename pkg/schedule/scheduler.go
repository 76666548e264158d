package schedule

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// TaskFunc is one run of a maintenance task.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	schedule Schedule
	fn       TaskFunc
	running  atomic.Bool
	lastRun  time.Time
}

// Scheduler runs registered tasks when their schedule comes due. A task
// whose previous run is still going is skipped for that tick.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	tick   time.Duration
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler that checks its tasks every tick.
func NewScheduler(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		tasks:  make(map[string]*task),
		tick:   tick,
		logger: slog.Default(),
	}
}

// Register adds or replaces the task called name.
func (s *Scheduler) Register(name string, sched Schedule, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = &task{name: name, schedule: sched, fn: fn}
}

// Tasks returns the registered task names, sorted.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start runs due tasks until ctx is cancelled, then waits for in-flight
// runs. Every task is due on the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if now.Before(t.schedule.Next(t.lastRun)) {
			continue
		}
		if !t.running.CompareAndSwap(false, true) {
			s.logger.Debug("scheduled task still running", "task", t.name)
			continue
		}
		t.lastRun = now

		s.wg.Add(1)
		go func(t *task) {
			defer s.wg.Done()
			defer t.running.Store(false)

			start := time.Now()
			if err := t.fn(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled task failed", "task", t.name, "error", err)
				return
			}
			s.logger.Debug("scheduled task finished", "task", t.name, "duration", time.Since(start))
		}(t)
	}
}
