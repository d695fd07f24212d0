// Package jobs runs recurring background work of the fixture API, such as persisting
// the store between shutdowns.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is the work of a schedule
type Func func(ctx context.Context) error

// Schedule describes a recurring job
type Schedule struct {
	Name     string
	Interval time.Duration
	LastRun  time.Time
	NextRun  time.Time
	Runs     int
	// LastError is the error of the latest run, nil after a success
	LastError error

	fn Func
}

// Scheduler runs every added schedule at its interval until stopped
type Scheduler struct {
	logger *zap.Logger
	tick   time.Duration
	now    func() time.Time

	mu        sync.Mutex
	schedules map[string]*Schedule
	started   bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler creates a scheduler checking for due schedules every tick
func NewScheduler(tick time.Duration, logger *zap.Logger) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger:    logger,
		tick:      tick,
		now:       time.Now,
		schedules: make(map[string]*Schedule),
		stopChan:  make(chan struct{}),
	}
}

// Add registers fn to run every interval, first one interval from now
func (s *Scheduler) Add(name string, interval time.Duration, fn Func) error {
	if name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if fn == nil {
		return fmt.Errorf("schedule %s has no function", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[name]; exists {
		return fmt.Errorf("schedule already exists: %s", name)
	}
	s.schedules[name] = &Schedule{
		Name:     name,
		Interval: interval,
		NextRun:  s.now().Add(interval),
		fn:       fn,
	}
	s.logger.Debug("schedule added", zap.String("name", name), zap.Duration("interval", interval))
	return nil
}

// Schedules returns copies of the schedules sorted by name
func (s *Scheduler) Schedules() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start runs the scheduler loop until Stop or ctx ends
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the loop and waits for a running job to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx, s.now())
		}
	}
}

// runDue runs the schedules whose NextRun has passed. Jobs run outside the lock.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*Schedule
	for _, sched := range s.schedules {
		if !now.Before(sched.NextRun) {
			due = append(due, sched)
		}
	}
	s.mu.Unlock()

	for _, sched := range due {
		err := sched.fn(ctx)
		if err != nil {
			s.logger.Warn("scheduled job failed", zap.String("name", sched.Name), zap.Error(err))
		}

		s.mu.Lock()
		sched.LastRun = now
		sched.NextRun = now.Add(sched.Interval)
		sched.Runs++
		sched.LastError = err
		s.mu.Unlock()
	}
}
