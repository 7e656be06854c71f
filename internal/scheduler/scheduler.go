// Package scheduler implements the Autonomous Scheduler described in
// spec.md §4.4: a priority-ordered, interval-driven task registry that
// ticks once a minute, runs due tasks serially, and isolates task
// failures so one broken task never stops the loop. Adapted from the
// teacher's ticker/select idiom (e.g. cmd/nerd/system_results.go). Task
// cadences are plain interval arithmetic and the tick is a time.Ticker;
// robfig/cron/v3 only parses the tick expression when New runs.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerith/agentd/internal/eventbus"
	"github.com/nerith/agentd/internal/journal"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TickInterval is how often the scheduler checks for due tasks (spec.md
// §4.4: 60 seconds).
const TickInterval = 60 * time.Second

// TaskFunc is the work a scheduled task performs.
type TaskFunc func(ctx context.Context) error

// Task is one registered, recurring unit of work.
type Task struct {
	Name     string
	Priority int // lower runs first among tasks simultaneously due
	Interval time.Duration
	Run      TaskFunc
	Enabled  bool // spec.md §4.4 register(..., enabled=true); disabled tasks are never due

	lastRun time.Time
	nextRun time.Time
}

// NextRun reports when this task is next due.
func (t *Task) NextRun() time.Time { return t.nextRun }

// LastRun reports when this task last completed (zero if never run).
func (t *Task) LastRun() time.Time { return t.lastRun }

// Scheduler owns the task registry and the tick loop.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []*Task
	journal *journal.Journal
	bus     *eventbus.Bus
	log     *zap.SugaredLogger

	schedule cron.Schedule // parsed "@every 1m" tick expression; the loop ticks on TickInterval
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// New creates a Scheduler. The cron schedule parser is used purely to
// validate/compute the tick cadence expression; task cadences themselves
// are plain intervals per spec.md §4.4.
func New(j *journal.Journal, bus *eventbus.Bus, log *zap.SugaredLogger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	sched, err := cron.ParseStandard("@every 1m")
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		journal:  j,
		bus:      bus,
		log:      log,
		schedule: sched,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Register adds a task to the registry, matching spec.md §4.4's
// register(name, fn, interval, priority, enabled=true). now is the
// reference time used to compute the task's first due time (normally
// time.Now). enabled follows Go's variadic-default convention: omit it
// to get the spec's enabled=true default.
func (s *Scheduler) Register(task *Task, now time.Time, enabled ...bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.Enabled = true
	if len(enabled) > 0 {
		task.Enabled = enabled[0]
	}
	task.nextRun = now.Add(task.Interval)
	s.tasks = append(s.tasks, task)
}

// SetEnabled flips a registered task's enabled flag by name, implementing
// the runtime half of spec.md §4.4's enabled switch. Returns false if no
// task with that name is registered.
func (s *Scheduler) SetEnabled(name string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Name == name {
			t.Enabled = enabled
			return true
		}
	}
	return false
}

// Tasks returns a snapshot of the registered tasks, priority-ordered.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, len(s.tasks))
	copy(out, s.tasks)
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// TaskStatus is one row of task_status()'s snapshot (spec.md §4.4:
// "last run, next run, enabled flag").
type TaskStatus struct {
	Name     string
	Priority int
	LastRun  time.Time
	NextRun  time.Time
	Enabled  bool
}

// TaskStatus reports last run, next run, and enabled flag for every
// registered task, priority-ordered.
func (s *Scheduler) TaskStatus() []TaskStatus {
	tasks := s.Tasks()
	out := make([]TaskStatus, len(tasks))
	for i, t := range tasks {
		out[i] = TaskStatus{
			Name:     t.Name,
			Priority: t.Priority,
			LastRun:  t.LastRun(),
			NextRun:  t.NextRun(),
			Enabled:  t.Enabled,
		}
	}
	return out
}

// Run starts the tick loop and blocks until ctx is cancelled or Stop is
// called. Due tasks run serially in priority order; a panicking or
// erroring task is caught, logged, and rescheduled for its next
// interval — it never stops the loop (spec.md §4.4).
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	s.bus.Publish(eventbus.Event{Type: eventbus.TypeStartup, Source: "scheduler"})

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

// Stop requests a cooperative shutdown and waits for the loop to exit.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	due := s.dueTasks(now)
	for _, t := range due {
		s.runOne(ctx, t, now)
	}
}

func (s *Scheduler) dueTasks(now time.Time) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Task
	for _, t := range s.tasks {
		if t.Enabled && !now.Before(t.nextRun) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Priority < due[j].Priority })
	return due
}

func (s *Scheduler) runOne(ctx context.Context, t *Task, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("scheduled task panicked", "task", t.Name, "panic", r)
			s.journal.LogAction("scheduled_task:"+t.Name, "panic recovered", journal.OutcomeError, 0)
		}
		s.mu.Lock()
		t.lastRun = now
		t.nextRun = now.Add(t.Interval)
		s.mu.Unlock()
	}()

	if err := t.Run(ctx); err != nil {
		s.log.Warnw("scheduled task failed", "task", t.Name, "error", err)
		s.journal.LogAction("scheduled_task:"+t.Name, err.Error(), journal.OutcomeError, 0)
		return
	}
	s.journal.LogAction("scheduled_task:"+t.Name, "completed on schedule", journal.OutcomeCompleted, 0)
}

// IsRunning reports whether the tick loop is currently active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
