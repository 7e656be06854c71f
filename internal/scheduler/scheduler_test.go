package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerith/agentd/internal/eventbus"
	"github.com/nerith/agentd/internal/journal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestScheduler(t *testing.T) (*Scheduler, *journal.Journal) {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	bus := eventbus.New(nil, 100)
	s, err := New(j, bus, nil)
	require.NoError(t, err)
	return s, j
}

func TestTaskNotDueBeforeInterval(t *testing.T) {
	s, _ := newTestScheduler(t)
	start := time.Now()

	var runs int32
	s.Register(&Task{
		Name:     "probe",
		Interval: 30 * time.Minute,
		Run:      func(ctx context.Context) error { atomic.AddInt32(&runs, 1); return nil },
	}, start)

	s.runDue(context.Background(), start.Add(29*time.Minute))
	require.Equal(t, int32(0), atomic.LoadInt32(&runs))
}

func TestTaskRunsOnceAfterIntervalElapses(t *testing.T) {
	s, _ := newTestScheduler(t)
	start := time.Now()

	var runs int32
	s.Register(&Task{
		Name:     "probe",
		Interval: 30 * time.Minute,
		Run:      func(ctx context.Context) error { atomic.AddInt32(&runs, 1); return nil },
	}, start)

	firstDue := start.Add(31 * time.Minute)
	s.runDue(context.Background(), firstDue)
	require.Equal(t, int32(1), atomic.LoadInt32(&runs))

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, firstDue.Add(30*time.Minute), tasks[0].NextRun())

	// Not due again immediately.
	s.runDue(context.Background(), firstDue.Add(time.Minute))
	require.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestTasksRunInPriorityOrder(t *testing.T) {
	s, _ := newTestScheduler(t)
	start := time.Now()

	var order []string
	record := func(name string) TaskFunc {
		return func(ctx context.Context) error { order = append(order, name); return nil }
	}

	s.Register(&Task{Name: "low", Priority: 3, Interval: time.Minute, Run: record("low")}, start)
	s.Register(&Task{Name: "high", Priority: 1, Interval: time.Minute, Run: record("high")}, start)
	s.Register(&Task{Name: "mid", Priority: 2, Interval: time.Minute, Run: record("mid")}, start)

	s.runDue(context.Background(), start.Add(2*time.Minute))
	require.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestFailingTaskDoesNotStopOthersOrLoop(t *testing.T) {
	s, j := newTestScheduler(t)
	start := time.Now()

	var goodRan bool
	s.Register(&Task{
		Name: "bad", Priority: 1, Interval: time.Minute,
		Run: func(ctx context.Context) error { panic("boom") },
	}, start)
	s.Register(&Task{
		Name: "good", Priority: 2, Interval: time.Minute,
		Run: func(ctx context.Context) error { goodRan = true; return nil },
	}, start)

	require.NotPanics(t, func() {
		s.runDue(context.Background(), start.Add(2*time.Minute))
	})
	require.True(t, goodRan)

	actions, err := j.RecentActions(10)
	require.NoError(t, err)
	require.Len(t, actions, 2)
}

func TestRunAndStopCleanShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestScheduler(t)
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, s.IsRunning, time.Second, 10*time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	require.False(t, s.IsRunning())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, s.IsRunning, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
