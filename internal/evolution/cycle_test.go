package evolution

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerith/agentd/internal/diagnosis"
	"github.com/nerith/agentd/internal/eventbus"
	"github.com/nerith/agentd/internal/journal"
	"github.com/nerith/agentd/internal/ledger"
	"github.com/nerith/agentd/internal/router"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *journal.Journal, *eventbus.Bus) {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	bus := eventbus.New(nil, 100)
	d := diagnosis.New(j, nil, t.TempDir(), nil)
	forge := NewForge(filepath.Join(t.TempDir(), "tools"), j, bus, nil, nil)
	modifier := NewModuleModifier(filepath.Join(t.TempDir(), "backups"))
	return NewEngine(d, forge, modifier, j, bus, nil, t.TempDir(), nil), j, bus
}

// newTestEngineWithRouter wires a fake backend that always classifies
// Execute tasks as "analyze", so the end-to-end test drives a full
// Execute phase without depending on a real model.
func newTestEngineWithRouter(t *testing.T) (*Engine, *journal.Journal, *eventbus.Bus) {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	bus := eventbus.New(nil, 100)
	l := ledger.New(j, bus, 10.0, nil)
	r := router.New(j, l, []router.BackendInfo{
		{ID: "local", Capabilities: []string{"coding", "planning", "analysis", "general"}, Pricing: ledger.BackendPricing{IsLocal: true, CostPerToken: 0.000001}},
	}, nil)
	r.RegisterBackend("local", &forgeFakeBackend{text: "analyze"})

	d := diagnosis.New(j, r, t.TempDir(), nil)
	forge := NewForge(filepath.Join(t.TempDir(), "tools"), j, bus, r, nil)
	modifier := NewModuleModifier(filepath.Join(t.TempDir(), "backups"))
	return NewEngine(d, forge, modifier, j, bus, r, t.TempDir(), nil), j, bus
}

// TestEvolutionSkipsWhenGateNotMet implements the "Evolution skip"
// scenario: a quiet journal with no errors, bottlenecks, or recurring
// failures should complete the cycle without evolving.
func TestEvolutionSkipsWhenGateNotMet(t *testing.T) {
	e, _, bus := newTestEngine(t)

	var completedEvents []eventbus.Event
	bus.Subscribe(func(evt eventbus.Event) {
		if evt.Type == eventbus.TypeEvolutionCompleted {
			completedEvents = append(completedEvents, evt)
		}
	})

	cycle, err := e.RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, StateCompleted, cycle.State)
	require.Empty(t, cycle.Executed)

	require.Len(t, completedEvents, 1)
	require.Equal(t, false, completedEvents[0].Data["evolved"])
}

// TestEvolutionEndToEndWhenGated implements the "Evolution end-to-end"
// scenario: enough distinct recurring failures to trip the
// opportunity-count gate drives the cycle through Plan/Prioritize/Execute
// and records the last-cycle timestamp.
func TestEvolutionEndToEndWhenGated(t *testing.T) {
	e, j, bus := newTestEngineWithRouter(t)

	for a := 0; a < ForcedOpportunityThreshold; a++ {
		for i := 0; i <= diagnosis.RecurrenceThreshold; i++ {
			_, err := j.LogAction(fmt.Sprintf("flaky_call_%d", a), "boom", journal.OutcomeError, 0)
			require.NoError(t, err)
		}
	}

	var startedEvents, completedEvents []eventbus.Event
	bus.Subscribe(func(evt eventbus.Event) {
		switch evt.Type {
		case eventbus.TypeEvolutionStarted:
			startedEvents = append(startedEvents, evt)
		case eventbus.TypeEvolutionCompleted:
			completedEvents = append(completedEvents, evt)
		}
	})

	now := time.Now()
	cycle, err := e.RunCycle(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, cycle.State)
	require.NotEmpty(t, cycle.Executed)

	require.Len(t, startedEvents, 1)
	require.Len(t, completedEvents, 1)
	require.Equal(t, true, completedEvents[0].Data["evolved"])

	last, err := j.GetState(lastCycleStateKey)
	require.NoError(t, err)
	require.Equal(t, now.Format(time.RFC3339), last)
}

func TestRunCycleTracksCurrentCycle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.Nil(t, e.CurrentCycle())

	cycle, err := e.RunCycle(context.Background(), time.Now())
	require.NoError(t, err)
	require.Same(t, cycle, e.CurrentCycle())
}
