package evolution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nerith/agentd/internal/diagnosis"
	"github.com/nerith/agentd/internal/eventbus"
	"github.com/nerith/agentd/internal/journal"
	"github.com/nerith/agentd/internal/router"
	"go.uber.org/zap"
)

// lastCycleStateKey is the journal system_state key holding the
// timestamp of the most recently completed cycle, consulted by the
// gating rule's 7-day trigger.
const lastCycleStateKey = "evolution_last_cycle_at"

// maxDiagnosisTasksMerged and topPriorityTasks bound the Plan and Prioritize phases
// (spec.md §4.6: "merge ... diagnosis's recommended actions (up to 5)"
// and "Take the top 3").
const (
	maxDiagnosisTasksMerged = 5
	topPriorityTasks        = 3
)

// Engine drives the six-phase pipeline end to end. Grounded on the
// teacher's OuroborosLoop.ExecuteWithConfig: a single entry point that
// walks a fixed stage sequence, recording a result/error at each step,
// rather than a generic workflow engine.
type Engine struct {
	diagnosis *diagnosis.Diagnosis
	forge     *Forge
	modifier  *ModuleModifier
	journal   *journal.Journal
	bus       *eventbus.Bus
	router    *router.Router // nil-tolerant: Plan/Prioritize/Execute degrade to non-router fallbacks
	dataDir   string         // holds evolution.json, evolution_knowledge.json, evolution_checkpoint.json
	log       *zap.SugaredLogger

	mu      sync.Mutex
	current *Cycle
}

// NewEngine creates an Engine wired to its collaborating subsystems. r may
// be nil (Plan/Prioritize/Execute fall back to non-router behavior).
func NewEngine(d *diagnosis.Diagnosis, forge *Forge, modifier *ModuleModifier, j *journal.Journal, bus *eventbus.Bus, r *router.Router, dataDir string, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{diagnosis: d, forge: forge, modifier: modifier, journal: j, bus: bus, router: r, dataDir: dataDir, log: log}
}

// CurrentCycle returns the most recently started cycle, or nil if none
// has run yet.
func (e *Engine) CurrentCycle() *Cycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) lastCycleAt() time.Time {
	val, err := e.journal.GetState(lastCycleStateKey)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}
	}
	return t
}

// RunCycle executes the Diagnose phase and, if the gating rule passes,
// the remaining five phases in order: Plan, Prioritize, Execute,
// Integrate & Test, Reflect & Cleanup. Returns the completed (or
// gated-off) Cycle.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (*Cycle, error) {
	cycle := &Cycle{ID: uuid.NewString(), State: StateRunning, Phase: PhaseDiagnose, StartedAt: now}

	e.mu.Lock()
	e.current = cycle
	e.mu.Unlock()

	full, err := e.diagnosis.PerformFullDiagnosis(ctx, now)
	if err != nil {
		return e.fail(cycle, now, fmt.Errorf("diagnose: %w", err))
	}

	shouldEvolve := ShouldEvolve(GateInput{
		ErrorRate:        full.Performance.ErrorRate,
		BottleneckCount:  len(full.Bottlenecks),
		OpportunityCount: len(full.Opportunities),
		LastCycleAt:      e.lastCycleAt(),
	}, now)

	if !shouldEvolve {
		cycle.State = StateCompleted
		cycle.CompletedAt = now
		e.publish(eventbus.TypeEvolutionCompleted, cycle, map[string]any{"evolved": false})
		return cycle, nil
	}

	if err := writeCheckpoint(e.checkpointPath(), Checkpoint{CycleID: cycle.ID, CreatedAt: now}); err != nil {
		e.log.Warnw("evolution: failed to write checkpoint", "cycle", cycle.ID, "error", err)
	}

	cycle.Phase = PhasePlan
	tier := e.currentFocusTier()
	cycle.Opportunities = planOpportunities(full)
	cycle.Tasks = e.plan(ctx, tier, full)

	cycle.Phase = PhasePrioritize
	cycle.Tasks = e.prioritize(ctx, full, cycle.Tasks)

	cycle.Phase = PhaseExecute
	e.publish(eventbus.TypeEvolutionStarted, cycle, map[string]any{"tasks": len(cycle.Tasks)})
	for i, t := range cycle.Tasks {
		if i > 0 {
			time.Sleep(interTaskDelay)
		}
		result := e.executeTask(ctx, t)
		cycle.TaskResults = append(cycle.TaskResults, result)
		if result.Success {
			cycle.Tasks[i].Status = TaskDone
			cycle.Executed = append(cycle.Executed, t.Name)
		} else {
			cycle.Tasks[i].Status = TaskFailed
			e.log.Warnw("evolution task execution failed", "task", t.Name, "errors", result.Errors)
		}
	}

	cycle.Phase = PhaseIntegrateAndTest
	cycle.Tests = e.integrateAndTest(ctx)

	cycle.Phase = PhaseReflectAndCleanup
	lessons, err := e.reflectAndCleanup(cycle.TaskResults, cycle.Tests, now)
	cycle.Lessons = lessons
	if err != nil {
		return e.fail(cycle, now, fmt.Errorf("reflect_and_cleanup: %w", err))
	}
	if err := e.journal.SetState(lastCycleStateKey, now.Format(time.RFC3339)); err != nil {
		return e.fail(cycle, now, fmt.Errorf("reflect_and_cleanup: %w", err))
	}

	cycle.State = statusFromPhaseOutcomes(cycle)
	cycle.CompletedAt = now
	e.publish(eventbus.TypeEvolutionCompleted, cycle, map[string]any{"evolved": true, "executed": len(cycle.Executed), "state": string(cycle.State)})
	return cycle, nil
}

// statusFromPhaseOutcomes derives the final state from the Execute and
// Integrate & Test outcomes: each unsuccessful TaskResult counts as one
// failure, and a test report with any failed test counts as one more.
// More than two failures yield StateFailed; otherwise the cycle is
// StateCompleted (there is no separate "partial" state; Tests/TaskResults
// carry the detail). A cycle that fails outright returns early via e.fail
// instead of reaching this function.
func statusFromPhaseOutcomes(cycle *Cycle) State {
	failedPhases := 0
	for _, r := range cycle.TaskResults {
		if !r.Success {
			failedPhases++
		}
	}
	if cycle.Tests.TestsFailed > 0 {
		failedPhases++
	}
	if failedPhases > 2 {
		return StateFailed
	}
	return StateCompleted
}

// currentFocusTier reads the hierarchy-of-needs current focus, falling
// back to defaultTier when none is set (fresh install) or the read fails.
func (e *Engine) currentFocusTier() journal.NeedsTier {
	tier, err := e.journal.CurrentFocusTier()
	if err != nil {
		return defaultTier
	}
	return *tier
}

// plan implements phase 2 (spec.md §4.6 Plan): 3 goals keyed to the
// current tier, a router prompt per goal parsed into tasks, merged with
// up to maxDiagnosisTasksMerged direct tasks from the diagnosis
// recommendations, all assigned TaskPending, then persisted to the plan
// history file.
func (e *Engine) plan(ctx context.Context, tier journal.NeedsTier, full diagnosis.FullDiagnosis) []Task {
	var tasks []Task
	for _, goal := range goalsForTier(tier.Tier) {
		tasks = append(tasks, e.planTasksForGoal(ctx, tier.Name, goal)...)
	}

	for i, rec := range full.Plan.Recommendations {
		if i >= maxDiagnosisTasksMerged {
			break
		}
		tasks = append(tasks, Task{Name: fmt.Sprintf("diagnosis_task_%d", i+1), Description: rec, Status: TaskPending})
	}

	if err := appendPlanHistory(e.planHistoryPath(), PlanRecord{
		CycleID: e.safeCurrentCycleID(), CreatedAt: time.Now(), Tier: tier.Tier, TierName: tier.Name, Tasks: tasks,
	}); err != nil {
		e.log.Warnw("evolution: failed to persist plan history", "error", err)
	}

	return tasks
}

func (e *Engine) safeCurrentCycleID() string {
	if c := e.CurrentCycle(); c != nil {
		return c.ID
	}
	return ""
}

// planTasksForGoal asks the router for 2-3 concrete tasks advancing goal;
// a nil router or parse-empty response yields no tasks for that goal
// rather than failing the phase.
func (e *Engine) planTasksForGoal(ctx context.Context, tierName, goal string) []Task {
	if e.router == nil {
		return nil
	}
	text, err := e.router.Ask(ctx, "planning", router.ComplexityMedium, planTaskPrompt(tierName, goal), "")
	if err != nil {
		e.log.Warnw("evolution: plan phase router call failed", "goal", goal, "error", err)
		return nil
	}
	return parsePlanTasks(text)
}

// prioritize implements phase 3 (spec.md §4.6 Prioritize): one router
// prompt listing diagnosis items and plan task names, reordered by the
// parsed rank, then truncated to the top topPriorityTasks. A nil router
// or an unparseable response leaves the original (plan) order.
func (e *Engine) prioritize(ctx context.Context, full diagnosis.FullDiagnosis, tasks []Task) []Task {
	if e.router != nil {
		var diagnosisItems []string
		for _, o := range full.Opportunities {
			diagnosisItems = append(diagnosisItems, o.Action)
		}
		var names []string
		for _, t := range tasks {
			names = append(names, t.Name)
		}
		text, err := e.router.Ask(ctx, "planning", router.ComplexityMedium, prioritizePrompt(diagnosisItems, names), "")
		if err != nil {
			e.log.Warnw("evolution: prioritize phase router call failed", "error", err)
		} else if ranked := parseRankedNames(text); len(ranked) > 0 {
			tasks = reorderTasks(tasks, ranked)
		}
	}
	if len(tasks) > topPriorityTasks {
		tasks = tasks[:topPriorityTasks]
	}
	return tasks
}

// planOpportunities converts a full diagnosis's bottlenecks and
// recurring failures into evolution Opportunities, retained alongside
// Tasks as a record of what the Diagnose phase actually found (spec.md
// §4.6 distinguishes "diagnosis items" from the tasks Plan/Prioritize
// produce from them).
func planOpportunities(full diagnosis.FullDiagnosis) []Opportunity {
	var opportunities []Opportunity
	for i, b := range full.Bottlenecks {
		opportunities = append(opportunities, Opportunity{
			Description: fmt.Sprintf("bottleneck: %s (%s)", b.Kind, b.Detail),
			Category:    CategoryTuning,
			Priority:    i,
		})
	}
	for i, o := range full.Opportunities {
		opportunities = append(opportunities, Opportunity{
			Description: fmt.Sprintf("recurring failure: %s (%dx)", o.Action, o.Count),
			Category:    CategoryCapability,
			Priority:    len(full.Bottlenecks) + i,
		})
	}
	return opportunities
}

func (e *Engine) fail(cycle *Cycle, now time.Time, err error) (*Cycle, error) {
	cycle.State = StateFailed
	cycle.CompletedAt = now
	cycle.Error = err.Error()
	e.publish(eventbus.TypeEvolutionFailed, cycle, map[string]any{"error": err.Error()})
	return cycle, err
}

func (e *Engine) publish(t eventbus.Type, cycle *Cycle, data map[string]any) {
	if e.bus == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["cycle_id"] = cycle.ID
	data["phase"] = cycle.Phase.String()
	e.bus.Publish(eventbus.Event{Type: t, Source: "evolution", Data: data})
}
