// Package evolution implements the Evolution Pipeline (spec.md §4.6): the
// six-phase cycle (Diagnose, Plan, Prioritize, Execute, Integrate & Test,
// Reflect & Cleanup), its gating rule, the Tool Forge for generating new
// sandboxed capabilities, and checkpoint/rollback for module
// modification. Grounded on the teacher's internal/autopoiesis/ouroboros.go
// (the LoopStage enum and stage-by-stage Execute driving a transactional
// state machine) and yaegi_executor.go/tool_validation.go for the Forge.
package evolution

import "time"

// Phase identifies where in the evolution cycle execution currently is,
// mirroring the teacher's LoopStage enum and String() idiom.
type Phase int

const (
	PhaseDiagnose Phase = iota
	PhasePlan
	PhasePrioritize
	PhaseExecute
	PhaseIntegrateAndTest
	PhaseReflectAndCleanup
)

func (p Phase) String() string {
	switch p {
	case PhaseDiagnose:
		return "diagnose"
	case PhasePlan:
		return "plan"
	case PhasePrioritize:
		return "prioritize"
	case PhaseExecute:
		return "execute"
	case PhaseIntegrateAndTest:
		return "integrate_and_test"
	case PhaseReflectAndCleanup:
		return "reflect_and_cleanup"
	default:
		return "unknown"
	}
}

// State is the lifecycle status of an evolution cycle.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StatePaused    State = "paused"
)

// Category classifies an improvement action. It is recorded on
// Cycle.Opportunities as a label; Execute does not read it when
// dispatching tasks.
type Category string

const (
	CategoryRepair     Category = "repair"     // bug/regression fix to an existing module
	CategoryCapability Category = "capability" // new tool, built via the Forge
	CategoryTuning     Category = "tuning"     // parameter/threshold adjustment, plan only
)

// Opportunity is one candidate improvement carried forward from
// Diagnosis into the evolution cycle.
type Opportunity struct {
	Description string
	Category    Category
	TargetPath  string // module path for CategoryRepair; empty otherwise
	Priority    int    // lower runs first
}

// TaskStatus is a plan Task's lifecycle state (spec.md §4.6 Plan: "assign
// each task a status of pending").
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Task is one concrete unit of work produced by the Plan phase, either
// router-generated against a hierarchy-of-needs goal or carried over
// directly from a diagnosis recommendation.
type Task struct {
	Name            string
	Description     string
	ExpectedBenefit string
	Effort          string
	Status          TaskStatus
}

// TaskResult is phase 4's per-task outcome (spec.md §4.6 Execute:
// "{task, start_time, end_time, success, output, errors[]}").
type TaskResult struct {
	Task        string
	StartedAt   time.Time
	CompletedAt time.Time
	Success     bool
	Output      string
	Errors      []string
}

// TestReport is phase 5's fixed-suite outcome (spec.md §4.6 Integrate &
// Test: "{tests_run, tests_passed, tests_failed, details}").
type TestReport struct {
	TestsRun    int
	TestsPassed int
	TestsFailed int
	Details     []string
}

// LessonType classifies a phase-6 lesson.
type LessonType string

const (
	LessonSuccess LessonType = "success"
	LessonFailure LessonType = "failure"
	LessonWarning LessonType = "warning"
)

// Lesson is one entry extracted by Reflect & Cleanup (spec.md §4.6:
// "{type, task, lesson, insight, recommendation?}").
type Lesson struct {
	Type           LessonType
	Task           string
	Lesson         string
	Insight        string
	Recommendation string
}

// Cycle tracks one run of the six-phase pipeline.
type Cycle struct {
	ID          string
	State       State
	Phase       Phase
	StartedAt   time.Time
	CompletedAt time.Time

	Opportunities []Opportunity
	Tasks         []Task
	TaskResults   []TaskResult
	Tests         TestReport
	Lessons       []Lesson

	Executed []string // names of tasks whose Execute step succeeded
	Error    string
}
