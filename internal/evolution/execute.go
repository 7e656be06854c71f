package evolution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerith/agentd/internal/journal"
	"github.com/nerith/agentd/internal/router"
)

// interTaskDelay is how long Execute sleeps between tasks, matching
// spec.md §4.6's "sleep briefly between tasks (≈2s) to avoid model
// back-pressure".
const interTaskDelay = 2 * time.Second

// optimizationTargets are the subsystems _execute_optimization_task may
// analyze for complexity (spec.md §4.6 Execute: "one of {scribe,
// economics, router, dialogue, forge}"), remapped from the teacher's
// shard vocabulary to this runtime's own module names.
var optimizationTargets = []string{
	"internal/journal", "internal/ledger", "internal/router",
	"internal/scheduler", "internal/evolution",
}

// classifyTask maps a task's name/description to one of the four Execute
// dispatch buckets by keyword (spec.md §4.6 Execute), falling back to
// "ask the router" when no keyword matches.
func classifyTask(t Task) string {
	text := strings.ToLower(t.Name + " " + t.Description)
	switch {
	case containsAny(text, "optimize", "improve", "reduce", "decrease"):
		return "optimize"
	case containsAny(text, "create", "add"):
		return "create_tool"
	case containsAny(text, "analyze", "diagnose"):
		return "analyze"
	default:
		return "" // ask the router
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// executeTask dispatches a single top-priority task to the handler its
// classification names, producing a TaskResult. It never returns an
// error: a failing task is recorded in the result instead, so Execute can
// continue to the remaining tasks (spec.md §4.6: "A failing task is
// logged but does not abort the phase").
func (e *Engine) executeTask(ctx context.Context, t Task) TaskResult {
	result := TaskResult{Task: t.Name, StartedAt: time.Now()}

	kind := classifyTask(t)
	if kind == "" {
		kind = e.askRouterToClassify(ctx, t)
	}

	var output string
	var err error
	switch kind {
	case "optimize":
		output, err = e.executeOptimizationTask(t)
	case "create_tool":
		output, err = e.executeCreationTask(ctx, t)
	case "analyze":
		output, err = e.executeAnalysisTask(ctx)
	case "modify_config":
		output, err = fmt.Sprintf("tuning noted for later review: %s", t.Description), nil
	default:
		output, err = "", fmt.Errorf("evolution: execute: could not classify task %q", t.Name)
	}

	result.CompletedAt = time.Now()
	result.Success = err == nil
	result.Output = output
	if err != nil {
		result.Errors = []string{err.Error()}
	}

	action := fmt.Sprintf("evolution_task:%s", t.Name)
	if err != nil {
		e.journal.LogAction(action, err.Error(), journal.OutcomeError, 0)
	} else {
		e.journal.LogAction(action, output, journal.OutcomeCompleted, 0)
	}
	return result
}

// askRouterToClassify is the Execute phase's fallback dispatch (spec.md
// §4.6: "ask the router for one of create_tool|optimize|analyze|
// modify_config"). A nil router or a malformed/unrecognized response
// both fall through to "" (unclassifiable).
func (e *Engine) askRouterToClassify(ctx context.Context, t Task) string {
	if e.router == nil {
		return ""
	}
	prompt := fmt.Sprintf(
		"Classify this engineering task into exactly one word: create_tool, "+
			"optimize, analyze, or modify_config. Respond with only that word.\n\n"+
			"Task: %s\nDescription: %s", t.Name, t.Description,
	)
	text, err := e.router.Ask(ctx, "planning", router.ComplexityLow, prompt, "")
	if err != nil {
		e.log.Warnw("evolution: classify task via router failed", "task", t.Name, "error", err)
		return ""
	}
	word := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(word, "create_tool"):
		return "create_tool"
	case strings.Contains(word, "optimize"):
		return "optimize"
	case strings.Contains(word, "analyze"):
		return "analyze"
	case strings.Contains(word, "modify_config"):
		return "modify_config"
	default:
		return ""
	}
}

// executeOptimizationTask analyzes one rotating target module's
// complexity for a report string, per spec.md §4.6's
// _execute_optimization_task.
func (e *Engine) executeOptimizationTask(t Task) (string, error) {
	target := optimizationTargets[int(time.Now().UnixNano())%len(optimizationTargets)]
	assessment, err := e.diagnosis.AnalyzeOwnCode(context.Background(), target)
	if err != nil {
		return "", fmt.Errorf("optimization analysis of %s: %w", target, err)
	}
	return fmt.Sprintf("analyzed %s: %d functions, %d flagged for complexity", target, len(assessment.Functions), len(assessment.FlaggedFunctions)), nil
}

// executeCreationTask derives a tool name/description from the task and
// asks the Forge to synthesize it (spec.md §4.6's
// _execute_creation_task).
func (e *Engine) executeCreationTask(ctx context.Context, t Task) (string, error) {
	name := "evolved_" + slugify(t.Name)
	description := t.Description
	if description == "" {
		description = t.Name
	}
	if err := e.forge.CreateTool(ctx, GeneratedTool{Name: name, Description: description}); err != nil {
		return "", fmt.Errorf("create tool %s: %w", name, err)
	}
	return fmt.Sprintf("created tool %s", name), nil
}

// executeAnalysisTask reruns a full diagnosis and reports its headline
// counts (spec.md §4.6 Execute: "analyze|diagnose → rerun diagnosis,
// report counts").
func (e *Engine) executeAnalysisTask(ctx context.Context) (string, error) {
	full, err := e.diagnosis.PerformFullDiagnosis(ctx, time.Now())
	if err != nil {
		return "", fmt.Errorf("rerun diagnosis: %w", err)
	}
	return fmt.Sprintf("bottlenecks=%d opportunities=%d error_rate=%.2f%%", len(full.Bottlenecks), len(full.Opportunities), full.Performance.ErrorRate*100), nil
}

// slugify lowercases and replaces runs of non-alphanumerics with a single
// underscore, matching ValidateIdentifier's `^[a-z][a-z0-9_]{2,63}$`
// expectations for a task name derived from free text.
func slugify(s string) string {
	var b strings.Builder
	lastUnderscore := true // suppress a leading underscore
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "task"
	}
	if out[0] < 'a' || out[0] > 'z' {
		out = "t_" + out
	}
	if len(out) < 3 {
		out = out + strings.Repeat("_", 3-len(out))
	}
	if len(out) > 60 {
		out = out[:60]
	}
	return out
}
