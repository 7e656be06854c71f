// Package diagnosis implements Self-Diagnosis & Code Analysis (spec.md
// §4.5): performance aggregation over the Journal, resource-bottleneck
// detection, recurrence-based improvement-opportunity discovery, and
// cyclomatic-complexity self-analysis of this module's own Go source.
// Grounded on the teacher's internal/autopoiesis/checker.go (go/ast-based
// analysis) and internal/shards/reviewer/metrics.go (the cyclomatic
// complexity formula); bottleneck detection is new, using
// shirou/gopsutil/v3 the way internal packages across the wider example
// pack (r3e-network-service_layer) do for host resource sampling.
package diagnosis

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nerith/agentd/internal/journal"
	"github.com/nerith/agentd/internal/router"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Bottleneck thresholds (spec.md §4.5).
const (
	JournalSizeBottleneckRows = 10000
	ToolCountBottleneckCount  = 20
	MemoryBottleneckPercent   = 85.0
	DiskBottleneckPercent     = 90.0
)

// RecurrenceWindow is the lookback period for finding repeated failures
// (spec.md §4.5: "recurrence>3x in 7 days").
const RecurrenceWindow = 7 * 24 * time.Hour

// RecurrenceThreshold is the repeat count an action's failures must exceed
// to count as an improvement opportunity.
const RecurrenceThreshold = 3

// ModuleAssessment summarizes one source module's self-analysis.
type ModuleAssessment struct {
	Path                string
	Functions           []FunctionComplexity
	FlaggedFunctions    []FunctionComplexity
}

// PerformanceSnapshot aggregates action_log statistics.
type PerformanceSnapshot struct {
	TotalActions     int64
	ErrorActions     int64
	ErrorRate        float64
	TotalCostAccrued float64
}

// Bottleneck names one resource constraint currently in effect.
type Bottleneck struct {
	Kind   string // "journal_size", "tool_count", "memory", "disk"
	Detail string
}

// Opportunity is a recurring failure pattern worth routing to the model
// for a remediation suggestion (spec.md §4.5 find_improvement_opportunities).
type Opportunity struct {
	Action     string
	Count      int
	Suggestion string // router's automation/optimization/elimination response; empty if the router had nothing to offer
}

// ModuleStatus is one row of assess_modules()'s report (spec.md §4.5:
// "{healthy|error, methods, last_error}").
type ModuleStatus struct {
	Name      string
	Healthy   bool
	Methods   int // count of exported (public) functions/methods
	LastError string
}

// Plan is the output of generate_improvement_plan: a prioritized list of
// textual recommendations derived from a full diagnosis.
type Plan struct {
	Recommendations []string
}

// Diagnosis performs read-only assessment over the Journal and the host.
// It holds a Router reference because two of its contract operations —
// find_improvement_opportunities and analyze_own_code — ask the router
// for remediation/refactor suggestions (spec.md §4.5); a nil Router
// degrades those two calls to "no suggestion available" rather than
// failing the whole diagnosis, since diagnosis is read-only and must
// never let a model outage block bottleneck/opportunity reporting.
type Diagnosis struct {
	journal   *journal.Journal
	router    *router.Router
	sourceDir string // root of this module's own Go source, for analyze_own_code
	log       *zap.SugaredLogger
}

// New creates a Diagnosis. sourceDir should point at the repository root
// so analyze_own_code can walk its own packages. r may be nil in tests
// that don't exercise the router-backed suggestion steps.
func New(j *journal.Journal, r *router.Router, sourceDir string, log *zap.SugaredLogger) *Diagnosis {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Diagnosis{journal: j, router: r, sourceDir: sourceDir, log: log}
}

// AssessModules implements spec.md §4.5's assess_modules(): for each
// named module (a directory relative to sourceDir), attempt to "load" it
// — here, parse every non-test .go file in the directory — and count its
// exported (public) functions and methods. A parse or read failure marks
// the module unhealthy and records the error rather than aborting the
// whole assessment, since this call surveys many modules at once.
func (d *Diagnosis) AssessModules(moduleRelPaths []string) []ModuleStatus {
	out := make([]ModuleStatus, 0, len(moduleRelPaths))
	for _, rel := range moduleRelPaths {
		out = append(out, d.assessModule(rel))
	}
	return out
}

func (d *Diagnosis) assessModule(moduleRelPath string) ModuleStatus {
	root := filepath.Join(d.sourceDir, moduleRelPath)
	entries, err := os.ReadDir(root)
	if err != nil {
		return ModuleStatus{Name: moduleRelPath, Healthy: false, LastError: err.Error()}
	}

	fset := token.NewFileSet()
	methods := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" || strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		path := filepath.Join(root, entry.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return ModuleStatus{Name: moduleRelPath, Healthy: false, LastError: err.Error()}
		}
		file, err := parser.ParseFile(fset, path, src, 0)
		if err != nil {
			return ModuleStatus{Name: moduleRelPath, Healthy: false, LastError: err.Error()}
		}
		for _, decl := range file.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.IsExported() {
				methods++
			}
		}
	}
	return ModuleStatus{Name: moduleRelPath, Healthy: true, Methods: methods}
}

// AssessPerformance computes error rate and spend over all logged
// actions (spec.md §4.5 assess_performance).
func (d *Diagnosis) AssessPerformance() (PerformanceSnapshot, error) {
	total, err := d.journal.CountRows("action_log", "")
	if err != nil {
		return PerformanceSnapshot{}, fmt.Errorf("diagnosis: assess_performance: %w", err)
	}
	errs, err := d.journal.CountRows("action_log", fmt.Sprintf("outcome = '%s'", journal.OutcomeError))
	if err != nil {
		return PerformanceSnapshot{}, fmt.Errorf("diagnosis: assess_performance: %w", err)
	}

	rows, err := d.journal.QueryRecent("action_log", "", 100000)
	if err != nil {
		return PerformanceSnapshot{}, fmt.Errorf("diagnosis: assess_performance: %w", err)
	}
	var totalCost float64
	for _, row := range rows {
		if c, ok := row["cost"].(float64); ok {
			totalCost += c
		}
	}

	snap := PerformanceSnapshot{TotalActions: total, ErrorActions: errs, TotalCostAccrued: totalCost}
	if total > 0 {
		snap.ErrorRate = float64(errs) / float64(total)
	}
	return snap, nil
}

// IdentifyBottlenecks checks journal size, tool count, and host
// memory/disk usage against spec.md §4.5's fixed thresholds.
func (d *Diagnosis) IdentifyBottlenecks() ([]Bottleneck, error) {
	var found []Bottleneck

	actionRows, err := d.journal.CountRows("action_log", "")
	if err != nil {
		return nil, fmt.Errorf("diagnosis: identify_bottlenecks: %w", err)
	}
	if actionRows > JournalSizeBottleneckRows {
		found = append(found, Bottleneck{Kind: "journal_size", Detail: fmt.Sprintf("%d rows", actionRows)})
	}

	toolRows, err := d.journal.CountRows("tools", "")
	if err != nil {
		return nil, fmt.Errorf("diagnosis: identify_bottlenecks: %w", err)
	}
	if toolRows > ToolCountBottleneckCount {
		found = append(found, Bottleneck{Kind: "tool_count", Detail: fmt.Sprintf("%d tools", toolRows)})
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm.UsedPercent > MemoryBottleneckPercent {
		found = append(found, Bottleneck{Kind: "memory", Detail: fmt.Sprintf("%.1f%% used", vm.UsedPercent)})
	} else if err != nil {
		d.log.Warnw("could not sample memory", "error", err)
	}

	if du, err := disk.Usage("/"); err == nil && du.UsedPercent > DiskBottleneckPercent {
		found = append(found, Bottleneck{Kind: "disk", Detail: fmt.Sprintf("%.1f%% used", du.UsedPercent)})
	} else if err != nil {
		d.log.Warnw("could not sample disk", "error", err)
	}

	return found, nil
}

// FindImprovementOpportunities looks for actions that failed more than
// RecurrenceThreshold times within RecurrenceWindow, then — per spec.md
// §4.5 — calls the router with an automation/optimization/elimination
// prompt for each one and attaches the response to the opportunity
// record. A router failure (no backend configured, call error) leaves
// Suggestion empty rather than failing the whole scan; it is itself
// recorded as an action_log row so the miss is visible.
func (d *Diagnosis) FindImprovementOpportunities(ctx context.Context, now time.Time) ([]Opportunity, error) {
	cutoff := now.Add(-RecurrenceWindow).UTC().Format("2006-01-02 15:04:05")
	rows, err := d.journal.QueryRecent(
		"action_log",
		fmt.Sprintf("outcome = '%s' AND timestamp >= '%s'", journal.OutcomeError, cutoff),
		100000,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnosis: find_improvement_opportunities: %w", err)
	}

	counts := make(map[string]int)
	for _, row := range rows {
		action, _ := row["action"].(string)
		counts[action]++
	}

	var opportunities []Opportunity
	for action, count := range counts {
		if count <= RecurrenceThreshold {
			continue
		}
		opp := Opportunity{Action: action, Count: count}
		opp.Suggestion = d.askRouterForRemediation(ctx, action, count)
		opportunities = append(opportunities, opp)
	}
	return opportunities, nil
}

// askRouterForRemediation issues the router prompt spec.md §4.5 calls
// for: "an automation/optimization/elimination prompt" about one
// recurring action. Returns "" (and logs the miss) if no backend can
// serve it.
func (d *Diagnosis) askRouterForRemediation(ctx context.Context, action string, count int) string {
	if d.router == nil {
		return ""
	}
	prompt := fmt.Sprintf(
		"Action %q recurred %d times with an error outcome in the last %s. "+
			"Recommend one of: automate it, optimize it, or eliminate it, with a one-sentence reason.",
		action, count, RecurrenceWindow,
	)
	text, err := d.router.Ask(ctx, "analysis", router.ComplexityMedium, prompt, "")
	if err != nil {
		d.log.Warnw("router unavailable for improvement suggestion", "action", action, "error", err)
		d.journal.LogAction(fmt.Sprintf("improvement_suggestion:%s", action), err.Error(), journal.OutcomeError, 0)
		return ""
	}
	return text
}

// AnalyzeOwnCode runs cyclomatic complexity analysis over every .go file
// under moduleRelPath (relative to sourceDir), flagging functions over
// ComplexityFlagThreshold and asking the router for an improvement
// suggestion on each flagged function (spec.md §4.5 analyze_own_code:
// "ask the router for improvement suggestions"). Files are parsed
// concurrently via errgroup since the package is being evaluated for its
// own potential bottlenecks, not to speed up I/O that is already fast —
// the fan-out mirrors how the teacher's shard pool dispatches
// independent per-file work.
func (d *Diagnosis) AnalyzeOwnCode(ctx context.Context, moduleRelPath string) (ModuleAssessment, error) {
	root := filepath.Join(d.sourceDir, moduleRelPath)
	assessment := ModuleAssessment{Path: moduleRelPath}

	var paths []string
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".go" {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return ModuleAssessment{}, err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("diagnosis: analyze_own_code: read %s: %w", path, err)
			}
			funcs, err := AnalyzeSource(path, string(src))
			if err != nil {
				return err
			}
			mu.Lock()
			assessment.Functions = append(assessment.Functions, funcs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ModuleAssessment{}, err
	}

	assessment.FlaggedFunctions = FlaggedFunctions(assessment.Functions)
	for i := range assessment.FlaggedFunctions {
		assessment.FlaggedFunctions[i].Suggestion = d.askRouterForComplexitySuggestion(ctx, moduleRelPath, assessment.FlaggedFunctions[i])
	}
	return assessment, nil
}

func (d *Diagnosis) askRouterForComplexitySuggestion(ctx context.Context, modulePath string, fn FunctionComplexity) string {
	if d.router == nil {
		return ""
	}
	prompt := fmt.Sprintf(
		"Function %s in %s (line %d) has cyclomatic complexity %d, above the flag threshold of %d. "+
			"Suggest one concrete refactor to reduce it.",
		fn.Name, modulePath, fn.Line, fn.Complexity, ComplexityFlagThreshold,
	)
	text, err := d.router.Ask(ctx, "analysis", router.ComplexityMedium, prompt, "")
	if err != nil {
		d.log.Warnw("router unavailable for complexity suggestion", "function", fn.Name, "error", err)
		return ""
	}
	return text
}

// GenerateImprovementPlan synthesizes bottlenecks, opportunities, and
// flagged functions into a prioritized textual plan (spec.md §4.5
// generate_improvement_plan). The plan itself is recommendations only —
// carrying them out is Evolution's job.
func (d *Diagnosis) GenerateImprovementPlan(bottlenecks []Bottleneck, opportunities []Opportunity, assessments []ModuleAssessment) Plan {
	var recs []string
	for _, b := range bottlenecks {
		recs = append(recs, fmt.Sprintf("resource bottleneck (%s): %s", b.Kind, b.Detail))
	}
	for _, o := range opportunities {
		rec := fmt.Sprintf("recurring failure %q (%d times): investigate and harden", o.Action, o.Count)
		if o.Suggestion != "" {
			rec += " — router suggests: " + o.Suggestion
		}
		recs = append(recs, rec)
	}
	for _, a := range assessments {
		for _, f := range a.FlaggedFunctions {
			rec := fmt.Sprintf("high complexity: %s:%d %s (cc=%d)", a.Path, f.Line, f.Name, f.Complexity)
			if f.Suggestion != "" {
				rec += " — router suggests: " + f.Suggestion
			}
			recs = append(recs, rec)
		}
	}
	return Plan{Recommendations: recs}
}

// FullDiagnosis is the combined output of perform_full_diagnosis.
type FullDiagnosis struct {
	Performance   PerformanceSnapshot
	Bottlenecks   []Bottleneck
	Opportunities []Opportunity
	Plan          Plan
}

// PerformFullDiagnosis runs assess_performance, identify_bottlenecks, and
// find_improvement_opportunities, then synthesizes a plan (spec.md §4.5
// perform_full_diagnosis). It does not run analyze_own_code, which is
// comparatively expensive and invoked separately per-module.
func (d *Diagnosis) PerformFullDiagnosis(ctx context.Context, now time.Time) (FullDiagnosis, error) {
	perf, err := d.AssessPerformance()
	if err != nil {
		return FullDiagnosis{}, err
	}
	bottlenecks, err := d.IdentifyBottlenecks()
	if err != nil {
		return FullDiagnosis{}, err
	}
	opportunities, err := d.FindImprovementOpportunities(ctx, now)
	if err != nil {
		return FullDiagnosis{}, err
	}
	plan := d.GenerateImprovementPlan(bottlenecks, opportunities, nil)

	if _, err := d.journal.LogAction("perform_full_diagnosis", fmt.Sprintf("bottlenecks=%d opportunities=%d", len(bottlenecks), len(opportunities)), journal.OutcomeCompleted, 0); err != nil {
		d.log.Warnw("failed to log diagnosis action", "error", err)
	}

	return FullDiagnosis{
		Performance:   perf,
		Bottlenecks:   bottlenecks,
		Opportunities: opportunities,
		Plan:          plan,
	}, nil
}
