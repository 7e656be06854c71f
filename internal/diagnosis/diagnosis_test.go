package diagnosis

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerith/agentd/internal/eventbus"
	"github.com/nerith/agentd/internal/journal"
	"github.com/nerith/agentd/internal/ledger"
	"github.com/nerith/agentd/internal/router"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal router.Backend test double, mirroring
// internal/router/router_test.go's helper of the same shape.
type fakeBackend struct{ text string }

func (f *fakeBackend) Call(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (string, int, int, error) {
	return f.text, 10, 10, nil
}

func newTestRouter(t *testing.T, j *journal.Journal) *router.Router {
	t.Helper()
	bus := eventbus.New(nil, 100)
	l := ledger.New(j, bus, 10.0, nil)
	r := router.New(j, l, []router.BackendInfo{
		{ID: "local", Capabilities: []string{"analysis", "general"}, Pricing: ledger.BackendPricing{IsLocal: true, CostPerToken: 0.000001}},
	}, nil)
	r.RegisterBackend("local", &fakeBackend{text: "automate it: batch the retries"})
	return r
}

func newTestDiagnosis(t *testing.T, sourceDir string) (*Diagnosis, *journal.Journal) {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return New(j, nil, sourceDir, nil), j
}

func TestAssessPerformanceComputesErrorRate(t *testing.T) {
	d, j := newTestDiagnosis(t, t.TempDir())

	_, err := j.LogAction("a", "r", journal.OutcomeCompleted, 1.0)
	require.NoError(t, err)
	_, err = j.LogAction("b", "r", journal.OutcomeError, 0)
	require.NoError(t, err)
	_, err = j.LogAction("c", "r", journal.OutcomeError, 0)
	require.NoError(t, err)

	snap, err := d.AssessPerformance()
	require.NoError(t, err)
	require.Equal(t, int64(3), snap.TotalActions)
	require.Equal(t, int64(2), snap.ErrorActions)
	require.InDelta(t, 2.0/3.0, snap.ErrorRate, 1e-9)
	require.InDelta(t, 1.0, snap.TotalCostAccrued, 1e-9)
}

func TestIdentifyBottlenecksJournalSize(t *testing.T) {
	d, j := newTestDiagnosis(t, t.TempDir())

	for i := 0; i < JournalSizeBottleneckRows+1; i++ {
		_, err := j.LogAction("tick", "r", journal.OutcomeCompleted, 0)
		require.NoError(t, err)
	}

	bottlenecks, err := d.IdentifyBottlenecks()
	require.NoError(t, err)

	var found bool
	for _, b := range bottlenecks {
		if b.Kind == "journal_size" {
			found = true
		}
	}
	require.True(t, found)
}

func TestFindImprovementOpportunitiesRequiresRecurrence(t *testing.T) {
	d, j := newTestDiagnosis(t, t.TempDir())
	now := time.Now()

	for i := 0; i < 2; i++ {
		_, err := j.LogAction("flaky_call", "boom", journal.OutcomeError, 0)
		require.NoError(t, err)
	}
	opportunities, err := d.FindImprovementOpportunities(context.Background(), now)
	require.NoError(t, err)
	require.Empty(t, opportunities)

	for i := 0; i < 2; i++ {
		_, err := j.LogAction("flaky_call", "boom", journal.OutcomeError, 0)
		require.NoError(t, err)
	}
	opportunities, err = d.FindImprovementOpportunities(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, opportunities, 1)
	require.Equal(t, "flaky_call", opportunities[0].Action)
	require.Equal(t, 4, opportunities[0].Count)
}

func TestAnalyzeOwnCodeFlagsHighComplexityFunction(t *testing.T) {
	dir := t.TempDir()
	var body string
	for i := 0; i < 12; i++ {
		body += "if x == " + string(rune('a'+i)) + " { x++ }\n"
	}
	src := "package p\n\nfunc complex(x rune) rune {\n" + body + "return x\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "module.go"), []byte(src), 0o644))

	d, _ := newTestDiagnosis(t, dir)
	assessment, err := d.AnalyzeOwnCode(context.Background(), ".")
	require.NoError(t, err)
	require.Len(t, assessment.Functions, 1)
	require.Len(t, assessment.FlaggedFunctions, 1)
	require.Equal(t, "complex", assessment.FlaggedFunctions[0].Name)
}

func TestGenerateImprovementPlanCombinesSources(t *testing.T) {
	d, _ := newTestDiagnosis(t, t.TempDir())
	plan := d.GenerateImprovementPlan(
		[]Bottleneck{{Kind: "memory", Detail: "90% used"}},
		[]Opportunity{{Action: "flaky", Count: 5}},
		[]ModuleAssessment{{Path: "internal/router", FlaggedFunctions: []FunctionComplexity{{Name: "Call", Complexity: 15, Line: 42}}}},
	)
	require.Len(t, plan.Recommendations, 3)
}

func TestPerformFullDiagnosisLogsAction(t *testing.T) {
	d, j := newTestDiagnosis(t, t.TempDir())
	_, err := d.PerformFullDiagnosis(context.Background(), time.Now())
	require.NoError(t, err)

	actions, err := j.RecentActions(10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, "perform_full_diagnosis", actions[0].Action)
}

func TestFindImprovementOpportunitiesAsksRouterForSuggestion(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	d := New(j, newTestRouter(t, j), t.TempDir(), nil)
	now := time.Now()
	for i := 0; i <= RecurrenceThreshold; i++ {
		_, err := j.LogAction("flaky_call", "boom", journal.OutcomeError, 0)
		require.NoError(t, err)
	}

	opportunities, err := d.FindImprovementOpportunities(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, opportunities, 1)
	require.Equal(t, "automate it: batch the retries", opportunities[0].Suggestion)
}

func TestAnalyzeOwnCodeAsksRouterForFlaggedFunctionSuggestion(t *testing.T) {
	dir := t.TempDir()
	var body string
	for i := 0; i < 12; i++ {
		body += "if x == " + string(rune('a'+i)) + " { x++ }\n"
	}
	src := "package p\n\nfunc complex(x rune) rune {\n" + body + "return x\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "module.go"), []byte(src), 0o644))

	j, err := journal.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	d := New(j, newTestRouter(t, j), dir, nil)
	assessment, err := d.AnalyzeOwnCode(context.Background(), ".")
	require.NoError(t, err)
	require.Len(t, assessment.FlaggedFunctions, 1)
	require.Equal(t, "automate it: batch the retries", assessment.FlaggedFunctions[0].Suggestion)
}

func TestAssessModulesCountsExportedFunctionsAndFlagsParseErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "good"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good", "good.go"), []byte("package good\n\nfunc Exported() {}\nfunc unexported() {}\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bad"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad", "bad.go"), []byte("package bad\n\nfunc broken( {\n"), 0o644))

	d, _ := newTestDiagnosis(t, dir)
	statuses := d.AssessModules([]string{"good", "bad", "missing"})
	require.Len(t, statuses, 3)

	require.True(t, statuses[0].Healthy)
	require.Equal(t, 1, statuses[0].Methods)

	require.False(t, statuses[1].Healthy)
	require.NotEmpty(t, statuses[1].LastError)

	require.False(t, statuses[2].Healthy)
	require.NotEmpty(t, statuses[2].LastError)
}
