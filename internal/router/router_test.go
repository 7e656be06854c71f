package router

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerith/agentd/internal/eventbus"
	"github.com/nerith/agentd/internal/journal"
	"github.com/nerith/agentd/internal/ledger"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	text              string
	promptTokens      int
	completionTokens  int
	err               error
}

func (f *fakeBackend) Call(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (string, int, int, error) {
	if f.err != nil {
		return "", 0, 0, f.err
	}
	return f.text, f.promptTokens, f.completionTokens, nil
}

func newTestRouter(t *testing.T, table []BackendInfo) (*Router, *journal.Journal) {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	bus := eventbus.New(nil, 100)
	l := ledger.New(j, bus, 10.0, nil)
	return New(j, l, table, nil), j
}

func localTable() []BackendInfo {
	return []BackendInfo{
		{
			ID:               "local-llama3",
			Capabilities:     []string{"coding", "general"},
			Pricing:          ledger.BackendPricing{IsLocal: true, CostPerToken: 0.000001},
			MaxContextTokens: 8192,
			MinComplexity:    ComplexityLow,
		},
		{
			ID:               "hosted-gpt",
			Capabilities:     []string{"reasoning", "general"},
			Pricing:          ledger.BackendPricing{InputCostPerToken: 0.00001, OutputCostPerToken: 0.00003},
			MaxContextTokens: 128000,
			MinComplexity:    ComplexityHigh,
		},
	}
}

func TestRoutePicksCheapestMatchingCapability(t *testing.T) {
	r, _ := newTestRouter(t, localTable())

	info, err := r.Route("general coding task", ComplexityLow)
	require.NoError(t, err)
	require.Equal(t, "local-llama3", info.ID)
}

func TestRouteRespectsMinComplexity(t *testing.T) {
	r, _ := newTestRouter(t, localTable())

	// "reasoning" only matches hosted-gpt, which requires high complexity.
	_, err := r.Route("reasoning", ComplexityLow)
	require.ErrorIs(t, err, ErrNoBackend)

	info, err := r.Route("reasoning", ComplexityHigh)
	require.NoError(t, err)
	require.Equal(t, "hosted-gpt", info.ID)
}

func TestRouteNoMatchingBackend(t *testing.T) {
	r, _ := newTestRouter(t, localTable())
	_, err := r.Route("translation", ComplexityLow)
	require.ErrorIs(t, err, ErrNoBackend)
}

// TestCallWithLocalBackendChargesExactCost implements spec.md §8's
// concrete scenario: eval_count=500 at cost_per_token 0.000001 debits
// exactly 0.000500, with one economic_log row and one action_log row.
func TestCallWithLocalBackendChargesExactCost(t *testing.T) {
	r, j := newTestRouter(t, []BackendInfo{
		{
			ID:           "local-llama3",
			Capabilities: []string{"coding"},
			Pricing:      ledger.BackendPricing{IsLocal: true, CostPerToken: 0.000001},
		},
	})
	r.RegisterBackend("local-llama3", &fakeBackend{text: "ok", promptTokens: 300, completionTokens: 200})

	_, err := j.LogTransaction("seed", 10.0, "seed")
	require.NoError(t, err)

	text, err := r.Call(context.Background(), "local-llama3", "write a function", "")
	require.NoError(t, err)
	require.Equal(t, "ok", text)

	bal, err := j.CurrentBalance()
	require.NoError(t, err)
	require.InDelta(t, 10.0-0.0005, bal, 1e-9)

	txs, err := j.RecentTransactions(10)
	require.NoError(t, err)
	require.Len(t, txs, 2) // seed + inference debit

	actions, err := j.RecentActions(10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, journal.OutcomeCompleted, actions[0].Outcome)
}

func TestCallFailureLogsActionWithoutDebitingLedger(t *testing.T) {
	r, j := newTestRouter(t, []BackendInfo{
		{ID: "local-llama3", Capabilities: []string{"coding"}, Pricing: ledger.BackendPricing{IsLocal: true, CostPerToken: 0.000001}},
	})
	r.RegisterBackend("local-llama3", &fakeBackend{err: errors.New("connection refused")})

	_, err := j.LogTransaction("seed", 10.0, "seed")
	require.NoError(t, err)

	_, err = r.Call(context.Background(), "local-llama3", "prompt", "")
	require.Error(t, err)

	bal, err := j.CurrentBalance()
	require.NoError(t, err)
	require.Equal(t, 10.0, bal)

	txs, err := j.RecentTransactions(10)
	require.NoError(t, err)
	require.Len(t, txs, 1) // only the seed, no debit

	actions, err := j.RecentActions(10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, journal.OutcomeError, actions[0].Outcome)
}

func TestCallUnregisteredBackend(t *testing.T) {
	r, _ := newTestRouter(t, []BackendInfo{
		{ID: "ghost", Capabilities: []string{"coding"}},
	})
	_, err := r.Call(context.Background(), "ghost", "prompt", "")
	require.ErrorIs(t, err, ErrNoBackend)
}

func TestEstimateTokensWordCountFallback(t *testing.T) {
	n := EstimateTokens("one two three four five")
	require.Equal(t, 6, n) // 5 words * 1.3 truncated to int
}
