// Package router implements the Model Router described in spec.md §4.3:
// capability- and cost-aware selection of a language-model backend for
// each task, with token accounting and per-call ledger debits. Adapted
// from the teacher's internal/shards/system/router.go (action-routing by
// regex table) and internal/core.LLMClient (the minimal Complete
// interface), generalized from tool-routing to backend selection.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerith/agentd/internal/journal"
	"github.com/nerith/agentd/internal/ledger"
	"go.uber.org/zap"
)

// Complexity hints accepted by Route.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// BackendInfo describes one entry in the capability table.
type BackendInfo struct {
	ID                 string
	Capabilities       []string // keywords matched against task_kind, e.g. "coding", "reasoning"
	Pricing            ledger.BackendPricing
	MaxContextTokens   int
	MinComplexity      Complexity // Route skips this backend for requests below this complexity tier
	Timeout            time.Duration
}

var complexityRank = map[Complexity]int{
	ComplexityLow:    0,
	ComplexityMedium: 1,
	ComplexityHigh:   2,
}

// Backend performs the actual network/local-daemon round trip.
type Backend interface {
	// Call sends prompt/systemPrompt to the backend and returns the raw
	// response text plus token counts for prompt and completion. Token
	// counts should be exact when the backend reports them; see
	// EstimateTokens for the fallback estimator spec.md §4.3 requires.
	Call(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (text string, promptTokens, completionTokens int, err error)
}

// ErrNoBackend is returned when no backend's capability list matches the
// requested task kind.
var ErrNoBackend = fmt.Errorf("router: no backend matches task kind")

// Router selects and invokes backends, metering tokens and debiting the
// ledger for every successful call.
type Router struct {
	mu       sync.RWMutex
	table    []BackendInfo
	backends map[string]Backend
	journal  *journal.Journal
	ledger   *ledger.Ledger
	log      *zap.SugaredLogger
}

// New creates a Router with an initial capability table. Backends are
// registered separately via RegisterBackend so the table (declarative)
// and the live implementations (network clients) can evolve
// independently, mirroring the teacher's route-table/tool separation.
func New(j *journal.Journal, l *ledger.Ledger, table []BackendInfo, log *zap.SugaredLogger) *Router {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Router{
		table:    table,
		backends: make(map[string]Backend),
		journal:  j,
		ledger:   l,
		log:      log,
	}
}

// RegisterBackend attaches a live Backend implementation to a table entry.
func (r *Router) RegisterBackend(id string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[id] = b
}

// Route selects a backend deterministically: among the backends whose
// capability list contains a keyword from task_kind (and whose
// MinComplexity does not exceed the requested complexity), pick the
// lowest effective cost_per_token; ties break by largest MaxContextTokens
// (spec.md §4.3).
func (r *Router) Route(taskKind string, complexity Complexity) (BackendInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []BackendInfo
	lowerKind := strings.ToLower(taskKind)
	for _, b := range r.table {
		if !matchesCapability(b.Capabilities, lowerKind) {
			continue
		}
		if complexityRank[b.MinComplexity] > complexityRank[complexity] {
			continue
		}
		candidates = append(candidates, b)
	}

	if len(candidates) == 0 {
		return BackendInfo{}, fmt.Errorf("%w: %q", ErrNoBackend, taskKind)
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := effectiveCostPerToken(candidates[i].Pricing), effectiveCostPerToken(candidates[j].Pricing)
		if ci != cj {
			return ci < cj
		}
		return candidates[i].MaxContextTokens > candidates[j].MaxContextTokens
	})

	return candidates[0], nil
}

func matchesCapability(caps []string, taskKind string) bool {
	for _, c := range caps {
		if strings.Contains(taskKind, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

func effectiveCostPerToken(p ledger.BackendPricing) float64 {
	if p.IsLocal {
		return p.CostPerToken
	}
	// Average of input/output rate for ranking purposes; CalculateCost
	// still uses the split rates for the actual charge.
	return (p.InputCostPerToken + p.OutputCostPerToken) / 2
}

// Call invokes the chosen backend, meters tokens, debits the ledger
// exactly once on success, and writes one action_log row either way
// (spec.md §4.3 guarantees), plus an extra error row when the ledger
// debit itself fails. Failures never debit the ledger.
func (r *Router) Call(ctx context.Context, backendID, prompt, systemPrompt string) (string, error) {
	r.mu.RLock()
	var info BackendInfo
	found := false
	for _, b := range r.table {
		if b.ID == backendID {
			info = b
			found = true
			break
		}
	}
	backend := r.backends[backendID]
	r.mu.RUnlock()

	if !found || backend == nil {
		err := fmt.Errorf("%w: backend %q not registered", ErrNoBackend, backendID)
		r.logFailure(backendID, err)
		return "", err
	}

	timeout := info.Timeout
	if timeout == 0 {
		timeout = defaultTimeout(info.Pricing.IsLocal)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, promptTokens, completionTokens, err := backend.Call(callCtx, prompt, systemPrompt, timeout)
	if err != nil {
		r.logFailure(backendID, err)
		return "", fmt.Errorf("router: call %s: %w", backendID, err)
	}

	cost := ledger.CalculateCost(info.Pricing, promptTokens, completionTokens)
	if _, err := r.ledger.Charge(fmt.Sprintf("inference:%s", backendID), cost, "inference"); err != nil {
		// The call already happened; we still surface the response but
		// make the accounting failure visible in the journal.
		r.journal.LogAction(
			fmt.Sprintf("router_charge_failed:%s", backendID),
			err.Error(), journal.OutcomeError, 0,
		)
	}

	totalTokens := promptTokens + completionTokens
	r.journal.LogAction(
		fmt.Sprintf("model_call:%s", backendID),
		fmt.Sprintf("model=%s tokens=%d cost=%f", backendID, totalTokens, cost),
		journal.OutcomeCompleted, cost,
	)

	return text, nil
}

// Ask routes taskKind/complexity to a backend and calls it in one step,
// the convenience entry point Diagnosis and Evolution use for their
// "ask the router for a prompt/suggestion" sub-steps (spec.md §4.5
// find_improvement_opportunities/analyze_own_code, §4.6 Plan/Prioritize).
func (r *Router) Ask(ctx context.Context, taskKind string, complexity Complexity, prompt, systemPrompt string) (string, error) {
	info, err := r.Route(taskKind, complexity)
	if err != nil {
		return "", err
	}
	return r.Call(ctx, info.ID, prompt, systemPrompt)
}

func (r *Router) logFailure(backendID string, callErr error) {
	if _, err := r.journal.LogAction(
		fmt.Sprintf("model_call:%s", backendID),
		callErr.Error(),
		journal.OutcomeError,
		0,
	); err != nil {
		r.log.Errorw("failed to log router failure", "error", err)
	}
}

func defaultTimeout(isLocal bool) time.Duration {
	if isLocal {
		return 300 * time.Second
	}
	return 60 * time.Second
}

// EstimateTokens estimates token count for responses that don't report an
// exact count, following spec.md §4.3's edge case: words * 1.3.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * 1.3)
}
