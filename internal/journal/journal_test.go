package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	j, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	j1, err := Open(path, nil)
	require.NoError(t, err)
	_, err = j1.LogAction("boot", "first open", OutcomeCompleted, 0)
	require.NoError(t, err)
	require.NoError(t, j1.Close())

	j2, err := Open(path, nil)
	require.NoError(t, err)
	defer j2.Close()

	rows, err := j2.RecentActions(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestLogActionAppendOnly(t *testing.T) {
	j := newTestJournal(t)

	id, err := j.LogAction("tick", "scheduler woke up", OutcomeCompleted, 0)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	rows, err := j.RecentActions(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "tick", rows[0].Action)
}

func TestLogTransactionBalanceInvariant(t *testing.T) {
	j := newTestJournal(t)

	bal, err := j.LogTransaction("seed", 100.0, "seed")
	require.NoError(t, err)
	require.Equal(t, 100.0, bal)

	bal, err = j.LogTransaction("inference", -0.01, "inference")
	require.NoError(t, err)
	require.InDelta(t, 99.99, bal, 1e-9)

	current, err := j.CurrentBalance()
	require.NoError(t, err)
	require.Equal(t, bal, current)

	txs, err := j.RecentTransactions(10)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// invariant: for every row after the first, balance_after = prev.balance_after + amount_signed
	// RecentTransactions returns newest-first; txs[1] is the seed, txs[0] is the debit.
	require.InDelta(t, txs[1].BalanceAfter+txs[0].AmountSigned, txs[0].BalanceAfter, 1e-9)
}

func TestBalanceCanGoNegative(t *testing.T) {
	j := newTestJournal(t)

	bal, err := j.LogTransaction("overdraw", -5.0, "inference")
	require.NoError(t, err)
	require.Equal(t, -5.0, bal)
}

func TestStateRoundTrip(t *testing.T) {
	j := newTestJournal(t)

	_, err := j.GetState("missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, j.SetState("foo", "bar"))
	v, err := j.GetState("foo")
	require.NoError(t, err)
	require.Equal(t, "bar", v)

	require.NoError(t, j.SetState("foo", "baz"))
	v, err = j.GetState("foo")
	require.NoError(t, err)
	require.Equal(t, "baz", v)
}

func TestExactlyOneTierHasCurrentFocus(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.UpsertTier(1, "Survival", "basic operation", 0.1))
	require.NoError(t, j.UpsertTier(2, "Stability", "error reduction", 0.0))
	require.NoError(t, j.UpsertTier(3, "Growth", "capability expansion", 0.0))

	require.NoError(t, j.SetCurrentFocus(1))
	tier, err := j.CurrentFocusTier()
	require.NoError(t, err)
	require.Equal(t, 1, tier.Tier)

	require.NoError(t, j.SetCurrentFocus(2))
	tier, err = j.CurrentFocusTier()
	require.NoError(t, err)
	require.Equal(t, 2, tier.Tier)

	var count int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM hierarchy_of_needs WHERE current_focus = 1`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestGoalLifecycle(t *testing.T) {
	j := newTestJournal(t)

	id, err := j.CreateGoal("reduce error rate", "stability", 1, "fewer errors", "medium")
	require.NoError(t, err)

	goals, err := j.ActiveGoals()
	require.NoError(t, err)
	require.Len(t, goals, 1)
	require.Equal(t, GoalStatusActive, goals[0].Status)

	require.NoError(t, j.CompleteGoal(id))
	goals, err = j.ActiveGoals()
	require.NoError(t, err)
	require.Len(t, goals, 0)
}

func TestToolRegistryRoundTrip(t *testing.T) {
	j := newTestJournal(t)

	_, err := j.CreateTool("word_counter", "counts words", "tools/word_counter.go")
	require.NoError(t, err)

	tool, err := j.GetTool("word_counter")
	require.NoError(t, err)
	require.Equal(t, 0, tool.UsageCount)

	require.NoError(t, j.RecordToolUsage("word_counter"))
	tool, err = j.GetTool("word_counter")
	require.NoError(t, err)
	require.Equal(t, 1, tool.UsageCount)

	require.NoError(t, j.DeleteTool("word_counter"))
	_, err = j.GetTool("word_counter")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQueryRecentRejectsUnknownTable(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.QueryRecent("sqlite_master", "", 10)
	require.Error(t, err)
}

func TestCountRowsWithPredicate(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.LogAction("a", "r", OutcomeError, 0)
	require.NoError(t, err)
	_, err = j.LogAction("b", "r", OutcomeCompleted, 0)
	require.NoError(t, err)

	n, err := j.CountRows("action_log", "outcome = 'error'")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
