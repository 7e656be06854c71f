package ledger

import (
	"path/filepath"
	"testing"

	"github.com/nerith/agentd/internal/eventbus"
	"github.com/nerith/agentd/internal/journal"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, threshold float64) (*Ledger, *journal.Journal, *eventbus.Bus) {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	bus := eventbus.New(nil, 100)
	return New(j, bus, threshold, nil), j, bus
}

func TestChargeAndLowBalanceEvent(t *testing.T) {
	l, j, bus := newTestLedger(t, 10.0)

	_, err := j.LogTransaction("seed", 10.00, "seed")
	require.NoError(t, err)

	var txEvents, lowEvents []eventbus.Event
	bus.Subscribe(func(e eventbus.Event) {
		switch e.Type {
		case eventbus.TypeEconomicTransaction:
			txEvents = append(txEvents, e)
		case eventbus.TypeLowBalance:
			lowEvents = append(lowEvents, e)
		}
	})

	bal, err := l.Charge("x", 0.01, "inference")
	require.NoError(t, err)
	require.InDelta(t, 9.99, bal, 1e-9)

	require.Len(t, txEvents, 1)
	require.Len(t, lowEvents, 1)
	require.InDelta(t, 9.99, lowEvents[0].Data["balance"].(float64), 1e-9)
	require.Equal(t, 10.0, lowEvents[0].Data["threshold"])
}

func TestChargeAboveThresholdNoLowBalanceEvent(t *testing.T) {
	l, j, bus := newTestLedger(t, 10.0)
	_, err := j.LogTransaction("seed", 1000.0, "seed")
	require.NoError(t, err)

	var lowEvents int
	bus.Subscribe(func(e eventbus.Event) {
		if e.Type == eventbus.TypeLowBalance {
			lowEvents++
		}
	})

	_, err = l.Charge("x", 1.0, "inference")
	require.NoError(t, err)
	require.Equal(t, 0, lowEvents)
}

func TestBalanceCanGoNegativeLedgerNeverRefuses(t *testing.T) {
	l, _, _ := newTestLedger(t, 10.0)
	bal, err := l.Charge("overdraw", 50.0, "inference")
	require.NoError(t, err)
	require.Equal(t, -50.0, bal)
}

func TestCreditIncreasesBalance(t *testing.T) {
	l, _, _ := newTestLedger(t, 10.0)
	bal, err := l.Credit("income", 25.0, "income")
	require.NoError(t, err)
	require.Equal(t, 25.0, bal)
}

func TestCalculateCostLocalBackend(t *testing.T) {
	pricing := BackendPricing{IsLocal: true, CostPerToken: 0.000001}
	cost := CalculateCost(pricing, 300, 200)
	require.InDelta(t, 0.0005, cost, 1e-12)
}

func TestCalculateCostPricedBackend(t *testing.T) {
	pricing := BackendPricing{InputCostPerToken: 0.00001, OutputCostPerToken: 0.00003}
	cost := CalculateCost(pricing, 1000, 500)
	require.InDelta(t, 0.01+0.015, cost, 1e-9)
}
