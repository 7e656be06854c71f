// Package ledger implements the Economic Ledger described in spec.md
// §4.2: monetary balance accounting with per-inference debits, publishing
// low-balance signals over the event bus. Every balance mutation is a
// Journal transaction; the Ledger holds no balance state of its own.
package ledger

import (
	"fmt"

	"github.com/nerith/agentd/internal/eventbus"
	"github.com/nerith/agentd/internal/journal"
	"go.uber.org/zap"
)

// BackendPricing is the static per-model cost table calculate_cost reads
// from (spec.md §4.2).
type BackendPricing struct {
	// Local backends bill cost_per_token * tokens.
	CostPerToken float64
	// Priced backends bill distinct input/output rates.
	InputCostPerToken  float64
	OutputCostPerToken float64
	IsLocal            bool
}

// Ledger charges and credits a single global account backed by the
// Journal's economic_log/system_state tables.
type Ledger struct {
	journal   *journal.Journal
	bus       *eventbus.Bus
	threshold float64
	log       *zap.SugaredLogger
}

// New creates a Ledger. threshold is the low-balance signal boundary
// (default 10 units per spec.md §4.2).
func New(j *journal.Journal, bus *eventbus.Bus, threshold float64, log *zap.SugaredLogger) *Ledger {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if threshold <= 0 {
		threshold = 10.0
	}
	return &Ledger{journal: j, bus: bus, threshold: threshold, log: log}
}

// CalculateCost is a pure function over a static pricing table: local
// backends cost cost_per_token*tokens; priced backends use separate
// input/output per-token rates.
func CalculateCost(pricing BackendPricing, promptTokens, completionTokens int) float64 {
	if pricing.IsLocal {
		return pricing.CostPerToken * float64(promptTokens+completionTokens)
	}
	return pricing.InputCostPerToken*float64(promptTokens) + pricing.OutputCostPerToken*float64(completionTokens)
}

// Charge debits the account, publishes a transaction event, and — when
// the resulting balance is below threshold — a low-balance event.
// Balance may go negative; charge never refuses (spec.md §4.2).
func (l *Ledger) Charge(description string, amount float64, category string) (float64, error) {
	if amount < 0 {
		amount = -amount
	}
	return l.apply(description, -amount, category)
}

// Credit credits the account and publishes a transaction event.
func (l *Ledger) Credit(description string, amount float64, category string) (float64, error) {
	if amount < 0 {
		amount = -amount
	}
	return l.apply(description, amount, category)
}

func (l *Ledger) apply(description string, signedAmount float64, category string) (float64, error) {
	newBalance, err := l.journal.LogTransaction(description, signedAmount, category)
	if err != nil {
		return 0, fmt.Errorf("ledger: %w", err)
	}

	if l.bus != nil {
		l.bus.Publish(eventbus.Event{
			Type:   eventbus.TypeEconomicTransaction,
			Source: "ledger",
			Data: map[string]any{
				"description": description,
				"amount":      signedAmount,
				"balance":     newBalance,
				"category":    category,
			},
		})

		if newBalance < l.threshold {
			l.bus.Publish(eventbus.Event{
				Type:   eventbus.TypeLowBalance,
				Source: "ledger",
				Data: map[string]any{
					"balance":   newBalance,
					"threshold": l.threshold,
				},
			})
		}
	}

	l.log.Debugw("ledger transaction", "description", description, "amount", signedAmount, "balance", newBalance)
	return newBalance, nil
}

// Balance returns the current authoritative balance.
func (l *Ledger) Balance() (float64, error) {
	bal, err := l.journal.CurrentBalance()
	if err != nil {
		return 0, fmt.Errorf("ledger: balance: %w", err)
	}
	return bal, nil
}

// Threshold returns the configured low-balance threshold.
func (l *Ledger) Threshold() float64 {
	return l.threshold
}
