package evolution

import (
	"context"
	"fmt"

	"github.com/nerith/agentd/internal/ledger"
	"github.com/nerith/agentd/internal/router"
)

// coreModules are the module paths Integrate & Test's "each named module
// re-imports" check loads (spec.md §4.6); Go has no runtime import
// statement, so "re-imports" is read as "still parses cleanly", the same
// operation AssessModules performs for Self-Diagnosis.
var coreModules = []string{
	"internal/journal", "internal/ledger", "internal/router",
	"internal/scheduler", "internal/diagnosis", "internal/evolution",
}

// integrateAndTest runs the fixed test suite spec.md §4.6 names for phase
// 5: module re-import, required-table queryability, a trivial router
// route, non-null subsystem handles, and cost-arithmetic sanity.
func (e *Engine) integrateAndTest(ctx context.Context) TestReport {
	report := TestReport{}

	run := func(name string, check func() error) {
		report.TestsRun++
		if err := check(); err != nil {
			report.TestsFailed++
			report.Details = append(report.Details, fmt.Sprintf("FAIL %s: %v", name, err))
			return
		}
		report.TestsPassed++
		report.Details = append(report.Details, fmt.Sprintf("PASS %s", name))
	}

	for _, mod := range coreModules {
		mod := mod
		run("module_reimports:"+mod, func() error {
			statuses := e.diagnosis.AssessModules([]string{mod})
			if len(statuses) != 1 || !statuses[0].Healthy {
				return fmt.Errorf("module %s failed to parse: %s", mod, statuses[0].LastError)
			}
			return nil
		})
	}

	run("journal_tables_queryable", func() error {
		if _, err := e.journal.RecentActions(1); err != nil {
			return err
		}
		if _, err := e.journal.ListTools(); err != nil {
			return err
		}
		if _, err := e.journal.ActiveGoals(); err != nil {
			return err
		}
		return nil
	})

	run("router_trivial_route", func() error {
		if e.router == nil {
			return nil // no backend configured; nothing to route to
		}
		_, err := e.router.Route("general", router.ComplexityLow)
		if err != nil {
			return err
		}
		return nil
	})

	run("subsystem_handles_non_nil", func() error {
		if e.forge == nil || e.diagnosis == nil || e.modifier == nil {
			return fmt.Errorf("forge, diagnosis, or modifier handle is nil")
		}
		return nil
	})

	run("cost_arithmetic_sanity", func() error {
		cost := ledger.CalculateCost(ledger.BackendPricing{IsLocal: true, CostPerToken: 0.001}, 100, 100)
		if cost <= 0 || cost != 0.2 {
			return fmt.Errorf("expected cost 0.2 for 200 local tokens at 0.001/token, got %v", cost)
		}
		return nil
	})

	return report
}
