package evolution

import "time"

// ErrorRateGateThreshold, BottleneckGateThreshold, and
// OpportunityGateThreshold are the three conditions the "≥2 of 3" gating
// rule counts (spec.md §4.6 Diagnose phase).
const (
	ErrorRateGateThreshold   = 0.10
	BottleneckGateThreshold  = 3
	OpportunityGateThreshold = 5

	// LastCycleGateWindow and ForcedOpportunityThreshold are the two
	// unconditional triggers.
	LastCycleGateWindow       = 7 * 24 * time.Hour
	ForcedOpportunityThreshold = 10
)

// GateInput is the subset of a full diagnosis the gating rule consults.
type GateInput struct {
	ErrorRate        float64
	BottleneckCount  int
	OpportunityCount int
	LastCycleAt      time.Time // zero value means "no prior cycle"
}

// ShouldEvolve implements spec.md §4.6's gating rule:
//   - evolve if ≥2 of: error_rate>10%, bottlenecks≥3, opportunities≥5; or
//   - evolve if now-last_cycle > 7 days; or
//   - evolve if opportunities≥10.
func ShouldEvolve(input GateInput, now time.Time) bool {
	conditions := 0
	if input.ErrorRate > ErrorRateGateThreshold {
		conditions++
	}
	if input.BottleneckCount >= BottleneckGateThreshold {
		conditions++
	}
	if input.OpportunityCount >= OpportunityGateThreshold {
		conditions++
	}
	if conditions >= 2 {
		return true
	}

	if !input.LastCycleAt.IsZero() && now.Sub(input.LastCycleAt) > LastCycleGateWindow {
		return true
	}

	return input.OpportunityCount >= ForcedOpportunityThreshold
}
