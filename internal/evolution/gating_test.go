package evolution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGatingNoConditionsMetDoesNotEvolve(t *testing.T) {
	now := time.Now()
	input := GateInput{
		ErrorRate:        0.01,
		BottleneckCount:  0,
		OpportunityCount: 0,
		LastCycleAt:      now.Add(-time.Hour),
	}
	require.False(t, ShouldEvolve(input, now))
}

// TestGatingOpportunitiesFlipDecision implements spec.md §8 invariant 7:
// starting from a state satisfying no gating condition, adding >=10
// opportunities flips should_evolve to true.
func TestGatingOpportunitiesFlipDecision(t *testing.T) {
	now := time.Now()
	base := GateInput{ErrorRate: 0.01, BottleneckCount: 0, LastCycleAt: now.Add(-time.Hour)}
	require.False(t, ShouldEvolve(base, now))

	base.OpportunityCount = ForcedOpportunityThreshold
	require.True(t, ShouldEvolve(base, now))
}

func TestGatingTwoOfThreeConditions(t *testing.T) {
	now := time.Now()
	input := GateInput{ErrorRate: 0.15, BottleneckCount: 3, OpportunityCount: 0, LastCycleAt: now}
	require.True(t, ShouldEvolve(input, now))
}

func TestGatingOnlyOneConditionIsNotEnough(t *testing.T) {
	now := time.Now()
	input := GateInput{ErrorRate: 0.15, BottleneckCount: 0, OpportunityCount: 0, LastCycleAt: now}
	require.False(t, ShouldEvolve(input, now))
}

func TestGatingStaleLastCycleForcesEvolve(t *testing.T) {
	now := time.Now()
	input := GateInput{LastCycleAt: now.Add(-8 * 24 * time.Hour)}
	require.True(t, ShouldEvolve(input, now))
}

func TestGatingNoPriorCycleDoesNotForceByAge(t *testing.T) {
	now := time.Now()
	input := GateInput{} // zero LastCycleAt
	require.False(t, ShouldEvolve(input, now))
}
