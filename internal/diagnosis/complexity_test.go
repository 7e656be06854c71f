package diagnosis

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestComplexityInvariantKIfStatements implements the concrete invariant
// from spec.md §4.5: a function containing only k if statements (no
// other control flow) has cyclomatic complexity 1+k.
func TestComplexityInvariantKIfStatements(t *testing.T) {
	for _, k := range []int{0, 1, 3, 7} {
		var body strings.Builder
		for i := 0; i < k; i++ {
			fmt.Fprintf(&body, "if x == %d { x++ }\n", i)
		}
		src := fmt.Sprintf(`package p

func f(x int) int {
%s
return x
}
`, body.String())

		results, err := AnalyzeSource("f.go", src)
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, 1+k, results[0].Complexity, "k=%d", k)
	}
}

func TestComplexityCountsLoopsAndLogicalOperators(t *testing.T) {
	src := `package p

func g(items []int) bool {
	for _, v := range items {
		if v > 0 && v < 100 {
			return true
		}
	}
	return false
}
`
	results, err := AnalyzeSource("g.go", src)
	require.NoError(t, err)
	require.Len(t, results, 1)
	// base 1 + range(1) + if(1) + &&(1) = 4
	require.Equal(t, 4, results[0].Complexity)
}

func TestComplexityCountsSwitchCasesButNotDefault(t *testing.T) {
	src := `package p

func h(x int) string {
	switch x {
	case 1:
		return "one"
	case 2:
		return "two"
	default:
		return "other"
	}
}
`
	results, err := AnalyzeSource("h.go", src)
	require.NoError(t, err)
	require.Len(t, results, 1)
	// base 1 + case(1) + case(1) = 3, default not counted
	require.Equal(t, 3, results[0].Complexity)
}

func TestFlaggedFunctionsThreshold(t *testing.T) {
	results := []FunctionComplexity{
		{Name: "simple", Complexity: 3},
		{Name: "complex", Complexity: 11},
		{Name: "boundary", Complexity: 10},
	}
	flagged := FlaggedFunctions(results)
	require.Len(t, flagged, 1)
	require.Equal(t, "complex", flagged[0].Name)
}

func TestAnalyzeSourceMultipleFunctions(t *testing.T) {
	src := `package p

func a() {}

func b(x int) int {
	if x > 0 {
		return x
	}
	return -x
}
`
	results, err := AnalyzeSource("multi.go", src)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, results[0].Complexity)
	require.Equal(t, 2, results[1].Complexity)
}
