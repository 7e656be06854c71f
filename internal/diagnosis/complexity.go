package diagnosis

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
)

// FunctionComplexity is the McCabe cyclomatic complexity of a single
// function: 1 + count(decision points). Grounded on the teacher's
// internal/shards/reviewer/metrics.go formula (CC = 1 + decision_points),
// computed here via go/ast instead of the reviewer's line-scanning
// heuristic since this analyzer only ever looks at this module's own,
// already-parseable Go source (spec.md §4.5 analyze_own_code).
type FunctionComplexity struct {
	Name       string
	Complexity int
	Line       int
	Suggestion string // router's improvement suggestion, set only for flagged functions
}

// ComplexityFlagThreshold is the per-function complexity above which
// analyze_own_code flags a function for review (spec.md §4.5).
const ComplexityFlagThreshold = 10

// AnalyzeSource parses Go source and returns per-function cyclomatic
// complexity, matching the teacher's checker.go pattern of using
// go/parser to build an *ast.File before walking it.
func AnalyzeSource(filename, src string) ([]FunctionComplexity, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("diagnosis: parse %s: %w", filename, err)
	}

	var results []FunctionComplexity
	ast.Inspect(file, func(n ast.Node) bool {
		fn, ok := n.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			return true
		}
		cc := cyclomaticComplexity(fn.Body)
		results = append(results, FunctionComplexity{
			Name:       fn.Name.Name,
			Complexity: cc,
			Line:       fset.Position(fn.Pos()).Line,
		})
		return true
	})
	return results, nil
}

// cyclomaticComplexity walks a function body counting decision points:
// if, for, case (each switch/select case), &&, ||. Starts at 1, per
// McCabe's formula, matching the teacher's "CC = 1 + decision_points".
func cyclomaticComplexity(body *ast.BlockStmt) int {
	complexity := 1
	ast.Inspect(body, func(n ast.Node) bool {
		switch stmt := n.(type) {
		case *ast.IfStmt:
			complexity++
		case *ast.ForStmt:
			complexity++
		case *ast.RangeStmt:
			complexity++
		case *ast.CaseClause:
			if len(stmt.List) > 0 { // skip the default clause
				complexity++
			}
		case *ast.CommClause:
			if stmt.Comm != nil { // skip default select clause
				complexity++
			}
		case *ast.BinaryExpr:
			if stmt.Op == token.LAND || stmt.Op == token.LOR {
				complexity++
			}
		}
		return true
	})
	return complexity
}

// FlaggedFunctions filters to functions whose complexity exceeds
// ComplexityFlagThreshold (spec.md §4.5: "functions >10 flagged").
func FlaggedFunctions(results []FunctionComplexity) []FunctionComplexity {
	var flagged []FunctionComplexity
	for _, r := range results {
		if r.Complexity > ComplexityFlagThreshold {
			flagged = append(flagged, r)
		}
	}
	return flagged
}
