package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nerith/agentd/internal/eventbus"
	"github.com/nerith/agentd/internal/journal"
	"github.com/nerith/agentd/internal/router"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"
)

// identifierPattern validates a generated tool's name before it touches
// the filesystem or the journal (spec.md §4.6 create_tool).
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{2,63}$`)

// allowedImports mirrors the teacher's yaegi_executor.go allowlist,
// inverted into a denylist check alongside an explicit allowlist, since
// this Forge screens arbitrary generated source rather than a fixed tool
// template.
var allowedImports = map[string]bool{
	"strings": true, "strconv": true, "fmt": true, "math": true,
	"regexp": true, "encoding/json": true, "encoding/base64": true,
	"time": true, "sort": true, "bytes": true, "path": true,
	"path/filepath": true, "errors": true, "unicode": true,
}

// forbiddenPatterns are substrings that fail the safety screen outright,
// regardless of import allowlisting — catching package-qualified calls
// reached through an otherwise-allowed import (e.g. a generated tool that
// shells out via a roundabout path).
var forbiddenPatterns = []string{
	"os.Exec", "exec.Command", "syscall.", "unsafe.", "os.Remove",
	"os.RemoveAll", "net.Dial", "http.Get", "http.Post", "plugin.Open",
}

// ErrValidationFailed is returned for any Forge refusal: parse error,
// missing execute function, forbidden import, or forbidden pattern.
var ErrValidationFailed = fmt.Errorf("evolution: tool validation failed")

// GeneratedTool is a candidate tool's source prior to registration. Code
// may be left empty to have CreateTool ask the router for it (spec.md
// §4.6 create_tool step 2).
type GeneratedTool struct {
	Name        string
	Description string
	Code        string
	Parameters  map[string]string
}

// registryEntry is one row of tools/_registry.json, the plain-file mirror
// of the tools table spec.md §6 requires alongside it.
type registryEntry struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Path        string            `json:"path"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Status      string            `json:"status"`
}

// Forge generates, validates, sandboxes, and registers new tools (spec.md
// §4.6 Tool Forge). Grounded on the teacher's yaegi_executor.go (sandboxed
// interpretation instead of `go build`, avoiding compile hangs and
// dependency hell) and tool_validation.go (AST-based screening).
type Forge struct {
	mu       sync.Mutex
	toolsDir string
	journal  *journal.Journal
	bus      *eventbus.Bus
	router   *router.Router // nil-tolerant: CreateTool requires Code when unset
	log      *zap.SugaredLogger
}

// NewForge creates a Forge rooted at toolsDir, where generated tool
// source files and the registry mirror are written. r may be nil; it is
// only consulted when CreateTool is asked to generate code itself.
func NewForge(toolsDir string, j *journal.Journal, bus *eventbus.Bus, r *router.Router, log *zap.SugaredLogger) *Forge {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Forge{toolsDir: toolsDir, journal: j, bus: bus, router: r, log: log}
}

// registryPath is tools/_registry.json's location alongside generated
// tool source files.
func (f *Forge) registryPath() string {
	return filepath.Join(f.toolsDir, "_registry.json")
}

// loadRegistry reads the registry mirror, tolerating a missing file.
func (f *Forge) loadRegistry() (map[string]registryEntry, error) {
	data, err := os.ReadFile(f.registryPath())
	if os.IsNotExist(err) {
		return map[string]registryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evolution: read tool registry: %w", err)
	}
	registry := map[string]registryEntry{}
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("evolution: parse tool registry: %w", err)
	}
	return registry, nil
}

// saveRegistry writes the registry mirror back, creating toolsDir if
// needed. Callers must hold f.mu.
func (f *Forge) saveRegistry(registry map[string]registryEntry) error {
	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return fmt.Errorf("evolution: marshal tool registry: %w", err)
	}
	if err := os.WriteFile(f.registryPath(), data, 0o644); err != nil {
		return fmt.Errorf("evolution: write tool registry: %w", err)
	}
	return nil
}

// stripMarkdownFence removes a surrounding ``` or ```go fenced code block
// from a router response, matching spec.md §4.6 create_tool step 2.
func stripMarkdownFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ValidateIdentifier rejects tool names that aren't safe, lowercase
// snake_case identifiers.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q is not a valid tool identifier", ErrValidationFailed, name)
	}
	return nil
}

// ScreenSource runs the safety screen: the source must parse, must
// contain an exported Execute function (spec.md §8 invariant 5: "refuses
// any source whose parse tree does not contain an execute function"),
// may only import from allowedImports, and must not contain any
// forbiddenPatterns substring.
func ScreenSource(code string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "tool.go", code, parser.ParseComments)
	if err != nil {
		return fmt.Errorf("%w: parse error: %v", ErrValidationFailed, err)
	}

	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if !allowedImports[path] {
			return fmt.Errorf("%w: forbidden import %q", ErrValidationFailed, path)
		}
	}

	for _, pattern := range forbiddenPatterns {
		if strings.Contains(code, pattern) {
			return fmt.Errorf("%w: forbidden pattern %q", ErrValidationFailed, pattern)
		}
	}

	hasExecute := false
	ast.Inspect(file, func(n ast.Node) bool {
		fn, ok := n.(*ast.FuncDecl)
		if ok && fn.Name.Name == "Execute" {
			hasExecute = true
		}
		return true
	})
	if !hasExecute {
		return fmt.Errorf("%w: missing Execute function", ErrValidationFailed)
	}

	return nil
}

// executeSignature is the contract every generated tool's Execute
// function must satisfy: func Execute(args map[string]any) (any, error).
type executeSignature = func(map[string]interface{}) (interface{}, error)

// runInSandbox interprets code with yaegi, restricted to the stdlib
// symbol table, and returns its Execute function. Grounded directly on
// yaegi_executor.go's ExecuteToolCode: no `go build`, no network/fs
// access beyond what the stdlib subset itself exposes.
func runInSandbox(code string) (executeSignature, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("evolution: sandbox: load stdlib: %w", err)
	}

	wrapped := code
	if !strings.Contains(code, "package main") {
		wrapped = "package main\n\n" + code
	}

	if _, err := i.Eval(wrapped); err != nil {
		return nil, fmt.Errorf("evolution: sandbox: eval: %w", err)
	}

	v, err := i.Eval("main.Execute")
	if err != nil {
		return nil, fmt.Errorf("evolution: sandbox: Execute not found: %w", err)
	}

	fn, ok := v.Interface().(executeSignature)
	if !ok {
		return nil, fmt.Errorf("evolution: sandbox: Execute has wrong signature")
	}
	return fn, nil
}

// toolGenerationPrompt asks a coding-capable backend for a Go Execute
// function when the caller supplied no code (spec.md §4.6 create_tool
// step 2, adapted from Python's `execute(**kwargs)` to this runtime's
// `func Execute(args map[string]interface{}) (interface{}, error)`
// contract).
func toolGenerationPrompt(description string) string {
	return fmt.Sprintf(
		"Write a single Go function named Execute with this exact signature:\n"+
			"func Execute(args map[string]interface{}) (interface{}, error)\n\n"+
			"It should: %s\n\n"+
			"Respond with only the function's Go source. No package declaration, "+
			"no explanation, no markdown code fences.",
		description,
	)
}

// CreateTool validates, sandboxes, persists, and registers a new tool. If
// tool.Code is empty, it first asks the router for one (spec.md §4.6
// create_tool step 2); this requires a non-nil router. Refusals never
// touch the filesystem, journal, or registry.
func (f *Forge) CreateTool(ctx context.Context, tool GeneratedTool) error {
	if tool.Code == "" {
		if f.router == nil {
			return fmt.Errorf("%w: no code supplied and no router configured to generate it", ErrValidationFailed)
		}
		text, err := f.router.Ask(ctx, "coding", router.ComplexityMedium, toolGenerationPrompt(tool.Description), "")
		if err != nil {
			return fmt.Errorf("evolution: create_tool: ask router for code: %w", err)
		}
		tool.Code = stripMarkdownFence(text)
	}

	if err := ValidateIdentifier(tool.Name); err != nil {
		return err
	}
	if err := ScreenSource(tool.Code); err != nil {
		return err
	}
	if _, err := runInSandbox(tool.Code); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.toolsDir, 0o755); err != nil {
		return fmt.Errorf("evolution: create_tool: mkdir: %w", err)
	}
	path := filepath.Join(f.toolsDir, tool.Name+".go")
	if err := os.WriteFile(path, []byte(tool.Code), 0o644); err != nil {
		return fmt.Errorf("evolution: create_tool: write: %w", err)
	}

	if _, err := f.journal.CreateTool(tool.Name, tool.Description, path); err != nil {
		return fmt.Errorf("evolution: create_tool: register: %w", err)
	}

	registry, err := f.loadRegistry()
	if err != nil {
		return err
	}
	registry[tool.Name] = registryEntry{
		Name:        tool.Name,
		Description: tool.Description,
		Path:        path,
		Parameters:  tool.Parameters,
		CreatedAt:   time.Now(),
		Status:      "active",
	}
	if err := f.saveRegistry(registry); err != nil {
		return err
	}

	if f.bus != nil {
		f.bus.Publish(eventbus.Event{Type: eventbus.TypeToolCreated, Source: "forge", Data: map[string]any{"name": tool.Name}})
	}
	return nil
}

// ExecuteTool loads a registered tool's source and runs its Execute
// function in the yaegi sandbox (spec.md §8 invariant 8's round trip).
func (f *Forge) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	record, err := f.journal.GetTool(name)
	if err != nil {
		return nil, fmt.Errorf("evolution: execute_tool: %w", err)
	}

	code, err := os.ReadFile(record.FilePath)
	if err != nil {
		return nil, fmt.Errorf("evolution: execute_tool: read source: %w", err)
	}

	fn, err := runInSandbox(string(code))
	if err != nil {
		return nil, err
	}

	resultCh := make(chan interface{}, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := fn(args)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		if err := f.journal.RecordToolUsage(name); err != nil {
			f.log.Warnw("failed to record tool usage", "tool", name, "error", err)
		}
		if f.bus != nil {
			f.bus.Publish(eventbus.Event{Type: eventbus.TypeToolLoaded, Source: "forge", Data: map[string]any{"name": name}})
		}
		return result, nil
	case err := <-errCh:
		return nil, fmt.Errorf("evolution: execute_tool: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("evolution: execute_tool: %w", ctx.Err())
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("evolution: execute_tool: timed out")
	}
}

// DeleteTool removes a tool's source file and registry entry. Nothing in
// the evolution cycle calls it; Reflect & Cleanup retires no tools.
func (f *Forge) DeleteTool(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, err := f.journal.GetTool(name)
	if err != nil {
		return fmt.Errorf("evolution: delete_tool: %w", err)
	}
	if err := os.Remove(record.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("evolution: delete_tool: remove source: %w", err)
	}
	if err := f.journal.DeleteTool(name); err != nil {
		return err
	}

	registry, err := f.loadRegistry()
	if err != nil {
		return err
	}
	delete(registry, name)
	return f.saveRegistry(registry)
}
