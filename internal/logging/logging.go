// Package logging provides categorized, zap-backed logging for the agent
// runtime. Every subsystem gets its own named child logger instead of
// reaching for a package-level global, so log lines are always
// attributable to the component that emitted them.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem a logger belongs to.
type Category string

const (
	CategoryJournal   Category = "journal"
	CategoryLedger    Category = "ledger"
	CategoryRouter    Category = "router"
	CategoryScheduler Category = "scheduler"
	CategoryDiagnosis Category = "diagnosis"
	CategoryEvolution Category = "evolution"
	CategoryForge     Category = "forge"
	CategoryEventBus  Category = "eventbus"
	CategoryCLI       Category = "cli"
)

// New builds the base zap.Logger for the process. verbose selects a
// development config (debug level, console encoding) over a production
// config (info level, JSON encoding), mirroring how the teacher's CLI
// entrypoint chooses between zap.NewDevelopmentConfig and
// zap.NewProductionConfig based on a --verbose flag.
func New(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return cfg.Build()
}

// For returns a child logger scoped to the given category. Callers should
// hold onto the returned *zap.SugaredLogger for the lifetime of their
// subsystem rather than calling For repeatedly.
func For(base *zap.Logger, category Category) *zap.SugaredLogger {
	return base.With(zap.String("category", string(category))).Sugar()
}

// Noop returns a logger that discards all output, useful for tests that
// don't want to assert on log content.
func Noop() *zap.Logger {
	return zap.NewNop()
}
