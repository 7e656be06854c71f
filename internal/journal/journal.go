// Package journal implements the Persistent Journal described in
// spec.md §4.1: the append-only action/transaction/dialogue log plus
// keyed system state that backs every other subsystem. It is the sole
// owner of the embedded relational store's schema (spec.md §3) — no
// other package opens the database file directly.
//
// Adapted from the teacher's internal/store.LocalStore: same
// single-connection-with-WAL sqlite setup, same mutex-serialized writer
// discipline, generalized from codeNERD's semantic-memory tables to the
// action/transaction/dialogue/tool/state schema this runtime needs.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrNotFound is returned by keyed lookups that find nothing.
var ErrNotFound = errors.New("journal: not found")

// Journal is the single writer-serialized handle onto the embedded store.
// Every exported method takes the write lock for its duration; callers do
// not need their own synchronization.
type Journal struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	log  *zap.SugaredLogger
}

// Open creates the directory if needed, opens the sqlite file at path,
// and idempotently creates the schema. A storage failure here is fatal
// to the caller per spec.md §4.1/§7 — Open does not retry.
func Open(path string, log *zap.SugaredLogger) (*Journal, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debugw("pragma failed", "pragma", pragma, "error", err)
		}
	}

	j := &Journal{db: db, path: path, log: log}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}

	log.Infow("journal opened", "path", path)
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// DB exposes the underlying *sql.DB for read-only analyzers (Diagnosis)
// that need to run ad-hoc aggregate queries the Journal API does not
// wrap directly. Writers outside this package must never use it.
func (j *Journal) DB() *sql.DB {
	return j.db
}

const schema = `
CREATE TABLE IF NOT EXISTS action_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	action TEXT NOT NULL,
	reasoning TEXT,
	outcome TEXT NOT NULL,
	cost REAL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_action_log_timestamp ON action_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_action_log_outcome ON action_log(outcome);
CREATE INDEX IF NOT EXISTS idx_action_log_action ON action_log(action);

CREATE TABLE IF NOT EXISTS economic_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	description TEXT NOT NULL,
	amount_signed REAL NOT NULL,
	balance_after REAL NOT NULL,
	category TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_economic_log_timestamp ON economic_log(timestamp);

CREATE TABLE IF NOT EXISTS system_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dialogue_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	phase TEXT NOT NULL,
	content TEXT,
	master_command TEXT,
	reasoning TEXT
);
CREATE INDEX IF NOT EXISTS idx_dialogue_log_phase ON dialogue_log(phase);

CREATE TABLE IF NOT EXISTS tools (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	file_path TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	last_used DATETIME,
	usage_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS master_model (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trait TEXT NOT NULL UNIQUE,
	value TEXT,
	confidence REAL DEFAULT 0.5,
	evidence_count INTEGER DEFAULT 0,
	last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS hierarchy_of_needs (
	tier INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	current_focus INTEGER DEFAULT 0,
	progress REAL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS goals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	goal_text TEXT NOT NULL,
	goal_type TEXT,
	priority INTEGER DEFAULT 3,
	status TEXT DEFAULT 'active',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME,
	progress INTEGER DEFAULT 0,
	expected_benefit TEXT,
	estimated_effort TEXT
);
CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);

CREATE TABLE IF NOT EXISTS performance_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	error_rate REAL,
	response_time REAL,
	task_completion_rate REAL,
	autonomous_actions INTEGER,
	goals_completed INTEGER,
	evolutions_executed INTEGER
);

CREATE TABLE IF NOT EXISTS strategy_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	strategy_name TEXT NOT NULL,
	strategy_params TEXT,
	success_rate REAL,
	tasks_completed INTEGER,
	tasks_failed INTEGER,
	execution_time_seconds REAL,
	outcomes TEXT,
	lessons_learned TEXT
);

CREATE TABLE IF NOT EXISTS capability_knowledge (
	capability TEXT PRIMARY KEY,
	description TEXT,
	value INTEGER,
	complexity INTEGER,
	dependencies TEXT,
	status TEXT DEFAULT 'discovered',
	discovered_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	developed_at DATETIME
);
`

func (j *Journal) initSchema() error {
	_, err := j.db.Exec(schema)
	return err
}
