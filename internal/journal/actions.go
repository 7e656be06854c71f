package journal

import (
	"fmt"
	"time"
)

// ActionRecord is a single row of action_log.
type ActionRecord struct {
	ID        int64
	Timestamp time.Time
	Action    string
	Reasoning string
	Outcome   string
	Cost      float64
}

// Outcome tags drawn from the known vocabulary referenced in spec.md §3.
const (
	OutcomeExecuting        = "executing"
	OutcomeCompleted        = "completed"
	OutcomeError            = "error"
	OutcomeSkipped          = "skipped"
	OutcomeEvolutionStarted = "evolution_started"
)

// LogAction appends a row to action_log. It is the only sanctioned way to
// record a non-trivial decision by any subsystem (spec.md §1, §7).
func (j *Journal) LogAction(action, reasoning, outcome string, cost float64) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.Exec(
		`INSERT INTO action_log (action, reasoning, outcome, cost) VALUES (?, ?, ?, ?)`,
		action, reasoning, outcome, cost,
	)
	if err != nil {
		return 0, fmt.Errorf("journal: log action: %w", err)
	}
	return res.LastInsertId()
}

// RecentActions returns up to limit of the most recent action_log rows,
// newest first.
func (j *Journal) RecentActions(limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, timestamp, action, reasoning, outcome, cost FROM action_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: recent actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var r ActionRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Action, &r.Reasoning, &r.Outcome, &r.Cost); err != nil {
			return nil, fmt.Errorf("journal: scan action: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
