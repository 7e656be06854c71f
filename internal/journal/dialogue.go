package journal

import (
	"fmt"
	"time"
)

// Dialogue phases drawn from the closed set in spec.md §3.
const (
	PhaseUnderstanding  = "understanding"
	PhaseRisk           = "risk"
	PhaseAlternative    = "alternative"
	PhaseRecommendation = "recommendation"
)

// DialogueRecord is a single row of dialogue_log.
type DialogueRecord struct {
	ID            int64
	Timestamp     time.Time
	Phase         string
	Content       string
	MasterCommand string
	Reasoning     string
}

// AppendDialogue appends a row to dialogue_log.
func (j *Journal) AppendDialogue(phase, content, masterCommand, reasoning string) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.Exec(
		`INSERT INTO dialogue_log (phase, content, master_command, reasoning) VALUES (?, ?, ?, ?)`,
		phase, content, masterCommand, reasoning,
	)
	if err != nil {
		return 0, fmt.Errorf("journal: append dialogue: %w", err)
	}
	return res.LastInsertId()
}

// RecentDialogue returns up to limit of the most recent dialogue_log
// rows, newest first.
func (j *Journal) RecentDialogue(limit int) ([]DialogueRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, timestamp, phase, content, master_command, reasoning
		 FROM dialogue_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: recent dialogue: %w", err)
	}
	defer rows.Close()

	var out []DialogueRecord
	for rows.Next() {
		var r DialogueRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Phase, &r.Content, &r.MasterCommand, &r.Reasoning); err != nil {
			return nil, fmt.Errorf("journal: scan dialogue: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
