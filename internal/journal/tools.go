package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// ToolRecord mirrors a row of the tools table (spec.md §3).
type ToolRecord struct {
	ID          int64
	Name        string
	Description string
	FilePath    string
	CreatedAt   time.Time
	LastUsed    sql.NullTime
	UsageCount  int
}

// CreateTool inserts a new tools row. Fails with a unique-constraint
// error if the name already exists.
func (j *Journal) CreateTool(name, description, filePath string) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.Exec(
		`INSERT INTO tools (name, description, file_path) VALUES (?, ?, ?)`,
		name, description, filePath,
	)
	if err != nil {
		return 0, fmt.Errorf("journal: create tool %q: %w", name, err)
	}
	return res.LastInsertId()
}

// GetTool fetches a tool by name.
func (j *Journal) GetTool(name string) (*ToolRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var r ToolRecord
	err := j.db.QueryRow(
		`SELECT id, name, description, file_path, created_at, last_used, usage_count
		 FROM tools WHERE name = ?`, name,
	).Scan(&r.ID, &r.Name, &r.Description, &r.FilePath, &r.CreatedAt, &r.LastUsed, &r.UsageCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get tool %q: %w", name, err)
	}
	return &r, nil
}

// ListTools returns every registered tool.
func (j *Journal) ListTools() ([]ToolRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, name, description, file_path, created_at, last_used, usage_count FROM tools ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: list tools: %w", err)
	}
	defer rows.Close()

	var out []ToolRecord
	for rows.Next() {
		var r ToolRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.FilePath, &r.CreatedAt, &r.LastUsed, &r.UsageCount); err != nil {
			return nil, fmt.Errorf("journal: scan tool: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordToolUsage bumps usage_count and sets last_used for a tool.
func (j *Journal) RecordToolUsage(name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`UPDATE tools SET usage_count = usage_count + 1, last_used = CURRENT_TIMESTAMP WHERE name = ?`,
		name,
	)
	if err != nil {
		return fmt.Errorf("journal: record tool usage %q: %w", name, err)
	}
	return nil
}

// DeleteTool removes a tools row. The caller is responsible for removing
// the matching on-disk artifact in lockstep (spec.md §3 lifecycle rule).
func (j *Journal) DeleteTool(name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`DELETE FROM tools WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("journal: delete tool %q: %w", name, err)
	}
	return nil
}
