package journal

import (
	"database/sql"
	"fmt"
)

// GetState reads a keyed scalar from system_state. Returns ErrNotFound if
// the key has never been set.
func (j *Journal) GetState(key string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var value string
	err := j.db.QueryRow(`SELECT value FROM system_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("journal: get state %q: %w", key, err)
	}
	return value, nil
}

// SetState upserts a keyed scalar into system_state.
func (j *Journal) SetState(key, value string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("journal: set state %q: %w", key, err)
	}
	return nil
}
