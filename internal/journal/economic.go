package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// TransactionRecord is a single row of economic_log.
type TransactionRecord struct {
	ID           int64
	Timestamp    time.Time
	Description  string
	AmountSigned float64
	BalanceAfter float64
	Category     string
}

const balanceKey = "current_balance"

// LogTransaction appends a signed amount to economic_log and atomically
// updates system_state['current_balance'] in the same transaction. It is
// the only sanctioned way the balance changes (spec.md §4.1, invariant 1
// and 2 of §8). Returns the new balance.
func (j *Journal) LogTransaction(description string, amountSigned float64, category string) (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("journal: begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := currentBalanceTx(tx)
	if err != nil {
		return 0, err
	}

	newBalance := current + amountSigned

	if _, err := tx.Exec(
		`INSERT INTO economic_log (description, amount_signed, balance_after, category) VALUES (?, ?, ?, ?)`,
		description, amountSigned, newBalance, category,
	); err != nil {
		return 0, fmt.Errorf("journal: insert economic_log: %w", err)
	}

	if err := setBalanceTx(tx, newBalance); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("journal: commit transaction: %w", err)
	}

	return newBalance, nil
}

// CurrentBalance returns system_state['current_balance'], 0 if unset.
func (j *Journal) CurrentBalance() (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("journal: begin: %w", err)
	}
	defer tx.Rollback()
	return currentBalanceTx(tx)
}

func currentBalanceTx(tx *sql.Tx) (float64, error) {
	var raw string
	err := tx.QueryRow(`SELECT value FROM system_state WHERE key = ?`, balanceKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("journal: read balance: %w", err)
	}
	var bal float64
	if _, err := fmt.Sscanf(raw, "%g", &bal); err != nil {
		return 0, fmt.Errorf("journal: parse balance %q: %w", raw, err)
	}
	return bal, nil
}

func setBalanceTx(tx *sql.Tx, balance float64) error {
	_, err := tx.Exec(
		`INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		balanceKey, fmt.Sprintf("%g", balance),
	)
	if err != nil {
		return fmt.Errorf("journal: write balance: %w", err)
	}
	return nil
}

// RecentTransactions returns up to limit of the most recent economic_log
// rows, newest first.
func (j *Journal) RecentTransactions(limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, timestamp, description, amount_signed, balance_after, category
		 FROM economic_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: recent transactions: %w", err)
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		var r TransactionRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Description, &r.AmountSigned, &r.BalanceAfter, &r.Category); err != nil {
			return nil, fmt.Errorf("journal: scan transaction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
