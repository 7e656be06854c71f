package journal

import "fmt"

// allowedTables is the fixed set of tables query_recent may read, to keep
// the predicate-driven call sites in Diagnosis from building arbitrary
// SQL out of caller-controlled strings (spec.md §4.1: "bounded read for
// analyzers").
var allowedTables = map[string]bool{
	"action_log":            true,
	"economic_log":          true,
	"dialogue_log":          true,
	"tools":                 true,
	"master_model":          true,
	"hierarchy_of_needs":    true,
	"goals":                 true,
	"performance_metrics":   true,
	"strategy_history":      true,
	"capability_knowledge":  true,
}

// QueryRecent performs a bounded read against one of the fixed tables,
// optionally filtered by a raw SQL predicate (e.g. "outcome = 'error'").
// predicate is trusted caller input from within this module (Diagnosis),
// never user input; it is appended after WHERE verbatim, matching the
// read-only analyzer contract in spec.md §4.1.
func (j *Journal) QueryRecent(table, predicate string, limit int) ([]map[string]any, error) {
	if !allowedTables[table] {
		return nil, fmt.Errorf("journal: query_recent: table %q not allowed", table)
	}
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf("SELECT * FROM %s", table)
	if predicate != "" {
		query += " WHERE " + predicate
	}
	query += fmt.Sprintf(" ORDER BY rowid DESC LIMIT %d", limit)

	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("journal: query_recent %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("journal: query_recent columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("journal: query_recent scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountRows returns the number of rows in an allowed table, optionally
// filtered by predicate. Used by Diagnosis's bottleneck rules (e.g.
// journal size > 10000 rows).
func (j *Journal) CountRows(table, predicate string) (int64, error) {
	if !allowedTables[table] {
		return 0, fmt.Errorf("journal: count_rows: table %q not allowed", table)
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if predicate != "" {
		query += " WHERE " + predicate
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var n int64
	if err := j.db.QueryRow(query).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count_rows %s: %w", table, err)
	}
	return n, nil
}
