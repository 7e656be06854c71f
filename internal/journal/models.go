package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// MasterTrait mirrors a row of master_model.
type MasterTrait struct {
	ID            int64
	Trait         string
	Value         string
	Confidence    float64
	EvidenceCount int
	LastUpdated   time.Time
}

// UpsertTrait inserts or updates a trait. newConfidence should already be
// computed by the caller's bounded-reinforcement rule (spec.md §3).
func (j *Journal) UpsertTrait(trait, value string, confidence float64, evidenceCount int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO master_model (trait, value, confidence, evidence_count, last_updated)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(trait) DO UPDATE SET
			value = excluded.value,
			confidence = excluded.confidence,
			evidence_count = excluded.evidence_count,
			last_updated = CURRENT_TIMESTAMP`,
		trait, value, confidence, evidenceCount,
	)
	if err != nil {
		return fmt.Errorf("journal: upsert trait %q: %w", trait, err)
	}
	return nil
}

// GetTrait fetches a single master_model row by trait name.
func (j *Journal) GetTrait(trait string) (*MasterTrait, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var t MasterTrait
	err := j.db.QueryRow(
		`SELECT id, trait, value, confidence, evidence_count, last_updated FROM master_model WHERE trait = ?`,
		trait,
	).Scan(&t.ID, &t.Trait, &t.Value, &t.Confidence, &t.EvidenceCount, &t.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get trait %q: %w", trait, err)
	}
	return &t, nil
}

// NeedsTier mirrors a row of hierarchy_of_needs.
type NeedsTier struct {
	Tier          int
	Name          string
	Description   string
	CurrentFocus  bool
	Progress      float64
}

// UpsertTier inserts or updates a tier row.
func (j *Journal) UpsertTier(tier int, name, description string, progress float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO hierarchy_of_needs (tier, name, description, current_focus, progress)
		 VALUES (?, ?, ?, 0, ?)
		 ON CONFLICT(tier) DO UPDATE SET name = excluded.name, description = excluded.description, progress = excluded.progress`,
		tier, name, description, progress,
	)
	if err != nil {
		return fmt.Errorf("journal: upsert tier %d: %w", tier, err)
	}
	return nil
}

// SetCurrentFocus sets exactly one tier's current_focus=1, clearing every
// other tier, preserving the invariant "exactly one row has
// current_focus=1" (spec.md §8 invariant 4). Runs in a single transaction.
func (j *Journal) SetCurrentFocus(tier int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("journal: begin set focus: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE hierarchy_of_needs SET current_focus = 0`); err != nil {
		return fmt.Errorf("journal: clear focus: %w", err)
	}
	res, err := tx.Exec(`UPDATE hierarchy_of_needs SET current_focus = 1 WHERE tier = ?`, tier)
	if err != nil {
		return fmt.Errorf("journal: set focus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("journal: tier %d does not exist: %w", tier, ErrNotFound)
	}
	return tx.Commit()
}

// CurrentFocusTier returns the tier with current_focus=1.
func (j *Journal) CurrentFocusTier() (*NeedsTier, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var t NeedsTier
	var focus int
	err := j.db.QueryRow(
		`SELECT tier, name, description, current_focus, progress FROM hierarchy_of_needs WHERE current_focus = 1`,
	).Scan(&t.Tier, &t.Name, &t.Description, &focus, &t.Progress)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: current focus tier: %w", err)
	}
	t.CurrentFocus = focus == 1
	return &t, nil
}

// Goal mirrors a row of goals.
type Goal struct {
	ID               int64
	GoalText         string
	GoalType         string
	Priority         int
	Status           string
	CreatedAt        time.Time
	CompletedAt      sql.NullTime
	Progress         int
	ExpectedBenefit  string
	EstimatedEffort  string
}

const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
)

// CreateGoal inserts a new active goal.
func (j *Journal) CreateGoal(text, goalType string, priority int, expectedBenefit, estimatedEffort string) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.Exec(
		`INSERT INTO goals (goal_text, goal_type, priority, status, progress, expected_benefit, estimated_effort)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		text, goalType, priority, GoalStatusActive, expectedBenefit, estimatedEffort,
	)
	if err != nil {
		return 0, fmt.Errorf("journal: create goal: %w", err)
	}
	return res.LastInsertId()
}

// CompleteGoal marks a goal completed with progress=100.
func (j *Journal) CompleteGoal(id int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`UPDATE goals SET status = ?, progress = 100, completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		GoalStatusCompleted, id,
	)
	if err != nil {
		return fmt.Errorf("journal: complete goal %d: %w", id, err)
	}
	return nil
}

// ActiveGoals returns every goal with status='active'.
func (j *Journal) ActiveGoals() ([]Goal, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, goal_text, goal_type, priority, status, created_at, completed_at, progress, expected_benefit, estimated_effort
		 FROM goals WHERE status = ? ORDER BY priority ASC, id ASC`, GoalStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: active goals: %w", err)
	}
	defer rows.Close()

	var out []Goal
	for rows.Next() {
		var g Goal
		if err := rows.Scan(&g.ID, &g.GoalText, &g.GoalType, &g.Priority, &g.Status, &g.CreatedAt, &g.CompletedAt, &g.Progress, &g.ExpectedBenefit, &g.EstimatedEffort); err != nil {
			return nil, fmt.Errorf("journal: scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RecordPerformanceSnapshot appends a row to performance_metrics.
func (j *Journal) RecordPerformanceSnapshot(errorRate, responseTime, taskCompletionRate float64, autonomousActions, goalsCompleted, evolutionsExecuted int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO performance_metrics
		 (error_rate, response_time, task_completion_rate, autonomous_actions, goals_completed, evolutions_executed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		errorRate, responseTime, taskCompletionRate, autonomousActions, goalsCompleted, evolutionsExecuted,
	)
	if err != nil {
		return fmt.Errorf("journal: record performance snapshot: %w", err)
	}
	return nil
}

// RecordStrategyOutcome appends a row to strategy_history.
func (j *Journal) RecordStrategyOutcome(name, paramsJSON string, successRate float64, completed, failed int, execSeconds float64, outcomesJSON, lessonsLearned string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO strategy_history
		 (strategy_name, strategy_params, success_rate, tasks_completed, tasks_failed, execution_time_seconds, outcomes, lessons_learned)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		name, paramsJSON, successRate, completed, failed, execSeconds, outcomesJSON, lessonsLearned,
	)
	if err != nil {
		return fmt.Errorf("journal: record strategy outcome: %w", err)
	}
	return nil
}

// UpsertCapability inserts or updates a capability_knowledge row.
func (j *Journal) UpsertCapability(capability, description string, value, complexity int, dependenciesJSON, status string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO capability_knowledge (capability, description, value, complexity, dependencies, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(capability) DO UPDATE SET
			description = excluded.description,
			value = excluded.value,
			complexity = excluded.complexity,
			dependencies = excluded.dependencies,
			status = excluded.status`,
		capability, description, value, complexity, dependenciesJSON, status,
	)
	if err != nil {
		return fmt.Errorf("journal: upsert capability %q: %w", capability, err)
	}
	return nil
}
