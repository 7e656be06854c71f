package evolution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// maxPlanHistory caps data/evolution.json at the last 10 plans (spec.md
// §6: "list of last ≤ 10 plans").
const maxPlanHistory = 10

// PlanRecord is one entry of data/evolution.json: a snapshot of the Plan
// phase's output for a single cycle.
type PlanRecord struct {
	CycleID   string    `json:"cycle_id"`
	CreatedAt time.Time `json:"created_at"`
	Tier      int       `json:"tier"`
	TierName  string    `json:"tier_name"`
	Tasks     []Task    `json:"tasks"`
}

// readPlanHistory loads data/evolution.json, tolerating a missing file
// (a fresh install has no prior cycles).
func readPlanHistory(path string) ([]PlanRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evolution: read plan history: %w", err)
	}
	var records []PlanRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("evolution: parse plan history: %w", err)
	}
	return records, nil
}

// appendPlanHistory appends record to path's history, truncating to the
// most recent maxPlanHistory entries, and writes the file back.
func appendPlanHistory(path string, record PlanRecord) error {
	records, err := readPlanHistory(path)
	if err != nil {
		return err
	}
	records = append(records, record)
	if len(records) > maxPlanHistory {
		records = records[len(records)-maxPlanHistory:]
	}
	return writeJSONFile(path, records)
}

// KnowledgeFile is data/evolution_knowledge.json's shape (spec.md §6:
// "{lessons[], total_cycles, last_update}").
type KnowledgeFile struct {
	Lessons     []Lesson  `json:"lessons"`
	TotalCycles int       `json:"total_cycles"`
	LastUpdate  time.Time `json:"last_update"`
}

// readKnowledge loads data/evolution_knowledge.json, tolerating a missing
// file.
func readKnowledge(path string) (KnowledgeFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return KnowledgeFile{}, nil
	}
	if err != nil {
		return KnowledgeFile{}, fmt.Errorf("evolution: read knowledge: %w", err)
	}
	var kf KnowledgeFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return KnowledgeFile{}, fmt.Errorf("evolution: parse knowledge: %w", err)
	}
	return kf, nil
}

// appendKnowledge merges lessons into the knowledge file, bumps
// total_cycles by one (one cycle reflected per call), and refreshes
// last_update.
func appendKnowledge(path string, lessons []Lesson, now time.Time) error {
	kf, err := readKnowledge(path)
	if err != nil {
		return err
	}
	kf.Lessons = append(kf.Lessons, lessons...)
	kf.TotalCycles++
	kf.LastUpdate = now
	return writeJSONFile(path, kf)
}

// Checkpoint is data/evolution_checkpoint.json's shape: the pre-evolution
// snapshot rollback_last_evolution() restores from (spec.md §6, §4.6).
type Checkpoint struct {
	CycleID         string    `json:"cycle_id"`
	CreatedAt       time.Time `json:"created_at"`
	ModifiedModules []string  `json:"modified_modules"`
}

func writeCheckpoint(path string, cp Checkpoint) error {
	return writeJSONFile(path, cp)
}

// readCheckpoint loads the checkpoint file, returning an error (not a nil
// pointer) when it does not exist so rollback_last_evolution can report
// failure without side effects (spec.md §4.6).
func readCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("evolution: no checkpoint to roll back to: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("evolution: parse checkpoint: %w", err)
	}
	return cp, nil
}

func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("evolution: mkdir %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("evolution: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("evolution: write %s: %w", path, err)
	}
	return nil
}
