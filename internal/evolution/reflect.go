package evolution

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// extractLessons builds phase 6's lesson list from the Execute results and
// Integrate & Test report (spec.md §4.6 Reflect & Cleanup).
func extractLessons(results []TaskResult, tests TestReport) []Lesson {
	var lessons []Lesson
	for _, r := range results {
		if r.Success {
			lessons = append(lessons, Lesson{
				Type:    LessonSuccess,
				Task:    r.Task,
				Lesson:  fmt.Sprintf("%s completed: %s", r.Task, r.Output),
				Insight: "this task class is safe to repeat",
			})
			continue
		}
		detail := ""
		if len(r.Errors) > 0 {
			detail = r.Errors[0]
		}
		lessons = append(lessons, Lesson{
			Type:           LessonFailure,
			Task:           r.Task,
			Lesson:         fmt.Sprintf("%s failed: %s", r.Task, detail),
			Insight:        "reclassify or simplify this task before retrying",
			Recommendation: "narrow the task description so classifyTask routes it more specifically",
		})
	}
	if tests.TestsFailed > 0 {
		lessons = append(lessons, Lesson{
			Type:    LessonWarning,
			Task:    "integrate_and_test",
			Lesson:  fmt.Sprintf("%d/%d fixed-suite tests failed", tests.TestsFailed, tests.TestsRun),
			Insight: "treat this cycle's changes as unverified until rerun clean",
		})
	}
	return lessons
}

// cleanupTempFiles removes temporary diagnosis/patch/backup files left
// under dataDir (spec.md §4.6 Reflect & Cleanup: "delete temporary
// diagnosis/patch/backup files"). Named backups under ModuleModifier's
// backupDir are never touched — only this runtime's own *.tmp scratch
// files are.
func cleanupTempFiles(dataDir string) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			os.Remove(filepath.Join(dataDir, e.Name()))
		}
	}
}

// reflectAndCleanup extracts lessons, appends them to the evolution
// knowledge file, and sweeps temporary files.
func (e *Engine) reflectAndCleanup(results []TaskResult, tests TestReport, now time.Time) ([]Lesson, error) {
	lessons := extractLessons(results, tests)
	if err := appendKnowledge(e.knowledgePath(), lessons, now); err != nil {
		return lessons, err
	}
	cleanupTempFiles(e.dataDir)
	return lessons, nil
}

func (e *Engine) knowledgePath() string   { return filepath.Join(e.dataDir, "evolution_knowledge.json") }
func (e *Engine) planHistoryPath() string { return filepath.Join(e.dataDir, "evolution.json") }
func (e *Engine) checkpointPath() string  { return filepath.Join(e.dataDir, "evolution_checkpoint.json") }

// RollbackLastEvolution reads the last checkpoint and restores every
// module it names from its most recent backup (spec.md §4.6 Rollback). It
// reports failure without side effects if no checkpoint exists.
func (e *Engine) RollbackLastEvolution() error {
	cp, err := readCheckpoint(e.checkpointPath())
	if err != nil {
		return err
	}
	var firstErr error
	for _, modulePath := range cp.ModifiedModules {
		if err := e.modifier.RestoreBackup(modulePath); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
