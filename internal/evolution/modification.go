package evolution

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ModuleModifier performs backup-before-modify edits to existing source
// modules. Execute does not call ModifyModule (see Open Question 1 in
// DESIGN.md); RollbackLastEvolution uses RestoreBackup. Plain os file copies are sufficient here — the teacher
// has no dedicated backup library anywhere in the pack, and a checkpoint
// is just "the previous file bytes," so no third-party dependency fits
// better than stdlib for this narrow operation.
type ModuleModifier struct {
	mu        sync.Mutex
	backupDir string
}

// NewModuleModifier creates a ModuleModifier that stores backups under
// backupDir.
func NewModuleModifier(backupDir string) *ModuleModifier {
	return &ModuleModifier{backupDir: backupDir}
}

// backupTimestampFormat matches spec.md §6's backup naming convention:
// backups/<module>_<YYYYMMDD_HHMMSS>.py.backup (the extension stays the
// source module's own, since this runtime's modules are .go files).
const backupTimestampFormat = "20060102_150405"

// backupPath returns where a fresh backup of modulePath's pre-modification
// bytes is kept. Each call (given a distinct now) names a new file so
// repeated modifications never clobber an earlier backup — backups are
// never garbage-collected automatically (spec.md §6).
func (m *ModuleModifier) backupPath(modulePath string, now time.Time) string {
	base := filepath.Base(modulePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(m.backupDir, fmt.Sprintf("%s_%s%s.backup", name, now.Format(backupTimestampFormat), ext))
}

// latestBackup returns the most recently created backup file for
// modulePath, or an error if none exists.
func (m *ModuleModifier) latestBackup(modulePath string) (string, error) {
	base := filepath.Base(modulePath)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "_"

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return "", fmt.Errorf("evolution: list backups: %w", err)
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".backup") {
			matches = append(matches, e.Name())
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("evolution: restore_backup: no backup found for %s", modulePath)
	}
	sort.Strings(matches) // the timestamp suffix sorts lexicographically = chronologically
	return filepath.Join(m.backupDir, matches[len(matches)-1]), nil
}

// ModifyModule backs up modulePath's current contents under a fresh
// timestamped name, then writes newContents in its place. Returns the
// backup's path so the caller can record it in an evolution checkpoint.
func (m *ModuleModifier) ModifyModule(modulePath string, newContents []byte, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("evolution: modify_module: mkdir backup dir: %w", err)
	}

	original, err := os.ReadFile(modulePath)
	if err != nil {
		return "", fmt.Errorf("evolution: modify_module: read original: %w", err)
	}
	backupPath := m.backupPath(modulePath, now)
	if err := os.WriteFile(backupPath, original, 0o644); err != nil {
		return "", fmt.Errorf("evolution: modify_module: write backup: %w", err)
	}

	if err := os.WriteFile(modulePath, newContents, 0o644); err != nil {
		// Best-effort restore so a failed write doesn't leave the module
		// half-modified; if this also fails, both errors surface.
		if restoreErr := os.WriteFile(modulePath, original, 0o644); restoreErr != nil {
			return "", fmt.Errorf("evolution: modify_module: write failed (%v) and restore failed (%w)", err, restoreErr)
		}
		return "", fmt.Errorf("evolution: modify_module: write new contents: %w", err)
	}

	return backupPath, nil
}

// RestoreBackup restores modulePath from its most recent backup,
// implementing spec.md §8 invariant 9's round trip: after a successful
// modify followed by restore, the module is byte-identical to its
// pre-modification contents.
func (m *ModuleModifier) RestoreBackup(modulePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	backupPath, err := m.latestBackup(modulePath)
	if err != nil {
		return err
	}
	backup, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("evolution: restore_backup: read backup: %w", err)
	}
	if err := os.WriteFile(modulePath, backup, 0o644); err != nil {
		return fmt.Errorf("evolution: restore_backup: write: %w", err)
	}
	return nil
}
