package evolution

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestBackupRoundTrip implements spec.md §8 invariant 9: after a
// modify_module that "passes tests" and a subsequent restore_backup, the
// module is byte-identical to its pre-modification contents.
func TestBackupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	modulePath := filepath.Join(dir, "module.go")
	original := []byte("package p\n\nfunc Original() {}\n")
	require.NoError(t, os.WriteFile(modulePath, original, 0o644))

	m := NewModuleModifier(filepath.Join(dir, "backups"))

	_, err := m.ModifyModule(modulePath, []byte("package p\n\nfunc Modified() {}\n"), time.Now())
	require.NoError(t, err)
	modified, err := os.ReadFile(modulePath)
	require.NoError(t, err)
	require.NotEqual(t, original, modified)

	require.NoError(t, m.RestoreBackup(modulePath))
	restored, err := os.ReadFile(modulePath)
	require.NoError(t, err)
	require.Equal(t, original, restored)
}

func TestRestoreBackupWithoutPriorModifyFails(t *testing.T) {
	dir := t.TempDir()
	m := NewModuleModifier(filepath.Join(dir, "backups"))
	err := m.RestoreBackup(filepath.Join(dir, "never_touched.go"))
	require.Error(t, err)
}

// TestRepeatedModifyDoesNotClobberEarlierBackup guards against a fixed
// backup filename silently overwriting a prior backup: two modifications
// a second apart must leave both backups on disk, and restore must
// recover the most recent pre-modification contents, not the oldest.
func TestRepeatedModifyDoesNotClobberEarlierBackup(t *testing.T) {
	dir := t.TempDir()
	modulePath := filepath.Join(dir, "module.go")
	first := []byte("package p\n\nfunc V1() {}\n")
	second := []byte("package p\n\nfunc V2() {}\n")
	require.NoError(t, os.WriteFile(modulePath, first, 0o644))

	m := NewModuleModifier(filepath.Join(dir, "backups"))
	now := time.Now()

	_, err := m.ModifyModule(modulePath, second, now)
	require.NoError(t, err)

	_, err = m.ModifyModule(modulePath, []byte("package p\n\nfunc V3() {}\n"), now.Add(time.Second))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, m.RestoreBackup(modulePath))
	restored, err := os.ReadFile(modulePath)
	require.NoError(t, err)
	require.Equal(t, second, restored)
}
