package delta

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "deltas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tr, err := New(db)
	require.NoError(t, err)
	return tr
}

func TestUndoRestoresModifiedFile(t *testing.T) {
	tr := openTracker(t)
	tr.SetSession("s1")
	tr.BeginTurn(7)

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	tr.RecordModify(path, []byte("original"))
	require.NoError(t, os.WriteFile(path, []byte("clobbered"), 0o644))

	restored, err := tr.Undo("s1", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, restored)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestUndoRemovesCreatedFile(t *testing.T) {
	tr := openTracker(t)
	tr.SetSession("s1")
	tr.BeginTurn(1)

	path := filepath.Join(t.TempDir(), "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("fresh"), 0o644))
	tr.RecordCreate(path)

	restored, err := tr.Undo("s1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, restored)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFirstPreImagePerTurnWins(t *testing.T) {
	tr := openTracker(t)
	tr.SetSession("s1")
	tr.BeginTurn(3)

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("v3"), 0o644))

	// Two edits in the same turn: only the first pre-image is kept.
	tr.RecordModify(path, []byte("v1"))
	tr.RecordModify(path, []byte("v2"))

	restored, err := tr.Undo("s1", 3)
	require.NoError(t, err)
	require.Len(t, restored, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestRecordsScopedBySessionAndTurn(t *testing.T) {
	tr := openTracker(t)
	tr.SetSession("s1")
	tr.BeginTurn(1)

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("turn1"), 0o644))
	tr.RecordModify(path, []byte("turn1"))

	// A different turn/session has nothing to undo.
	restored, err := tr.Undo("s1", 2)
	require.NoError(t, err)
	assert.Empty(t, restored)
	restored, err = tr.Undo("s2", 1)
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestRecordWithoutActiveTurnIsNoop(t *testing.T) {
	tr := openTracker(t)
	// No SetSession/BeginTurn.
	tr.RecordModify("/tmp/whatever", []byte("x"))
	tr.RecordCreate("/tmp/whatever")

	restored, err := tr.Undo("", 0)
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestDeleteTurn(t *testing.T) {
	tr := openTracker(t)
	tr.SetSession("s1")
	tr.BeginTurn(5)

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))
	tr.RecordModify(path, []byte("old"))

	tr.DeleteTurn("s1", 5)

	restored, err := tr.Undo("s1", 5)
	require.NoError(t, err)
	assert.Empty(t, restored)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "keep", string(data))
}

func TestRecordTreeChangesUndoesShellWrites(t *testing.T) {
	tr := openTracker(t)
	tr.SetSession("s1")
	tr.BeginTurn(3)

	root := t.TempDir()
	modified := filepath.Join(root, "mod.txt")
	removed := filepath.Join(root, "gone.txt")
	require.NoError(t, os.WriteFile(modified, []byte("original"), 0o644))
	require.NoError(t, os.WriteFile(removed, []byte("payload"), 0o644))

	pre := CaptureTree(root)

	// Simulate what a shell command did: overwrite, delete, create.
	require.NoError(t, os.WriteFile(modified, []byte("clobbered!"), 0o644))
	require.NoError(t, os.Remove(removed))
	created := filepath.Join(root, "new.txt")
	require.NoError(t, os.WriteFile(created, []byte("fresh"), 0o644))

	tr.RecordTreeChanges(root, pre)

	restored, err := tr.Undo("s1", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, restored)

	data, _ := os.ReadFile(modified)
	assert.Equal(t, "original", string(data))
	data, _ = os.ReadFile(removed)
	assert.Equal(t, "payload", string(data))
	_, err = os.Stat(created)
	assert.True(t, os.IsNotExist(err))
}
