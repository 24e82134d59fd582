package pending

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortwatch/sortwatch/internal/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestQueueDeletionSnapshotsTarget(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "old.log", "12345")
	q := NewQueue(filepath.Join(dir, "trash"), nil, nil, nil)

	a, err := q.QueueDeletion(path, "stale log")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, types.PendingDelete, a.Kind)
	assert.Equal(t, "old.log", a.FileName)
	assert.EqualValues(t, 5, a.Size)
	assert.Equal(t, 1, q.Len())

	// Queuing alone must not touch the file.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestQueueDeletionMissingFileFails(t *testing.T) {
	q := NewQueue(t.TempDir(), nil, nil, nil)
	_, err := q.QueueDeletion("/nonexistent/file", "")
	assert.Error(t, err)
	assert.Zero(t, q.Len())
}

func TestQueueMultipleSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "a.txt", "x")
	q := NewQueue(filepath.Join(dir, "trash"), nil, nil, nil)

	queued := q.QueueMultiple([]string{good, filepath.Join(dir, "missing.txt")}, "cleanup")
	assert.Len(t, queued, 1)
	assert.Equal(t, 1, q.Len())
}

func TestExecuteMovesToTrashAndRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	trash := filepath.Join(dir, "trash")
	path := writeFile(t, dir, "doomed.txt", "bye")

	var audited []string
	q := NewQueue(trash, nil, nil, func(a types.PendingAction, outcome string, err error) {
		audited = append(audited, outcome)
	})

	a, err := q.QueueDeletion(path, "")
	require.NoError(t, err)
	require.NoError(t, q.Execute(a.ID))

	assert.Zero(t, q.Len(), "executed entry leaves the queue")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "original path should be gone")

	entries, err := os.ReadDir(trash)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "doomed.txt", "trashed file keeps its name for recovery")
	assert.Equal(t, []string{"executed"}, audited)
}

func TestExecuteFailureKeepsEntryQueued(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gone.txt", "x")
	q := NewQueue(filepath.Join(dir, "trash"), nil, nil, nil)

	a, err := q.QueueDeletion(path, "")
	require.NoError(t, err)

	// Remove the file out from under the queue so the trash move fails.
	require.NoError(t, os.Remove(path))

	err = q.Execute(a.ID)
	assert.Error(t, err)
	assert.Equal(t, 1, q.Len(), "failed entry stays queued")
}

func TestRemoveKeepsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "keep.txt", "x")
	q := NewQueue(filepath.Join(dir, "trash"), nil, nil, nil)

	a, err := q.QueueDeletion(path, "")
	require.NoError(t, err)
	require.NoError(t, q.Remove(a.ID))

	assert.Zero(t, q.Len())
	_, err = os.Stat(path)
	assert.NoError(t, err, "kept file untouched")

	assert.Error(t, q.Remove(a.ID), "double remove fails")
}

func TestKeepAllTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	p1 := writeFile(t, dir, "a.txt", "x")
	p2 := writeFile(t, dir, "b.txt", "y")
	q := NewQueue(filepath.Join(dir, "trash"), nil, nil, nil)

	_, err := q.QueueDeletion(p1, "")
	require.NoError(t, err)
	_, err = q.QueueDeletion(p2, "")
	require.NoError(t, err)

	assert.Equal(t, 2, q.KeepAll())
	assert.Zero(t, q.Len())
	for _, p := range []string{p1, p2} {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	assert.Zero(t, q.KeepAll(), "empty queue keeps zero")
}

func TestExecuteAllReportsPerItem(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", "x")
	bad := writeFile(t, dir, "bad.txt", "y")
	q := NewQueue(filepath.Join(dir, "trash"), nil, nil, nil)

	_, err := q.QueueDeletion(good, "")
	require.NoError(t, err)
	badAction, err := q.QueueDeletion(bad, "")
	require.NoError(t, err)
	require.NoError(t, os.Remove(bad))

	results := q.ExecuteAll()
	require.Len(t, results, 2)

	byID := map[string]ExecResult{}
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.False(t, byID[badAction.ID].Success)
	assert.NotEmpty(t, byID[badAction.ID].Error)
	assert.Equal(t, 1, q.Len(), "only the failed entry remains")
}

func TestExecuteMoveRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "x")
	dst := writeFile(t, dir, "dst.txt", "y")
	q := NewQueue(filepath.Join(dir, "trash"), nil, nil, nil)

	a, err := q.QueueMove(src, dst, "")
	require.NoError(t, err)

	err = q.Execute(a.ID)
	assert.Error(t, err, "move must not clobber an existing file")
	assert.Equal(t, 1, q.Len())
}
