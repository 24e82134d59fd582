package sheets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readRows(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestLocalWorkbookCreatesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.xlsx")
	w := NewLocalWorkbook(path, "")

	require.NoError(t, w.Append([]string{"m1", "2026-08-01", "a@b.test", "Invoice #1"}))
	require.NoError(t, w.Append([]string{"m2", "2026-08-02", "c@d.test", "Invoice #2"}))

	rows := readRows(t, path, "Log")
	require.Len(t, rows, 2)
	assert.Equal(t, "m1", rows[0][0])
	assert.Equal(t, "Invoice #2", rows[1][3])
}

func TestLocalWorkbookRemoveByKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.xlsx")
	w := NewLocalWorkbook(path, "Receipts")

	require.NoError(t, w.Append([]string{"m1", "keep"}))
	require.NoError(t, w.Append([]string{"m2", "drop"}))
	require.NoError(t, w.Append([]string{"m2", "drop too"}))
	require.NoError(t, w.Append([]string{"m3", "keep"}))

	require.NoError(t, w.RemoveByKey("m2"))

	rows := readRows(t, path, "Receipts")
	require.Len(t, rows, 2)
	assert.Equal(t, "m1", rows[0][0])
	assert.Equal(t, "m3", rows[1][0])
}

func TestLocalWorkbookRemoveMissingWorkbookIsNoop(t *testing.T) {
	w := NewLocalWorkbook(filepath.Join(t.TempDir(), "never.xlsx"), "")
	assert.NoError(t, w.RemoveByKey("m1"))
}

func TestLocalWorkbookRemoveUnknownKeyLeavesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.xlsx")
	w := NewLocalWorkbook(path, "")

	require.NoError(t, w.Append([]string{"m1"}))
	require.NoError(t, w.RemoveByKey("missing"))

	rows := readRows(t, path, "Log")
	assert.Len(t, rows, 1)
}
