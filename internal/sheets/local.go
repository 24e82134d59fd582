// Package sheets implements the mail watcher log targets: a local XLSX
// workbook and a remote Google Sheet. Both append rows keyed by message id so
// a deletion can later strip the matching row.
package sheets

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

// Sink is one log destination.
type Sink interface {
	// Append adds one row. The first cell is the message id (the removal key).
	Append(row []string) error
	// RemoveByKey deletes every row whose first cell equals key.
	RemoveByKey(key string) error
}

// LocalWorkbook appends rows to an XLSX file, creating it on first use.
type LocalWorkbook struct {
	Path  string
	Sheet string
}

// NewLocalWorkbook returns a sink for the given workbook path.
func NewLocalWorkbook(path, sheet string) *LocalWorkbook {
	if sheet == "" {
		sheet = "Log"
	}
	return &LocalWorkbook{Path: path, Sheet: sheet}
}

func (w *LocalWorkbook) open() (*excelize.File, error) {
	if _, err := os.Stat(w.Path); os.IsNotExist(err) {
		f := excelize.NewFile()
		// The default sheet is "Sheet1"; rename it to ours.
		if err := f.SetSheetName("Sheet1", w.Sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("name sheet: %w", err)
		}
		return f, nil
	}

	f, err := excelize.OpenFile(w.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", w.Path, err)
	}
	if idx, err := f.GetSheetIndex(w.Sheet); err != nil || idx < 0 {
		if _, err := f.NewSheet(w.Sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %q: %w", w.Sheet, err)
		}
	}
	return f, nil
}

// Append reads-or-creates the workbook, appends one row, and rewrites the
// file.
func (w *LocalWorkbook) Append(row []string) error {
	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(w.Sheet)
	if err != nil {
		return fmt.Errorf("read sheet: %w", err)
	}

	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}

	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	if err := f.SetSheetRow(w.Sheet, cell, &cells); err != nil {
		return fmt.Errorf("write row: %w", err)
	}

	if err := f.SaveAs(w.Path); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.Path, err)
	}
	return nil
}

// RemoveByKey deletes rows whose first cell equals key. A missing workbook is
// a no-op: there is nothing to strip.
func (w *LocalWorkbook) RemoveByKey(key string) error {
	if _, err := os.Stat(w.Path); os.IsNotExist(err) {
		return nil
	}

	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(w.Sheet)
	if err != nil {
		return fmt.Errorf("read sheet: %w", err)
	}

	// Walk bottom-up so row indices stay valid while removing.
	removed := false
	for i := len(rows) - 1; i >= 0; i-- {
		if len(rows[i]) > 0 && rows[i][0] == key {
			if err := f.RemoveRow(w.Sheet, i+1); err != nil {
				return fmt.Errorf("remove row %d: %w", i+1, err)
			}
			removed = true
		}
	}

	if !removed {
		return nil
	}
	if err := f.SaveAs(w.Path); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.Path, err)
	}
	return nil
}
