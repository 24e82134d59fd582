package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	sheetsapi "google.golang.org/api/sheets/v4"
)

// RemoteSheet appends rows to a named Google spreadsheet. Spreadsheet ids are
// cached by title in a small JSON file so find-or-create does not need the
// Drive search API.
type RemoteSheet struct {
	svc       *sheetsapi.Service
	title     string
	sheet     string
	cachePath string
}

// NewRemoteSheet returns a sink for the named spreadsheet. cacheDir holds the
// title -> spreadsheet-id cache.
func NewRemoteSheet(svc *sheetsapi.Service, title, sheet, cacheDir string) *RemoteSheet {
	if sheet == "" {
		sheet = "Log"
	}
	return &RemoteSheet{
		svc:       svc,
		title:     title,
		sheet:     sheet,
		cachePath: filepath.Join(cacheDir, "sheets.json"),
	}
}

// Append appends one row to the named tab, creating the spreadsheet on first
// use.
func (r *RemoteSheet) Append(row []string) error {
	ctx := context.Background()
	id, err := r.spreadsheetID(ctx)
	if err != nil {
		return err
	}

	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}

	_, err = r.svc.Spreadsheets.Values.Append(id, r.sheet+"!A1", &sheetsapi.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %q: %w", r.title, err)
	}
	return nil
}

// RemoveByKey deletes every row whose first cell equals key.
func (r *RemoteSheet) RemoveByKey(key string) error {
	ctx := context.Background()
	id, err := r.spreadsheetID(ctx)
	if err != nil {
		return err
	}

	resp, err := r.svc.Spreadsheets.Values.Get(id, r.sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %q: %w", r.title, err)
	}

	sheetID, err := r.sheetID(ctx, id)
	if err != nil {
		return err
	}

	var requests []*sheetsapi.Request
	// Bottom-up so earlier deletions don't shift pending indices.
	for i := len(resp.Values) - 1; i >= 0; i-- {
		if len(resp.Values[i]) > 0 && fmt.Sprint(resp.Values[i][0]) == key {
			requests = append(requests, &sheetsapi.Request{
				DeleteDimension: &sheetsapi.DeleteDimensionRequest{
					Range: &sheetsapi.DimensionRange{
						SheetId:    sheetID,
						Dimension:  "ROWS",
						StartIndex: int64(i),
						EndIndex:   int64(i + 1),
					},
				},
			})
		}
	}
	if len(requests) == 0 {
		return nil
	}

	_, err = r.svc.Spreadsheets.BatchUpdate(id, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete rows in %q: %w", r.title, err)
	}
	return nil
}

// spreadsheetID finds the cached id for the title, creating the spreadsheet
// when no cache entry exists.
func (r *RemoteSheet) spreadsheetID(ctx context.Context) (string, error) {
	cache := r.loadCache()
	if id, ok := cache[r.title]; ok {
		return id, nil
	}

	ss, err := r.svc.Spreadsheets.Create(&sheetsapi.Spreadsheet{
		Properties: &sheetsapi.SpreadsheetProperties{Title: r.title},
		Sheets: []*sheetsapi.Sheet{
			{Properties: &sheetsapi.SheetProperties{Title: r.sheet}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create spreadsheet %q: %w", r.title, err)
	}

	cache[r.title] = ss.SpreadsheetId
	r.saveCache(cache)
	return ss.SpreadsheetId, nil
}

func (r *RemoteSheet) sheetID(ctx context.Context, spreadsheetID string) (int64, error) {
	ss, err := r.svc.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties.Title == r.sheet {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in %q", r.sheet, r.title)
}

func (r *RemoteSheet) loadCache() map[string]string {
	cache := map[string]string{}
	data, err := os.ReadFile(r.cachePath)
	if err != nil {
		return cache
	}
	_ = json.Unmarshal(data, &cache)
	return cache
}

func (r *RemoteSheet) saveCache(cache map[string]string) {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(r.cachePath), 0o755)
	_ = os.WriteFile(r.cachePath, data, 0o600)
}
