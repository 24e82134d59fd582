// Package store provides SQLite persistence for sortwatch: the mail watcher
// table, the filesystem activity log, and the pending-action audit trail.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sortwatch/sortwatch/internal/types"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection for sortwatch operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) a sortwatch database at the given path. The file is
// created with 0600 permissions; watcher state is not world-readable.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	_ = os.Chmod(dbPath, 0o600)

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// --- Mail watcher state ---

// WatcherState is one persisted mail watcher row.
type WatcherState struct {
	Config   types.MailWatcherConfig
	Stats    types.WatcherStats
	Matches  []types.MatchEntry
	Activity []types.EmailActivityEntry
}

// SaveWatcher upserts one watcher's state, keyed by watcher id. Callers must
// serialize saves per watcher id; concurrent saves to different watchers are
// safe.
func (d *DB) SaveWatcher(s *WatcherState) error {
	if s.Config.ID == "" {
		return fmt.Errorf("watcher config has no id")
	}

	cfg, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	matches, err := json.Marshal(clampMatches(s.Matches))
	if err != nil {
		return fmt.Errorf("marshal matches: %w", err)
	}
	activity, err := json.Marshal(clampActivity(s.Activity))
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	_, err = d.conn.Exec(`
		INSERT INTO watchers (id, config, stats, matches, activity, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config = excluded.config,
			stats = excluded.stats,
			matches = excluded.matches,
			activity = excluded.activity,
			updated_at = excluded.updated_at`,
		s.Config.ID, string(cfg), string(stats), string(matches), string(activity), types.Now(),
	)
	return err
}

// LoadWatchers returns every persisted watcher. Caps are re-enforced on load
// in case the database was edited by hand.
func (d *DB) LoadWatchers() ([]*WatcherState, error) {
	rows, err := d.conn.Query("SELECT config, stats, matches, activity FROM watchers ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*WatcherState
	for rows.Next() {
		var cfg, stats string
		var matches, activity sql.NullString
		if err := rows.Scan(&cfg, &stats, &matches, &activity); err != nil {
			return nil, err
		}

		s := &WatcherState{}
		if err := json.Unmarshal([]byte(cfg), &s.Config); err != nil {
			return nil, fmt.Errorf("decode watcher config: %w", err)
		}
		if err := json.Unmarshal([]byte(stats), &s.Stats); err != nil {
			return nil, fmt.Errorf("decode watcher stats: %w", err)
		}
		if matches.Valid && matches.String != "" {
			if err := json.Unmarshal([]byte(matches.String), &s.Matches); err != nil {
				return nil, fmt.Errorf("decode watcher matches: %w", err)
			}
		}
		if activity.Valid && activity.String != "" {
			if err := json.Unmarshal([]byte(activity.String), &s.Activity); err != nil {
				return nil, fmt.Errorf("decode watcher activity: %w", err)
			}
		}

		s.Matches = clampMatches(s.Matches)
		s.Activity = clampActivity(s.Activity)
		if s.Config.ProcessedIDs == nil {
			s.Config.ProcessedIDs = types.NewRingWindow(0)
		}
		if over := s.Config.ProcessedIDs.Len() - s.Config.ProcessedIDs.Cap; over > 0 {
			s.Config.ProcessedIDs.IDs = s.Config.ProcessedIDs.IDs[over:]
		}

		result = append(result, s)
	}
	return result, rows.Err()
}

// DeleteWatcher removes one watcher row.
func (d *DB) DeleteWatcher(id string) error {
	res, err := d.conn.Exec("DELETE FROM watchers WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("watcher %q not found", id)
	}
	return nil
}

// WatcherCount returns the number of persisted watchers.
func (d *DB) WatcherCount() int {
	var n int
	d.conn.QueryRow("SELECT COUNT(*) FROM watchers").Scan(&n)
	return n
}

// --- Filesystem activity ---

// AppendFSActivity appends one audit record. Append-only.
func (d *DB) AppendFSActivity(e types.ActivityEntry) error {
	_, err := d.conn.Exec(`
		INSERT INTO fs_activity (time, file, action, destination, matched_rule, confidence, used_ai, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time, e.File, e.Action, nullStr(e.Destination), e.MatchedRule, e.Confidence,
		boolInt(e.UsedAI), nullStr(e.Error),
	)
	return err
}

// ListFSActivity returns the newest entries, newest first.
func (d *DB) ListFSActivity(limit int) ([]types.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(`
		SELECT time, file, action, destination, matched_rule, confidence, used_ai, error
		FROM fs_activity ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []types.ActivityEntry
	for rows.Next() {
		var e types.ActivityEntry
		var dest, errText sql.NullString
		var usedAI int
		if err := rows.Scan(&e.Time, &e.File, &e.Action, &dest, &e.MatchedRule, &e.Confidence, &usedAI, &errText); err != nil {
			return nil, err
		}
		e.Destination = dest.String
		e.Error = errText.String
		e.UsedAI = usedAI == 1
		result = append(result, e)
	}
	return result, rows.Err()
}

// --- Pending-action audit ---

// AppendPendingAudit records one executed/kept/failed pending action.
func (d *DB) AppendPendingAudit(a types.PendingAction, outcome string, execErr error) error {
	errText := ""
	if execErr != nil {
		errText = execErr.Error()
	}
	_, err := d.conn.Exec(`
		INSERT INTO pending_audit (action_id, kind, source, destination, size, reason, outcome, error, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Source, nullStr(a.Destination), a.Size,
		nullStr(a.Reason), outcome, nullStr(errText), types.Now(),
	)
	return err
}

func clampMatches(m []types.MatchEntry) []types.MatchEntry {
	if len(m) > types.DefaultMatchCap {
		return m[:types.DefaultMatchCap]
	}
	return m
}

func clampActivity(a []types.EmailActivityEntry) []types.EmailActivityEntry {
	if len(a) > types.DefaultActivityCap {
		return a[:types.DefaultActivityCap]
	}
	return a
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
