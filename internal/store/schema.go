package store

// Schema is the DDL for the sortwatch database.
const Schema = `
CREATE TABLE IF NOT EXISTS watchers (
    id          TEXT PRIMARY KEY,
    config      TEXT NOT NULL,
    stats       TEXT NOT NULL,
    matches     TEXT,
    activity    TEXT,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fs_activity (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    time         TEXT NOT NULL,
    file         TEXT NOT NULL,
    action       TEXT NOT NULL,
    destination  TEXT,
    matched_rule INTEGER DEFAULT 0,
    confidence   REAL DEFAULT 0,
    used_ai      INTEGER DEFAULT 0,
    error        TEXT
);

CREATE TABLE IF NOT EXISTS pending_audit (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    action_id   TEXT NOT NULL,
    kind        TEXT NOT NULL,
    source      TEXT NOT NULL,
    destination TEXT,
    size        INTEGER DEFAULT 0,
    reason      TEXT,
    outcome     TEXT NOT NULL,
    error       TEXT,
    time        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fs_activity_time ON fs_activity(time DESC);
CREATE INDEX IF NOT EXISTS idx_pending_audit_time ON pending_audit(time DESC);
`
