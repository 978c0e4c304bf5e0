package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"payadvice/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS attachments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  messageId TEXT NOT NULL,
  originalFilename TEXT NOT NULL,
  sanitizedFilename TEXT NOT NULL,
  storageFilename TEXT NOT NULL,
  folderId TEXT NOT NULL,
  blobId TEXT,
  alreadyStored INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(folderId, storageFilename)
);
CREATE INDEX IF NOT EXISTS idx_attachments_messageId ON attachments(messageId);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  label TEXT NOT NULL,
  workflow TEXT NOT NULL,
  startedAt TEXT NOT NULL,
  endedAt TEXT NOT NULL,
  found INTEGER NOT NULL,
  processed INTEGER NOT NULL,
  skipped INTEGER NOT NULL,
  failed INTEGER NOT NULL,
  rowsWritten INTEGER NOT NULL,
  lineItems INTEGER NOT NULL,
  status TEXT NOT NULL,
  error TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// RecordAttachment stores an uploaded attachment; re-recording the same
// storage name in the same folder keeps the first row.
func (d *DB) RecordAttachment(rec internal.AttachmentRecord) error {
	_, err := d.conn.Exec(`
INSERT INTO attachments (messageId, originalFilename, sanitizedFilename, storageFilename, folderId, blobId, alreadyStored)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(folderId, storageFilename) DO NOTHING
`, rec.MessageID, rec.OriginalFilename, rec.SanitizedFilename, rec.StorageFilename, rec.FolderID, rec.BlobID, boolToInt(rec.AlreadyStored))
	return err
}

func (d *DB) ListAttachments(limit int) ([]internal.AttachmentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.Query(`
SELECT messageId, originalFilename, sanitizedFilename, storageFilename, folderId, COALESCE(blobId, ''), alreadyStored
FROM attachments
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.AttachmentRecord
	for rows.Next() {
		var rec internal.AttachmentRecord
		var already int
		if err := rows.Scan(&rec.MessageID, &rec.OriginalFilename, &rec.SanitizedFilename, &rec.StorageFilename, &rec.FolderID, &rec.BlobID, &already); err != nil {
			return nil, err
		}
		rec.AlreadyStored = already != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(stats internal.RunStats) error {
	_, err := d.conn.Exec(`
INSERT INTO runs (label, workflow, startedAt, endedAt, found, processed, skipped, failed, rowsWritten, lineItems, status, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, stats.Label, stats.Workflow,
		stats.StartedAt.UTC().Format(time.RFC3339Nano), stats.EndedAt.UTC().Format(time.RFC3339Nano),
		stats.Found, stats.Processed, stats.Skipped, stats.Failed, stats.RowsWritten, stats.LineItems,
		string(stats.Status), stats.Err)
	return err
}

func (d *DB) ListRuns(limit int) ([]internal.RunStats, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT label, workflow, startedAt, endedAt, found, processed, skipped, failed, rowsWritten, lineItems, status, COALESCE(error, '')
FROM runs
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunStats
	for rows.Next() {
		var s internal.RunStats
		var started, ended, status string
		if err := rows.Scan(&s.Label, &s.Workflow, &started, &ended, &s.Found, &s.Processed, &s.Skipped, &s.Failed, &s.RowsWritten, &s.LineItems, &status, &s.Err); err != nil {
			return nil, err
		}
		s.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		s.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
		s.Status = internal.RunStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value, updatedAt) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
