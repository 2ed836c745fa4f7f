// Package attendance stores attendance records captured while offline and
// flushes them to the origin when the sync-attendance tag is dispatched.
package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Kind is the type of attendance event.
type Kind string

const (
	KindCheckIn  Kind = "check_in"
	KindCheckOut Kind = "check_out"
)

// Record is one attendance event waiting to reach the server.
type Record struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employee_id"`
	Kind       Kind       `json:"kind"`
	RecordedAt time.Time  `json:"recorded_at"`
	Location   string     `json:"location,omitempty"`
	Note       string     `json:"note,omitempty"`
	SyncedAt   *time.Time `json:"-"`
}

const schema = `
CREATE TABLE IF NOT EXISTS attendance_outbox (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	recorded_at INTEGER NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	synced_at INTEGER
);
CREATE INDEX IF NOT EXISTS attendance_outbox_pending
	ON attendance_outbox (synced_at, recorded_at);
`

// Outbox is a SQLite-backed queue of unsent attendance records.
type Outbox struct {
	sqlDB *sql.DB
}

// OpenOutbox opens (or creates) the outbox database at path.
func OpenOutbox(path string) (*Outbox, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("outbox path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Outbox{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (o *Outbox) Close() error {
	if o == nil || o.sqlDB == nil {
		return nil
	}
	return o.sqlDB.Close()
}

// Add stores a record. Missing ids and timestamps are filled in.
func (o *Outbox) Add(ctx context.Context, record Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	record.EmployeeID = strings.TrimSpace(record.EmployeeID)
	if record.EmployeeID == "" {
		return Record{}, fmt.Errorf("employee id is required")
	}
	if record.Kind != KindCheckIn && record.Kind != KindCheckOut {
		return Record{}, fmt.Errorf("invalid attendance kind %q", record.Kind)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}
	record.RecordedAt = record.RecordedAt.UTC()
	record.SyncedAt = nil

	_, err := o.sqlDB.ExecContext(ctx, `
INSERT INTO attendance_outbox (id, employee_id, kind, recorded_at, location, note)
VALUES (?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.EmployeeID,
		string(record.Kind),
		record.RecordedAt.UnixMilli(),
		record.Location,
		record.Note,
	)
	if err != nil {
		return Record{}, fmt.Errorf("add record: %w", err)
	}
	return record, nil
}

// Pending lists unsynced records, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := o.sqlDB.QueryContext(ctx, `
SELECT id, employee_id, kind, recorded_at, location, note
FROM attendance_outbox
WHERE synced_at IS NULL
ORDER BY recorded_at ASC, id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var kind string
		var recordedAt int64
		if err := rows.Scan(&r.ID, &r.EmployeeID, &kind, &recordedAt, &r.Location, &r.Note); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Kind = Kind(kind)
		r.RecordedAt = time.UnixMilli(recordedAt).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// MarkSynced stamps the given records as delivered in one transaction.
func (o *Outbox) MarkSynced(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := o.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE attendance_outbox SET synced_at = ? WHERE id = ? AND synced_at IS NULL`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	stamp := at.UTC().UnixMilli()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, stamp, id); err != nil {
			return fmt.Errorf("mark %s synced: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PendingCount returns the number of unsynced records.
func (o *Outbox) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := o.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_outbox WHERE synced_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}
