// Package storage keeps a queryable SQLite log of change events and poll
// runs, feeding the changes and stats commands.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/storewatch/storewatch/pkg/diff"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS store_changes (
  id           INTEGER PRIMARY KEY,
  occurred_at  DATETIME NOT NULL,
  retailer     TEXT NOT NULL,
  store_key    TEXT NOT NULL,
  change_type  TEXT NOT NULL CHECK (change_type IN ('new','closed','modified')),
  field        TEXT,
  old_value    TEXT,
  new_value    TEXT
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON store_changes(occurred_at);
CREATE INDEX IF NOT EXISTS idx_changes_retailer ON store_changes(retailer, occurred_at);
CREATE TABLE IF NOT EXISTS poll_runs (
  id             INTEGER PRIMARY KEY,
  ran_at         DATETIME NOT NULL,
  retailer       TEXT NOT NULL,
  store_count    INTEGER NOT NULL,
  new_count      INTEGER NOT NULL,
  closed_count   INTEGER NOT NULL,
  modified_count INTEGER NOT NULL,
  collisions     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_retailer ON poll_runs(retailer, ran_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Change is one row of the change log: a store appearing, disappearing, or
// one of its fields moving.
type Change struct {
	OccurredAt time.Time
	Retailer   string
	StoreKey   string
	ChangeType string // new | closed | modified
	Field      string
	OldValue   string
	NewValue   string
}

// RecordReport writes one poll run into the log: a run summary row plus one
// change row per new/closed store and per modified field, all in one
// transaction.
func (d *DB) RecordReport(ctx context.Context, retailer string, storeCount int, rep *diff.Report) error {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	at := rep.GeneratedAt.UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO poll_runs(ran_at, retailer, store_count, new_count, closed_count, modified_count, collisions) VALUES(?,?,?,?,?,?,?)`,
		at, retailer, storeCount, rep.NewCount, rep.ClosedCount, rep.ModifiedCount, rep.CurrentCollisions)
	if err != nil {
		return err
	}

	insert := func(key, changeType, field string, oldV, newV any) error {
		_, ierr := tx.ExecContext(ctx,
			`INSERT INTO store_changes(occurred_at, retailer, store_key, change_type, field, old_value, new_value) VALUES(?,?,?,?,?,?,?)`,
			at, retailer, key, changeType, nullIfEmpty(field), valueText(oldV), valueText(newV))
		return ierr
	}
	for _, key := range rep.NewKeys {
		if err = insert(key, "new", "", nil, nil); err != nil {
			return err
		}
	}
	for _, key := range rep.ClosedKeys {
		if err = insert(key, "closed", "", nil, nil); err != nil {
			return err
		}
	}
	for _, m := range rep.Modified {
		for field, delta := range m.FieldChanges {
			if err = insert(m.Key, "modified", field, delta.Old, delta.New); err != nil {
				return err
			}
		}
	}
	err = tx.Commit()
	return err
}

// ListRecentChanges returns the most recent N change rows across all
// retailers.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, retailer, store_key, change_type, field, old_value, new_value FROM store_changes ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var occurredAtStr string
		var field, oldV, newV sql.NullString
		if err := rows.Scan(&occurredAtStr, &c.Retailer, &c.StoreKey, &c.ChangeType, &field, &oldV, &newV); err != nil {
			return nil, err
		}
		c.OccurredAt = parseSQLiteTime(occurredAtStr)
		c.Field = field.String
		c.OldValue = oldV.String
		c.NewValue = newV.String
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

type RetailerStats struct {
	Retailer      string
	Runs          int
	StoreCount    int // latest run
	NewTotal      int
	ClosedTotal   int
	ModifiedTotal int
	LastRun       time.Time
}

func (d *DB) GetStats(ctx context.Context) ([]RetailerStats, error) {
	query := `
		SELECT
			retailer,
			COUNT(*),
			SUM(new_count),
			SUM(closed_count),
			SUM(modified_count),
			MAX(ran_at)
		FROM
			poll_runs
		GROUP BY
			retailer
		ORDER BY
			retailer;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []RetailerStats
	for rows.Next() {
		var s RetailerStats
		var lastRun string
		if err := rows.Scan(&s.Retailer, &s.Runs, &s.NewTotal, &s.ClosedTotal, &s.ModifiedTotal, &lastRun); err != nil {
			return nil, err
		}
		s.LastRun = parseSQLiteTime(lastRun)
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range stats {
		var count int
		err := d.sql.QueryRowContext(ctx,
			"SELECT store_count FROM poll_runs WHERE retailer = ? ORDER BY ran_at DESC, id DESC LIMIT 1",
			stats[i].Retailer).Scan(&count)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		stats[i].StoreCount = count
	}
	return stats, nil
}

// parseSQLiteTime handles both the CURRENT_TIMESTAMP format and the RFC 3339
// forms the driver stores for Go time.Time values.
func parseSQLiteTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// valueText renders a field delta value for the TEXT columns. Strings pass
// through; anything else is stored as its JSON form.
func valueText(v any) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
