// Package sqlite persists the domain event stream to a local SQLite file so
// the event history survives restarts and can be served over HTTP.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type  TEXT    NOT NULL,
	event_key   TEXT    NOT NULL,
	occurred_at INTEGER NOT NULL,
	payload     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS events_type_seq ON events (event_type, seq);
`

// Entry is a journaled event with its position in the stream.
type Entry struct {
	Seq   int64        `json:"seq"`
	Event domain.Event `json:"event"`
}

// Journal is an append-only SQLite event log.
// It implements pipeline.BatchLoader.
type Journal struct {
	sqlDB *sql.DB
}

// Open opens the journal at path, creating the schema when missing.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
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
	return &Journal{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (j *Journal) Close() error {
	if j == nil || j.sqlDB == nil {
		return nil
	}
	return j.sqlDB.Close()
}

// LoadBatch appends events in one transaction, preserving their order.
func (j *Journal) LoadBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := j.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (event_type, event_key, occurred_at, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("serialize %s event: %w", e.Type, err)
		}
		if _, err := stmt.ExecContext(ctx, string(e.Type), e.Key(), e.OccurredAt.UTC().UnixMilli(), string(payload)); err != nil {
			return fmt.Errorf("append %s event: %w", e.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	return nil
}

// List returns up to limit entries after seq afterSeq in stream order,
// optionally restricted to one event type.
func (j *Journal) List(ctx context.Context, afterSeq int64, limit int, eventType domain.EventType) ([]Entry, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	query := `SELECT seq, payload FROM events WHERE seq > ?`
	args := []any{afterSeq}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY seq LIMIT ?`
	args = append(args, limit)

	rows, err := j.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry   Entry
			payload string
		)
		if err := rows.Scan(&entry.Seq, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &entry.Event); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", entry.Seq, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// CheckReadiness pings the database.
func (j *Journal) CheckReadiness(ctx context.Context) error {
	return j.sqlDB.PingContext(ctx)
}
