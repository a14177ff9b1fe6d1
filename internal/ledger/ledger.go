// Package ledger keeps a SQLite record of what happened to every request the
// extension touched, so batch reprocessing can skip requests already approved.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome statuses.
const (
	StatusApproved = "approved"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// ErrNotFound is returned by Get for unknown request ids.
var ErrNotFound = errors.New("ledger entry not found")

// Entry is one processing outcome.
type Entry struct {
	RequestID   string
	RequestType string
	ProductID   string
	TemplateID  string
	License     string
	Status      string
	Error       string
	ProcessedAt time.Time
	Attempts    int
}

// Ledger is a SQLite-backed outcome store.
type Ledger struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // serializes writes; SQLite allows one writer
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// sqlite time format keeps processed_at sortable as text
	db, err := sql.Open("sqlite", path+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	l := &Ledger{db: db, dbPath: path}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.dbPath
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS outcomes (
		request_id   TEXT PRIMARY KEY,
		request_type TEXT NOT NULL,
		product_id   TEXT NOT NULL DEFAULT '',
		template_id  TEXT NOT NULL DEFAULT '',
		license      TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		processed_at DATETIME NOT NULL,
		attempts     INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);
	CREATE INDEX IF NOT EXISTS idx_outcomes_processed ON outcomes(processed_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record upserts the outcome for a request and bumps its attempt count.
// A license recorded earlier is kept when the new entry has none.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.RequestID == "" {
		return fmt.Errorf("ledger entry needs a request id")
	}
	if e.Status == "" {
		return fmt.Errorf("ledger entry for %s needs a status", e.RequestID)
	}
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now()
	}
	e.ProcessedAt = e.ProcessedAt.UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO outcomes (request_id, request_type, product_id, template_id, license, status, error, processed_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(request_id) DO UPDATE SET
			request_type = excluded.request_type,
			product_id   = excluded.product_id,
			template_id  = excluded.template_id,
			license      = CASE WHEN excluded.license = '' THEN outcomes.license ELSE excluded.license END,
			status       = excluded.status,
			error        = excluded.error,
			processed_at = excluded.processed_at,
			attempts     = outcomes.attempts + 1`,
		e.RequestID, e.RequestType, e.ProductID, e.TemplateID, e.License, e.Status, e.Error, e.ProcessedAt)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.RequestID, err)
	}
	return nil
}

// Get returns the entry for a request id.
func (l *Ledger) Get(ctx context.Context, requestID string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT request_id, request_type, product_id, template_id, license, status, error, processed_at, attempts
		FROM outcomes WHERE request_id = ?`, requestID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", requestID, err)
	}
	return e, nil
}

// WasApproved reports whether the request is recorded as approved.
func (l *Ledger) WasApproved(ctx context.Context, requestID string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outcomes WHERE request_id = ? AND status = ?`,
		requestID, StatusApproved).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", requestID, err)
	}
	return n > 0, nil
}

// List returns entries newest first. An empty status lists all.
// limit <= 0 means no limit.
func (l *Ledger) List(ctx context.Context, status string, limit int) ([]Entry, error) {
	query := `SELECT request_id, request_type, product_id, template_id, license, status, error, processed_at, attempts
		FROM outcomes`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY processed_at DESC, request_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Stats returns the number of entries per status.
func (l *Ledger) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outcomes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	err := s.Scan(&e.RequestID, &e.RequestType, &e.ProductID, &e.TemplateID,
		&e.License, &e.Status, &e.Error, &e.ProcessedAt, &e.Attempts)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
