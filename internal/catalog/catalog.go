// Package catalog records every written heatmap asset in a SQLite database
// so a batch run can be audited and diffed against earlier runs.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the catalog database name inside the output root.
const FileName = "catalog.db"

// ErrNotFound is returned when no entry exists for a filename.
var ErrNotFound = errors.New("catalog entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS assets (
    filename TEXT PRIMARY KEY,   -- path relative to the output root
    run_id TEXT NOT NULL,
    axis TEXT NOT NULL,          -- 'location' or 'direction'
    temperature REAL NOT NULL,
    duration TEXT NOT NULL,      -- value or 'all'
    position TEXT NOT NULL,      -- location fraction, direction, or 'all'
    illusion TEXT NOT NULL,      -- '1', '0', 'all', or '' when not split
    participants TEXT NOT NULL,  -- compact range form, e.g. p1-3-6
    trials INTEGER NOT NULL,
    sha256 TEXT NOT NULL,
    bytes INTEGER NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assets_run ON assets(run_id);
`

// Entry is one catalogued asset.
type Entry struct {
	Filename     string    `json:"filename"`
	RunID        string    `json:"run_id"`
	Axis         string    `json:"axis"`
	Temperature  float64   `json:"temperature"`
	Duration     string    `json:"duration"`
	Position     string    `json:"position"`
	Illusion     string    `json:"illusion,omitempty"`
	Participants string    `json:"participants"`
	Trials       int       `json:"trials"`
	SHA256       string    `json:"sha256"`
	Bytes        int       `json:"bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// Catalog is a SQLite-backed asset index. It is safe for concurrent use.
type Catalog struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open opens or creates the catalog at path.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	if err := migrateSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}

	return &Catalog{db: db, path: path}, nil
}

// migrateSchema adds the columns introduced after the first release to
// catalogs created before them.
func migrateSchema(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info('assets')`)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if !columns["illusion"] {
		if _, err := db.ExecContext(ctx, `ALTER TABLE assets ADD COLUMN illusion TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the database file path.
func (c *Catalog) Path() string { return c.path }

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Upsert inserts e, replacing any entry with the same filename.
func (c *Catalog) Upsert(ctx context.Context, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Filename == "" {
		return errors.New("filename is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO assets (filename, run_id, axis, temperature, duration, position,
			illusion, participants, trials, sha256, bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			run_id = excluded.run_id,
			axis = excluded.axis,
			temperature = excluded.temperature,
			duration = excluded.duration,
			position = excluded.position,
			illusion = excluded.illusion,
			participants = excluded.participants,
			trials = excluded.trials,
			sha256 = excluded.sha256,
			bytes = excluded.bytes,
			created_at = excluded.created_at`,
		e.Filename, e.RunID, e.Axis, e.Temperature, e.Duration, e.Position,
		e.Illusion, e.Participants, e.Trials, e.SHA256, e.Bytes, e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", e.Filename, err)
	}
	return nil
}

const selectColumns = `SELECT filename, run_id, axis, temperature, duration, position,
	illusion, participants, trials, sha256, bytes, created_at FROM assets`

// Get returns the entry for filename.
func (c *Catalog) Get(ctx context.Context, filename string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRowContext(ctx, selectColumns+` WHERE filename = ?`, filename)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return e, err
}

// List returns entries ordered by filename. A non-empty runID restricts
// the result to that run.
func (c *Catalog) List(ctx context.Context, runID string) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := selectColumns
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY filename`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var created string
	if err := s.Scan(&e.Filename, &e.RunID, &e.Axis, &e.Temperature, &e.Duration, &e.Position,
		&e.Illusion, &e.Participants, &e.Trials, &e.SHA256, &e.Bytes, &created); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	e.CreatedAt = t
	return e, nil
}
