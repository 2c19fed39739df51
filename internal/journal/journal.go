// Package journal keeps a local record of every command invocation and its
// outcome. It is diagnostic only; runs never read it to decide what to do.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Entry is one journaled invocation
type Entry struct {
	ID         string     `db:"id"`
	Command    string     `db:"command"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Status     string     `db:"status"`
	Sent       int        `db:"sent"`
	Resent     bool       `db:"resent"`
	Messages   int        `db:"messages"`
	Updated    int        `db:"updated"`
	Inserted   int        `db:"inserted"`
	Error      string     `db:"error"`
}

// Counts are the figures recorded when an invocation finishes
type Counts struct {
	Sent     int
	Resent   bool
	Messages int
	Updated  int
	Inserted int
}

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			command     TEXT NOT NULL,
			started_at  DATETIME NOT NULL,
			finished_at DATETIME,
			status      TEXT NOT NULL,
			sent        INTEGER NOT NULL DEFAULT 0,
			resent      INTEGER NOT NULL DEFAULT 0,
			messages    INTEGER NOT NULL DEFAULT 0,
			updated     INTEGER NOT NULL DEFAULT 0,
			inserted    INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
		INSERT INTO schema_version (version) VALUES (1);`,
	},
}

// Journal is a SQLite backed run log
type Journal struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (or creates) the journal database at path and applies pending migrations
func Open(path string) (*Journal, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	j := &Journal{db: db, now: time.Now}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	current := 0

	var tableCount int
	err := j.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := j.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := j.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Begin records the start of command and returns its entry id
func (j *Journal) Begin(ctx context.Context, command string) (string, error) {
	id := uuid.New().String()
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (id, command, started_at, status) VALUES (?, ?, ?, ?)",
		id, command, j.now().UTC(), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("recording start of %s: %w", command, err)
	}
	return id, nil
}

// Finish closes the entry id with counts and, when runErr is set, the failure
func (j *Journal) Finish(ctx context.Context, id string, counts Counts, runErr error) error {
	status := StatusDone
	message := ""
	if runErr != nil {
		status = StatusFailed
		message = runErr.Error()
	}

	res, err := j.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?, status = ?,
			sent = ?, resent = ?, messages = ?, updated = ?, inserted = ?,
			error = ?
		WHERE id = ?`,
		j.now().UTC(), status,
		counts.Sent, counts.Resent, counts.Messages, counts.Updated, counts.Inserted,
		message, id,
	)
	if err != nil {
		return fmt.Errorf("recording end of run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// Get returns a single entry
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	err := j.db.GetContext(ctx, &e, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return &e, nil
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []Entry
	err := j.db.SelectContext(ctx, &entries,
		"SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return entries, nil
}
