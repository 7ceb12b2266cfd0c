// Package journal records one row per notification pass in SQLite. It
// keeps operational history only; message content is never stored.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/imapnotify/internal/bridge"
)

// timeFormat is fixed-width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store is a run journal backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the journal at dbPath, creating the schema on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		unseen      INTEGER NOT NULL,
		notified    INTEGER NOT NULL,
		skipped     INTEGER NOT NULL,
		reverted    INTEGER NOT NULL,
		failed      INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends a pass summary.
func (s *Store) Record(sum bridge.Summary) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, started_at, finished_at, unseen, notified, skipped, reverted, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID.String(),
		sum.Started.UTC().Format(timeFormat),
		sum.Finished.UTC().Format(timeFormat),
		sum.Unseen, sum.Notified, sum.Skipped, sum.Reverted, sum.Failed,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", sum.RunID, err)
	}
	return nil
}

// Last returns the most recent pass, or nil and no error if the
// journal is empty.
func (s *Store) Last() (*bridge.Summary, error) {
	var (
		id, started, finished string
		sum                   bridge.Summary
	)
	err := s.db.QueryRow(
		`SELECT run_id, started_at, finished_at, unseen, notified, skipped, reverted, failed
		 FROM runs ORDER BY started_at DESC, run_id DESC LIMIT 1`,
	).Scan(&id, &started, &finished, &sum.Unseen, &sum.Notified, &sum.Skipped, &sum.Reverted, &sum.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}

	if sum.RunID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("last run: parse id %q: %w", id, err)
	}
	if sum.Started, err = time.Parse(timeFormat, started); err != nil {
		return nil, fmt.Errorf("last run: parse started_at: %w", err)
	}
	if sum.Finished, err = time.Parse(timeFormat, finished); err != nil {
		return nil, fmt.Errorf("last run: parse finished_at: %w", err)
	}
	return &sum, nil
}

// Count returns the number of recorded passes.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}
