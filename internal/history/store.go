// internal/history/store.go
// SQLite-backed ledger of completed runs

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aspnmy/recon_reporter/internal/models"
)

// ErrNotFound is returned by Get for unknown run ids
var ErrNotFound = errors.New("run not found")

// Store persists run summaries
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the ledger database
// PERFORMANCE: WAL so `recon history` can read while a run writes
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close() //nolint:gosec // G104: secondary error, primary error returned
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := createTables(db); err != nil {
		_ = db.Close() //nolint:gosec // G104: secondary error, primary error returned
		return nil, err
	}

	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		target TEXT NOT NULL,
		address TEXT,
		os_label TEXT,
		open_ports TEXT, -- JSON array of ints
		abandoned INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		started_at DATETIME,
		completed_at DATETIME,
		delivery TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Record inserts one run summary
func (s *Store) Record(ctx context.Context, run models.RunSummary) error {
	ports := run.OpenPorts
	if ports == nil {
		ports = []int{}
	}
	portsJSON, err := json.Marshal(ports)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, target, address, os_label, open_ports, abandoned, duration_ms, started_at, completed_at, delivery)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Target, run.Address, string(run.OS), string(portsJSON),
		run.Abandoned, run.Duration.Milliseconds(),
		run.StartedAt.UTC(), run.CompletedAt.UTC(), string(run.Delivery),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

const selectRuns = `SELECT run_id, target, address, os_label, open_ports, abandoned, duration_ms, started_at, completed_at, delivery FROM runs`

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]models.RunSummary, error) {
	query := selectRuns + ` ORDER BY id DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns a single run by id
func (s *Store) Get(ctx context.Context, runID string) (*models.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(r rowScanner) (models.RunSummary, error) {
	var (
		run        models.RunSummary
		osLabel    string
		portsJSON  string
		durationMS int64
		delivery   string
	)

	err := r.Scan(&run.ID, &run.Target, &run.Address, &osLabel, &portsJSON,
		&run.Abandoned, &durationMS, &run.StartedAt, &run.CompletedAt, &delivery)
	if err != nil {
		return run, err
	}

	if err := json.Unmarshal([]byte(portsJSON), &run.OpenPorts); err != nil {
		return run, fmt.Errorf("failed to unmarshal open ports: %w", err)
	}
	run.OS = models.OSLabel(osLabel)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.Delivery = models.DeliveryStatus(delivery)
	return run, nil
}
