// Package history keeps a DuckDB table of finished upload-and-scrape runs.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/sheetscrape/console/internal/models"
)

// ErrInvalidLimit is returned by Recent for a limit below one.
var ErrInvalidLimit = errors.New("limit must be at least 1")

// recentPrealloc caps the slice Recent sizes up front; larger limits grow it as rows arrive.
const recentPrealloc = 100

// Options tunes the DuckDB connection.
type Options struct {
	MemoryLimit string // e.g. "256MB"; empty keeps the DuckDB default
	Threads     int    // 0 keeps the DuckDB default
}

// RunStore records runs in a DuckDB file.
type RunStore struct {
	db   *sql.DB
	path string
}

// NewRunStore opens (or creates) the history database at path.
// An empty path gives an in-memory database.
func NewRunStore(path string, opts Options) (*RunStore, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		var pragmas []string
		if opts.MemoryLimit != "" {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
		}
		if opts.Threads > 0 {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
		}
		pragmas = append(pragmas, "PRAGMA enable_progress_bar=false")
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          VARCHAR PRIMARY KEY,
			session_id  VARCHAR,
			file_name   VARCHAR NOT NULL,
			filepath    VARCHAR,
			output_file VARCHAR,
			status      VARCHAR NOT NULL,
			stage       VARCHAR NOT NULL,
			error       VARCHAR,
			started_at  TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}

	return &RunStore{db: db, path: path}, nil
}

// RecordRun stores a finished run. Recording the same id twice replaces the earlier row.
func (s *RunStore) RecordRun(ctx context.Context, run *models.Run) error {
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, session_id, file_name, filepath, output_file, status, stage, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.FileName, run.Filepath, run.OutputFile,
		string(run.Status), string(run.Stage), run.Error, run.StartedAt.UTC(), finished,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidLimit, limit)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, file_name, filepath, output_file, status, stage, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.Run, 0, min(limit, recentPrealloc))
	for rows.Next() {
		var (
			run                              models.Run
			sessionID, path, output, errText sql.NullString
			status, stage                    string
			started                          time.Time
			finished                         sql.NullTime
		)
		if err := rows.Scan(&run.ID, &sessionID, &run.FileName, &path, &output, &status, &stage, &errText, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.SessionID = sessionID.String
		run.Filepath = path.String
		run.OutputFile = output.String
		run.Error = errText.String
		run.Status = models.RunStatus(status)
		run.Stage = models.RunStage(stage)
		run.StartedAt = started.UTC()
		if finished.Valid {
			t := finished.Time.UTC()
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// Count returns the number of recorded runs.
func (s *RunStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

// Path returns the database file, or "" for an in-memory store.
func (s *RunStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *RunStore) Close() error {
	return s.db.Close()
}
