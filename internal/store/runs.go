package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run describes one host run.
type Run struct {
	ID            string
	Label         string
	FrameInterval time.Duration
	Workers       int
	// StartedAt is informational only; runs list in insertion order.
	StartedAt time.Time
}

// WriteRun inserts a run. Writing the same id twice is a no-op.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, frame_interval, workers, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Label,
		int64(run.FrameInterval),
		run.Workers,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// ReadRun returns one run, or ErrNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, frame_interval, workers, started_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run in insertion order.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, frame_interval, workers, started_at
		FROM runs ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run with its trace and saves.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run      Run
		interval int64
		started  string
	)
	if err := sc.Scan(&run.ID, &run.Label, &interval, &run.Workers, &started); err != nil {
		return Run{}, err
	}
	run.FrameInterval = time.Duration(interval)
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("scan run %s: started_at: %w", run.ID, err)
	}
	run.StartedAt = t
	return run, nil
}
