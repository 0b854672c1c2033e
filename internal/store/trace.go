package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/serval-engine/serval/internal/engine"
	"github.com/serval-engine/serval/internal/schedule"
)

// TraceRow is one finished task in a recorded tick.
type TraceRow struct {
	RunID     string
	Frame     int64
	Scheduler string
	Tick      uint64
	// Seq is the task's position in the tick's finish order, from 0.
	Seq      int
	Task     string
	Panicked bool
	TraceID  string
	SpanID   string
}

// WriteTick records the finish order of one tick in a single
// transaction. Re-recording the same tick is a no-op.
func (s *Store) WriteTick(ctx context.Context, runID string, frame int64, rep schedule.TickReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write tick: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dispatch_trace
		(run_id, frame, scheduler, tick, seq, task, panicked, trace_id, span_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write tick: prepare: %w", err)
	}
	defer stmt.Close()

	for seq, task := range rep.Order {
		_, err := stmt.ExecContext(ctx,
			runID,
			frame,
			rep.Scheduler,
			int64(rep.Tick),
			seq,
			task,
			slices.Contains(rep.Panicked, task),
			rep.TraceID,
			rep.SpanID,
		)
		if err != nil {
			return fmt.Errorf("write tick %s/%d: %w", rep.Scheduler, rep.Tick, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write tick: commit: %w", err)
	}
	return nil
}

// ReadTrace returns a run's trace ordered by frame, scheduler, tick and
// finish order. Returns an empty slice (not nil) for a run with no rows.
func (s *Store) ReadTrace(ctx context.Context, runID string) ([]TraceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, frame, scheduler, tick, seq, task, panicked, trace_id, span_id
		FROM dispatch_trace
		WHERE run_id = ?
		ORDER BY frame ASC, scheduler COLLATE BINARY ASC, tick ASC, seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	out := []TraceRow{}
	for rows.Next() {
		var (
			r    TraceRow
			tick int64
		)
		if err := rows.Scan(&r.RunID, &r.Frame, &r.Scheduler, &tick, &r.Seq, &r.Task, &r.Panicked, &r.TraceID, &r.SpanID); err != nil {
			return nil, fmt.Errorf("scan trace row: %w", err)
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	return out, nil
}

// Recorder writes every tick of a host run to the store.
type Recorder struct {
	store  *Store
	runID  string
	logger *slog.Logger
}

// NewRecorder records ticks under runID. The run row must exist.
func NewRecorder(s *Store, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, runID: runID, logger: logger}
}

// Hook returns the engine tick hook. Write failures are logged; they
// never stop the host.
func (r *Recorder) Hook() engine.TickHook {
	return func(ctx context.Context, frame int64, rep schedule.TickReport) {
		if err := r.store.WriteTick(ctx, r.runID, frame, rep); err != nil {
			r.logger.Error("failed to record tick",
				"run_id", r.runID,
				"scheduler", rep.Scheduler,
				"tick", rep.Tick,
				"error", err)
		}
	}
}
