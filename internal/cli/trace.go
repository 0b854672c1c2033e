package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/serval-engine/serval/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	DB    string
	RunID string
}

// RunInfo is one recorded run in a trace listing.
type RunInfo struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	FrameInterval string `json:"frame_interval"`
	Workers       int    `json:"workers"`
	StartedAt     string `json:"started_at"`
}

// TickTrace is one recorded tick.
type TickTrace struct {
	Frame     int64    `json:"frame"`
	Scheduler string   `json:"scheduler"`
	Tick      uint64   `json:"tick"`
	Order     []string `json:"order"`
	Panicked  []string `json:"panicked,omitempty"`
	TraceID   string   `json:"trace_id,omitempty"`
}

// RunTrace is the data for a trace response with --run.
type RunTrace struct {
	Run   RunInfo     `json:"run"`
	Ticks []TickTrace `json:"ticks"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded runs and their dispatch order",
		Long: `Without --run, list the runs recorded in the database.
With --run, print every recorded tick of that run in frame order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "sqlite database (overrides config)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to print")
	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts.RootOptions, out, errOut)

	dbPath := opts.DB
	if dbPath == "" {
		dbPath = opts.Config.Database
	}
	if dbPath == "" {
		f.Error(ErrCodeConfig, "no database: pass --db or set database in serval.toml", nil)
		return NewExitError(ExitCommandError, "no database configured")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), map[string]string{"db": dbPath})
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, f, st)
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrNotFound) {
		f.Error(ErrCodeNotFound, fmt.Sprintf("run %s not found", opts.RunID), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	rows, err := st.ReadTrace(ctx, opts.RunID)
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	rt := RunTrace{Run: runInfo(run), Ticks: groupTicks(rows)}
	if f.JSON() {
		return f.Success(rt)
	}
	fmt.Fprintf(out, "run %s (%s)\n", rt.Run.ID, rt.Run.Label)
	for _, t := range rt.Ticks {
		fmt.Fprintf(out, "  [frame %d] %s tick %d:", t.Frame, t.Scheduler, t.Tick)
		for _, task := range t.Order {
			fmt.Fprintf(out, " %s", task)
		}
		if len(t.Panicked) > 0 {
			fmt.Fprintf(out, " (panicked: %v)", t.Panicked)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func listRuns(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	infos := make([]RunInfo, 0, len(runs))
	for _, r := range runs {
		infos = append(infos, runInfo(r))
	}
	if f.JSON() {
		return f.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(f.Writer, "no recorded runs")
		return nil
	}
	for _, r := range infos {
		fmt.Fprintf(f.Writer, "%s  %-20s  %s  workers=%d  %s\n", r.ID, r.Label, r.FrameInterval, r.Workers, r.StartedAt)
	}
	return nil
}

func runInfo(r store.Run) RunInfo {
	return RunInfo{
		ID:            r.ID,
		Label:         r.Label,
		FrameInterval: r.FrameInterval.String(),
		Workers:       r.Workers,
		StartedAt:     r.StartedAt.UTC().Format(time.RFC3339),
	}
}

// groupTicks folds trace rows, already ordered by frame, scheduler, tick
// and seq, into ticks.
func groupTicks(rows []store.TraceRow) []TickTrace {
	ticks := []TickTrace{}
	for _, r := range rows {
		n := len(ticks)
		if n == 0 || ticks[n-1].Frame != r.Frame || ticks[n-1].Scheduler != r.Scheduler || ticks[n-1].Tick != r.Tick {
			ticks = append(ticks, TickTrace{Frame: r.Frame, Scheduler: r.Scheduler, Tick: r.Tick, TraceID: r.TraceID})
			n++
		}
		t := &ticks[n-1]
		t.Order = append(t.Order, r.Task)
		if r.Panicked {
			t.Panicked = append(t.Panicked, r.Task)
		}
	}
	return ticks
}
