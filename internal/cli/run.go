package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/serval-engine/serval/internal/engine"
	"github.com/serval-engine/serval/internal/harness"
	"github.com/serval-engine/serval/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DB     string
	Frames int
	Label  string
}

// RunOutput is the data for a run response.
type RunOutput struct {
	Scenario string   `json:"scenario"`
	RunID    string   `json:"run_id"`
	Pass     bool     `json:"pass"`
	Frames   int      `json:"frames"`
	Ticks    int      `json:"ticks"`
	Recorded bool     `json:"recorded"`
	Errors   []string `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario on a live host",
		Long: `Register a scenario's schedulers and tasks on a fresh host, step it
for the scenario's frames, and evaluate its assertions.

With --db (or database in serval.toml) the run and every tick's finish
order are recorded for the trace command. Recorded runs get a UUIDv7 id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd.Context(), opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "sqlite database to record into (overrides config)")
	cmd.Flags().IntVar(&opts.Frames, "frames", 0, "frames to step (overrides the scenario)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label stored with a recorded run")
	return cmd
}

func runScenario(ctx context.Context, opts *RunOptions, path string, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts.RootOptions, out, errOut)

	sc, err := harness.LoadScenario(path)
	if err != nil {
		f.Error(ErrCodeScenario, err.Error(), map[string]string{"path": path})
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	if opts.Frames > 0 {
		sc.Frames = opts.Frames
	}

	runOpts := []harness.Option{
		harness.WithConfig(opts.Config),
		harness.WithLogger(opts.Logger),
	}

	dbPath := opts.DB
	if dbPath == "" {
		dbPath = opts.Config.Database
	}
	recorded := dbPath != ""
	if recorded {
		st, err := store.Open(dbPath)
		if err != nil {
			f.Error(ErrCodeStore, err.Error(), map[string]string{"db": dbPath})
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()

		label := opts.Label
		if label == "" {
			label = sc.Name
		}
		workers := sc.Workers
		if workers == 0 {
			workers = opts.Config.Workers
		}
		runID := engine.UUIDv7Generator{}.Generate()
		err = st.WriteRun(ctx, store.Run{
			ID:            runID,
			Label:         label,
			FrameInterval: sc.FrameDuration(),
			Workers:       workers,
			StartedAt:     time.Now(),
		})
		if err != nil {
			f.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		f.VerboseLog("recording run %s to %s", runID, dbPath)

		runOpts = append(runOpts,
			harness.WithRunID(runID),
			harness.WithRecorder(store.NewRecorder(st, runID, opts.Logger).Hook()),
		)
	}

	result, err := harness.Run(ctx, sc, runOpts...)
	if err != nil {
		f.Error(ErrCodeRegistration, err.Error(), map[string]string{"path": path})
		return WrapExitError(ExitCommandError, "scenario did not start", err)
	}

	output := RunOutput{
		Scenario: sc.Name,
		RunID:    result.RunID,
		Pass:     result.Pass,
		Frames:   sc.Frames,
		Ticks:    len(result.Ticks),
		Recorded: recorded,
		Errors:   result.Errors,
	}
	if f.JSON() {
		if err := f.Success(output); err != nil {
			return err
		}
	} else {
		writeRunOutput(out, output)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", sc.Name))
	}
	return nil
}

func writeRunOutput(w io.Writer, o RunOutput) {
	status := "PASS"
	if !o.Pass {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s %s (run %s, %d frames, %d ticks)\n", status, o.Scenario, o.RunID, o.Frames, o.Ticks)
	for _, e := range o.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
