package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/serval-engine/serval/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string
	Update bool
}

// TestResult is the outcome for one scenario.
type TestResult struct {
	Scenario string   `json:"scenario"`
	File     string   `json:"file"`
	Pass     bool     `json:"pass"`
	Golden   string   `json:"golden"` // "match", "mismatch", "missing" or "updated"
	Errors   []string `json:"errors,omitempty"`
}

// TestSummary is the data for a test response.
type TestSummary struct {
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []TestResult `json:"results"`
}

// scenarioExts are the file types the test command picks up.
var scenarioExts = []string{".yaml", ".yml", ".cue"}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every scenario in a directory against its golden file",
		Long: `Run each scenario in a directory and compare its canonical snapshot
with <dir>/golden/<scenario>.golden.

A scenario passes when its assertions hold and the snapshot matches.
--update rewrites golden files instead of comparing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name contains this")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files")
	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, dir string, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts.RootOptions, out, errOut)

	files, err := scenarioFiles(dir, opts.Filter)
	if err != nil {
		f.Error(ErrCodeNotFound, err.Error(), map[string]string{"dir": dir})
		return WrapExitError(ExitCommandError, "cannot read scenarios", err)
	}
	if len(files) == 0 {
		msg := fmt.Sprintf("no scenarios in %s", dir)
		f.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	summary := TestSummary{Results: make([]TestResult, 0, len(files))}
	for _, file := range files {
		tr := runOneTest(ctx, opts, dir, file)
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, tr)
	}

	if f.JSON() {
		if err := f.Success(summary); err != nil {
			return err
		}
	} else {
		for _, tr := range summary.Results {
			if tr.Pass {
				fmt.Fprintf(out, "✓ %s (golden %s)\n", tr.Scenario, tr.Golden)
				continue
			}
			fmt.Fprintf(out, "✗ %s (golden %s)\n", tr.Scenario, tr.Golden)
			for _, e := range tr.Errors {
				fmt.Fprintf(out, "    %s\n", e)
			}
		}
		fmt.Fprintf(out, "\n%d passed, %d failed\n", summary.Passed, summary.Failed)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}

func scenarioFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(scenarioExts, filepath.Ext(e.Name())) {
			continue
		}
		if filter != "" && !strings.Contains(e.Name(), filter) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}

func runOneTest(ctx context.Context, opts *TestOptions, dir, file string) TestResult {
	tr := TestResult{Scenario: filepath.Base(file), File: file}

	sc, err := harness.LoadScenario(file)
	if err != nil {
		tr.Errors = []string{err.Error()}
		return tr
	}
	tr.Scenario = sc.Name

	result, err := harness.Run(ctx, sc, harness.WithLogger(opts.Logger))
	if err != nil {
		tr.Errors = []string{err.Error()}
		return tr
	}
	tr.Errors = append(tr.Errors, result.Errors...)

	got, err := harness.Snapshot(sc, result)
	if err != nil {
		tr.Errors = append(tr.Errors, err.Error())
		return tr
	}

	golden := filepath.Join(dir, "golden", sc.Name+".golden")
	if opts.Update {
		if err := writeGolden(golden, got); err != nil {
			tr.Errors = append(tr.Errors, err.Error())
			return tr
		}
		tr.Golden = "updated"
	} else {
		want, err := os.ReadFile(golden)
		switch {
		case os.IsNotExist(err):
			tr.Golden = "missing"
			tr.Errors = append(tr.Errors, fmt.Sprintf("no golden file %s (run with --update)", golden))
		case err != nil:
			tr.Errors = append(tr.Errors, err.Error())
		case bytes.Equal(want, got):
			tr.Golden = "match"
		default:
			tr.Golden = "mismatch"
			tr.Errors = append(tr.Errors, fmt.Sprintf("snapshot differs from %s", golden))
		}
	}

	tr.Pass = result.Pass && len(tr.Errors) == 0
	return tr
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}
