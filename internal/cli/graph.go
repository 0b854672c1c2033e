package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/serval-engine/serval/internal/harness"
)

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	*RootOptions
	Scheduler string
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "graph <scenario>",
		Short: "Print the conflict graphs a scenario declares",
		Long: `Declare a scenario's tasks and print each scheduler's conflict graph.

Levels group tasks that may run in the same wave; edges list every
ordering the declarations imply. Nothing is run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.Scheduler, "scheduler", "", "only print this scheduler")
	return cmd
}

func runGraph(opts *GraphOptions, path string, out, errOut io.Writer) error {
	f := newFormatter(opts.RootOptions, out, errOut)

	sc, err := harness.LoadScenario(path)
	if err != nil {
		f.Error(ErrCodeScenario, err.Error(), map[string]string{"path": path})
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	graphs, err := harness.BuildGraphs(sc)
	if err != nil {
		f.Error(ErrCodeRegistration, err.Error(), map[string]string{"path": path})
		return WrapExitError(ExitFailure, "declarations rejected", err)
	}

	if opts.Scheduler != "" {
		var picked []harness.GraphSnapshot
		for _, g := range graphs {
			if g.Scheduler == opts.Scheduler {
				picked = append(picked, g)
			}
		}
		if len(picked) == 0 {
			msg := fmt.Sprintf("scenario %s has no scheduler %q", sc.Name, opts.Scheduler)
			f.Error(ErrCodeNotFound, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		graphs = picked
	}

	if f.JSON() {
		return f.Success(graphs)
	}
	for i, g := range graphs {
		if i > 0 {
			fmt.Fprintln(out)
		}
		writeGraph(out, g)
	}
	return nil
}

func writeGraph(w io.Writer, g harness.GraphSnapshot) {
	fmt.Fprintf(w, "%s (%d tasks)\n", g.Scheduler, len(g.Tasks))
	for i, level := range g.Levels {
		fmt.Fprintf(w, "  level %d: %s\n", i, strings.Join(level, " "))
	}
	if len(g.Edges) == 0 {
		fmt.Fprintln(w, "  no edges")
		return
	}
	fmt.Fprintln(w, "  edges:")
	for _, e := range g.Edges {
		fmt.Fprintf(w, "    %s -> %s\n", e[0], e[1])
	}
}
