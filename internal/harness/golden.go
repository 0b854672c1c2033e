package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot returns the deterministic part of a result as canonical JSON.
//
// Finish order is nondeterministic when unordered tasks overlap, so it is
// only included when the scenario dispatches on a single worker.
func Snapshot(sc *Scenario, result *Result) ([]byte, error) {
	graphs := make([]any, len(result.Graphs))
	for i, g := range result.Graphs {
		graphs[i] = map[string]any{
			"scheduler": g.Scheduler,
			"tasks":     g.Tasks,
			"edges":     g.Edges,
			"levels":    g.Levels,
		}
	}

	ticks := make([]any, len(result.Ticks))
	for i, t := range result.Ticks {
		m := map[string]any{
			"frame":     t.Frame,
			"scheduler": t.Scheduler,
			"tick":      t.Tick,
			"tasks":     len(t.Order),
		}
		if sc.Workers == 1 {
			m["order"] = t.Order
		}
		if len(t.Panicked) > 0 {
			m["panicked"] = t.Panicked
		}
		ticks[i] = m
	}

	return MarshalCanonical(map[string]any{
		"scenario": sc.Name,
		"run_id":   result.RunID,
		"pass":     result.Pass,
		"graphs":   graphs,
		"ticks":    ticks,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), sc, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, sc, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, sc *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(sc, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, data)
	return nil
}
