package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the scheduler's ticks to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Ticks    []TickRecord // Ticks of the asserted scheduler
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Ticks) > 0 {
		fmt.Fprintf(&buf, "\nTicks:\n")
		for _, t := range e.Ticks {
			fmt.Fprintf(&buf, "  [frame %d tick %d] %s\n", t.Frame, t.Tick, strings.Join(t.Order, " "))
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertEdge, AssertNoEdge, AssertConcurrent:
		g, ok := result.Graph(a.Scheduler)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: "scheduler " + a.Scheduler, Actual: "no graph recorded"}
		}
		return assertGraph(g, a)
	case AssertOrder:
		return assertOrder(result.TicksOf(a.Scheduler), a)
	case AssertTickCount:
		return assertTickCount(result.TicksOf(a.Scheduler), a)
	case AssertPanicked:
		return assertPanicked(result.TicksOf(a.Scheduler), a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertGraph(g GraphSnapshot, a Assertion) error {
	edge := hasEdge(g, a.From, a.To)
	switch a.Type {
	case AssertEdge:
		if !edge {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s -> %s in %s", a.From, a.To, a.Scheduler),
				Actual:   fmt.Sprintf("edges %v", g.Edges),
			}
		}
	case AssertNoEdge:
		if edge {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("no edge %s -> %s in %s", a.From, a.To, a.Scheduler),
				Actual:   "edge present",
			}
		}
	case AssertConcurrent:
		if reachable(g, a.From, a.To) || reachable(g, a.To, a.From) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s and %s may run concurrently in %s", a.From, a.To, a.Scheduler),
				Actual:   "a path joins them",
			}
		}
	}
	return nil
}

func hasEdge(g GraphSnapshot, from, to string) bool {
	return slices.ContainsFunc(g.Edges, func(e []string) bool {
		return len(e) == 2 && e[0] == from && e[1] == to
	})
}

// reachable walks the snapshot's edges from one task to another.
func reachable(g GraphSnapshot, from, to string) bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.Edges {
			if e[0] != cur || seen[e[1]] {
				continue
			}
			if e[1] == to {
				return true
			}
			seen[e[1]] = true
			stack = append(stack, e[1])
		}
	}
	return false
}

// assertOrder checks that in every tick the tasks finish in the given
// order. Intervening tasks are allowed.
func assertOrder(ticks []TickRecord, a Assertion) error {
	if len(ticks) == 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("ticks of %s", a.Scheduler),
			Actual:   "scheduler never ticked",
		}
	}
	for _, t := range ticks {
		prev := -1
		for _, name := range a.Tasks {
			i := slices.Index(t.Order, name)
			if i < 0 {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("all tasks present: %v", a.Tasks),
					Actual:   fmt.Sprintf("tick %d missing task: %s", t.Tick, name),
					Ticks:    ticks,
				}
			}
			if i <= prev {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("tasks in order: %v", a.Tasks),
					Actual:   fmt.Sprintf("tick %d finished %s at position %d", t.Tick, name, i+1),
					Ticks:    ticks,
				}
			}
			prev = i
		}
	}
	return nil
}

func assertTickCount(ticks []TickRecord, a Assertion) error {
	if len(ticks) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s ticked %d time(s)", a.Scheduler, a.Count),
			Actual:   fmt.Sprintf("%d time(s)", len(ticks)),
			Ticks:    ticks,
		}
	}
	return nil
}

func assertPanicked(ticks []TickRecord, a Assertion) error {
	for _, name := range a.Tasks {
		found := slices.ContainsFunc(ticks, func(t TickRecord) bool {
			return slices.Contains(t.Panicked, name)
		})
		if !found {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s panicked in %s", name, a.Scheduler),
				Actual:   "no panic recorded",
				Ticks:    ticks,
			}
		}
	}
	return nil
}
