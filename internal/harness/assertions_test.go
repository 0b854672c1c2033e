package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult("run-1")
	r.Graphs = []GraphSnapshot{{
		Scheduler: "physics",
		Tasks:     []string{"a", "b", "c", "d"},
		Edges:     [][]string{{"a", "b"}, {"b", "c"}},
	}}
	r.Ticks = []TickRecord{
		{Frame: 1, Scheduler: "physics", Tick: 1, Order: []string{"a", "d", "b", "c"}},
		{Frame: 2, Scheduler: "physics", Tick: 2, Order: []string{"d", "a", "b", "c"}, Panicked: []string{"d"}},
		{Frame: 2, Scheduler: "audio", Tick: 1, Order: []string{"mix"}},
	}
	return r
}

func TestEvaluateAssertions_Passing(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertEdge, Scheduler: "physics", From: "a", To: "b"},
		{Type: AssertNoEdge, Scheduler: "physics", From: "a", To: "c"},
		{Type: AssertConcurrent, Scheduler: "physics", From: "a", To: "d"},
		{Type: AssertOrder, Scheduler: "physics", Tasks: []string{"a", "b", "c"}},
		{Type: AssertTickCount, Scheduler: "physics", Count: 2},
		{Type: AssertTickCount, Scheduler: "audio", Count: 1},
		{Type: AssertPanicked, Scheduler: "physics", Tasks: []string{"d"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failing(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"missing edge", Assertion{Type: AssertEdge, Scheduler: "physics", From: "a", To: "d"}, "a -> d in physics"},
		{"unexpected edge", Assertion{Type: AssertNoEdge, Scheduler: "physics", From: "b", To: "c"}, "edge present"},
		{"transitive path", Assertion{Type: AssertConcurrent, Scheduler: "physics", From: "c", To: "a"}, "a path joins them"},
		{"order violated", Assertion{Type: AssertOrder, Scheduler: "physics", Tasks: []string{"d", "a"}}, "tick 1 finished a at position 1"},
		{"order missing task", Assertion{Type: AssertOrder, Scheduler: "physics", Tasks: []string{"zz"}}, "tick 1 missing task: zz"},
		{"never ticked", Assertion{Type: AssertOrder, Scheduler: "ui", Tasks: []string{"x"}}, "scheduler never ticked"},
		{"tick count", Assertion{Type: AssertTickCount, Scheduler: "physics", Count: 3}, "2 time(s)"},
		{"no panic", Assertion{Type: AssertPanicked, Scheduler: "physics", Tasks: []string{"a"}}, "no panic recorded"},
		{"no graph", Assertion{Type: AssertEdge, Scheduler: "audio", From: "mix", To: "mix"}, "no graph recorded"},
		{"unknown type", Assertion{Type: "bogus", Scheduler: "physics"}, "unknown assertion type: bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_IncludesTicks(t *testing.T) {
	err := &AssertionError{
		Type:     AssertOrder,
		Expected: "x before y",
		Actual:   "y before x",
		Ticks:    []TickRecord{{Frame: 3, Tick: 2, Order: []string{"y", "x"}}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: order")
	assert.Contains(t, msg, "Expected: x before y")
	assert.Contains(t, msg, "[frame 3 tick 2] y x")
}
