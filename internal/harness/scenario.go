package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scheduling scenario.
// A scenario registers schedulers and tasks with declared resource access,
// steps the host for a number of frames, and asserts on the resulting
// conflict graphs and dispatch trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" json:"description"`

	// RunID is a fixed run id for deterministic traces.
	// If empty, defaults to testutil.DefaultRunID.
	RunID string `yaml:"run_id,omitempty" json:"run_id,omitempty"`

	// Frames is how many host frames to step.
	Frames int `yaml:"frames" json:"frames"`

	// FrameMS is the simulated time per frame. Defaults to the smallest
	// scheduler interval, so the fastest scheduler ticks once per frame.
	FrameMS int `yaml:"frame_ms,omitempty" json:"frame_ms,omitempty"`

	// Workers sizes every scheduler's dispatch pool. Zero keeps the host
	// default.
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`

	// Schedulers are registered in order, as one extension would.
	Schedulers []SchedulerDef `yaml:"schedulers" json:"schedulers"`

	// Assertions validate the graphs and trace.
	// Supported types: edge, no_edge, concurrent, order, tick_count, panicked
	Assertions []Assertion `yaml:"assertions" json:"assertions"`
}

// SchedulerDef registers one scheduler and its tasks.
type SchedulerDef struct {
	Name       string    `yaml:"name" json:"name"`
	IntervalMS int       `yaml:"interval_ms" json:"interval_ms"`
	Tasks      []TaskDef `yaml:"tasks" json:"tasks"`
}

// Interval returns the scheduler's tick interval.
func (d SchedulerDef) Interval() time.Duration {
	return time.Duration(d.IntervalMS) * time.Millisecond
}

// TaskDef registers one task in declaration order.
type TaskDef struct {
	Name string `yaml:"name" json:"name"`

	// RO and RW name the resources read and written. Names are hashed
	// to resource ids the way extensions do.
	RO []string `yaml:"ro,omitempty" json:"ro,omitempty"`
	RW []string `yaml:"rw,omitempty" json:"rw,omitempty"`

	// Sync marks the task as a sync point.
	Sync bool `yaml:"sync,omitempty" json:"sync,omitempty"`

	// WaitFor orders this task after earlier tasks through a resource.
	WaitFor []WaitDef `yaml:"wait_for,omitempty" json:"wait_for,omitempty"`

	// Panic makes the task body panic on every tick.
	Panic bool `yaml:"panic,omitempty" json:"panic,omitempty"`
}

// WaitDef is one wait_for declaration.
type WaitDef struct {
	Resource string   `yaml:"resource" json:"resource"`
	Deps     []string `yaml:"deps" json:"deps"`
}

// Assertion validates graphs or trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "edge": From must run before To in Scheduler's graph
	// - "no_edge": no direct edge From -> To
	// - "concurrent": no path between From and To in either direction
	// - "order": in every tick of Scheduler, Tasks finish in this order
	// - "tick_count": Scheduler ticked exactly Count times
	// - "panicked": every task in Tasks panicked at least once
	Type string `yaml:"type" json:"type"`

	Scheduler string   `yaml:"scheduler" json:"scheduler"`
	From      string   `yaml:"from,omitempty" json:"from,omitempty"`
	To        string   `yaml:"to,omitempty" json:"to,omitempty"`
	Tasks     []string `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Count     int      `yaml:"count,omitempty" json:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertEdge       = "edge"
	AssertNoEdge     = "no_edge"
	AssertConcurrent = "concurrent"
	AssertOrder      = "order"
	AssertTickCount  = "tick_count"
	AssertPanicked   = "panicked"
)

// FrameDuration returns the simulated time per frame.
func (s *Scenario) FrameDuration() time.Duration {
	if s.FrameMS > 0 {
		return time.Duration(s.FrameMS) * time.Millisecond
	}
	var shortest time.Duration
	for _, d := range s.Schedulers {
		if iv := d.Interval(); shortest == 0 || iv < shortest {
			shortest = iv
		}
	}
	return shortest
}

// LoadScenario reads and parses a scenario file. Files ending in .cue
// are evaluated with CUE; anything else is parsed as YAML.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario *Scenario
	if filepath.Ext(path) == ".cue" {
		scenario, err = ParseCUE(data, path)
	} else {
		scenario, err = ParseYAML(data)
	}
	if err != nil {
		return nil, err
	}

	if err := Validate(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseYAML decodes a YAML scenario without validating it.
func ParseYAML(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// ParseCUE evaluates a CUE scenario and decodes it without validating it.
// The file's top-level value is the scenario.
func ParseCUE(data []byte, filename string) (*Scenario, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to build CUE: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE scenario is not concrete: %w", err)
	}

	var scenario Scenario
	if err := v.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to decode CUE: %w", err)
	}
	return &scenario, nil
}

// Validate checks that required fields are present and that every name
// an assertion uses is declared.
func Validate(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Frames <= 0 {
		return fmt.Errorf("frames must be positive")
	}
	if s.FrameMS < 0 {
		return fmt.Errorf("frame_ms must be non-negative")
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if len(s.Schedulers) == 0 {
		return fmt.Errorf("schedulers list is required and must be non-empty")
	}

	tasks := make(map[string][]string, len(s.Schedulers))
	for i, d := range s.Schedulers {
		if d.Name == "" {
			return fmt.Errorf("schedulers[%d]: name is required", i)
		}
		if _, dup := tasks[d.Name]; dup {
			return fmt.Errorf("schedulers[%d]: duplicate scheduler %q", i, d.Name)
		}
		if d.IntervalMS <= 0 {
			return fmt.Errorf("schedulers[%d]: interval_ms must be positive", i)
		}
		names := []string{}
		for j, t := range d.Tasks {
			if t.Name == "" {
				return fmt.Errorf("schedulers[%d].tasks[%d]: name is required", i, j)
			}
			if slices.Contains(names, t.Name) {
				return fmt.Errorf("schedulers[%d].tasks[%d]: duplicate task %q", i, j, t.Name)
			}
			for k, w := range t.WaitFor {
				if w.Resource == "" {
					return fmt.Errorf("schedulers[%d].tasks[%d].wait_for[%d]: resource is required", i, j, k)
				}
				for _, dep := range w.Deps {
					if !slices.Contains(names, dep) {
						return fmt.Errorf("schedulers[%d].tasks[%d].wait_for[%d]: %q is not declared before %q", i, j, k, dep, t.Name)
					}
				}
			}
			names = append(names, t.Name)
		}
		tasks[d.Name] = names
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, tasks); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, tasks map[string][]string) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	names, ok := tasks[a.Scheduler]
	if !ok {
		return fmt.Errorf("assertions[%d]: unknown scheduler %q", index, a.Scheduler)
	}
	known := func(name string) error {
		if !slices.Contains(names, name) {
			return fmt.Errorf("assertions[%d]: unknown task %q in scheduler %q", index, name, a.Scheduler)
		}
		return nil
	}

	switch a.Type {
	case AssertEdge, AssertNoEdge, AssertConcurrent:
		if a.From == "" || a.To == "" {
			return fmt.Errorf("assertions[%d]: from and to are required for %s", index, a.Type)
		}
		if err := known(a.From); err != nil {
			return err
		}
		return known(a.To)
	case AssertOrder, AssertPanicked:
		if len(a.Tasks) == 0 {
			return fmt.Errorf("assertions[%d]: tasks list is required for %s", index, a.Type)
		}
		for _, name := range a.Tasks {
			if err := known(name); err != nil {
				return err
			}
		}
	case AssertTickCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for tick_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
