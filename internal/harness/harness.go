package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/trace"

	"github.com/serval-engine/serval/internal/config"
	"github.com/serval-engine/serval/internal/engine"
	"github.com/serval-engine/serval/internal/extension"
	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/schedule"
	"github.com/serval-engine/serval/internal/testutil"
)

// ErrRegistration is returned when a scenario's declarations are rejected
// by the host.
var ErrRegistration = errors.New("scenario registration failed")

type runConfig struct {
	logger *slog.Logger
	record engine.TickHook
	tracer trace.Tracer
	runID  string
	host   *config.Config
}

// Option configures Run.
type Option func(*runConfig)

// WithLogger sets the host logger. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder passes every tick report to hook as well, e.g. a store
// recorder.
func WithRecorder(hook engine.TickHook) Option {
	return func(c *runConfig) { c.record = hook }
}

// WithTracer sets the tracer for tick and task spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *runConfig) { c.tracer = t }
}

// WithRunID overrides the scenario's run id, e.g. with a UUIDv7 when the
// run is recorded.
func WithRunID(id string) Option {
	return func(c *runConfig) { c.runID = id }
}

// WithConfig applies host configuration. Scenario settings still win.
func WithConfig(cfg config.Config) Option {
	return func(c *runConfig) { c.host = &cfg }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh host with a fixed run id and a step clock,
// so tick counts and graphs are reproducible.
//
// Execution flow:
// 1. Register schedulers and tasks through one extension load
// 2. Snapshot every conflict graph
// 3. Step the host for the scenario's frames
// 4. Check each tick's finish order against its graph
// 5. Evaluate assertions
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: testutil.QuietLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	runID := sc.RunID
	if cfg.runID != "" {
		runID = cfg.runID
	}
	runIDs := testutil.NewFixedRunID(runID)
	result := NewResult(runIDs.Generate())

	var fatal []int
	var hostOpts []engine.Option
	if cfg.host != nil {
		hostOpts = append(hostOpts, engine.WithConfig(*cfg.host))
	}
	hostOpts = append(hostOpts,
		engine.WithLogger(cfg.logger),
		engine.WithRunIDs(runIDs),
		engine.WithExit(func(code int) { fatal = append(fatal, code) }),
		engine.WithTickHook(func(ctx context.Context, frame int64, rep schedule.TickReport) {
			result.Ticks = append(result.Ticks, TickRecord{
				Frame:     frame,
				Scheduler: rep.Scheduler,
				Tick:      rep.Tick,
				Order:     slices.Clone(rep.Order),
				Panicked:  slices.Sorted(slices.Values(rep.Panicked)),
			})
			if cfg.record != nil {
				cfg.record(ctx, frame, rep)
			}
		}),
	)
	if sc.Workers > 0 {
		hostOpts = append(hostOpts, engine.WithWorkers(sc.Workers))
	}
	if cfg.tracer != nil {
		hostOpts = append(hostOpts, engine.WithTracer(cfg.tracer))
	}
	h := engine.New(hostOpts...)
	defer h.Close()

	var declErrs []error
	ext := extension.New(h, sc.Name, extension.Funcs{
		Load: func(init *engine.Init) { declErrs = register(init, sc) },
	}, extension.WithLogger(cfg.logger))
	if err := ext.Do(extension.Load); err != nil {
		return nil, fmt.Errorf("load scenario %q: %w", sc.Name, err)
	}
	defer ext.Do(extension.Close)

	if len(fatal) > 0 {
		declErrs = append(declErrs, fmt.Errorf("host reported %d fatal registration error(s)", len(fatal)))
	}
	if len(declErrs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrRegistration, errors.Join(declErrs...))
	}

	graphs := make(map[string]*schedule.Graph, len(sc.Schedulers))
	for _, d := range sc.Schedulers {
		s, ok := h.Scheduler(d.Name)
		if !ok {
			return nil, fmt.Errorf("%w: scheduler %q missing after load", ErrRegistration, d.Name)
		}
		g := s.Graph()
		graphs[d.Name] = g
		result.Graphs = append(result.Graphs, snapshot(d.Name, g))
	}

	clock := testutil.NewStepClock(sc.FrameDuration())
	for range sc.Frames {
		rep := h.Step(ctx, clock.Next())
		for _, err := range rep.Errors {
			result.AddError(fmt.Sprintf("frame %d: %v", rep.Frame, err))
		}
	}

	for _, t := range result.Ticks {
		if err := checkOrder(graphs[t.Scheduler], t); err != nil {
			result.AddError(err.Error())
		}
	}
	for _, errMsg := range EvaluateAssertions(result, sc.Assertions) {
		result.AddError(errMsg)
	}

	cfg.logger.Info("scenario finished",
		"scenario", sc.Name,
		"run_id", result.RunID,
		"frames", sc.Frames,
		"ticks", len(result.Ticks),
		"pass", result.Pass)

	return result, nil
}

// register declares every scheduler and task in order and returns the
// declaration errors the builders reported.
func register(init *engine.Init, sc *Scenario) []error {
	var errs []error
	for _, d := range sc.Schedulers {
		init.AddScheduler(d.Name, d.Interval())
		for _, t := range d.Tasks {
			b := init.AddTask(d.Name, t.Name, taskBody(t))
			b.RO(resourceIDs(t.RO)...).RW(resourceIDs(t.RW)...)
			if t.Sync {
				b.Sync()
			}
			for _, w := range t.WaitFor {
				b.WaitFor(hashid.Of(w.Resource), w.Deps...)
			}
			if err := b.Err(); err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", d.Name, t.Name, err))
			}
		}
	}
	return errs
}

func taskBody(t TaskDef) engine.Task {
	if t.Panic {
		name := t.Name
		return func(context.Context, *engine.Runtime, float32) {
			panic(fmt.Sprintf("task %s panicked", name))
		}
	}
	return func(context.Context, *engine.Runtime, float32) {}
}

func resourceIDs(names []string) []hashid.Id {
	ids := make([]hashid.Id, len(names))
	for i, n := range names {
		ids[i] = hashid.Of(n)
	}
	return ids
}

func snapshot(scheduler string, g *schedule.Graph) GraphSnapshot {
	s := GraphSnapshot{
		Scheduler: scheduler,
		Tasks:     g.Order(),
		Edges:     [][]string{},
		Levels:    g.Levels(),
	}
	for _, e := range g.Edges() {
		s.Edges = append(s.Edges, []string{e.From, e.To})
	}
	if s.Levels == nil {
		s.Levels = [][]string{}
	}
	return s
}

// checkOrder verifies a tick ran every task once and finished each task
// after all of its predecessors.
func checkOrder(g *schedule.Graph, t TickRecord) error {
	pos := make(map[string]int, len(t.Order))
	for i, name := range t.Order {
		if _, dup := pos[name]; dup {
			return fmt.Errorf("%s tick %d: task %s finished twice", t.Scheduler, t.Tick, name)
		}
		pos[name] = i
	}
	if len(pos) != g.Len() {
		return fmt.Errorf("%s tick %d: %d of %d tasks finished", t.Scheduler, t.Tick, len(pos), g.Len())
	}
	for _, e := range g.Edges() {
		if pos[e.From] >= pos[e.To] {
			return fmt.Errorf("%s tick %d: %s finished before its predecessor %s",
				t.Scheduler, t.Tick, e.To, e.From)
		}
	}
	return nil
}

// BuildGraphs declares the scenario's tasks on standalone schedulers and
// returns their conflict graphs without running anything.
func BuildGraphs(sc *Scenario) ([]GraphSnapshot, error) {
	out := make([]GraphSnapshot, 0, len(sc.Schedulers))
	for _, d := range sc.Schedulers {
		s := schedule.New(d.Name, d.Interval(), schedule.WithLogger(testutil.QuietLogger()))
		for _, t := range d.Tasks {
			b := s.AddTask(t.Name, func(context.Context, float32) {})
			b.RO(resourceIDs(t.RO)...).RW(resourceIDs(t.RW)...)
			if t.Sync {
				b.Sync()
			}
			for _, w := range t.WaitFor {
				b.WaitFor(hashid.Of(w.Resource), w.Deps...)
			}
			if err := b.Err(); err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %w", ErrRegistration, d.Name, t.Name, err)
			}
		}
		out = append(out, snapshot(d.Name, s.Graph()))
	}
	return out, nil
}
