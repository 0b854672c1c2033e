package schedule

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/serval-engine/serval/internal/hashid"
)

const tracerName = "github.com/serval-engine/serval/internal/schedule"

// DefaultMaxCatchUp bounds how many ticks Advance reports for one call, so
// a stalled frame does not turn into a burst of back-to-back ticks.
const DefaultMaxCatchUp = 4

// Scheduler owns a set of tasks and dispatches them on a fixed interval.
//
// Registration and declaration methods may be called from any goroutine.
// Changes take effect at the next Tick; a tick in flight keeps the graph
// it started with.
type Scheduler struct {
	name     string
	id       hashid.Id
	interval time.Duration
	workers  int
	maxCatch int
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer

	mu      sync.Mutex
	tasks   map[string]*task
	nextPos int
	graph   *Graph // nil when declarations changed since the last build
	ticks   uint64
	pending time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the dispatch pool size. Values below 1 are ignored.
// Default: runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithObserver installs a hook called around every task run.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used for tick and task spans.
// Default: the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithMaxCatchUp bounds the ticks reported by a single Advance call.
func WithMaxCatchUp(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxCatch = n
		}
	}
}

// New creates a scheduler ticking every interval.
func New(name string, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:     name,
		id:       hashid.Of(name),
		interval: interval,
		workers:  runtime.GOMAXPROCS(0),
		maxCatch: DefaultMaxCatchUp,
		logger:   slog.Default(),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
		tasks:    make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("scheduler", name)
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// ID returns the hashed scheduler name.
func (s *Scheduler) ID() hashid.Id { return s.id }

// Interval returns the fixed tick interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// AddTask registers fn under name and returns a builder for its resource
// declarations. The task's position is its registration order.
//
// A duplicate or nil registration returns a builder whose Err is set.
func (s *Scheduler) AddTask(name string, fn Func) *TaskBuilder {
	b := &TaskBuilder{s: s, name: name}
	if fn == nil {
		b.err = taskError(ErrNilTask, s.name, name)
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		b.err = taskError(ErrDuplicateTask, s.name, name)
		return b
	}
	s.tasks[name] = &task{
		name:     name,
		id:       hashid.Of(name),
		position: s.nextPos,
		reads:    make(idSet),
		writes:   make(idSet),
		fn:       fn,
	}
	s.nextPos++
	s.graph = nil

	s.logger.Debug("task added", "task", name, "position", s.nextPos-1)
	return b
}

// Task returns a builder for an already registered task.
func (s *Scheduler) Task(name string) *TaskBuilder {
	b := &TaskBuilder{s: s, name: name}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; !ok {
		b.err = taskError(ErrUnknownTask, s.name, name)
	}
	return b
}

// RemoveTask unregisters name. Remaining tasks keep their positions, so
// their relative ordering is unchanged.
func (s *Scheduler) RemoveTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; !ok {
		return taskError(ErrUnknownTask, s.name, name)
	}
	delete(s.tasks, name)
	s.graph = nil
	s.logger.Debug("task removed", "task", name)
	return nil
}

// RO adds resources to a task's read-only set.
func (s *Scheduler) RO(name string, resources ...hashid.Id) error {
	return s.declare(name, func(t *task) {
		for _, r := range resources {
			t.reads[r] = struct{}{}
		}
	})
}

// RW adds resources to a task's read-write set.
func (s *Scheduler) RW(name string, resources ...hashid.Id) error {
	return s.declare(name, func(t *task) {
		for _, r := range resources {
			t.writes[r] = struct{}{}
		}
	})
}

// Sync marks a task as a sync point.
func (s *Scheduler) Sync(name string) error {
	return s.declare(name, func(t *task) { t.sync = true })
}

// WaitFor declares that name writes resource and every dep reads it, which
// orders each earlier-registered dep before name.
//
// All names are checked before anything is declared, so a failure leaves
// every task unchanged.
func (s *Scheduler) WaitFor(name string, resource hashid.Id, deps ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	self, ok := s.tasks[name]
	if !ok {
		return taskError(ErrUnknownTask, s.name, name)
	}
	targets := make([]*task, 0, len(deps))
	for _, dep := range deps {
		t, ok := s.tasks[dep]
		if !ok {
			return taskError(ErrUnknownTask, s.name, dep)
		}
		targets = append(targets, t)
	}

	for _, t := range targets {
		if t.position > self.position {
			s.logger.Warn("wait_for dependency registered after waiting task; order is reversed",
				"task", name, "dependency", t.name)
		}
		t.reads[resource] = struct{}{}
	}
	self.writes[resource] = struct{}{}
	s.graph = nil
	return nil
}

func (s *Scheduler) declare(name string, apply func(*task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return taskError(ErrUnknownTask, s.name, name)
	}
	apply(t)
	s.graph = nil
	return nil
}

// Declarations returns every registered task in position order.
func (s *Scheduler) Declarations() []Declaration {
	return s.Graph().Declarations()
}

// Declaration returns the named task's registration.
func (s *Scheduler) Declaration(name string) (Declaration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return Declaration{}, false
	}
	return t.declaration(), true
}

// Graph returns the current conflict graph, rebuilding it when
// declarations changed.
func (s *Scheduler) Graph() *Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, _ := s.snapshotLocked()
	return g
}

// snapshotLocked returns the graph and the task funcs indexed by graph
// node.
func (s *Scheduler) snapshotLocked() (*Graph, []Func) {
	if s.graph == nil {
		decls := make([]Declaration, 0, len(s.tasks))
		for _, t := range s.tasks {
			decls = append(decls, t.declaration())
		}
		s.graph = BuildGraph(decls)
		s.logger.Debug("conflict graph rebuilt", "tasks", s.graph.Len(), "edges", len(s.graph.edges))
	}
	fns := make([]Func, len(s.graph.nodes))
	for i, d := range s.graph.nodes {
		fns[i] = s.tasks[d.Name].fn
	}
	return s.graph, fns
}

// Advance adds elapsed wall time to the scheduler's accumulator and
// returns how many ticks are now due. The result is capped; time beyond
// the cap is dropped.
func (s *Scheduler) Advance(elapsed time.Duration) int {
	if s.interval <= 0 {
		return 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending += elapsed
	due := int(s.pending / s.interval)
	s.pending -= time.Duration(due) * s.interval
	if due > s.maxCatch {
		s.logger.Warn("scheduler falling behind; dropping ticks", "due", due, "kept", s.maxCatch)
		due = s.maxCatch
	}
	return due
}

// DeltaSeconds is the dt handed to every task.
func (s *Scheduler) DeltaSeconds() float32 {
	return float32(s.interval.Seconds())
}

func (s *Scheduler) String() string {
	return fmt.Sprintf("scheduler(%s every %s)", s.name, s.interval)
}
