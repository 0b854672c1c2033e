package engine

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/serval-engine/serval/internal/command"
	"github.com/serval-engine/serval/internal/cursor"
	"github.com/serval-engine/serval/internal/config"
	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/message"
	"github.com/serval-engine/serval/internal/schedule"
	"github.com/serval-engine/serval/internal/stream"
)

// TickHook is called after every scheduler tick, once the tick's sync
// point has run.
type TickHook func(ctx context.Context, frame int64, rep schedule.TickReport)

// Host owns everything extensions register against: schedulers, game
// state classes, systems, command and notification streams, the entity
// world and the timeline.
//
// Thread-safety model:
//   - registration (Init, SystemSetup) is safe from any goroutine
//   - tasks reach the host only through their Runtime
//   - Step, Save and Load serialize on the frame lock
type Host struct {
	logger        *slog.Logger
	exit          func(code int)
	workers       int
	asyncWorkers  int
	maxCatchUp    int
	maxRounds     int
	frameInterval time.Duration
	tracer        trace.Tracer
	observer      schedule.Observer
	overrides     map[string]config.Scheduler
	tickHook      TickHook
	runIDs        RunIDGenerator

	names    *hashid.Names
	clock    *Clock
	world    *World
	timeline *Timeline
	commands *command.Bus
	streams  *stream.Registry
	messages *message.Dispatcher
	ops      *queue[op]
	runtime  *Runtime
	reads    *cursor.Tracker

	mu         sync.Mutex
	schedOrder []hashid.Id
	scheds     map[hashid.Id]*schedEntry
	taskOwners map[taskKey]string
	states     *stateMachine
	systems    *systemSet
	cmdOwners  map[hashid.Id]string
	strOwners  map[hashid.Id]string
	resources  *resourceTable

	frameMu sync.Mutex
	runID   string

	async     *queue[AsyncTask]
	asyncOnce sync.Once
	asyncWG   sync.WaitGroup
	asyncLive sync.WaitGroup
}

type schedEntry struct {
	id    hashid.Id
	s     *schedule.Scheduler
	owner string
	// rt is handed to the scheduler's tasks; its read window is set
	// before every tick.
	rt *Runtime
}

type taskKey struct {
	scheduler hashid.Id
	task      string
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithExit replaces os.Exit for fatal registration errors.
func WithExit(fn func(code int)) Option {
	return func(h *Host) {
		if fn != nil {
			h.exit = fn
		}
	}
}

// WithWorkers sets the default dispatch pool size of every scheduler.
func WithWorkers(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.workers = n
		}
	}
}

// WithAsyncWorkers sets how many goroutines run async tasks. Default: 2.
func WithAsyncWorkers(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.asyncWorkers = n
		}
	}
}

// WithTracer sets the tracer handed to every scheduler.
func WithTracer(t trace.Tracer) Option {
	return func(h *Host) { h.tracer = t }
}

// WithObserver installs a task observer on every scheduler.
func WithObserver(o schedule.Observer) Option {
	return func(h *Host) { h.observer = o }
}

// WithTickHook installs a hook called after every scheduler tick.
func WithTickHook(fn TickHook) Option {
	return func(h *Host) { h.tickHook = fn }
}

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(h *Host) {
		if g != nil {
			h.runIDs = g
		}
	}
}

// WithMaxSyncRounds bounds the drain rounds of one sync point.
func WithMaxSyncRounds(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.maxRounds = n
		}
	}
}

// WithConfig applies a loaded configuration.
func WithConfig(cfg config.Config) Option {
	return func(h *Host) {
		if cfg.Workers > 0 {
			h.workers = cfg.Workers
		}
		if cfg.MaxCatchUp > 0 {
			h.maxCatchUp = cfg.MaxCatchUp
		}
		if cfg.FrameInterval > 0 {
			h.frameInterval = cfg.FrameInterval
		}
		h.overrides = cfg.Schedulers
	}
}

// New creates a host with no registrations.
func New(opts ...Option) *Host {
	def := config.Default()
	h := &Host{
		logger:        slog.Default(),
		exit:          os.Exit,
		workers:       runtime.GOMAXPROCS(0),
		asyncWorkers:  2,
		maxCatchUp:    def.MaxCatchUp,
		maxRounds:     DefaultMaxSyncRounds,
		frameInterval: def.FrameInterval,
		runIDs:        UUIDv7Generator{},
		clock:         NewClock(),
		world:         newWorld(),
		timeline:      NewTimeline(nil),
		ops:           newQueue[op](),
		async:         newQueue[AsyncTask](),
		scheds:        make(map[hashid.Id]*schedEntry),
		taskOwners:    make(map[taskKey]string),
		cmdOwners:     make(map[hashid.Id]string),
		strOwners:     make(map[hashid.Id]string),
		resources:     newResourceTable(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.names = hashid.NewNames(h.logger)
	h.commands = command.NewBus(h.logger)
	h.streams = stream.NewRegistry(h.logger)
	h.messages = message.NewDispatcher(h.logger)
	h.states = newStateMachine()
	h.systems = newSystemSet()
	h.runtime = &Runtime{h: h}
	h.reads = cursor.NewTracker()
	h.runID = h.runIDs.Generate()
	return h
}

// RunID identifies this host run.
func (h *Host) RunID() string { return h.runID }

// Logger returns the host logger.
func (h *Host) Logger() *slog.Logger { return h.logger }

// Names returns the table of names the host has hashed.
func (h *Host) Names() *hashid.Names { return h.names }

// World returns the entity world.
func (h *Host) World() *World { return h.world }

// Timeline returns the root timeline.
func (h *Host) Timeline() *Timeline { return h.timeline }

// Runtime returns the capability object handed to tasks.
func (h *Host) Runtime() *Runtime { return h.runtime }

// Frame returns the last completed frame number.
func (h *Host) Frame() int64 { return h.clock.Current() }

// Init returns a registration capability whose registrations belong to
// owner. RemoveOwned(owner) undoes them all.
func (h *Host) Init(owner string) *Init {
	return &Init{TaskSetup: TaskSetup{h: h, owner: owner}}
}

// Scheduler returns the named scheduler.
func (h *Host) Scheduler(name string) (*schedule.Scheduler, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.scheds[hashid.Of(name)]
	if !ok {
		return nil, false
	}
	return e.s, true
}

// Schedulers returns every scheduler in registration order.
func (h *Host) Schedulers() []*schedule.Scheduler {
	entries := h.entries()
	out := make([]*schedule.Scheduler, len(entries))
	for i, e := range entries {
		out[i] = e.s
	}
	return out
}

func (h *Host) entries() []*schedEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*schedEntry, 0, len(h.schedOrder))
	for _, id := range h.schedOrder {
		out = append(out, h.scheds[id])
	}
	return out
}

// fatal logs a configuration error and terminates through the exit func.
func (h *Host) fatal(err *HostError) {
	h.logger.Error("fatal registration error",
		"code", string(err.Code),
		"name", err.Name,
		"error", err.Message)
	h.exit(1)
}

func (h *Host) addScheduler(owner, name string, interval time.Duration) hashid.Id {
	id := h.names.Intern(name)
	if !id.Valid() {
		h.fatal(hostError(ErrCodeInvalidName, name, "scheduler name hashes to the invalid id"))
		return id
	}
	h.mu.Lock()
	if _, exists := h.scheds[id]; exists {
		h.mu.Unlock()
		h.fatal(hostError(ErrCodeDuplicateName, name, "scheduler already registered"))
		return id
	}

	workers := h.workers
	if o, ok := h.overrides[name]; ok {
		if o.Interval > 0 {
			interval = o.Interval
		}
		if o.Workers > 0 {
			workers = o.Workers
		}
	}
	opts := []schedule.Option{
		schedule.WithWorkers(workers),
		schedule.WithLogger(h.logger),
		schedule.WithMaxCatchUp(h.maxCatchUp),
		schedule.WithTracer(h.tracer),
	}
	if h.observer != nil {
		opts = append(opts, schedule.WithObserver(h.observer))
	}
	h.scheds[id] = &schedEntry{
		id:    id,
		s:     schedule.New(name, interval, opts...),
		owner: owner,
		rt:    &Runtime{h: h},
	}
	h.schedOrder = append(h.schedOrder, id)
	h.reads.Add(id)
	h.mu.Unlock()

	h.logger.Info("scheduler added", "scheduler", name, "interval", interval, "workers", workers, "owner", owner)
	return id
}

func (h *Host) removeScheduler(name string) {
	id := hashid.Of(name)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.scheds[id]; !ok {
		return
	}
	delete(h.scheds, id)
	h.reads.Remove(id)
	for i, sid := range h.schedOrder {
		if sid == id {
			h.schedOrder = append(h.schedOrder[:i], h.schedOrder[i+1:]...)
			break
		}
	}
	for k := range h.taskOwners {
		if k.scheduler == id {
			delete(h.taskOwners, k)
		}
	}
	h.logger.Info("scheduler removed", "scheduler", name)
}

// RemoveOwned undoes every registration made through Init(owner): tasks,
// systems (after OnDestroy), game-state classes, streams and schedulers.
func (h *Host) RemoveOwned(owner string) {
	h.mu.Lock()
	var tasks []taskKey
	for k, o := range h.taskOwners {
		if o == owner {
			tasks = append(tasks, k)
		}
	}
	var cmds, strs []hashid.Id
	for id, o := range h.cmdOwners {
		if o == owner {
			cmds = append(cmds, id)
		}
	}
	for id, o := range h.strOwners {
		if o == owner {
			strs = append(strs, id)
		}
	}
	var scheds []string
	for _, id := range h.schedOrder {
		if e := h.scheds[id]; e.owner == owner {
			scheds = append(scheds, e.s.Name())
		}
	}
	h.mu.Unlock()

	for _, name := range h.systems.owned(owner) {
		h.removeSystem(name)
	}
	for _, name := range h.states.owned(owner) {
		h.removeStateClass(name)
	}
	for _, k := range tasks {
		h.removeTask(k)
	}
	h.mu.Lock()
	for _, id := range cmds {
		h.commands.RemoveStream(id)
		delete(h.cmdOwners, id)
	}
	for _, id := range strs {
		h.streams.Remove(id)
		delete(h.strOwners, id)
	}
	h.mu.Unlock()
	for _, name := range scheds {
		h.removeScheduler(name)
	}
	h.logger.Info("registrations removed", "owner", owner,
		"tasks", len(tasks), "schedulers", len(scheds))
}

func (h *Host) removeTask(k taskKey) {
	h.mu.Lock()
	e, ok := h.scheds[k.scheduler]
	delete(h.taskOwners, k)
	h.mu.Unlock()
	if !ok {
		return
	}
	if err := e.s.RemoveTask(k.task); err != nil {
		h.logger.Debug("task already gone", "scheduler", e.s.Name(), "task", k.task)
	}
}

// Close stops the async workers after they finish queued work.
func (h *Host) Close() {
	h.async.Close()
	h.asyncWG.Wait()
}
