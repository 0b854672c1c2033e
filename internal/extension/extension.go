// Package extension drives extensions through their load, step, unload
// and close operations.
//
// An extension registers everything it needs (schedulers, tasks, state
// classes, systems, streams) through the engine.Init it is handed. None
// of that survives an unload: the module tears down every registration
// the extension made, and the next Load redoes them through OnReload.
package extension

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/serval-engine/serval/internal/engine"
)

var (
	// ErrLoaded is returned by Load while the extension is loaded.
	ErrLoaded = errors.New("extension already loaded")

	// ErrNotLoaded is returned by Unload when there is nothing to unload.
	ErrNotLoaded = errors.New("extension not loaded")

	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("extension closed")
)

// Events is implemented by extensions.
type Events interface {
	// OnLoad runs on the first load.
	OnLoad(init *engine.Init)
	// OnReload runs on every load after an unload.
	OnReload(init *engine.Init)
	// OnUnload runs when the extension is closed for good.
	OnUnload(init *engine.Init)
}

// Funcs adapts plain functions to Events. Nil fields are skipped.
type Funcs struct {
	Load   func(init *engine.Init)
	Reload func(init *engine.Init)
	Unload func(init *engine.Init)
}

func (f Funcs) OnLoad(init *engine.Init) {
	if f.Load != nil {
		f.Load(init)
	}
}

func (f Funcs) OnReload(init *engine.Init) {
	if f.Reload != nil {
		f.Reload(init)
	}
}

func (f Funcs) OnUnload(init *engine.Init) {
	if f.Unload != nil {
		f.Unload(init)
	}
}

// Op is one lifecycle operation.
type Op uint8

const (
	Load Op = iota
	Step
	Unload
	Close
)

func (o Op) String() string {
	switch o {
	case Load:
		return "load"
	case Step:
		return "step"
	case Unload:
		return "unload"
	case Close:
		return "close"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// State is where a module is in its lifecycle.
type State uint8

const (
	// Unloaded: never loaded.
	Unloaded State = iota
	Loaded
	// Reloading: unloaded, the next Load is a reload.
	Reloading
	Closed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Reloading:
		return "reloading"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Module is one extension bound to a host.
type Module struct {
	name   string
	events Events
	host   *engine.Host
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	loads   int
	reloads int
	steps   int
}

// Option configures a Module.
type Option func(*Module)

// WithLogger sets the logger. Default: the host's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.logger = l
		}
	}
}

// New binds events to host under name. Nothing runs until Load.
func New(host *engine.Host, name string, events Events, opts ...Option) *Module {
	m := &Module{
		name:   name,
		events: events,
		host:   host,
		logger: host.Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("extension", name)
	return m
}

// Name returns the extension name.
func (m *Module) Name() string { return m.name }

// Owner is the owner every registration of this extension is recorded
// under.
func (m *Module) Owner() string { return "extension/" + m.name }

// State returns the lifecycle state.
func (m *Module) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Steps returns how many Step operations ran while loaded.
func (m *Module) Steps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steps
}

// Do runs one lifecycle operation.
//
//   - Load calls OnLoad the first time and OnReload after an Unload.
//   - Step does nothing; it exists so a loader can poll for changes.
//   - Unload removes every registration made through the extension's
//     Init. The extension is not told; it redoes them on the next Load.
//   - Close calls OnUnload, then removes every registration.
func (m *Module) Do(op Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Closed {
		return fmt.Errorf("%s %s: %w", op, m.name, ErrClosed)
	}
	switch op {
	case Load:
		return m.load()
	case Step:
		if m.state == Loaded {
			m.steps++
		}
		return nil
	case Unload:
		if m.state != Loaded {
			return fmt.Errorf("unload %s: %w", m.name, ErrNotLoaded)
		}
		m.host.RemoveOwned(m.Owner())
		m.state = Reloading
		m.logger.Info("extension unloaded")
		return nil
	case Close:
		if m.state == Loaded {
			if err := m.call("unload", m.events.OnUnload); err != nil {
				m.logger.Warn("extension unload failed", "error", err)
			}
			m.host.RemoveOwned(m.Owner())
		}
		m.state = Closed
		m.logger.Info("extension closed")
		return nil
	default:
		return fmt.Errorf("extension %s: unknown operation %s", m.name, op)
	}
}

func (m *Module) load() error {
	if m.state == Loaded {
		return fmt.Errorf("load %s: %w", m.name, ErrLoaded)
	}
	reload := m.state == Reloading
	event, fn := "load", m.events.OnLoad
	if reload {
		event, fn = "reload", m.events.OnReload
	}
	if err := m.call(event, fn); err != nil {
		// Leave nothing half registered.
		m.host.RemoveOwned(m.Owner())
		return err
	}
	m.state = Loaded
	if reload {
		m.reloads++
	} else {
		m.loads++
	}
	m.logger.Info("extension loaded", "reload", reload, "reloads", m.reloads)
	return nil
}

// call runs an event with a fresh Init and turns a panic into an error.
func (m *Module) call(event string, fn func(*engine.Init)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("extension event panicked",
				"event", event,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("%s %s: panic: %v", event, m.name, r)
		}
	}()
	fn(m.host.Init(m.Owner()))
	return nil
}
