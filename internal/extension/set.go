package extension

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/serval-engine/serval/internal/engine"
)

// ErrUnknown is returned for an extension name the set does not hold.
var ErrUnknown = errors.New("unknown extension")

// Set holds the extensions of one host. Extensions load in the order
// they were added and close in reverse.
type Set struct {
	host *engine.Host

	mu      sync.Mutex
	order   []string
	modules map[string]*Module
}

// NewSet creates an empty set for host.
func NewSet(host *engine.Host) *Set {
	return &Set{host: host, modules: make(map[string]*Module)}
}

// Add registers an extension without loading it.
func (s *Set) Add(name string, events Events, opts ...Option) (*Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[name]; ok {
		return nil, fmt.Errorf("add extension %q: already added", name)
	}
	m := New(s.host, name, events, opts...)
	s.modules[name] = m
	s.order = append(s.order, name)
	return m, nil
}

// Get returns the named module.
func (s *Set) Get(name string) (*Module, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[name]
	return m, ok
}

// Names returns extension names in load order.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

func (s *Set) ordered() []*Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Module, len(s.order))
	for i, name := range s.order {
		out[i] = s.modules[name]
	}
	return out
}

// LoadAll loads every extension that is not loaded yet. It keeps going
// past failures and returns them joined.
func (s *Set) LoadAll() error {
	var errs []error
	for _, m := range s.ordered() {
		if st := m.State(); st == Loaded || st == Closed {
			continue
		}
		if err := m.Do(Load); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StepAll runs Step on every extension.
func (s *Set) StepAll() {
	for _, m := range s.ordered() {
		_ = m.Do(Step)
	}
}

// Reload unloads and loads one extension. Its registrations are torn
// down and redone through OnReload.
func (s *Set) Reload(name string) error {
	m, ok := s.Get(name)
	if !ok {
		return fmt.Errorf("reload %q: %w", name, ErrUnknown)
	}
	if err := m.Do(Unload); err != nil {
		return err
	}
	return m.Do(Load)
}

// CloseAll closes every extension in reverse load order.
func (s *Set) CloseAll() {
	mods := s.ordered()
	for i := len(mods) - 1; i >= 0; i-- {
		_ = mods[i].Do(Close)
	}
}
