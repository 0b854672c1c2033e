package engine

import (
	"sync"

	"github.com/serval-engine/serval/internal/hashid"
)

type system struct {
	name   string
	owner  string
	events SystemEvents
	setup  *SystemSetup
	active bool
}

// systemSet keeps systems in registration order.
type systemSet struct {
	mu    sync.Mutex
	order []*system
}

func newSystemSet() *systemSet { return &systemSet{} }

func (s *systemSet) find(name string) (*system, int) {
	for i, sys := range s.order {
		if sys.name == name {
			return sys, i
		}
	}
	return nil, -1
}

func (s *systemSet) owned(owner string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, sys := range s.order {
		if sys.owner == owner {
			out = append(out, sys.name)
		}
	}
	return out
}

func (s *systemSet) snapshot() []*system {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*system, len(s.order))
	copy(out, s.order)
	return out
}

func (h *Host) addSystem(owner, name string, factory SystemFactory) hashid.Id {
	id := h.names.Intern(name)
	if !id.Valid() {
		h.fatal(hostError(ErrCodeInvalidName, name, "system name hashes to the invalid id"))
		return id
	}
	if factory == nil {
		h.fatal(hostError(ErrCodeUnknownName, name, "system has no factory"))
		return id
	}
	h.systems.mu.Lock()
	if sys, _ := h.systems.find(name); sys != nil {
		h.systems.mu.Unlock()
		h.fatal(hostError(ErrCodeDuplicateName, name, "system already registered"))
		return id
	}
	sys := &system{
		name:   name,
		owner:  owner,
		events: factory(),
		setup:  &SystemSetup{TaskSetup: TaskSetup{h: h, owner: systemOwner(name)}, name: name},
	}
	h.systems.order = append(h.systems.order, sys)
	h.systems.mu.Unlock()

	sys.events.OnCreate(sys.setup)
	h.logger.Info("system added", "system", name, "owner", owner)
	return id
}

func (h *Host) removeSystem(name string) {
	h.systems.mu.Lock()
	sys, i := h.systems.find(name)
	if sys == nil {
		h.systems.mu.Unlock()
		return
	}
	h.systems.order = append(h.systems.order[:i], h.systems.order[i+1:]...)
	h.systems.mu.Unlock()

	if sys.active {
		sys.events.OnDeactivate(h.runtime)
	}
	sys.events.OnDestroy(sys.setup)
	h.removeOwnedTasks(systemOwner(name))
	h.logger.Info("system removed", "system", name)
}

func (h *Host) removeOwnedTasks(owner string) {
	h.mu.Lock()
	var keys []taskKey
	for k, o := range h.taskOwners {
		if o == owner {
			keys = append(keys, k)
		}
	}
	h.mu.Unlock()
	for _, k := range keys {
		h.removeTask(k)
	}
}

// Systems returns registered system names in registration order.
func (h *Host) Systems() []string {
	snap := h.systems.snapshot()
	out := make([]string, len(snap))
	for i, sys := range snap {
		out[i] = sys.name
	}
	return out
}

// ActivateSystem runs OnActivate on an inactive system.
func (h *Host) ActivateSystem(name string) error {
	return h.setActive(name, true)
}

// DeactivateSystem runs OnDeactivate on an active system.
func (h *Host) DeactivateSystem(name string) error {
	return h.setActive(name, false)
}

// SystemActive reports whether the named system is active.
func (h *Host) SystemActive(name string) bool {
	h.systems.mu.Lock()
	defer h.systems.mu.Unlock()
	sys, _ := h.systems.find(name)
	return sys != nil && sys.active
}

func (h *Host) setActive(name string, active bool) error {
	h.systems.mu.Lock()
	sys, _ := h.systems.find(name)
	if sys == nil {
		h.systems.mu.Unlock()
		return hostError(ErrCodeUnknownName, name, "no such system")
	}
	if sys.active == active {
		h.systems.mu.Unlock()
		return nil
	}
	sys.active = active
	h.systems.mu.Unlock()

	if active {
		sys.events.OnActivate(h.runtime)
	} else {
		sys.events.OnDeactivate(h.runtime)
	}
	h.logger.Debug("system activation changed", "system", name, "active", active)
	return nil
}

// ResetSystems runs OnReset on every system in registration order.
func (h *Host) ResetSystems() {
	for _, sys := range h.systems.snapshot() {
		sys.events.OnReset(sys.setup)
	}
}
