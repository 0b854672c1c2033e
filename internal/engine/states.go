package engine

import (
	"slices"
	"sync"

	"github.com/serval-engine/serval/internal/attributes"
	"github.com/serval-engine/serval/internal/hashid"
)

type stateClass struct {
	name    string
	owner   string
	factory StateFactory
}

type stateInstance struct {
	id     hashid.Id
	events StateEvents
}

// stateMachine holds the registered state classes and the state stack.
// The stack only changes at the sync point.
type stateMachine struct {
	mu      sync.RWMutex
	classes map[hashid.Id]*stateClass
	stack   []stateInstance
}

func newStateMachine() *stateMachine {
	return &stateMachine{classes: make(map[hashid.Id]*stateClass)}
}

func (m *stateMachine) addClass(name, owner string, factory StateFactory) *HostError {
	if factory == nil {
		return hostError(ErrCodeUnknownName, name, "game state class has no factory")
	}
	id := hashid.Of(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.classes[id]; exists {
		return hostError(ErrCodeDuplicateName, name, "game state class already registered")
	}
	m.classes[id] = &stateClass{name: name, owner: owner, factory: factory}
	return nil
}

func (m *stateMachine) removeClass(name string) bool {
	id := hashid.Of(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[id]; !ok {
		return false
	}
	delete(m.classes, id)
	return true
}

func (m *stateMachine) class(id hashid.Id) (*stateClass, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[id]
	return c, ok
}

func (m *stateMachine) owned(owner string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, c := range m.classes {
		if c.owner == owner {
			out = append(out, c.name)
		}
	}
	slices.Sort(out)
	return out
}

func (m *stateMachine) current() hashid.Id {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.stack) == 0 {
		return hashid.Invalid
	}
	return m.stack[len(m.stack)-1].id
}

func (m *stateMachine) contains(id hashid.Id) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.stack {
		if s.id == id {
			return true
		}
	}
	return false
}

func (m *stateMachine) ids() []hashid.Id {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hashid.Id, len(m.stack))
	for i, s := range m.stack {
		out[i] = s.id
	}
	return out
}

func (m *stateMachine) instances() []stateInstance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.stack)
}

func (m *stateMachine) push(s stateInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stack = append(m.stack, s)
}

func (m *stateMachine) pop() (stateInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return stateInstance{}, false
	}
	top := m.stack[len(m.stack)-1]
	m.stack[len(m.stack)-1] = stateInstance{}
	m.stack = m.stack[:len(m.stack)-1]
	return top, true
}

func (h *Host) removeStateClass(name string) {
	if h.states.removeClass(name) {
		h.logger.Info("game state class removed", "class", name)
	}
}

// StateStack returns the ids on the state stack, bottom first.
func (h *Host) StateStack() []hashid.Id { return h.states.ids() }

func (h *Host) pushState(id hashid.Id, attrs *attributes.Attributes) error {
	c, ok := h.states.class(id)
	if !ok {
		return hostError(ErrCodeUnknownName, h.names.Describe(id), "no such game state class")
	}
	if attrs == nil {
		attrs = attributes.New(nil)
	}
	inst := stateInstance{id: id, events: c.factory()}
	h.states.push(inst)
	inst.events.OnEnter(h.runtime, attrs)
	h.logger.Debug("state entered", "state", c.name, "depth", len(h.states.ids()))
	return nil
}

func (h *Host) popState() error {
	top, ok := h.states.pop()
	if !ok {
		return hostError(ErrCodeEmptyStack, "", "pop on empty state stack")
	}
	top.events.OnLeave(h.runtime)
	h.logger.Debug("state left", "state", h.names.Describe(top.id))
	return nil
}

// setState replaces the top of the stack. The new class is checked first
// so an unknown id leaves the stack untouched.
func (h *Host) setState(id hashid.Id, attrs *attributes.Attributes) error {
	if _, ok := h.states.class(id); !ok {
		return hostError(ErrCodeUnknownName, h.names.Describe(id), "no such game state class")
	}
	if len(h.states.ids()) > 0 {
		if err := h.popState(); err != nil {
			return err
		}
	}
	return h.pushState(id, attrs)
}
