// Package attributes implements the typed key/value attributes asset.
//
// Every entry holds exactly one variant value. Reads are typed: asking for
// a kind other than the stored one fails rather than converting.
package attributes

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/variant"
)

// ErrTagMismatch is returned by Update when the stored value has a
// different kind than requested. The stored value is left untouched.
var ErrTagMismatch = errors.New("attribute kind mismatch")

// Backend stores attribute values. The host may provide its own; Memory is
// the default.
type Backend interface {
	Type(key hashid.Id) variant.Tag
	Read(key hashid.Id) (variant.Value, bool)
	Write(key hashid.Id, v variant.Value) bool
}

// Updater is implemented by backends that can replace a value in one
// step. fn gets the stored value, or the zero Value when key is absent;
// its error aborts the update and the stored value stays as it was.
type Updater interface {
	Update(key hashid.Id, fn func(cur variant.Value) (variant.Value, error)) error
}

var errWriteRejected = errors.New("write rejected")

// Attributes is a typed view over a Backend.
type Attributes struct {
	b Backend
}

// New wraps b. A nil backend gets a fresh Memory.
func New(b Backend) *Attributes {
	if b == nil {
		b = NewMemory()
	}
	return &Attributes{b: b}
}

// Backend returns the underlying store.
func (a *Attributes) Backend() Backend { return a.b }

// Type returns the stored kind, or Invalid when key is absent.
func (a *Attributes) Type(key hashid.Id) variant.Tag { return a.b.Type(key) }

// Contains reports whether key holds a value of any kind.
func (a *Attributes) Contains(key hashid.Id) bool { return a.b.Type(key) != variant.Invalid }

// Has reports whether key holds a value of kind T.
func Has[T variant.Kind](a *Attributes, key hashid.Id) bool {
	return a.b.Type(key) == variant.TagOf[T]()
}

// Get returns the value at key if it is of kind T.
func Get[T variant.Kind](a *Attributes, key hashid.Id) (T, bool) {
	v, ok := a.b.Read(key)
	if !ok {
		var zero T
		return zero, false
	}
	return variant.As[T](v)
}

// TryGet writes the value at key into out if it is of kind T. out is
// untouched otherwise.
func TryGet[T variant.Kind](a *Attributes, key hashid.Id, out *T) bool {
	v, ok := a.b.Read(key)
	if !ok {
		return false
	}
	return variant.Assign(v, out)
}

// Set stores value at key, replacing any previous value of any kind.
func Set[T variant.Kind](a *Attributes, key hashid.Id, value T) bool {
	return a.b.Write(key, variant.Encode(value))
}

// Update calls fn with the current value at key and stores the result.
// An absent key starts from T's zero value. A key holding another kind
// returns ErrTagMismatch without calling fn.
//
// Update is atomic when the backend implements Updater, as Memory does.
// On other backends a concurrent write may land between the read and the
// write.
func Update[T variant.Kind](a *Attributes, key hashid.Id, fn func(*T)) error {
	apply := func(stored variant.Value) (variant.Value, error) {
		var cur T
		if stored.IsValid() {
			if want := variant.TagOf[T](); stored.Tag() != want {
				return variant.Value{}, fmt.Errorf("%w: %s holds %s, update wants %s", ErrTagMismatch, key, stored.Tag(), want)
			}
			variant.Assign(stored, &cur)
		}
		fn(&cur)
		return variant.Encode(cur), nil
	}

	var err error
	if u, ok := a.b.(Updater); ok {
		err = u.Update(key, apply)
	} else {
		err = updateUnlocked(a.b, key, apply)
	}
	if errors.Is(err, errWriteRejected) {
		return fmt.Errorf("attribute %s: %w", key, err)
	}
	return err
}

func updateUnlocked(b Backend, key hashid.Id, fn func(variant.Value) (variant.Value, error)) error {
	cur, _ := b.Read(key)
	next, err := fn(cur)
	if err != nil {
		return err
	}
	if !b.Write(key, next) {
		return errWriteRejected
	}
	return nil
}

// Memory is an in-process Backend.
type Memory struct {
	mu   sync.RWMutex
	vals map[hashid.Id]variant.Value
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{vals: make(map[hashid.Id]variant.Value)}
}

func (m *Memory) Type(key hashid.Id) variant.Tag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vals[key].Tag()
}

func (m *Memory) Read(key hashid.Id) (variant.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[key]
	return v, ok
}

// Write stores v. Invalid values are refused.
func (m *Memory) Write(key hashid.Id, v variant.Value) bool {
	if !v.IsValid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = v
	return true
}

// Update replaces the value at key with fn's result under the write lock.
func (m *Memory) Update(key hashid.Id, fn func(cur variant.Value) (variant.Value, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.vals[key])
	if err != nil {
		return err
	}
	if !next.IsValid() {
		return errWriteRejected
	}
	m.vals[key] = next
	return nil
}

// Delete removes key.
func (m *Memory) Delete(key hashid.Id) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, key)
}

// Keys returns every key in ascending order.
func (m *Memory) Keys() []hashid.Id {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.vals))
}

// Snapshot copies every entry.
func (m *Memory) Snapshot() map[hashid.Id]variant.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.vals)
}

// Restore replaces every entry with vals.
func (m *Memory) Restore(vals map[hashid.Id]variant.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals = maps.Clone(vals)
	if m.vals == nil {
		m.vals = make(map[hashid.Id]variant.Value)
	}
}
