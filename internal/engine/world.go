package engine

import (
	"maps"
	"slices"
	"sync"

	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/variant"
)

// EntityConstructor initializes an entity once it exists. It runs at the
// sync point that creates the entity.
type EntityConstructor func(rt *Runtime, e variant.EntityID)

type entity struct {
	name hashid.Id
	tags map[hashid.Id]struct{}
}

// World is the host's entity registry. Component storage lives elsewhere;
// the world tracks identity, names and tags.
//
// Tasks read the world freely. It is only mutated at the sync point.
type World struct {
	mu       sync.RWMutex
	next     variant.EntityID
	entities map[variant.EntityID]*entity
	names    map[hashid.Id]variant.EntityID
}

func newWorld() *World {
	return &World{
		entities: make(map[variant.EntityID]*entity),
		names:    make(map[hashid.Id]variant.EntityID),
	}
}

// Exists reports whether e is alive.
func (w *World) Exists(e variant.EntityID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.entities[e]
	return ok
}

// Len returns the live entity count.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities)
}

// Entities returns every live entity in ascending order.
func (w *World) Entities() []variant.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Sorted(maps.Keys(w.entities))
}

// Lookup returns the entity registered under name, or NullEntity.
func (w *World) Lookup(name hashid.Id) variant.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.names[name]; ok {
		return e
	}
	return variant.NullEntity
}

// HasTag reports whether e carries tag.
func (w *World) HasTag(e variant.EntityID, tag hashid.Id) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ent, ok := w.entities[e]
	if !ok {
		return false
	}
	_, ok = ent.tags[tag]
	return ok
}

// Tags returns e's tags in ascending order.
func (w *World) Tags(e variant.EntityID) []hashid.Id {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ent, ok := w.entities[e]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(ent.tags))
}

// Tagged returns every entity carrying tag, ascending.
func (w *World) Tagged(tag hashid.Id) []variant.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []variant.EntityID
	for id, ent := range w.entities {
		if _, ok := ent.tags[tag]; ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// create allocates an entity. A name already in use is reassigned to the
// new entity.
func (w *World) create(name hashid.Id) variant.EntityID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.next
	w.next++
	w.entities[id] = &entity{name: name, tags: make(map[hashid.Id]struct{})}
	if name.Valid() {
		w.names[name] = id
	}
	return id
}

func (w *World) destroy(e variant.EntityID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ent, ok := w.entities[e]
	if !ok {
		return false
	}
	if ent.name.Valid() && w.names[ent.name] == e {
		delete(w.names, ent.name)
	}
	delete(w.entities, e)
	return true
}

func (w *World) tag(e variant.EntityID, tag hashid.Id) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ent, ok := w.entities[e]
	if !ok {
		return false
	}
	ent.tags[tag] = struct{}{}
	return true
}
