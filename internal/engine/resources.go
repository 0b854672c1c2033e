package engine

import (
	"sync"

	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/variant"
)

// Resource is a host-owned object that tasks reach through a handle.
type Resource interface {
	ResourceTypeID() hashid.Id
}

// resourceTable hands out handles starting at 1; the zero handle never
// resolves.
type resourceTable struct {
	mu    sync.RWMutex
	next  variant.ResourceHandle
	items map[variant.ResourceHandle]Resource
}

func newResourceTable() *resourceTable {
	return &resourceTable{next: 1, items: make(map[variant.ResourceHandle]Resource)}
}

// AddResource stores r and returns its handle.
func (h *Host) AddResource(r Resource) variant.ResourceHandle {
	t := h.resources
	t.mu.Lock()
	defer t.mu.Unlock()
	handle := t.next
	t.next++
	t.items[handle] = r
	return handle
}

// RemoveResource drops a resource. Its handle stops resolving.
func (h *Host) RemoveResource(handle variant.ResourceHandle) {
	t := h.resources
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, handle)
}

func (h *Host) resource(handle variant.ResourceHandle) (Resource, bool) {
	t := h.resources
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.items[handle]
	return r, ok
}

// Resolve returns the resource behind handle if it has type T. A handle
// to a resource of another type does not resolve.
func Resolve[T Resource](rt *Runtime, handle variant.ResourceHandle) (T, error) {
	var zero T
	r, ok := rt.h.resource(handle)
	if !ok {
		return zero, &HostError{
			Code:    ErrCodeResource,
			Message: "no resource behind handle",
			Details: map[string]string{"handle": handleString(handle)},
		}
	}
	v, ok := r.(T)
	if !ok {
		return zero, &HostError{
			Code:    ErrCodeResource,
			Message: "resource has a different type",
			Details: map[string]string{
				"handle": handleString(handle),
				"type":   rt.h.names.Describe(r.ResourceTypeID()),
			},
		}
	}
	return v, nil
}

func handleString(h variant.ResourceHandle) string {
	return hashid.Id(h).String()
}
