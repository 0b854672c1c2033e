// Package stream implements notification streams with a one-tick lag.
//
// Writers append notifications during a tick. Readers only ever see
// batches completed before their tick started: the host publishes the
// pending batch as a numbered generation at each end-of-tick sync point,
// and each scheduler reads every generation published since its previous
// tick. Reads therefore never race with writes, and a reader on a slower
// scheduler misses nothing.
//
// A Single stream must be written by at most one task across its
// scheduler's whole graph; its writer takes no lock and nothing checks
// the contract. Multiple streams serialize writers with a mutex.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/serval-engine/serval/internal/cursor"
	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/params"
)

// ErrDuplicateStream is returned when a stream name is already in use.
var ErrDuplicateStream = errors.New("duplicate notification stream")

// Access declares how many tasks may write a stream.
type Access uint8

const (
	Single Access = iota + 1
	Multiple
)

func (a Access) String() string {
	switch a {
	case Single:
		return "single"
	case Multiple:
		return "multiple"
	default:
		return fmt.Sprintf("access(%d)", uint8(a))
	}
}

// Notification is one stream entry.
type Notification struct {
	Kind   hashid.Id
	Params params.List
}

type batch struct {
	gen   uint64
	items []Notification
}

type stream struct {
	name   string
	id     hashid.Id
	access Access

	mu        sync.Mutex // writers on Multiple streams, publish and reads
	pending   []Notification
	published []batch // ascending gen
	latest    uint64
}

func (s *stream) write(n Notification) {
	if s.access == Multiple {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	s.pending = append(s.pending, n)
}

func (s *stream) publish(gen, floor uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := s.published[:0]
	for _, b := range s.published {
		if b.gen >= floor {
			keep = append(keep, b)
		}
	}
	clear(s.published[len(keep):])
	s.published = keep

	s.latest = gen
	n := len(s.pending)
	if n > 0 {
		s.published = append(s.published, batch{gen: gen, items: s.pending})
		s.pending = nil
	}
	return n
}

// Writer appends to one stream.
type Writer struct {
	s *stream
}

// ID returns the stream id.
func (w *Writer) ID() hashid.Id { return w.s.id }

// Access returns the declared writer access.
func (w *Writer) Access() Access { return w.s.access }

// Write appends a notification to the current tick's batch.
func (w *Writer) Write(kind hashid.Id, args params.List) {
	w.s.write(Notification{Kind: kind, Params: args})
}

// Reader reads the published batches of one stream in its window.
type Reader struct {
	s   *stream
	win cursor.Window
}

// ID returns the stream id.
func (r *Reader) ID() hashid.Id { return r.s.id }

func (r *Reader) visible() [][]Notification {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out [][]Notification
	for _, b := range r.s.published {
		if r.win.Contains(b.gen, r.s.latest) {
			out = append(out, b.items)
		}
	}
	return out
}

// Len returns the number of visible notifications.
func (r *Reader) Len() int {
	n := 0
	for _, items := range r.visible() {
		n += len(items)
	}
	return n
}

// Each calls fn for each visible notification, oldest batch first and in
// write order within one.
func (r *Reader) Each(fn func(Notification)) {
	for _, items := range r.visible() {
		for _, n := range items {
			fn(n)
		}
	}
}

// Notifications returns a copy of the visible notifications.
func (r *Reader) Notifications() []Notification {
	out := []Notification{}
	r.Each(func(n Notification) { out = append(out, n) })
	return out
}

// Registry holds every notification stream of a host.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	streams map[hashid.Id]*stream
	gen     uint64
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, streams: make(map[hashid.Id]*stream)}
}

// Add creates a stream and returns its writer.
func (r *Registry) Add(name string, access Access) (*Writer, error) {
	if access != Single && access != Multiple {
		return nil, fmt.Errorf("stream %q: invalid %s", name, access)
	}
	if _, err := hashid.Checked(name); err != nil {
		return nil, fmt.Errorf("notification stream: %w", err)
	}
	s := &stream{name: name, id: hashid.Of(name), access: access}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.streams[s.id]; ok {
		return nil, fmt.Errorf("%w: %q (id %s held by %q)", ErrDuplicateStream, name, s.id, existing.name)
	}
	r.streams[s.id] = s
	r.logger.Debug("notification stream added", "stream", name, "access", access)
	return &Writer{s: s}, nil
}

// Remove drops a stream. Unknown ids are ignored.
func (r *Registry) Remove(id hashid.Id) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}

// Reader returns a reader over the latest published batch of the stream
// with the given id.
func (r *Registry) Reader(id hashid.Id) (*Reader, bool) {
	return r.ReaderIn(id, cursor.Window{})
}

// ReaderIn returns a reader over the generations in win.
func (r *Registry) ReaderIn(id hashid.Id, win cursor.Window) (*Reader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, false
	}
	return &Reader{s: s, win: win}, true
}

// Flip publishes every stream's pending batch as a new generation and
// drops all older ones.
func (r *Registry) Flip() int {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()
	return r.Publish(gen, gen)
}

// Publish turns every stream's pending batch into generation gen and
// releases generations older than floor. The host calls it at the
// end-of-tick sync point when no task is running.
func (r *Registry) Publish(gen, floor uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen = max(r.gen, gen)
	total := 0
	for _, s := range r.streams {
		total += s.publish(gen, floor)
	}
	return total
}
