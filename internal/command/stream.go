package command

import (
	"fmt"
	"sync"

	"github.com/serval-engine/serval/internal/cursor"
	"github.com/serval-engine/serval/internal/hashid"
)

// Record is one delivered command. Data aliases the stream's arena and
// must not be kept past the reading tick.
type Record struct {
	Type hashid.Id
	Data []byte
}

type page struct {
	gen     uint64
	records []Record
	mem     arena
}

func (p *page) reset() {
	clear(p.records)
	p.records = p.records[:0]
	p.mem.reset()
	p.gen = 0
}

// Stream is one command target. Writers allocate into the pending page;
// each publish turns it into a generation that stays readable until
// every consumer has read past it.
type Stream struct {
	name string
	id   hashid.Id

	mu        sync.Mutex
	slots     map[hashid.Id]int
	pending   *page
	published []*page // ascending gen
	free      []*page
	latest    uint64
}

func newStream(name string) *Stream {
	return &Stream{
		name:    name,
		id:      hashid.Of(name),
		slots:   make(map[hashid.Id]int),
		pending: &page{},
	}
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// ID returns the stream's target id.
func (s *Stream) ID() hashid.Id { return s.id }

// Accept registers a slot for cmdType with an exact payload size.
// Re-accepting a type replaces its size.
func (s *Stream) Accept(cmdType hashid.Id, size int) *Stream {
	if size < 0 {
		panic(fmt.Sprintf("command: negative slot size %d for %s", size, cmdType))
	}
	s.mu.Lock()
	s.slots[cmdType] = size
	s.mu.Unlock()
	return s
}

// Slot returns the registered size for cmdType.
func (s *Stream) Slot(cmdType hashid.Id) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.slots[cmdType]
	return n, ok
}

func (s *Stream) allocate(cmdType hashid.Id, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.slots[cmdType]
	if !ok {
		return nil, &MismatchError{Target: s.id, Type: cmdType, Size: size, Reason: ReasonNoType}
	}
	if want != size {
		return nil, &MismatchError{Target: s.id, Type: cmdType, Size: size, Reason: ReasonSize, Expected: want}
	}
	buf := s.pending.mem.alloc(size)
	s.pending.records = append(s.pending.records, Record{Type: cmdType, Data: buf})
	return buf, nil
}

// publish makes pending commands generation gen and recycles pages older
// than floor.
func (s *Stream) publish(gen, floor uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := s.published[:0]
	for _, p := range s.published {
		if p.gen < floor {
			p.reset()
			s.free = append(s.free, p)
			continue
		}
		keep = append(keep, p)
	}
	clear(s.published[len(keep):])
	s.published = keep

	s.latest = gen
	n := len(s.pending.records)
	if n == 0 {
		return 0
	}
	s.pending.gen = gen
	s.published = append(s.published, s.pending)
	if k := len(s.free); k > 0 {
		s.pending = s.free[k-1]
		s.free = s.free[:k-1]
	} else {
		s.pending = &page{}
	}
	return n
}

// Reader reads a stream's published commands through a window of
// generations.
type Reader struct {
	s   *Stream
	win cursor.Window
}

// ID returns the target id of the stream being read.
func (r *Reader) ID() hashid.Id { return r.s.id }

// visible returns the pages in the reader's window. Pages only change at
// publish, which runs between ticks, so callers may use them unlocked.
func (r *Reader) visible() []*page {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*page
	for _, p := range r.s.published {
		if r.win.Contains(p.gen, r.s.latest) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of visible commands.
func (r *Reader) Len() int {
	n := 0
	for _, p := range r.visible() {
		n += len(p.records)
	}
	return n
}

// Each calls fn for every visible command, oldest generation first and
// in allocation order within one.
func (r *Reader) Each(fn func(Record)) {
	for _, p := range r.visible() {
		for _, rec := range p.records {
			fn(rec)
		}
	}
}

// Records returns a copy of the visible records.
func (r *Reader) Records() []Record {
	var out []Record
	r.Each(func(rec Record) { out = append(out, rec) })
	if out == nil {
		out = []Record{}
	}
	return out
}
