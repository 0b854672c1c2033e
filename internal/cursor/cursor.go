// Package cursor tracks how far each consumer has read a sequence of
// published generations.
//
// Command and notification streams publish one generation per sync
// point. A scheduler that ticks less often than sync points run must see
// every generation published since its previous tick, so the host opens a
// Window for it before each tick and keeps generations until every
// consumer has read past them.
package cursor

import (
	"sync"

	"github.com/serval-engine/serval/internal/hashid"
)

// Window is an inclusive range of generations visible to one read.
// The zero Window means "the latest generation at read time".
type Window struct {
	From, To uint64
}

// Latest reports whether w is the zero Window.
func (w Window) Latest() bool { return w == Window{} }

// Contains reports whether generation g is visible through w. The zero
// Window contains only latest.
func (w Window) Contains(g, latest uint64) bool {
	if w.Latest() {
		return g == latest && g != 0
	}
	return g >= w.From && g <= w.To
}

// Tracker records the last generation each consumer has read.
type Tracker struct {
	mu   sync.Mutex
	gen  uint64
	seen map[hashid.Id]uint64
}

// NewTracker creates a tracker at generation 0 with no consumers.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[hashid.Id]uint64)}
}

// Generation returns the last published generation.
func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Add starts tracking id. It sees only generations published from now on.
func (t *Tracker) Add(id hashid.Id) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[id] = t.gen
}

// Remove stops tracking id, releasing whatever it had not read.
func (t *Tracker) Remove(id hashid.Id) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, id)
}

// Begin returns the window of generations id has not read yet and marks
// them read. The window is empty when nothing new was published.
func (t *Tracker) Begin(id hashid.Id) Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen, ok := t.seen[id]
	if !ok {
		seen = t.gen
	}
	t.seen[id] = t.gen
	return Window{From: seen + 1, To: t.gen}
}

// Next advances to a new generation and returns it together with the
// floor: the oldest generation some consumer has yet to read. Anything
// older may be released.
func (t *Tracker) Next() (gen, floor uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	floor = t.gen
	for _, seen := range t.seen {
		floor = min(floor, seen+1)
	}
	return t.gen, floor
}
