package engine

import (
	"sync"
	"time"

	"github.com/serval-engine/serval/internal/persist"
)

// Timeline tracks game time. Child timelines inherit their parent's
// scale and pause state.
//
// The host advances timelines at the start of each frame; tasks only read
// them.
type Timeline struct {
	parent *Timeline

	mu         sync.RWMutex
	paused     bool
	elapsed    float32
	delta      float32
	localScale float32
}

// NewTimeline creates a running timeline with scale 1. parent may be nil.
func NewTimeline(parent *Timeline) *Timeline {
	return &Timeline{parent: parent, localScale: 1}
}

// Paused reports whether this timeline or any ancestor is paused.
func (t *Timeline) Paused() bool {
	t.mu.RLock()
	p := t.paused
	t.mu.RUnlock()
	if p {
		return true
	}
	return t.parent != nil && t.parent.Paused()
}

// Elapsed returns scaled seconds accumulated since the timeline started.
func (t *Timeline) Elapsed() float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.elapsed
}

// Delta returns the scaled seconds added by the last advance.
func (t *Timeline) Delta() float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.delta
}

// LocalScale returns this timeline's own scale factor.
func (t *Timeline) LocalScale() float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.localScale
}

// AbsoluteScale returns the scale after applying every ancestor's.
func (t *Timeline) AbsoluteScale() float32 {
	s := t.LocalScale()
	if t.parent != nil {
		s *= t.parent.AbsoluteScale()
	}
	return s
}

// Scale converts a raw duration in seconds to this timeline's time.
func (t *Timeline) Scale(seconds float32) float32 {
	return seconds * t.AbsoluteScale()
}

// SetPaused pauses or resumes the timeline.
func (t *Timeline) SetPaused(p bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = p
}

// SetScale sets the local scale factor.
func (t *Timeline) SetScale(s float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localScale = s
}

func (t *Timeline) advance(raw time.Duration) {
	if t.Paused() {
		t.mu.Lock()
		t.delta = 0
		t.mu.Unlock()
		return
	}
	d := t.Scale(float32(raw.Seconds()))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delta = d
	t.elapsed += d
}

func (t *Timeline) restore(r *persist.SectionReader) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := persist.Get[float32](r, keyElapsed); ok {
		t.elapsed = v
	}
	if v, ok := persist.Get[bool](r, keyPaused); ok {
		t.paused = v
	}
	if v, ok := persist.Get[float32](r, keyScale); ok {
		t.localScale = v
	}
	t.delta = 0
}
