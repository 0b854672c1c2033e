package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/persist"
	"github.com/serval-engine/serval/internal/variant"
)

const (
	hostSection  = "host"
	stackSection = "host/stack"
)

var (
	keyFrame   = hashid.Of("frame")
	keyElapsed = hashid.Of("timeline.elapsed")
	keyPaused  = hashid.Of("timeline.paused")
	keyScale   = hashid.Of("timeline.scale")
)

func stateSection(depth int, id hashid.Id) string {
	return fmt.Sprintf("state/%d/%s", depth, id)
}

// Save writes the state stack, every state's and system's records and
// the timeline to w. States get begin, save and end callbacks bottom
// first; systems save in registration order.
func (h *Host) Save(ctx context.Context, w io.Writer) error {
	h.frameMu.Lock()
	defer h.frameMu.Unlock()

	doc := persist.NewWriter()
	host := doc.Section(hostSection)
	persist.Put(host, keyFrame, h.clock.Current())
	persist.Put(host, keyElapsed, h.timeline.Elapsed())
	persist.Put(host, keyPaused, h.timeline.Paused())
	persist.Put(host, keyScale, h.timeline.LocalScale())

	stack := h.states.instances()
	sec := doc.Section(stackSection)
	for i, s := range stack {
		persist.Put(sec, hashid.Id(i+1), s.id)
	}

	for _, s := range stack {
		s.events.OnSaveBegin(h.runtime)
	}
	for i, s := range stack {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		s.events.OnSave(h.runtime, doc.Section(stateSection(i, s.id)))
	}
	for _, s := range stack {
		s.events.OnSaveEnd(h.runtime)
	}
	for _, sys := range h.systems.snapshot() {
		sys.events.OnSave(h.runtime, doc.Section(systemOwner(sys.name)))
	}

	n, err := doc.WriteTo(w)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	h.logger.Info("game saved", "bytes", n, "states", len(stack), "frame", h.clock.Current())
	return nil
}

// Load replaces the state stack with the saved one and hands every state
// and system its records. Current states leave first; loaded states are
// created fresh and get load callbacks instead of OnEnter. A save naming
// an unregistered state class is rejected before anything changes.
func (h *Host) Load(ctx context.Context, r io.Reader) error {
	h.frameMu.Lock()
	defer h.frameMu.Unlock()

	doc, err := persist.ReadFrom(r)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	var loaded []stateInstance
	doc.Section(stackSection).Each(func(_ hashid.Id, v variant.Value) {
		id, _ := variant.As[hashid.Id](v)
		loaded = append(loaded, stateInstance{id: id})
	})
	for i := range loaded {
		c, ok := h.states.class(loaded[i].id)
		if !ok {
			return fmt.Errorf("load: %w",
				hostError(ErrCodeUnknownName, h.names.Describe(loaded[i].id), "saved state class not registered"))
		}
		loaded[i].events = c.factory()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	for {
		if err := h.popState(); err != nil {
			break
		}
	}

	host := doc.Section(hostSection)
	if frame, ok := persist.Get[int64](host, keyFrame); ok {
		h.clock.Reset(frame)
	}
	h.timeline.restore(host)

	for _, s := range loaded {
		h.states.push(s)
	}
	for _, s := range loaded {
		s.events.OnLoadBegin(h.runtime)
	}
	for i, s := range loaded {
		s.events.OnLoad(h.runtime, doc.Section(stateSection(i, s.id)))
	}
	for _, s := range loaded {
		s.events.OnLoadEnd(h.runtime)
	}
	for _, sys := range h.systems.snapshot() {
		sys.events.OnLoad(h.runtime, doc.Section(systemOwner(sys.name)))
	}

	h.logger.Info("game loaded", "states", len(loaded), "frame", h.clock.Current())
	return nil
}
