package engine

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/serval-engine/serval/internal/schedule"
)

// FrameReport summarizes one host frame.
type FrameReport struct {
	Frame   int64
	Elapsed time.Duration

	// Ticks holds one report per scheduler tick, grouped by round and in
	// scheduler registration order within a round.
	Ticks []schedule.TickReport

	// Rounds is the number of tick rounds; a scheduler that fell behind
	// ticks once per round.
	Rounds int

	// Created and Destroyed count entity ops applied at sync points.
	Created   int
	Destroyed int

	// Transitions counts state stack changes.
	Transitions int

	// Commands and Notifications count records published at sync points.
	Commands      int
	Notifications int

	// Errors holds rejected ops and quota failures. They are also logged.
	Errors []error
}

// Step runs one host frame. Every scheduler whose accumulator has a tick
// due runs it; schedulers tick in parallel, each on its own pool. The
// end-of-tick sync point follows every round. A frame with no due tick
// still applies queued entity and state ops.
func (h *Host) Step(ctx context.Context, elapsed time.Duration) FrameReport {
	h.frameMu.Lock()
	defer h.frameMu.Unlock()

	frame := h.clock.Next()
	h.timeline.advance(elapsed)
	rep := FrameReport{Frame: frame, Elapsed: elapsed}

	scheds := h.entries()
	due := make([]int, len(scheds))
	for i, e := range scheds {
		due[i] = e.s.Advance(elapsed)
		rep.Rounds = max(rep.Rounds, due[i])
	}

	for round := 0; round < rep.Rounds; round++ {
		reports := make([]schedule.TickReport, len(scheds))
		ran := make([]bool, len(scheds))
		var wg sync.WaitGroup
		for i, e := range scheds {
			if due[i] <= round {
				continue
			}
			ran[i] = true
			e.rt.win = h.reads.Begin(e.id)
			wg.Add(1)
			go func() {
				defer wg.Done()
				reports[i] = e.s.Tick(ctx)
			}()
		}
		wg.Wait()

		h.syncPoint(frame, true, &rep)

		for i := range scheds {
			if !ran[i] {
				continue
			}
			rep.Ticks = append(rep.Ticks, reports[i])
			if h.tickHook != nil {
				h.tickHook(ctx, frame, reports[i])
			}
		}
	}
	if rep.Rounds == 0 {
		h.syncPoint(frame, false, &rep)
	}

	if len(rep.Errors) > 0 {
		h.logger.Warn("frame finished with errors", "frame", frame, "errors", len(rep.Errors))
	}
	return rep
}

// syncPoint applies queued ops: entity ops first, then state transitions,
// then command and stream publishing. Ops queued while applying are drained in
// further rounds up to the quota; the rest waits for the next sync point.
func (h *Host) syncPoint(frame int64, publish bool, rep *FrameReport) {
	quota := NewQuotaEnforcer(h.maxRounds)
	for h.ops.Len() > 0 {
		if err := quota.Check(frame); err != nil {
			h.logger.Error("sync point quota exceeded",
				"frame", frame,
				"pending", h.ops.Len(),
				"error", err)
			rep.Errors = append(rep.Errors, err)
			break
		}
		batch := h.ops.Drain()
		for _, o := range batch {
			if o.entityOp() {
				h.applyEntityOp(o, rep)
			}
		}
		for _, o := range batch {
			if !o.entityOp() {
				h.applyStateOp(o, rep)
			}
		}
	}
	if publish {
		gen, floor := h.reads.Next()
		rep.Commands += h.commands.Publish(gen, floor)
		rep.Notifications += h.streams.Publish(gen, floor)
	}
}

func (h *Host) applyEntityOp(o op, rep *FrameReport) {
	switch o.kind {
	case opCreate:
		e := h.world.create(o.name)
		rep.Created++
		if o.ctor != nil {
			o.ctor(h.runtime, e)
		}
	case opDestroy:
		if h.world.destroy(o.entity) {
			h.messages.Detach(o.entity)
			rep.Destroyed++
			return
		}
		h.logger.Debug("destroy of unknown entity", "entity", o.entity)
	case opTag:
		if !h.world.tag(o.entity, o.name) {
			h.logger.Debug("tag on unknown entity", "entity", o.entity, "tag", h.names.Describe(o.name))
		}
	}
}

func (h *Host) applyStateOp(o op, rep *FrameReport) {
	var err error
	switch o.kind {
	case opPush:
		err = h.pushState(o.state, o.attrs)
	case opPop:
		err = h.popState()
	case opSet:
		err = h.setState(o.state, o.attrs)
	}
	if err != nil {
		h.logger.Warn("state transition rejected", "error", err)
		rep.Errors = append(rep.Errors, err)
		return
	}
	rep.Transitions++
}

// Run steps the host on a ticker at the configured frame interval until
// ctx is cancelled.
func (h *Host) Run(ctx context.Context) error {
	h.startAsync()
	ticker := time.NewTicker(h.frameInterval)
	defer ticker.Stop()

	h.logger.Info("host running", "run_id", h.runID, "frame_interval", h.frameInterval)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("host stopped", "run_id", h.runID, "frame", h.clock.Current())
			return ctx.Err()
		case now := <-ticker.C:
			h.Step(ctx, now.Sub(last))
			last = now
		}
	}
}

func (h *Host) startAsync() {
	h.asyncOnce.Do(func() {
		for range h.asyncWorkers {
			h.asyncWG.Add(1)
			go h.asyncWorker()
		}
	})
}

func (h *Host) asyncWorker() {
	defer h.asyncWG.Done()
	for {
		task, ok := h.async.TryDequeue()
		if ok {
			h.runAsync(task)
			continue
		}
		if h.async.Closed() {
			return
		}
		<-h.async.Wait()
	}
}

func (h *Host) runAsync(task AsyncTask) {
	defer h.asyncLive.Done()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("async task panicked",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	task(context.Background(), h.runtime)
}

// WaitAsync blocks until every async task queued so far has finished.
func (h *Host) WaitAsync() {
	h.asyncLive.Wait()
}
