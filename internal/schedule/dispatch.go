package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TickReport summarizes one dispatched tick.
type TickReport struct {
	Scheduler string
	Tick      uint64
	Started   time.Time
	Duration  time.Duration
	Tasks     int
	// Order lists tasks in the order they finished.
	Order []string
	// Panicked lists tasks that panicked. Their successors still ran.
	Panicked    []string
	MaxInFlight int
	// TraceID and SpanID identify the tick span. Empty when no tracer
	// provider records spans.
	TraceID string
	SpanID  string
}

type doneMsg struct {
	idx      int
	panicked bool
}

// Tick dispatches every task once and returns when all have finished.
//
// A task starts only after all of its predecessors finished. The context
// is handed to tasks and carries the tick span; cancelling it does not
// stop the tick.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	s.mu.Lock()
	g, fns := s.snapshotLocked()
	s.ticks++
	tick := s.ticks
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "schedule.tick",
		trace.WithAttributes(
			attribute.String("scheduler", s.name),
			attribute.Int64("tick", int64(tick)),
			attribute.Int("tasks", g.Len()),
		))
	defer span.End()

	rep := TickReport{
		Scheduler: s.name,
		Tick:      tick,
		Started:   time.Now(),
		Tasks:     g.Len(),
	}
	if sc := span.SpanContext(); sc.IsValid() {
		rep.TraceID = sc.TraceID().String()
		rep.SpanID = sc.SpanID().String()
	}
	if g.Len() > 0 {
		s.dispatch(ctx, g, fns, tick, &rep)
	}
	rep.Duration = time.Since(rep.Started)
	if len(rep.Panicked) > 0 {
		span.SetAttributes(attribute.StringSlice("panicked", rep.Panicked))
	}
	return rep
}

// dispatch runs g on the worker pool. The coordinator loop is the only
// goroutine touching the remaining-predecessor counts.
func (s *Scheduler) dispatch(ctx context.Context, g *Graph, fns []Func, tick uint64, rep *TickReport) {
	n := g.Len()
	dt := s.DeltaSeconds()

	// Both channels hold every task, so neither side ever blocks on a send.
	workCh := make(chan int, n)
	doneCh := make(chan doneMsg, n)

	var inFlight, peak atomic.Int64
	var wg sync.WaitGroup
	workers := min(s.workers, n)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workCh {
				cur := inFlight.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				panicked := s.runTask(ctx, g.nodes[idx].Name, fns[idx], dt, tick)
				inFlight.Add(-1)
				doneCh <- doneMsg{idx: idx, panicked: panicked}
			}
		}()
	}

	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = len(g.incoming[i])
		if remaining[i] == 0 {
			workCh <- i
		}
	}

	rep.Order = make([]string, 0, n)
	for completed := 0; completed < n; completed++ {
		msg := <-doneCh
		name := g.nodes[msg.idx].Name
		rep.Order = append(rep.Order, name)
		if msg.panicked {
			rep.Panicked = append(rep.Panicked, name)
		}
		for _, succ := range g.outgoing[msg.idx] {
			remaining[succ]--
			if remaining[succ] == 0 {
				workCh <- succ
			}
		}
	}
	close(workCh)
	wg.Wait()
	rep.MaxInFlight = int(peak.Load())
}

// runTask calls fn and reports whether it panicked. A panicking task is
// logged and counted as finished so its successors are not starved.
func (s *Scheduler) runTask(ctx context.Context, name string, fn Func, dt float32, tick uint64) (panicked bool) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("scheduler", s.name)))
	s.observer.TaskStarted(s.name, tick, name)
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err := fmt.Errorf("task %q panicked: %v", name, r)
			span.RecordError(err)
			s.logger.Error("task panicked",
				"task", name,
				"tick", tick,
				"panic", r,
				"stack", string(debug.Stack()))
		}
		s.observer.TaskFinished(s.name, tick, name)
		span.End()
	}()
	fn(ctx, dt)
	return false
}
