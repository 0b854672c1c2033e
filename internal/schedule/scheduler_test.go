package schedule

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serval-engine/serval/internal/hashid"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(opts ...Option) *Scheduler {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New("test", 10*time.Millisecond, opts...)
}

func noop(context.Context, float32) {}

// recorder logs task starts and finishes in the order they happen.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) task(name string) Func {
	return func(context.Context, float32) {
		r.mu.Lock()
		r.events = append(r.events, "start:"+name)
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
		r.mu.Lock()
		r.events = append(r.events, "end:"+name)
		r.mu.Unlock()
	}
}

func (r *recorder) index(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func TestAddTask_Duplicate(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddTask("a", noop).Err())

	err := s.AddTask("a", noop).Err()
	assert.ErrorIs(t, err, ErrDuplicateTask)
	assert.Len(t, s.Declarations(), 1)
}

func TestAddTask_Nil(t *testing.T) {
	s := newTestScheduler()
	assert.ErrorIs(t, s.AddTask("a", nil).Err(), ErrNilTask)
}

func TestTaskBuilder_ErrorSticks(t *testing.T) {
	s := newTestScheduler()
	b := s.Task("missing").RO(bodies).RW(contacts).Sync()

	assert.ErrorIs(t, b.Err(), ErrUnknownTask)
	assert.Empty(t, s.Declarations())
}

func TestTaskBuilder_Declares(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddTask("collide", noop).RO(bodies).RW(contacts).Err())

	d, ok := s.Graph().Declaration("collide")
	require.True(t, ok)
	assert.Equal(t, []hashid.Id{bodies}, d.Reads)
	assert.Equal(t, []hashid.Id{contacts}, d.Writes)
	assert.False(t, d.SyncPoint)
	assert.Equal(t, hashid.Of("collide"), d.ID)
}

func TestWaitFor_OrdersDependencies(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddTask("load", noop).Err())
	require.NoError(t, s.AddTask("decode", noop).Err())
	require.NoError(t, s.AddTask("apply", noop).WaitFor(assets, "load", "decode").Err())

	g := s.Graph()
	assert.True(t, g.HasEdge("load", "apply"))
	assert.True(t, g.HasEdge("decode", "apply"))
	assert.True(t, g.CanRunConcurrently("load", "decode"))

	load, _ := g.Declaration("load")
	apply, _ := g.Declaration("apply")
	assert.Equal(t, []hashid.Id{assets}, load.Reads)
	assert.Equal(t, []hashid.Id{assets}, apply.Writes)
}

func TestWaitFor_UnknownDependencyChangesNothing(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddTask("load", noop).Err())
	require.NoError(t, s.AddTask("apply", noop).Err())

	err := s.Task("apply").WaitFor(assets, "load", "missing").Err()
	assert.ErrorIs(t, err, ErrUnknownTask)

	for _, d := range s.Declarations() {
		assert.Empty(t, d.Reads, d.Name)
		assert.Empty(t, d.Writes, d.Name)
	}
}

func TestRemoveTask_PreservesRelativeOrder(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddTask("a", noop).RW(bodies).Err())
	require.NoError(t, s.AddTask("b", noop).RW(bodies).Err())
	require.NoError(t, s.AddTask("c", noop).RW(bodies).Err())

	require.NoError(t, s.RemoveTask("b"))
	assert.ErrorIs(t, s.RemoveTask("b"), ErrUnknownTask)

	g := s.Graph()
	assert.Equal(t, []string{"a", "c"}, g.Order())
	assert.True(t, g.HasEdge("a", "c"))

	require.NoError(t, s.AddTask("b", noop).RW(bodies).Err())
	assert.Equal(t, []string{"a", "c", "b"}, s.Graph().Order(), "re-added task goes last")
}

func TestTick_RespectsEdges(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(WithWorkers(4))
	require.NoError(t, s.AddTask("integrate", rec.task("integrate")).RW(bodies).Err())
	require.NoError(t, s.AddTask("collide", rec.task("collide")).RO(bodies).RW(contacts).Err())
	require.NoError(t, s.AddTask("resolve", rec.task("resolve")).RO(contacts).RW(bodies).Err())
	require.NoError(t, s.AddTask("render_ui", rec.task("render_ui")).RO(uiState).Err())

	for i := 0; i < 20; i++ {
		rec.reset()
		rep := s.Tick(context.Background())
		require.Len(t, rep.Order, 4)
		for _, e := range s.Graph().Edges() {
			assert.Less(t, rec.index("end:"+e.From), rec.index("start:"+e.To), "edge %s -> %s", e.From, e.To)
		}
	}
	assert.Equal(t, uint64(20), s.Ticks())
}

func TestTick_WritesVisibleDownstream(t *testing.T) {
	s := newTestScheduler(WithWorkers(4))
	var shared []int
	var seen atomic.Int64
	require.NoError(t, s.AddTask("produce", func(context.Context, float32) {
		shared = append(shared, len(shared))
	}).RW(bodies).Err())
	require.NoError(t, s.AddTask("consume", func(context.Context, float32) {
		seen.Store(int64(len(shared)))
	}).RO(bodies).Err())

	for i := 1; i <= 10; i++ {
		s.Tick(context.Background())
		assert.Equal(t, int64(i), seen.Load())
	}
}

func TestTick_DisjointTasksOverlap(t *testing.T) {
	s := newTestScheduler(WithWorkers(2))
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})
	var met atomic.Int32

	rendezvous := func(mine, other chan struct{}) Func {
		return func(context.Context, float32) {
			close(mine)
			select {
			case <-other:
				met.Add(1)
			case <-time.After(2 * time.Second):
			}
		}
	}
	require.NoError(t, s.AddTask("render_ui", rendezvous(aStarted, bStarted)).RO(uiState).Err())
	require.NoError(t, s.AddTask("physics_step", rendezvous(bStarted, aStarted)).RW(bodies).Err())

	rep := s.Tick(context.Background())

	assert.Equal(t, int32(2), met.Load(), "both tasks must be running at once")
	assert.Equal(t, 2, rep.MaxInFlight)
}

func TestTick_PanicDoesNotStarveSuccessors(t *testing.T) {
	s := newTestScheduler()
	var ran atomic.Bool
	require.NoError(t, s.AddTask("boom", func(context.Context, float32) {
		panic("kaboom")
	}).RW(bodies).Err())
	require.NoError(t, s.AddTask("after", func(context.Context, float32) {
		ran.Store(true)
	}).RO(bodies).Err())

	rep := s.Tick(context.Background())

	assert.True(t, ran.Load())
	assert.Equal(t, []string{"boom"}, rep.Panicked)
	assert.Equal(t, []string{"boom", "after"}, rep.Order)
}

func TestTick_CancelledContextStillRunsEverything(t *testing.T) {
	s := newTestScheduler()
	var count atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, s.AddTask(name, func(context.Context, float32) { count.Add(1) }).Err())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := s.Tick(ctx)

	assert.Equal(t, int32(3), count.Load())
	assert.Equal(t, 3, rep.Tasks)
}

func TestTick_Empty(t *testing.T) {
	rep := newTestScheduler().Tick(context.Background())
	assert.Equal(t, 0, rep.Tasks)
	assert.Empty(t, rep.Order)
	assert.Equal(t, uint64(1), rep.Tick)
}

func TestTick_PassesFixedDelta(t *testing.T) {
	s := New("fixed", 20*time.Millisecond, WithLogger(quietLogger()))
	var got atomic.Value
	require.NoError(t, s.AddTask("t", func(_ context.Context, dt float32) { got.Store(dt) }).Err())

	s.Tick(context.Background())
	assert.InDelta(t, 0.02, got.Load().(float32), 1e-6)
}

func TestTick_Observer(t *testing.T) {
	var started, finished atomic.Int32
	s := newTestScheduler(WithObserver(ObserverFuncs{
		Started:  func(string, uint64, string) { started.Add(1) },
		Finished: func(string, uint64, string) { finished.Add(1) },
	}))
	require.NoError(t, s.AddTask("a", noop).Err())
	require.NoError(t, s.AddTask("b", noop).Err())

	s.Tick(context.Background())
	s.Tick(context.Background())

	assert.Equal(t, int32(4), started.Load())
	assert.Equal(t, int32(4), finished.Load())
}

func TestAdvance(t *testing.T) {
	s := New("fixed", 10*time.Millisecond, WithLogger(quietLogger()), WithMaxCatchUp(3))

	assert.Equal(t, 0, s.Advance(5*time.Millisecond))
	assert.Equal(t, 1, s.Advance(5*time.Millisecond))
	assert.Equal(t, 2, s.Advance(25*time.Millisecond))
	assert.Equal(t, 1, s.Advance(5*time.Millisecond), "remainder carries over")
	assert.Equal(t, 3, s.Advance(time.Second), "catch-up is capped")
	assert.Equal(t, 0, s.Advance(0), "time beyond the cap is dropped")
}
