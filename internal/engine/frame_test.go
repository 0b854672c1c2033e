package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serval-engine/serval/internal/attributes"
	"github.com/serval-engine/serval/internal/command"
	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/message"
	"github.com/serval-engine/serval/internal/params"
	"github.com/serval-engine/serval/internal/schedule"
	"github.com/serval-engine/serval/internal/stream"
	"github.com/serval-engine/serval/internal/variant"
)

func TestHost_StepTicksDueSchedulers(t *testing.T) {
	h, _ := newTestHost(t)
	init := h.Init("ext")
	init.AddScheduler("fast", 10*time.Millisecond)
	init.AddScheduler("slow", 20*time.Millisecond)

	var fast, slow atomic.Int32
	var dt atomic.Value
	init.AddTask("fast", "count", func(_ context.Context, _ *Runtime, d float32) {
		fast.Add(1)
		dt.Store(d)
	})
	init.AddTask("slow", "count", func(context.Context, *Runtime, float32) { slow.Add(1) })

	rep := h.Step(context.Background(), 25*time.Millisecond)
	assert.Equal(t, int64(1), rep.Frame)
	assert.Equal(t, 2, rep.Rounds)
	assert.Len(t, rep.Ticks, 3)
	assert.Equal(t, int32(2), fast.Load())
	assert.Equal(t, int32(1), slow.Load())
	assert.InDelta(t, 0.01, dt.Load().(float32), 1e-6, "dt is the fixed interval")

	// 5ms left over plus 5ms now makes one more fast tick.
	rep = h.Step(context.Background(), 5*time.Millisecond)
	assert.Equal(t, 1, rep.Rounds)
	assert.Equal(t, int32(3), fast.Load())
	assert.Equal(t, int32(1), slow.Load())
	assert.Equal(t, int64(2), h.Frame())
}

func TestHost_SchedulersTickInParallel(t *testing.T) {
	h, _ := newTestHost(t)
	init := h.Init("ext")
	init.AddScheduler("a", 10*time.Millisecond)
	init.AddScheduler("b", 10*time.Millisecond)

	// Each task waits for the other; this only finishes if both
	// schedulers tick at the same time.
	var ready sync.WaitGroup
	ready.Add(2)
	rendezvous := func(context.Context, *Runtime, float32) {
		ready.Done()
		ready.Wait()
	}
	init.AddTask("a", "meet", rendezvous)
	init.AddTask("b", "meet", rendezvous)

	done := make(chan struct{})
	go func() {
		h.Step(context.Background(), 10*time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("schedulers did not tick concurrently")
	}
}

func TestHost_EntityOpsDeferredToSyncPoint(t *testing.T) {
	h, _ := newTestHost(t)
	init := h.Init("ext")
	init.AddScheduler("logic", 10*time.Millisecond)

	player := hashid.Of("player")
	hero := hashid.Of("hero")
	var seenDuringTick int
	var constructed variant.EntityID = variant.NullEntity
	init.AddTask("logic", "spawn", func(_ context.Context, rt *Runtime, _ float32) {
		if rt.Lookup(player) != variant.NullEntity {
			return
		}
		rt.CreateNamedEntity(player, func(rt *Runtime, e variant.EntityID) {
			constructed = e
			rt.TagEntity(e, hero)
		})
		seenDuringTick = rt.World().Len()
	})

	rep := h.Step(context.Background(), 10*time.Millisecond)
	assert.Equal(t, 0, seenDuringTick, "creation waits for the sync point")
	assert.Equal(t, 1, rep.Created)

	e := h.World().Lookup(player)
	require.NotEqual(t, variant.NullEntity, e)
	assert.Equal(t, e, constructed)
	assert.True(t, h.World().HasTag(e, hero), "ops queued by constructors drain in the same sync point")
	assert.Equal(t, []variant.EntityID{e}, h.World().Tagged(hero))
}

func TestHost_SyncPointRunsWithoutDueTicks(t *testing.T) {
	h, _ := newTestHost(t)
	rt := h.Runtime()
	rt.CreateEntity(nil)

	rep := h.Step(context.Background(), 0)
	assert.Equal(t, 0, rep.Rounds)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 1, h.World().Len())
}

func TestHost_DestroyDetachesReceiver(t *testing.T) {
	h, _ := newTestHost(t)
	rt := h.Runtime()
	ping := hashid.Of("ping")

	var got []int32
	var ent variant.EntityID
	rt.CreateEntity(func(rt *Runtime, e variant.EntityID) {
		ent = e
		rt.AttachReceiver(e, message.ReceiverFunc(func(env message.Envelope) {
			l, err := env.Params()
			require.NoError(t, err)
			v, _ := variant.As[int32](l.At(0))
			got = append(got, v)
		}))
	})
	h.Step(context.Background(), 0)

	assert.True(t, rt.Message(ent, ping, params.Of1(int32(7))))
	assert.Equal(t, []int32{7}, got, "messages are delivered before Message returns")

	rt.DestroyEntity(ent)
	rep := h.Step(context.Background(), 0)
	assert.Equal(t, 1, rep.Destroyed)
	assert.False(t, h.World().Exists(ent))
	assert.False(t, rt.Message(ent, ping, params.Of()))
}

type recordingState struct {
	BaseState
	name string
	log  *eventLog
}

func (s *recordingState) OnEnter(rt *Runtime, attrs *attributes.Attributes) {
	entry := "enter:" + s.name
	if lvl, ok := attributes.Get[int32](attrs, hashid.Of("level")); ok && lvl > 0 {
		entry += "@level"
	}
	if rt.World().Len() > 0 {
		entry += "+entities"
	}
	s.log.add(entry)
}

func (s *recordingState) OnLeave(*Runtime) { s.log.add("leave:" + s.name) }

func recordingStateClass(name string, log *eventLog) StateFactory {
	return func() StateEvents { return &recordingState{name: name, log: log} }
}

func TestHost_StateStackTransitions(t *testing.T) {
	h, _ := newTestHost(t)
	init := h.Init("ext")
	log := &eventLog{}
	menu := init.AddGameStateClass("menu", recordingStateClass("menu", log))
	game := init.AddGameStateClass("game", recordingStateClass("game", log))
	rt := h.Runtime()
	ctx := context.Background()

	rt.PushState(menu)
	h.Step(ctx, 0)
	assert.Equal(t, menu, rt.CurrentState())

	attrs := attributes.New(nil)
	attributes.Set(attrs, hashid.Of("level"), int32(2))
	rt.PushStateWith(game, attrs)
	h.Step(ctx, 0)
	assert.Equal(t, []hashid.Id{menu, game}, h.StateStack())
	assert.True(t, rt.InState(menu))

	rt.SetState(menu)
	rep := h.Step(ctx, 0)
	assert.Equal(t, 1, rep.Transitions)
	assert.Equal(t, []hashid.Id{menu, menu}, h.StateStack())
	assert.False(t, rt.InState(game))

	rt.PopState()
	rt.PopState()
	rt.PopState()
	rep = h.Step(ctx, 0)
	assert.Equal(t, 2, rep.Transitions)
	require.Len(t, rep.Errors, 1)
	assert.True(t, HasCode(rep.Errors[0], ErrCodeEmptyStack))
	assert.Equal(t, hashid.Invalid, rt.CurrentState())

	assert.Equal(t, []string{
		"enter:menu",
		"enter:game@level",
		"leave:game", "enter:menu",
		"leave:menu", "leave:menu",
	}, log.all())
}

func TestHost_EntityOpsApplyBeforeStateOps(t *testing.T) {
	h, _ := newTestHost(t)
	log := &eventLog{}
	menu := h.Init("ext").AddGameStateClass("menu", recordingStateClass("menu", log))
	rt := h.Runtime()

	// Queued before the create, applied after it.
	rt.PushState(menu)
	rt.CreateEntity(nil)
	h.Step(context.Background(), 0)

	assert.Equal(t, []string{"enter:menu+entities"}, log.all())
}

func TestHost_SetUnknownStateKeepsStack(t *testing.T) {
	h, _ := newTestHost(t)
	log := &eventLog{}
	menu := h.Init("ext").AddGameStateClass("menu", recordingStateClass("menu", log))
	rt := h.Runtime()

	rt.PushState(menu)
	h.Step(context.Background(), 0)
	rt.SetState(hashid.Of("nowhere"))
	rep := h.Step(context.Background(), 0)

	require.Len(t, rep.Errors, 1)
	assert.True(t, IsUnknownName(rep.Errors[0]))
	assert.Equal(t, []hashid.Id{menu}, h.StateStack())
	assert.Equal(t, []string{"enter:menu"}, log.all())
}

type moveCmd struct {
	DX, DY float32
}

func (moveCmd) CommandType() hashid.Id { return hashid.Of("move") }

func TestHost_CommandsReadableNextTick(t *testing.T) {
	h, _ := newTestHost(t)
	init := h.Init("ext")
	init.AddScheduler("logic", 10*time.Millisecond)
	mover, err := init.AddCommandStream("mover")
	require.NoError(t, err)
	mover.Accept(hashid.Of("move"), 8).Accept(hashid.Of("stop"), 0)

	var mu sync.Mutex
	var seen []int
	var moved []moveCmd
	init.AddTask("logic", "send", func(_ context.Context, rt *Runtime, _ float32) {
		assert.NoError(t, SendCommand(rt, mover.ID(), moveCmd{DX: 1, DY: 2}))
		assert.NoError(t, rt.CommandTag(mover.ID(), hashid.Of("stop")))
	}).RW(hashid.Of("mover"))
	init.AddTask("logic", "read", func(_ context.Context, rt *Runtime, _ float32) {
		r, ok := rt.CommandReader(mover.ID())
		if !assert.True(t, ok) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Len())
		r.Each(func(rec command.Record) {
			if rec.Type == hashid.Of("move") {
				cmd, err := command.Decode[moveCmd](rec)
				assert.NoError(t, err)
				moved = append(moved, cmd)
			}
		})
	}).RO(hashid.Of("mover"))

	ctx := context.Background()
	rep := h.Step(ctx, 10*time.Millisecond)
	assert.Equal(t, 2, rep.Commands)
	h.Step(ctx, 10*time.Millisecond)

	assert.Equal(t, []int{0, 2}, seen)
	assert.Equal(t, []moveCmd{{DX: 1, DY: 2}}, moved)
}

func TestHost_CommandMismatchDoesNotStopTick(t *testing.T) {
	h, _ := newTestHost(t)
	init := h.Init("ext")
	init.AddScheduler("logic", 10*time.Millisecond)
	mover, err := init.AddCommandStream("mover")
	require.NoError(t, err)
	mover.Accept(hashid.Of("move"), 8)

	var errs []error
	init.AddTask("logic", "send", func(_ context.Context, rt *Runtime, _ float32) {
		_, err := rt.Command(mover.ID(), hashid.Of("move"), 4)
		errs = append(errs, err)
		errs = append(errs, rt.CommandID(hashid.Of("nobody"), hashid.Of("move"), hashid.Of("x")))
	})

	rep := h.Step(context.Background(), 10*time.Millisecond)
	assert.Equal(t, 0, rep.Commands)
	require.Len(t, errs, 2)
	for _, err := range errs {
		_, ok := command.IsMismatch(err)
		assert.True(t, ok)
		assert.ErrorIs(t, err, command.ErrNoSlot)
	}
}

func TestHost_NotificationsReadableNextTick(t *testing.T) {
	h, _ := newTestHost(t)
	init := h.Init("ext")
	init.AddScheduler("logic", 10*time.Millisecond)
	w, err := init.AddNotificationStream("hits", stream.Single)
	require.NoError(t, err)

	var seen []int
	init.AddTask("logic", "hit", func(context.Context, *Runtime, float32) {
		w.Write(hashid.Of("hit"), params.Of1(int32(3)))
	}).RW(hashid.Of("hits"))
	init.AddTask("logic", "count", func(_ context.Context, rt *Runtime, _ float32) {
		r, ok := rt.Stream(hashid.Of("hits"))
		if !assert.True(t, ok) {
			return
		}
		seen = append(seen, r.Len())
	}).RO(hashid.Of("hits"))

	ctx := context.Background()
	h.Step(ctx, 10*time.Millisecond)
	rep := h.Step(ctx, 10*time.Millisecond)

	assert.Equal(t, []int{0, 1}, seen)
	assert.Equal(t, 1, rep.Notifications)
}

func TestHost_SlowSchedulerReadsEveryBatch(t *testing.T) {
	h, _ := newTestHost(t)
	init := h.Init("ext")
	init.AddScheduler("fast", 10*time.Millisecond)
	init.AddScheduler("slow", 20*time.Millisecond)
	orders, err := init.AddCommandStream("orders")
	require.NoError(t, err)
	orders.Accept(hashid.Of("go"), 0)
	w, err := init.AddNotificationStream("beats", stream.Single)
	require.NoError(t, err)

	init.AddTask("fast", "produce", func(_ context.Context, rt *Runtime, _ float32) {
		assert.NoError(t, rt.CommandTag(orders.ID(), hashid.Of("go")))
		w.Write(hashid.Of("beat"), params.Of())
	}).RW(hashid.Of("orders"), hashid.Of("beats"))

	var commands, notifications atomic.Int32
	init.AddTask("slow", "consume", func(_ context.Context, rt *Runtime, _ float32) {
		if r, ok := rt.CommandReader(orders.ID()); assert.True(t, ok) {
			commands.Add(int32(r.Len()))
		}
		if r, ok := rt.Stream(hashid.Of("beats")); assert.True(t, ok) {
			notifications.Add(int32(r.Len()))
		}
	}).RO(hashid.Of("orders"), hashid.Of("beats"))

	ctx := context.Background()
	for range 20 {
		h.Step(ctx, 10*time.Millisecond)
	}

	// slow last ticked in frame 20, before fast's frame 20 batch was
	// published; everything from frames 1 to 19 reached it exactly once.
	assert.Equal(t, int32(19), commands.Load())
	assert.Equal(t, int32(19), notifications.Load())

	// The frame 20 batch is still retained for slow's next tick.
	h.Step(ctx, 10*time.Millisecond)
	h.Step(ctx, 10*time.Millisecond)
	assert.Equal(t, int32(21), commands.Load())
	assert.Equal(t, int32(21), notifications.Load())
}

func TestHost_SyncPointQuota(t *testing.T) {
	h, _ := newTestHost(t, WithMaxSyncRounds(3))
	rt := h.Runtime()

	var spawn EntityConstructor
	spawn = func(rt *Runtime, _ variant.EntityID) { rt.CreateEntity(spawn) }
	rt.CreateEntity(spawn)

	rep := h.Step(context.Background(), 0)
	assert.Equal(t, 3, rep.Created)
	require.Len(t, rep.Errors, 1)
	assert.True(t, IsQuotaError(rep.Errors[0]))
	assert.Equal(t, 1, h.ops.Len(), "leftover work waits for the next sync point")

	rep = h.Step(context.Background(), 0)
	assert.Equal(t, 3, rep.Created)
	assert.Equal(t, 6, h.World().Len())
}

func TestHost_TickHook(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	hook := func(_ context.Context, frame int64, rep schedule.TickReport) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, rep.Scheduler)
		assert.Equal(t, int64(1), frame)
	}
	h, _ := newTestHost(t, WithTickHook(hook))
	init := h.Init("ext")
	init.AddScheduler("b", 10*time.Millisecond)
	init.AddScheduler("a", 10*time.Millisecond)
	init.AddTask("a", "t", noopTask)

	h.Step(context.Background(), 10*time.Millisecond)
	assert.Equal(t, []string{"b", "a"}, seen, "hooks follow registration order")
}

func TestHost_ObserverSeesTasks(t *testing.T) {
	var started atomic.Int32
	obs := schedule.ObserverFuncs{
		Started: func(string, uint64, string) { started.Add(1) },
	}
	h, _ := newTestHost(t, WithObserver(obs))
	init := h.Init("ext")
	init.AddScheduler("logic", 10*time.Millisecond)
	init.AddTask("logic", "a", noopTask)
	init.AddTask("logic", "b", noopTask)

	h.Step(context.Background(), 10*time.Millisecond)
	assert.Equal(t, int32(2), started.Load())
}

func TestHost_AsyncTasks(t *testing.T) {
	h, _ := newTestHost(t, WithAsyncWorkers(3))
	rt := h.Runtime()

	var n atomic.Int32
	for range 10 {
		rt.Async(func(context.Context, *Runtime) { n.Add(1) })
	}
	rt.Async(func(context.Context, *Runtime) { panic("boom") })
	h.WaitAsync()
	assert.Equal(t, int32(10), n.Load())

	h.Close()
	rt.Async(func(context.Context, *Runtime) { n.Add(1) })
	h.WaitAsync()
	assert.Equal(t, int32(10), n.Load(), "closed host drops async work")
}

func TestHost_AsyncTaskQueuesEntityOps(t *testing.T) {
	h, _ := newTestHost(t)
	rt := h.Runtime()

	rt.Async(func(_ context.Context, rt *Runtime) { rt.CreateEntity(nil) })
	h.WaitAsync()
	assert.Equal(t, 0, h.World().Len())

	h.Step(context.Background(), 0)
	assert.Equal(t, 1, h.World().Len())
}

func TestHost_RunStopsOnCancel(t *testing.T) {
	h, _ := newTestHost(t)
	init := h.Init("ext")
	init.AddScheduler("logic", time.Millisecond)
	var ticks atomic.Int32
	init.AddTask("logic", "count", func(context.Context, *Runtime, float32) { ticks.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := h.Run(ctx)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Positive(t, h.Frame())
	assert.Positive(t, ticks.Load())
}

func TestHost_TimelineAdvancesPerFrame(t *testing.T) {
	h, _ := newTestHost(t)
	h.Timeline().SetScale(2)

	h.Step(context.Background(), 100*time.Millisecond)
	assert.InDelta(t, 0.2, h.Runtime().Timeline().Delta(), 1e-6)
	assert.InDelta(t, 0.2, h.Timeline().Elapsed(), 1e-6)

	h.Timeline().SetPaused(true)
	h.Step(context.Background(), 100*time.Millisecond)
	assert.Zero(t, h.Timeline().Delta())
	assert.InDelta(t, 0.2, h.Timeline().Elapsed(), 1e-6)
}
