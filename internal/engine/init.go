package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/serval-engine/serval/internal/command"
	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/schedule"
	"github.com/serval-engine/serval/internal/stream"
)

// Task runs once per scheduler tick. dt is the scheduler's fixed interval
// in seconds.
type Task func(ctx context.Context, rt *Runtime, dt float32)

// AsyncTask runs on the host's async workers, outside any tick.
type AsyncTask func(ctx context.Context, rt *Runtime)

// TaskSetup registers tasks on schedulers. Every task added through it
// belongs to its owner.
type TaskSetup struct {
	h     *Host
	owner string
}

// Owner returns the owner registrations are recorded under.
func (t *TaskSetup) Owner() string { return t.owner }

// AddTask registers fn on the named scheduler. Declare its resource
// access through the returned builder. An unknown scheduler returns a
// builder whose Err reports it.
func (t *TaskSetup) AddTask(scheduler, name string, fn Task) *schedule.TaskBuilder {
	h := t.h
	sid := hashid.Of(scheduler)
	h.mu.Lock()
	e, ok := h.scheds[sid]
	h.mu.Unlock()
	if !ok {
		return schedule.FailedBuilder(name,
			hostError(ErrCodeUnknownName, scheduler, "no such scheduler for task %q", name))
	}
	if _, err := hashid.Checked(name); err != nil {
		h.logger.Warn("task rejected", "scheduler", scheduler, "task", name, "error", err)
		return schedule.FailedBuilder(name,
			hostError(ErrCodeInvalidName, name, "task name hashes to the invalid id"))
	}

	var wrapped schedule.Func
	if fn != nil {
		rt := e.rt
		wrapped = func(ctx context.Context, dt float32) { fn(ctx, rt, dt) }
	}
	b := e.s.AddTask(name, wrapped)
	if b.Err() == nil {
		h.names.Intern(name)
		h.mu.Lock()
		h.taskOwners[taskKey{scheduler: sid, task: name}] = t.owner
		h.mu.Unlock()
	}
	return b
}

// Task returns a builder for a task already registered on scheduler.
func (t *TaskSetup) Task(scheduler, name string) *schedule.TaskBuilder {
	t.h.mu.Lock()
	e, ok := t.h.scheds[hashid.Of(scheduler)]
	t.h.mu.Unlock()
	if !ok {
		return schedule.FailedBuilder(name,
			hostError(ErrCodeUnknownName, scheduler, "no such scheduler for task %q", name))
	}
	return e.s.Task(name)
}

// RemoveTask unregisters a task. The scheduler rebuilds its graph before
// the next tick.
func (t *TaskSetup) RemoveTask(scheduler, name string) error {
	sid := hashid.Of(scheduler)
	t.h.mu.Lock()
	e, ok := t.h.scheds[sid]
	delete(t.h.taskOwners, taskKey{scheduler: sid, task: name})
	t.h.mu.Unlock()
	if !ok {
		return hostError(ErrCodeUnknownName, scheduler, "no such scheduler for task %q", name)
	}
	return e.s.RemoveTask(name)
}

// Init is the registration capability handed to extensions while they
// load.
type Init struct {
	TaskSetup
}

// AddScheduler creates a fixed-interval scheduler. Scheduler names are
// global; a duplicate is fatal. Configured per-scheduler overrides win
// over interval.
func (i *Init) AddScheduler(name string, interval time.Duration) hashid.Id {
	return i.h.addScheduler(i.owner, name, interval)
}

// AddGameStateClass registers a game-state class. A duplicate name is
// fatal.
func (i *Init) AddGameStateClass(name string, factory StateFactory) hashid.Id {
	id := i.h.names.Intern(name)
	if !id.Valid() {
		i.h.fatal(hostError(ErrCodeInvalidName, name, "state class name hashes to the invalid id"))
		return id
	}
	if err := i.h.states.addClass(name, i.owner, factory); err != nil {
		i.h.fatal(err)
		return id
	}
	i.h.logger.Info("game state class added", "class", name, "owner", i.owner)
	return id
}

// RemoveGameStateClass unregisters a game-state class. Instances already
// on the stack stay until popped.
func (i *Init) RemoveGameStateClass(name string) {
	i.h.removeStateClass(name)
}

// AddSystem registers a system and runs its OnCreate. A duplicate name is
// fatal.
func (i *Init) AddSystem(name string, factory SystemFactory) hashid.Id {
	return i.h.addSystem(i.owner, name, factory)
}

// RemoveSystem runs the system's OnDestroy and removes it with its tasks.
func (i *Init) RemoveSystem(name string) {
	i.h.removeSystem(name)
}

// AddCommandStream creates a command stream targeted by name. Declare the
// command types it takes with Accept on the returned stream.
func (i *Init) AddCommandStream(name string) (*command.Stream, error) {
	s, err := i.h.commands.AddStream(name)
	if err != nil {
		return nil, fmt.Errorf("add command stream: %w", err)
	}
	i.h.names.Intern(name)
	i.h.mu.Lock()
	i.h.cmdOwners[s.ID()] = i.owner
	i.h.mu.Unlock()
	return s, nil
}

// AddNotificationStream creates a notification stream. A Single stream
// must only be written by one task.
func (i *Init) AddNotificationStream(name string, access stream.Access) (*stream.Writer, error) {
	w, err := i.h.streams.Add(name, access)
	if err != nil {
		return nil, fmt.Errorf("add notification stream: %w", err)
	}
	i.h.names.Intern(name)
	i.h.mu.Lock()
	i.h.strOwners[w.ID()] = i.owner
	i.h.mu.Unlock()
	return w, nil
}

// SystemSetup is the capability handed to a system's create, destroy and
// reset events. Tasks added through it are removed with the system.
type SystemSetup struct {
	TaskSetup
	name string
}

// System returns the name of the system being set up.
func (s *SystemSetup) System() string { return s.name }

// Runtime returns the runtime capability.
func (s *SystemSetup) Runtime() *Runtime { return s.h.runtime }

func systemOwner(name string) string { return "system/" + name }
