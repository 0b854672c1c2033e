package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/serval-engine/serval/internal/hashid"
)

var (
	// ErrDuplicateTask is returned when a task name is already registered
	// on the scheduler.
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrUnknownTask is returned when a declaration names a task that is
	// not registered on the scheduler.
	ErrUnknownTask = errors.New("unknown task")

	// ErrNilTask is returned when a task is registered without a callable.
	ErrNilTask = errors.New("nil task func")
)

// Func is the callable a task runs once per tick. dt is the scheduler's
// fixed interval in seconds.
type Func func(ctx context.Context, dt float32)

// Declaration is a snapshot of one task's registration.
type Declaration struct {
	Name      string
	ID        hashid.Id
	Position  int
	Reads     []hashid.Id
	Writes    []hashid.Id
	SyncPoint bool
}

// Touches reports whether the declaration reads or writes resource.
func (d Declaration) Touches(resource hashid.Id) bool {
	return slices.Contains(d.Reads, resource) || slices.Contains(d.Writes, resource)
}

type idSet map[hashid.Id]struct{}

func (s idSet) sorted() []hashid.Id {
	out := make([]hashid.Id, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// task is the mutable registration behind a Declaration.
type task struct {
	name     string
	id       hashid.Id
	position int
	reads    idSet
	writes   idSet
	sync     bool
	fn       Func
}

func (t *task) declaration() Declaration {
	return Declaration{
		Name:      t.name,
		ID:        t.id,
		Position:  t.position,
		Reads:     t.reads.sorted(),
		Writes:    t.writes.sorted(),
		SyncPoint: t.sync,
	}
}

// TaskBuilder declares resource access for one task.
//
// Builder methods chain; the first failure sticks and is reported by Err,
// and later calls become no-ops.
type TaskBuilder struct {
	s    *Scheduler
	name string
	err  error
}

// Name returns the task the builder declares for.
func (b *TaskBuilder) Name() string { return b.name }

// RO adds resources to the task's read-only set.
func (b *TaskBuilder) RO(resources ...hashid.Id) *TaskBuilder {
	if b.err == nil {
		b.err = b.s.RO(b.name, resources...)
	}
	return b
}

// RW adds resources to the task's read-write set.
func (b *TaskBuilder) RW(resources ...hashid.Id) *TaskBuilder {
	if b.err == nil {
		b.err = b.s.RW(b.name, resources...)
	}
	return b
}

// Sync marks the task as a full barrier within its scheduler's tick.
func (b *TaskBuilder) Sync() *TaskBuilder {
	if b.err == nil {
		b.err = b.s.Sync(b.name)
	}
	return b
}

// WaitFor makes the task wait for every dependency to finish.
//
// It adds resource to each dependency's read set and to this task's write
// set. The ordering only holds for dependencies registered before this
// task; later ones end up waiting for this task instead.
func (b *TaskBuilder) WaitFor(resource hashid.Id, deps ...string) *TaskBuilder {
	if b.err == nil {
		b.err = b.s.WaitFor(b.name, resource, deps...)
	}
	return b
}

// Err returns the first error raised while building.
func (b *TaskBuilder) Err() error { return b.err }

func taskError(sentinel error, scheduler, name string) error {
	return fmt.Errorf("%w: %q on scheduler %q", sentinel, name, scheduler)
}

// FailedBuilder returns a builder already carrying err. Every method on
// it is a no-op.
func FailedBuilder(name string, err error) *TaskBuilder {
	return &TaskBuilder{name: name, err: err}
}
