package engine

import (
	"github.com/serval-engine/serval/internal/attributes"
	"github.com/serval-engine/serval/internal/command"
	"github.com/serval-engine/serval/internal/cursor"
	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/message"
	"github.com/serval-engine/serval/internal/params"
	"github.com/serval-engine/serval/internal/stream"
	"github.com/serval-engine/serval/internal/variant"
)

type opKind uint8

const (
	opCreate opKind = iota
	opDestroy
	opTag
	opPush
	opPop
	opSet
)

// op is a mutation queued by a task and applied at the sync point.
type op struct {
	kind   opKind
	entity variant.EntityID
	name   hashid.Id
	ctor   EntityConstructor
	state  hashid.Id
	attrs  *attributes.Attributes
}

func (o op) entityOp() bool { return o.kind <= opTag }

// Runtime is the capability passed to every task. Entity and state
// changes made through it are queued and applied together at the end of
// the host tick; commands become readable in the next tick; messages are
// delivered immediately on the caller's goroutine.
//
// Each scheduler's tasks share one Runtime whose command and stream
// readers see every batch published since that scheduler's previous tick.
// The Runtime given to state, system and async callbacks reads the latest
// batch only.
type Runtime struct {
	h   *Host
	win cursor.Window
}

// Async runs task on the async workers.
func (rt *Runtime) Async(task AsyncTask) {
	if task == nil {
		return
	}
	rt.h.startAsync()
	rt.h.asyncLive.Add(1)
	if !rt.h.async.Enqueue(task) {
		rt.h.asyncLive.Done()
		rt.h.logger.Warn("async task dropped, host closed")
	}
}

// CreateEntity queues an entity for creation. ctor runs on it at the
// sync point and may be nil.
func (rt *Runtime) CreateEntity(ctor EntityConstructor) {
	rt.h.ops.Enqueue(op{kind: opCreate, ctor: ctor})
}

// CreateNamedEntity queues an entity that Lookup(name) will find once it
// exists.
func (rt *Runtime) CreateNamedEntity(name hashid.Id, ctor EntityConstructor) {
	rt.h.ops.Enqueue(op{kind: opCreate, name: name, ctor: ctor})
}

// DestroyEntity queues e for destruction. Its message receiver is
// detached with it.
func (rt *Runtime) DestroyEntity(e variant.EntityID) {
	rt.h.ops.Enqueue(op{kind: opDestroy, entity: e})
}

// TagEntity queues tag to be added to e.
func (rt *Runtime) TagEntity(e variant.EntityID, tag hashid.Id) {
	rt.h.ops.Enqueue(op{kind: opTag, entity: e, name: tag})
}

// Lookup returns the named entity, or NullEntity.
func (rt *Runtime) Lookup(name hashid.Id) variant.EntityID {
	return rt.h.world.Lookup(name)
}

// World returns the entity world for reading.
func (rt *Runtime) World() *World { return rt.h.world }

// PushState queues a push of the given game-state class.
func (rt *Runtime) PushState(state hashid.Id) {
	rt.PushStateWith(state, nil)
}

// PushStateWith queues a push whose OnEnter receives attrs.
func (rt *Runtime) PushStateWith(state hashid.Id, attrs *attributes.Attributes) {
	rt.h.ops.Enqueue(op{kind: opPush, state: state, attrs: attrs})
}

// PopState queues a pop of the top state.
func (rt *Runtime) PopState() {
	rt.h.ops.Enqueue(op{kind: opPop})
}

// SetState queues a replacement of the top state, same as a pop then a
// push.
func (rt *Runtime) SetState(state hashid.Id) {
	rt.h.ops.Enqueue(op{kind: opSet, state: state})
}

// CurrentState returns the top of the state stack, or hashid.Invalid.
func (rt *Runtime) CurrentState() hashid.Id { return rt.h.states.current() }

// InState reports whether state is anywhere on the stack.
func (rt *Runtime) InState(state hashid.Id) bool { return rt.h.states.contains(state) }

// Command allocates a zeroed payload for a command to target. The
// payload is delivered in the next tick.
func (rt *Runtime) Command(target, cmdType hashid.Id, size int) ([]byte, error) {
	return rt.h.commands.Allocate(target, cmdType, size)
}

// CommandTag sends a command that carries no payload.
func (rt *Runtime) CommandTag(target, cmdType hashid.Id) error {
	return rt.h.commands.SendTag(target, cmdType)
}

// CommandID sends a command whose payload is a single id.
func (rt *Runtime) CommandID(target, cmdType, arg hashid.Id) error {
	return rt.h.commands.SendID(target, cmdType, arg)
}

// Commands returns the command bus for typed sends.
func (rt *Runtime) Commands() *command.Bus { return rt.h.commands }

// SendCommand encodes cmd into the target's stream.
func SendCommand[T command.Command](rt *Runtime, target hashid.Id, cmd T) error {
	return command.Send(rt.h.commands, target, cmd)
}

// CommandReader returns the reader of a command stream.
func (rt *Runtime) CommandReader(target hashid.Id) (*command.Reader, bool) {
	return rt.h.commands.ReaderIn(target, rt.win)
}

// Message delivers msg to target's receiver before returning. It reports
// whether a receiver took it.
func (rt *Runtime) Message(target variant.EntityID, msg hashid.Id, args params.List) bool {
	return rt.h.messages.Send(target, msg, args)
}

// AttachReceiver routes messages for e to r.
func (rt *Runtime) AttachReceiver(e variant.EntityID, r message.Receiver) {
	rt.h.messages.Attach(e, r)
}

// DetachReceiver stops routing messages to e.
func (rt *Runtime) DetachReceiver(e variant.EntityID) {
	rt.h.messages.Detach(e)
}

// Stream returns the reader of a notification stream. Inside a task it
// shows every notification published since the scheduler's previous tick.
func (rt *Runtime) Stream(name hashid.Id) (*stream.Reader, bool) {
	return rt.h.streams.ReaderIn(name, rt.win)
}

// Timeline returns the host timeline.
func (rt *Runtime) Timeline() *Timeline { return rt.h.timeline }
