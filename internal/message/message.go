// Package message delivers immediate, synchronous messages to entities.
//
// A message carries a message id and up to five typed parameters packed
// with the params encoder. Delivery happens on the caller's goroutine.
// Sending to an entity with no attached receiver is accepted and does
// nothing.
package message

import (
	"log/slog"
	"sync"

	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/params"
	"github.com/serval-engine/serval/internal/variant"
)

// Envelope is a message as seen by its receiver. Payload is borrowed and
// only valid during Receive.
type Envelope struct {
	Target     variant.EntityID
	Message    hashid.Id
	Descriptor params.Descriptor
	Payload    []byte
}

// Params decodes the envelope's parameters.
func (e Envelope) Params() (params.List, error) {
	return params.Decode(e.Descriptor, e.Payload)
}

// Receiver is the capability an entity needs to receive messages.
type Receiver interface {
	Receive(Envelope)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(Envelope)

func (f ReceiverFunc) Receive(e Envelope) { f(e) }

// Dispatcher maps entities to receivers.
type Dispatcher struct {
	logger *slog.Logger
	bufs   sync.Pool

	mu        sync.RWMutex
	receivers map[variant.EntityID]Receiver
}

// NewDispatcher creates an empty dispatcher. A nil logger uses
// slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:    logger,
		receivers: make(map[variant.EntityID]Receiver),
		bufs: sync.Pool{New: func() any {
			// Five 16-byte payloads is the widest possible list.
			b := make([]byte, 0, params.MaxParams*16)
			return &b
		}},
	}
}

// Attach gives entity the receive capability, replacing any previous
// receiver.
func (d *Dispatcher) Attach(entity variant.EntityID, r Receiver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.receivers[entity] = r
}

// Detach removes entity's receiver.
func (d *Dispatcher) Detach(entity variant.EntityID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.receivers, entity)
}

// CanReceive reports whether entity has a receiver attached.
func (d *Dispatcher) CanReceive(entity variant.EntityID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.receivers[entity]
	return ok
}

// Send delivers msg with args to target and reports whether a receiver
// got it. A missing receiver is not an error.
func (d *Dispatcher) Send(target variant.EntityID, msg hashid.Id, args params.List) bool {
	d.mu.RLock()
	r, ok := d.receivers[target]
	d.mu.RUnlock()
	if !ok {
		d.logger.Debug("message dropped: no receiver", "target", target, "message", msg)
		return false
	}

	bp := d.bufs.Get().(*[]byte)
	desc, buf := params.Encode(args, *bp)
	defer func() {
		*bp = buf[:0]
		d.bufs.Put(bp)
	}()
	r.Receive(Envelope{Target: target, Message: msg, Descriptor: desc, Payload: buf})
	return true
}
