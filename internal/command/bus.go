package command

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/serval-engine/serval/internal/cursor"
	"github.com/serval-engine/serval/internal/hashid"
)

// Command is a fixed-size value that names its own type. Implementations
// must be encodable by encoding/binary: fixed-size fields only.
type Command interface {
	CommandType() hashid.Id
}

// Bus routes command allocations to target streams.
type Bus struct {
	logger *slog.Logger

	mu      sync.RWMutex
	streams map[hashid.Id]*Stream
	gen     uint64
}

// NewBus creates an empty bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger, streams: make(map[hashid.Id]*Stream)}
}

// AddStream registers a target stream and returns it for slot setup.
func (b *Bus) AddStream(name string) (*Stream, error) {
	if _, err := hashid.Checked(name); err != nil {
		return nil, fmt.Errorf("command stream: %w", err)
	}
	s := newStream(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.streams[s.id]; ok {
		return nil, fmt.Errorf("%w: %q (id %s held by %q)", ErrDuplicateStream, name, s.id, existing.name)
	}
	b.streams[s.id] = s
	b.logger.Debug("command stream added", "stream", name, "id", s.id)
	return s, nil
}

// RemoveStream drops a stream. Unknown ids are ignored.
func (b *Bus) RemoveStream(id hashid.Id) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.streams, id)
}

// Reader returns a reader over the latest published generation of the
// stream with the given id.
func (b *Bus) Reader(id hashid.Id) (*Reader, bool) {
	return b.ReaderIn(id, cursor.Window{})
}

// ReaderIn returns a reader over the generations in win.
func (b *Bus) ReaderIn(id hashid.Id, win cursor.Window) (*Reader, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.streams[id]
	if !ok {
		return nil, false
	}
	return &Reader{s: s, win: win}, true
}

// Allocate reserves size bytes for a cmdType command to target. The
// caller fills the returned region before its call returns; it is
// published at the next sync point.
//
// A (target, type, size) triple matching no slot returns a *MismatchError
// and logs a warning.
func (b *Bus) Allocate(target, cmdType hashid.Id, size int) ([]byte, error) {
	b.mu.RLock()
	s, ok := b.streams[target]
	b.mu.RUnlock()

	var buf []byte
	var err error
	if !ok {
		err = &MismatchError{Target: target, Type: cmdType, Size: size, Reason: ReasonNoTarget}
	} else {
		buf, err = s.allocate(cmdType, size)
	}
	if err != nil {
		b.logger.Warn("command allocation failed",
			"target", target,
			"type", cmdType,
			"size", size,
			"error", err)
		return nil, err
	}
	return buf, nil
}

// SendTag sends a payload-free command.
func (b *Bus) SendTag(target, cmdType hashid.Id) error {
	_, err := b.Allocate(target, cmdType, 0)
	return err
}

// SendID sends a command whose payload is a single id.
func (b *Bus) SendID(target, cmdType, id hashid.Id) error {
	buf, err := b.Allocate(target, cmdType, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf, uint32(id))
	return nil
}

// Send encodes cmd little-endian into a slot sized for T.
func Send[T Command](b *Bus, target hashid.Id, cmd T) error {
	size := binary.Size(cmd)
	if size < 0 {
		return fmt.Errorf("%w: %T", ErrUnsized, cmd)
	}
	buf, err := b.Allocate(target, cmd.CommandType(), size)
	if err != nil {
		return err
	}
	if _, err := binary.Encode(buf, binary.LittleEndian, cmd); err != nil {
		return fmt.Errorf("encode %T: %w", cmd, err)
	}
	return nil
}

// Decode reads rec's payload into a T. The record's type must match.
func Decode[T Command](rec Record) (T, error) {
	var out T
	if rec.Type != out.CommandType() {
		return out, fmt.Errorf("%w: record is %s, want %s", ErrNoSlot, rec.Type, out.CommandType())
	}
	if _, err := binary.Decode(rec.Data, binary.LittleEndian, &out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}

// ID reads the payload of a command sent with SendID.
func ID(rec Record) (hashid.Id, bool) {
	if len(rec.Data) != 4 {
		return hashid.Invalid, false
	}
	return hashid.Id(binary.LittleEndian.Uint32(rec.Data)), true
}

// Flip publishes every stream's pending commands as a new generation and
// drops all older ones. It is Publish for a bus with no slower consumers.
func (b *Bus) Flip() int {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.mu.Unlock()
	return b.Publish(gen, gen)
}

// Publish turns every stream's pending commands into generation gen and
// releases generations older than floor. The host calls it at the
// end-of-tick sync point, when no task is running.
func (b *Bus) Publish(gen, floor uint64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen = max(b.gen, gen)
	total := 0
	for _, s := range b.streams {
		total += s.publish(gen, floor)
	}
	return total
}
