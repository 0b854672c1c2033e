package hashid

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
)

// Id is a stable 32-bit hash of a name.
type Id uint32

// Invalid is the reserved id that no name is expected to produce.
const Invalid Id = 0

// Of hashes a name. Equal strings always produce equal ids.
func Of(name string) Id {
	h := fnv.New32a()
	h.Write([]byte(name))
	return Id(h.Sum32())
}

// ErrInvalidName is returned for a name whose hash is the reserved
// Invalid id. Such a name cannot be registered.
var ErrInvalidName = errors.New("name hashes to the invalid id")

// Checked hashes name and rejects it when the hash is Invalid.
func Checked(name string) (Id, error) {
	id := Of(name)
	if !id.Valid() {
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return id, nil
}

// Valid reports whether id is not the reserved Invalid id.
func (id Id) Valid() bool {
	return id != Invalid
}

// String renders the id as fixed-width hex, e.g. "0x811c9dc5".
func (id Id) String() string {
	return fmt.Sprintf("0x%08x", uint32(id))
}

// Names maps ids back to the names that produced them.
//
// It exists for diagnostics: logs and CLI output print names instead of
// hashes when a name was interned. Safe for concurrent use.
type Names struct {
	mu     sync.RWMutex
	byID   map[Id]string
	logger *slog.Logger
}

// NewNames creates an empty table. A nil logger uses slog.Default().
func NewNames(logger *slog.Logger) *Names {
	if logger == nil {
		logger = slog.Default()
	}
	return &Names{byID: make(map[Id]string), logger: logger}
}

// Intern hashes name and records it.
//
// If a different name already produced the same id the first name is kept
// and a warning is logged; the returned id is the hash either way. A name
// hashing to Invalid is logged and not recorded.
func (n *Names) Intern(name string) Id {
	id := Of(name)
	if !id.Valid() {
		n.logger.Warn("name hashes to the invalid id", "name", name)
		return id
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if prev, ok := n.byID[id]; ok {
		if prev != name {
			n.logger.Warn("hash collision between names",
				"id", id.String(),
				"existing", prev,
				"name", name,
			)
		}
		return id
	}
	n.byID[id] = name
	return id
}

// Lookup returns the interned name for id.
func (n *Names) Lookup(id Id) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	name, ok := n.byID[id]
	return name, ok
}

// Describe returns the interned name for id, or its hex form.
func (n *Names) Describe(id Id) string {
	if name, ok := n.Lookup(id); ok {
		return name
	}
	return id.String()
}
