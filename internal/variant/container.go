package variant

import (
	"errors"
	"fmt"
)

// ContainerKind selects what a ContainerHandle points at.
type ContainerKind uint8

const (
	ContainerInvalid   ContainerKind = 0
	ContainerEntitySet ContainerKind = 1
	ContainerList      ContainerKind = 2
	ContainerStruct    ContainerKind = 3
)

func (k ContainerKind) String() string {
	switch k {
	case ContainerEntitySet:
		return "entity_set"
	case ContainerList:
		return "list"
	case ContainerStruct:
		return "struct"
	default:
		return "invalid"
	}
}

// ContainerHandle is a packed reference into the host's container table.
//
// Layout (bit 31 is the most significant):
//
//	31..30  kind
//	29..26  element tag (List only)
//	25..0   index
type ContainerHandle uint32

const (
	containerKindShift = 30
	containerElemShift = 26
	containerElemMask  = 0xf
	containerIndexMask = 1<<containerElemShift - 1
)

// MaxContainerIndex is the largest index a handle can carry.
const MaxContainerIndex = containerIndexMask

var (
	ErrContainerIndex   = errors.New("container index out of range")
	ErrContainerElement = errors.New("invalid container element kind")
)

// PackContainer builds a handle. elem is only meaningful for List and must
// be a plain value kind (not Invalid, Container or Handle); it is ignored
// for the other kinds.
func PackContainer(kind ContainerKind, elem Tag, index uint32) (ContainerHandle, error) {
	if index > MaxContainerIndex {
		return 0, fmt.Errorf("%w: %d > %d", ErrContainerIndex, index, MaxContainerIndex)
	}
	if kind > ContainerStruct {
		return 0, fmt.Errorf("unknown container kind %d", kind)
	}
	packed := uint32(kind)<<containerKindShift | index
	if kind == ContainerList {
		if !listElementOK(elem) {
			return 0, fmt.Errorf("%w: %s", ErrContainerElement, elem)
		}
		packed |= uint32(elem) << containerElemShift
	}
	return ContainerHandle(packed), nil
}

func listElementOK(t Tag) bool {
	return t.Valid() && t != Container && t != Handle
}

// Kind returns the container kind.
func (h ContainerHandle) Kind() ContainerKind {
	return ContainerKind(uint32(h) >> containerKindShift & 0x3)
}

// ElementTag returns the kind of element held by the container. Entity
// sets always hold entities; structs and invalid handles report Invalid,
// as does a list whose element field is not a plain value kind.
func (h ContainerHandle) ElementTag() Tag {
	switch h.Kind() {
	case ContainerEntitySet:
		return Entity
	case ContainerList:
		t := Tag(uint32(h) >> containerElemShift & containerElemMask)
		if listElementOK(t) {
			return t
		}
	}
	return Invalid
}

// Index returns the slot in the host's container table.
func (h ContainerHandle) Index() uint32 {
	return uint32(h) & containerIndexMask
}

func (h ContainerHandle) String() string {
	if h.Kind() == ContainerList {
		return fmt.Sprintf("container(list<%s>#%d)", h.ElementTag(), h.Index())
	}
	return fmt.Sprintf("container(%s#%d)", h.Kind(), h.Index())
}
