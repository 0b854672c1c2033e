package command

import (
	"errors"
	"fmt"

	"github.com/serval-engine/serval/internal/hashid"
)

var (
	// ErrNoSlot is the sentinel behind every allocation mismatch.
	ErrNoSlot = errors.New("no matching command slot")

	// ErrDuplicateStream is returned when a stream name is already in use.
	ErrDuplicateStream = errors.New("duplicate command stream")

	// ErrUnsized is returned by Send for command values without a fixed
	// binary size.
	ErrUnsized = errors.New("command has no fixed size")
)

// MismatchReason says which part of the (target, type, size) triple failed.
type MismatchReason string

const (
	ReasonNoTarget MismatchReason = "no_target"
	ReasonNoType   MismatchReason = "type_not_accepted"
	ReasonSize     MismatchReason = "size_mismatch"
)

// MismatchError reports a command allocation that matched no slot.
type MismatchError struct {
	Target hashid.Id
	Type   hashid.Id
	Size   int
	Reason MismatchReason
	// Expected is the slot's registered size for ReasonSize.
	Expected int
}

func (e *MismatchError) Error() string {
	switch e.Reason {
	case ReasonSize:
		return fmt.Sprintf("command %s to %s: size %d, slot expects %d", e.Type, e.Target, e.Size, e.Expected)
	case ReasonNoType:
		return fmt.Sprintf("command %s to %s: type not accepted", e.Type, e.Target)
	default:
		return fmt.Sprintf("command %s to %s: no such target", e.Type, e.Target)
	}
}

func (e *MismatchError) Unwrap() error { return ErrNoSlot }

// IsMismatch extracts a *MismatchError from err.
func IsMismatch(err error) (*MismatchError, bool) {
	var me *MismatchError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
