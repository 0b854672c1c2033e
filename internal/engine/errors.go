package engine

import (
	"errors"
	"fmt"
)

// HostError represents an error detected by the host while wiring or
// driving extensions.
//
// HostError includes structured fields for diagnostics.
type HostError struct {
	// Code identifies the error category.
	Code HostErrorCode

	// Message is a human-readable description.
	Message string

	// Name is the registration the error is about, if any.
	Name string

	// Details contains additional context.
	Details map[string]string
}

// HostErrorCode categorizes host errors.
type HostErrorCode string

const (
	// ErrCodeDuplicateName indicates a scheduler, state class or system
	// name is already registered. The host treats it as fatal.
	ErrCodeDuplicateName HostErrorCode = "DUPLICATE_NAME"

	// ErrCodeUnknownName indicates a reference to an unregistered
	// scheduler, state class or system.
	ErrCodeUnknownName HostErrorCode = "UNKNOWN_NAME"

	// ErrCodeInvalidName indicates a name whose hash is the reserved
	// invalid id.
	ErrCodeInvalidName HostErrorCode = "INVALID_NAME"

	// ErrCodeTransitionQuota indicates end-of-tick processing kept
	// producing new work past its round limit.
	ErrCodeTransitionQuota HostErrorCode = "TRANSITION_QUOTA"

	// ErrCodeEmptyStack indicates a pop of the last game state.
	ErrCodeEmptyStack HostErrorCode = "EMPTY_STATE_STACK"

	// ErrCodeResource indicates a handle that does not resolve to a
	// resource of the requested type.
	ErrCodeResource HostErrorCode = "BAD_RESOURCE"
)

// Error implements the error interface.
func (e *HostError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hostError(code HostErrorCode, name, format string, args ...any) *HostError {
	return &HostError{Code: code, Name: name, Message: fmt.Sprintf(format, args...)}
}

// HasCode reports whether err wraps a HostError with the given code.
func HasCode(err error, code HostErrorCode) bool {
	var he *HostError
	if errors.As(err, &he) {
		return he.Code == code
	}
	return false
}

// IsUnknownName returns true if err is an unknown-registration error.
func IsUnknownName(err error) bool { return HasCode(err, ErrCodeUnknownName) }
