package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxSyncRounds bounds how many times one sync point re-drains
// its queue. Entity constructors and state callbacks may queue more work
// while it is applied; the quota stops a callback that requeues forever.
const DefaultMaxSyncRounds = 16

// QuotaEnforcer counts drain rounds within one sync point.
type QuotaEnforcer struct {
	maxRounds int
	current   int
}

// NewQuotaEnforcer creates an enforcer allowing maxRounds rounds.
func NewQuotaEnforcer(maxRounds int) *QuotaEnforcer {
	return &QuotaEnforcer{maxRounds: maxRounds}
}

// Check counts one round and fails once the limit is passed.
func (q *QuotaEnforcer) Check(frame int64) error {
	q.current++
	if q.current > q.maxRounds {
		return &RoundsExceededError{Frame: frame, Rounds: q.current, Limit: q.maxRounds}
	}
	return nil
}

// Reset starts a new sync point.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the rounds counted so far.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// RoundsExceededError is returned when a sync point keeps producing work.
// Whatever is still queued is carried to the next sync point.
type RoundsExceededError struct {
	Frame  int64
	Rounds int
	Limit  int
}

// Error implements the error interface.
func (e *RoundsExceededError) Error() string {
	return fmt.Sprintf("frame %d sync point exceeded round quota: %d rounds > %d limit",
		e.Frame, e.Rounds, e.Limit)
}

// HostError converts e for callers matching on codes.
func (e *RoundsExceededError) HostError() *HostError {
	return &HostError{
		Code:    ErrCodeTransitionQuota,
		Message: e.Error(),
		Details: map[string]string{
			"rounds": fmt.Sprintf("%d", e.Rounds),
			"limit":  fmt.Sprintf("%d", e.Limit),
		},
	}
}

// IsQuotaError reports whether err is a sync point quota error.
func IsQuotaError(err error) bool {
	var re *RoundsExceededError
	if errors.As(err, &re) {
		return true
	}
	return HasCode(err, ErrCodeTransitionQuota)
}
