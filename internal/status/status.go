package status

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleEvent marks a change event older than the state already
	// applied for the same row. Discarded silently, logged at debug.
	ErrStaleEvent = errors.New("reconcile: stale event")

	// ErrInvalidPayload marks a change payload that failed schema
	// validation before routing.
	ErrInvalidPayload = errors.New("reconcile: invalid change payload")

	ErrInvalidTransition = errors.New("session: transition not allowed")
	ErrSessionNotFound   = errors.New("session: not found")
	ErrSessionNotBound   = errors.New("orchestrator: no session bound")
	ErrQueueEmpty        = errors.New("queue: no waiting participants")
)

// ConflictError is returned when a registration hits a session that
// already has a bound participant. The existing record rides along so
// the caller can decide to proceed or reset.
type ConflictError struct {
	Existing any
}

func (e *ConflictError) Error() string {
	return "session: participant already registered"
}

// PartialApplyError reports a two-step write in which the first half
// succeeded and the second failed. The whole operation must be retried;
// local state has not advanced.
type PartialApplyError struct {
	Step string
	Err  error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("partial apply at %s: %v", e.Step, e.Err)
}

func (e *PartialApplyError) Unwrap() error { return e.Err }
