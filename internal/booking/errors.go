package booking

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller input problems; adapters re-prompt.
	ErrValidation = errors.New("booking: validation failed")
	// ErrClosedDay marks a request on a day the business is closed.
	ErrClosedDay = errors.New("booking: business closed on requested day")
	// ErrSlotTaken marks a slot already held by another active appointment.
	ErrSlotTaken = errors.New("booking: slot already taken")
	// ErrStore marks persistence failures and timeouts.
	ErrStore = errors.New("booking: store unavailable")
	// ErrNotFound marks a missing appointment.
	ErrNotFound = errors.New("booking: appointment not found")
	// ErrInvalidTransition marks a lifecycle move out of a terminal state.
	ErrInvalidTransition = errors.New("booking: invalid status transition")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "booking: " + e.Reason
	}
	return fmt.Sprintf("booking: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrorKind is the wire name of a failure class.
type ErrorKind string

const (
	KindValidation ErrorKind = "ValidationError"
	KindClosedDay  ErrorKind = "ClosedDayError"
	KindSlotTaken  ErrorKind = "SlotTakenError"
	KindStore      ErrorKind = "StoreError"
	KindNotFound   ErrorKind = "NotFoundError"
	KindTransition ErrorKind = "InvalidTransitionError"
)

// KindOf classifies err. Unknown errors are reported as store errors so
// they are never mistaken for success or caller mistakes.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrClosedDay):
		return KindClosedDay
	case errors.Is(err, ErrSlotTaken):
		return KindSlotTaken
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return KindTransition
	default:
		return KindStore
	}
}

// storeError wraps a persistence failure. Domain errors returned by a
// store pass through untouched.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, domain := range []error{ErrValidation, ErrClosedDay, ErrSlotTaken, ErrNotFound, ErrInvalidTransition, ErrStore} {
		if errors.Is(err, domain) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out: %v", ErrStore, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrStore, op, err)
}
