/*
errors.go - Centralized error types for the orders package

ERROR CATEGORIES:
  1. Transition errors - Status changes the state machine forbids
  2. Not-found errors  - Referenced order does not exist in storage
  3. Completion errors - Required completion fields missing

All business-rule violations are raised at the point of detection and
propagate unchanged to the caller. Nothing here retries.

SEE ALSO:
  - guards.go:   Raises transition errors
  - pipeline.go: Raises not-found and completion errors
*/
package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOrderNotFound is returned when the referenced order does not
	// exist in storage.
	ErrOrderNotFound = errors.New("order not found")

	// ErrIllegalTransition is returned when a requested status change
	// violates the order's state machine.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// IllegalTransitionError carries the rejected transition.
type IllegalTransitionError struct {
	Kind   Kind
	From   Status
	To     Status
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s order: cannot move from %s to %s: %s", e.Kind, e.From, e.To, e.Reason)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// MissingCompletionFieldsError reports fields required to complete an
// order that are absent or null. Completing without them would append
// ledger rows with no quantity or cost.
type MissingCompletionFieldsError struct {
	Kind   Kind
	Fields []string
}

func (e *MissingCompletionFieldsError) Error() string {
	return fmt.Sprintf("%s order: completion requires %s", e.Kind, strings.Join(e.Fields, ", "))
}

func (e *MissingCompletionFieldsError) Unwrap() error { return ErrIllegalTransition }

// IsClientError reports whether the error is a business-rule rejection
// the caller should surface rather than retry.
func IsClientError(err error) bool {
	return errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrOrderNotFound)
}
