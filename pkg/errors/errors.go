package stockflow_errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidInput        = errors.New("invalid input")
	ErrHandlerNotFound     = errors.New("no handler registered for command")
	ErrConcurrencyConflict = errors.New("optimistic concurrency conflict")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOrderTerminal       = errors.New("order is in a terminal state")
	ErrServiceUnavailable  = errors.New("service unavailable")
)

// InvariantViolation marks a structural inconsistency between two services'
// views of the same aggregate. It is never retried: the aggregate is frozen
// for operator remediation.
type InvariantViolation struct {
	AggregateID string
	Reason      string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s: %s", v.AggregateID, v.Reason)
}

// NewInvariantViolation builds an InvariantViolation for an aggregate.
func NewInvariantViolation(aggregateID, format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{AggregateID: aggregateID, Reason: fmt.Sprintf(format, args...)}
}

// IsInvariantViolation reports whether err is (or wraps) an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var v *InvariantViolation
	return errors.As(err, &v)
}

// IsDomainViolation reports whether err is an expected business rule failure.
// Domain violations are returned to the caller and are never retried.
func IsDomainViolation(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrOrderTerminal) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether err should be scheduled for a delayed retry.
// Anything that is not a domain rule, an invariant violation, or a
// concurrency conflict (already retried inline) is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsDomainViolation(err) && !IsInvariantViolation(err)
}
