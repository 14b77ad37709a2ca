package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel conditions surfaced by the admission and ledger layers. Callers classify errors
// with errors.Is; the concrete types below carry the user-facing detail.
var (
	// ErrValidation marks bad input or a failed business-rule validator.
	ErrValidation = errors.New("validation failed")
	// ErrCatalogUnavailable marks a transient failure of the external granule catalog.
	ErrCatalogUnavailable = errors.New("granule catalog unavailable")
	// ErrInsufficientCredits marks a batch that costs more than the user's balance.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrApplicationNotStarted is returned for users who never requested access.
	ErrApplicationNotStarted = errors.New("application not started")
	// ErrApplicationPending is returned for users whose request is under review.
	ErrApplicationPending = errors.New("application pending")
	// ErrApplicationRejected is returned for users whose request was denied.
	ErrApplicationRejected = errors.New("application rejected")
	// ErrInvalidApplicationStatus marks a stored status outside the recognized values.
	ErrInvalidApplicationStatus = errors.New("invalid application status")
	// ErrApplicationClosed is returned when an approved or rejected user re-applies.
	ErrApplicationClosed = errors.New("application already decided")
	// ErrCostConfig marks a malformed cost table or an unpriced parameter value.
	ErrCostConfig = errors.New("cost configuration error")
	// ErrDatabaseCondition marks a conditional write whose condition did not hold.
	ErrDatabaseCondition = errors.New("database condition failed")
	// ErrInconsistentState marks credits debited for jobs that could not be persisted.
	ErrInconsistentState = errors.New("credits debited but jobs not persisted")
	// ErrNegativeAmount is returned when asked to decrement by a negative amount.
	ErrNegativeAmount = errors.New("amount must be non-negative")
	// ErrJobNotFound is returned when a job does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrUserNotFound is returned when a user record does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidTransition is returned for a status change the job lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// ValidationError carries a human-readable reason a batch was rejected.
type ValidationError struct {
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// NewValidationErrorf creates a ValidationError with a formatted message.
func NewValidationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Message }

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientCreditsError reports the exact cost and balance of a rejected batch.
type InsufficientCreditsError struct {
	Total     decimal.Decimal
	Remaining decimal.Decimal
}

// Shortfall is the number of credits the user is missing.
func (e *InsufficientCreditsError) Shortfall() decimal.Decimal {
	return e.Total.Sub(e.Remaining)
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf(
		"These jobs would cost %s credits, but you have only %s remaining (short by %s).",
		e.Total.String(), e.Remaining.String(), e.Shortfall().String(),
	)
}

// Is matches ErrInsufficientCredits.
func (e *InsufficientCreditsError) Is(target error) bool { return target == ErrInsufficientCredits }

// ApplicationStatusError explains why a user may not submit jobs.
type ApplicationStatusError struct {
	UserID string
	Status ApplicationStatus
	Reason error
}

func (e *ApplicationStatusError) Error() string {
	switch {
	case errors.Is(e.Reason, ErrApplicationNotStarted):
		return fmt.Sprintf("%s must request access before submitting jobs", e.UserID)
	case errors.Is(e.Reason, ErrApplicationPending):
		return fmt.Sprintf("%s's request for access is pending review", e.UserID)
	case errors.Is(e.Reason, ErrApplicationRejected):
		return fmt.Sprintf("%s's request for access has been rejected", e.UserID)
	default:
		return fmt.Sprintf("user %s has invalid application status: %q", e.UserID, e.Status)
	}
}

func (e *ApplicationStatusError) Unwrap() error { return e.Reason }

// IsApplicationStatusError reports whether err is one of the three user-facing application errors.
func IsApplicationStatusError(err error) bool {
	return errors.Is(err, ErrApplicationNotStarted) || errors.Is(err, ErrApplicationPending) ||
		errors.Is(err, ErrApplicationRejected)
}
