// Package shared contains common domain types, errors, and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// ErrNotFound is returned when a referenced lesson, quiz, or enrollment does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation error")

	// ErrAttemptsExceeded is returned when a learner has used every allowed quiz attempt.
	ErrAttemptsExceeded = errors.New("attempts exceeded")

	// ErrConflict is returned when a concurrent writer won a storage-level race.
	// Callers may retry once after re-reading authoritative state.
	ErrConflict = errors.New("conflict")

	// Finer validation kinds. All of them satisfy IsValidation.
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrNegativeValue = errors.New("value cannot be negative")
	ErrInvalidFormat = errors.New("invalid format")

	// ErrServiceUnavailable marks a collaborator outage (XP ledger, catalog).
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "enrollment", "quiz"
	Op      string // Operation that failed, e.g., "MarkComplete", "Submit"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Catalog errors
var (
	ErrLessonNotFound = NewDomainError("catalog", "GetLesson", ErrNotFound, "lesson not found")
	ErrQuizNotFound   = NewDomainError("catalog", "GetQuiz", ErrNotFound, "quiz not found")
)

// Progress and enrollment errors
var (
	ErrEnrollmentNotFound = NewDomainError("enrollment", "Find", ErrNotFound, "learner is not enrolled in course")
	ErrInvalidTimeSpent   = NewDomainError("progress", "Validate", ErrNegativeValue, "time spent cannot be negative")
	ErrInvalidPosition    = NewDomainError("progress", "Validate", ErrNegativeValue, "last position cannot be negative")
)

// Quiz errors
var (
	ErrNoAttemptsLeft    = NewDomainError("quiz", "Submit", ErrAttemptsExceeded, "maximum number of attempts reached")
	ErrAnswersMissing    = NewDomainError("quiz", "Validate", ErrEmptyValue, "answers payload is required")
	ErrAttemptConflict   = NewDomainError("quiz", "Submit", ErrConflict, "concurrent submission for the same attempt")
	ErrAggregateConflict = NewDomainError("enrollment", "Recompute", ErrConflict, "concurrent aggregate update")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsAttemptsExceeded checks if the quiz attempt bound was reached.
func IsAttemptsExceeded(err error) bool {
	return errors.Is(err, ErrAttemptsExceeded)
}

// IsConflict checks if the error is a storage-level race loss.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrServiceUnavailable)
}

// Required returns a validation error for an empty field.
func Required(domain, op, field string) *DomainError {
	return NewDomainError(domain, op, ErrEmptyValue, field+" is required")
}
