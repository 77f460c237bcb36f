// Package shared contains the error kinds and the clock used by every domain
// package. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors for errors.Is checks.
var (
	ErrNotFound = errors.New("entity not found")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrConflict       = errors.New("conflict")
	ErrOptimisticLock = errors.New("optimistic lock failure")

	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "schedule", "attendance", "student"
	Op      string // operation that failed, e.g. "Sync", "Save"
	Kind    error  // base error for errors.Is
	Message string // human-readable message
	Err     error  // underlying error, optional
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches against the kind first, then the wrapped error.
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
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Schedule domain errors
var (
	ErrEventNotFound      = NewDomainError("schedule", "Find", ErrNotFound, "event not found")
	ErrInvalidTerm        = NewDomainError("schedule", "Validate", ErrValueOutOfRange, "term must be 1, 2 or 3")
	ErrInvalidEventStatus = NewDomainError("schedule", "SetStatus", ErrStateTransition, "status cannot be set manually")
	ErrInvalidTimeRange   = NewDomainError("schedule", "Validate", ErrInvalidInput, "end must not be before start")
	ErrEventCanceled      = NewDomainError("schedule", "Edit", ErrInvalidState, "event is canceled")
)

// Attendance domain errors
var (
	ErrRollupNotFound = NewDomainError("attendance", "Find", ErrNotFound, "attendance rollup not found")
	ErrRollupConflict = NewDomainError("attendance", "Save", ErrOptimisticLock, "attendance rollup was modified concurrently")
)

// Student domain errors
var (
	ErrStudentNotFound   = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrInvalidStudentID  = NewDomainError("student", "Validate", ErrInvalidID, "invalid student ID")
	ErrNoStoredToken     = NewDomainError("student", "AutoSync", ErrInvalidState, "no stored token for student")
	ErrTokenSealDisabled = NewDomainError("student", "SealToken", ErrInvalidState, "token storage is not configured")
)

// School API errors
var (
	ErrSchoolAPIUnavailable     = NewDomainError("school", "Request", ErrServiceUnavailable, "school API is unavailable")
	ErrSchoolAPIRateLimited     = NewDomainError("school", "Request", ErrRateLimited, "school API rate limit exceeded")
	ErrSchoolAPITimeout         = NewDomainError("school", "Request", ErrTimeout, "school API request timeout")
	ErrSchoolAPIInvalidResponse = NewDomainError("school", "Parse", ErrInvalidFormat, "invalid response from school API")
	ErrInvalidToken             = NewDomainError("school", "VerifyToken", ErrUnauthorized, "token rejected by school API")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports input problems that the caller can fix.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrStateTransition)
}

func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable reports transient failures.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
