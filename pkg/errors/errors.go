package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Enrollment lifecycle errors. These are expected user-facing outcomes of the
// invariant guards, not system failures.
var (
	ErrDuplicateOffering      = New("DUPLICATE_OFFERING", http.StatusConflict, "offering already exists for subject, cohort, class and term")
	ErrAlreadyEnrolled        = New("ALREADY_ENROLLED", http.StatusConflict, "student already enrolled in this offering")
	ErrAlreadyEnrolledSubject = New("ALREADY_ENROLLED_SUBJECT", http.StatusConflict, "student already enrolled in this subject for the term")
	ErrDuplicateCourseName    = New("DUPLICATE_COURSE_NAME", http.StatusConflict, "student already takes a course with this name in the term")
	ErrSubjectInactive        = New("SUBJECT_INACTIVE", http.StatusConflict, "subject is not active")
	ErrOfferingFull           = New("OFFERING_FULL", http.StatusConflict, "offering has no remaining seats")
	ErrOfferingClosed         = New("OFFERING_CLOSED", http.StatusConflict, "offering is closed for enrollment")
	ErrHasActiveEnrollments   = New("HAS_ACTIVE_ENROLLMENTS", http.StatusPreconditionFailed, "subject has active enrollments")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying structured detail fields.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}
