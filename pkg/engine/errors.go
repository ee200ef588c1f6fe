package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a failed content store call.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure such as a network
	// error or an unavailable store.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates the store rejected the call for rate limiting.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates the entity already exists, usually a
	// uniqueness violation on its natural key.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: validation failure, permission denied.
	ErrorClassPermanent ErrorClass = "permanent"
)

// ErrFixtureMissing is returned when a site has no fixture file.
// It is a notice, not a failure.
var ErrFixtureMissing = errors.New("fixture file not found")

// SkippedEntriesError is returned together with the entries that did load
// when some entries of a fixture could not be decoded. Each skipped entry
// becomes a site notice.
type SkippedEntriesError struct {
	// Skipped holds one description per entry that was left out.
	Skipped []string
}

// Error implements the error interface.
func (e *SkippedEntriesError) Error() string {
	if len(e.Skipped) == 1 {
		return "skipped 1 entry: " + e.Skipped[0]
	}
	return fmt.Sprintf("skipped %d entries", len(e.Skipped))
}

// SkippedEntries returns the skipped entry descriptions carried by err, or
// nil when err does not report skipped entries.
func SkippedEntries(err error) []string {
	var skipped *SkippedEntriesError
	if errors.As(err, &skipped) {
		return skipped.Skipped
	}
	return nil
}

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the natural key of the entity that caused the error.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewError creates an error of the given class.
func NewError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{
		Class:   class,
		Message: message,
		Err:     err,
	}
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return NewError(ErrorClassTransient, message, err)
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return NewError(ErrorClassPermanent, message, err)
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resource string) *EngineError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Classified is implemented by transport errors that know their own class,
// such as content API response errors.
type Classified interface {
	error
	ErrorClass() ErrorClass
	ErrorCode() string
}

// ClassOf returns the class of err. Unclassified errors are permanent.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	var c Classified
	if errors.As(err, &c) {
		return c.ErrorClass()
	}
	return ErrorClassPermanent
}

// CodeOf returns the error code carried by err, if any.
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	var c Classified
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return err != nil && ClassOf(err) == ErrorClassTransient
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	return err != nil && ClassOf(err) == ErrorClassThrottled
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return err != nil && ClassOf(err) == ErrorClassConflict
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeSiteFailed       = "SITE_FAILED"
)
