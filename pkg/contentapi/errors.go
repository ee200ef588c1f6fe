package contentapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
)

// ConfigError reports missing or invalid client configuration.
// It is raised before any network call is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("content api config: %s %s", e.Field, e.Reason)
}

// APIError is returned for every request that did not produce a 2xx response.
// Status is 0 when no response was received at all.
type APIError struct {
	Status   int
	Method   string
	Endpoint string
	Body     string
	Err      error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("content api: %s %s: %v", e.Method, e.Endpoint, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("content api: %s %s returned %d", e.Method, e.Endpoint, e.Status)
	}
	return fmt.Sprintf("content api: %s %s returned %d: %s", e.Method, e.Endpoint, e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ErrorClass classifies the failure. A 400 whose body reports a uniqueness
// violation is a conflict, since the store answers duplicate natural keys
// with a validation error rather than 409.
func (e *APIError) ErrorClass() engine.ErrorClass {
	switch {
	case e.Status == 0:
		return engine.ErrorClassTransient
	case e.Status == http.StatusConflict:
		return engine.ErrorClassConflict
	case e.Status == http.StatusBadRequest && mentionsUnique(e.Body):
		return engine.ErrorClassConflict
	case e.Status == http.StatusTooManyRequests:
		return engine.ErrorClassThrottled
	case e.Status >= 500:
		return engine.ErrorClassTransient
	default:
		return engine.ErrorClassPermanent
	}
}

// ErrorCode maps the status to an engine error code.
func (e *APIError) ErrorCode() string {
	switch {
	case e.Status == 0:
		return engine.ErrCodeUnavailable
	case e.ErrorClass() == engine.ErrorClassConflict:
		return engine.ErrCodeAlreadyExists
	case e.Status == http.StatusBadRequest:
		return engine.ErrCodeValidation
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return engine.ErrCodePermissionDenied
	case e.Status == http.StatusNotFound:
		return engine.ErrCodeNotFound
	case e.Status == http.StatusTooManyRequests:
		return engine.ErrCodeRateLimited
	default:
		return engine.ErrCodeInternal
	}
}

func mentionsUnique(body string) bool {
	return strings.Contains(strings.ToLower(body), "unique")
}

var _ engine.Classified = (*APIError)(nil)
