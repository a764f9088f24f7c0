package query

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors - use with errors.Is() for matching
var (
	// ErrInvalidFieldName is returned when a field name is not part of the record schema
	ErrInvalidFieldName = errors.New("invalid field name")

	// ErrFieldNotAllowed is returned when a field is not in the AllowedFields whitelist
	ErrFieldNotAllowed = errors.New("field not allowed")

	// ErrInvalidQuery is returned when the query structure is invalid
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnsupportedQuery is returned when an executor cannot express a valid query
	ErrUnsupportedQuery = errors.New("unsupported query")

	// ErrPageSizeExceeded is returned when requested page size exceeds maximum
	ErrPageSizeExceeded = errors.New("page size exceeds maximum")

	// ErrExecutionFailed is returned when query execution fails at database level
	ErrExecutionFailed = errors.New("query execution failed")

	// ErrValidation matches every ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration matches every ConfigurationError
	ErrConfiguration = errors.New("invalid configuration")

	// ErrBackend matches every BackendError
	ErrBackend = errors.New("search backend failure")

	// ErrNotFound is returned when a single record lookup has no match
	ErrNotFound = errors.New("not found")
)

// FieldError wraps an error with field name information
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field '%s': %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// NewFieldError creates a new FieldError
func NewFieldError(field string, err error) error {
	return &FieldError{
		Field: field,
		Err:   err,
	}
}

// InvalidFieldNameError creates an error for invalid field names
func InvalidFieldNameError(field string) error {
	return NewFieldError(field, ErrInvalidFieldName)
}

// FieldNotAllowedError creates an error for fields not in AllowedFields
func FieldNotAllowedError(field string) error {
	return NewFieldError(field, ErrFieldNotAllowed)
}

// ExecutionError wraps a database execution error
type ExecutionError struct {
	Operation string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError creates a new ExecutionError
func NewExecutionError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &ExecutionError{
		Operation: operation,
		Err:       err,
	}
}

// ValidationError reports caller input that cannot be served.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a new ValidationError
func NewValidationError(field, value, message string) error {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigurationError reports a setting that prevents the service from starting.
type ConfigurationError struct {
	Key     string
	Value   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s (got %q)", e.Key, e.Message, e.Value)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(key, value, message string) error {
	return &ConfigurationError{Key: key, Value: value, Message: message}
}

// BackendError reports a failed or abandoned search backend call.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

func (e *BackendError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *BackendError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// NewBackendError creates a new BackendError
func NewBackendError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}

// NotFoundError creates an error for a missing record.
func NotFoundError(field, value string) error {
	return &FieldError{Field: field, Err: fmt.Errorf("%w: %q", ErrNotFound, value)}
}
