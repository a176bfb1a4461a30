// Package apperrors provides sentinel and custom error types for the application.
package apperrors

import "fmt"

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return "resource not found"
}

// Is implements error comparison so errors.Is(err, ErrNotFound) matches any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field: %s", e.Field)
	}
	return "validation error"
}

// Is implements error comparison so errors.Is(err, ErrValidation) matches any ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ErrConfiguration represents a fatal configuration error (wrong dimension,
// unloadable model). The service must refuse to serve rather than run
// partially broken, so this is never recovered per item.
var ErrConfiguration = &ConfigurationError{}

// ConfigurationError is a sentinel error for fatal startup misconfiguration.
type ConfigurationError struct {
	Component string
	Message   string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s", e.Component)
	}
	return "configuration error"
}

// Is implements error comparison so errors.Is(err, ErrConfiguration) matches any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// NewConfigurationError creates a new ConfigurationError with a custom message.
func NewConfigurationError(component, message string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Message:   message,
	}
}
