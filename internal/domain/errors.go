package domain

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures by how the pipeline reacts to them
type ErrorType string

const (
	// ErrorTypeConfiguration is fatal to the current scenario only
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeDataUnavailable is a legitimate zero-result case
	ErrorTypeDataUnavailable ErrorType = "data_unavailable"
	ErrorTypeComputation     ErrorType = "computation"
	// ErrorTypeIntegration covers fetch/push/narrative failures
	ErrorTypeIntegration ErrorType = "integration"
	ErrorTypeValidation  ErrorType = "validation"
)

// AppError represents a structured pipeline error
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewConfigurationError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeConfiguration, Code: code, Message: message}
}

func NewDataUnavailableError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeDataUnavailable, Code: code, Message: message}
}

func NewComputationError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeComputation, Code: code, Message: message}
}

func NewIntegrationError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeIntegration, Code: code, Message: message, Retryable: true}
}

func NewValidationError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// MissingThreshold is raised when a detector or scorer needs a key the ThresholdSet lacks
func MissingThreshold(scenarioID, key string) *AppError {
	return NewConfigurationError("THRESHOLD_MISSING",
		fmt.Sprintf("scenario %s: threshold %q not configured", scenarioID, key)).
		WithDetails(map[string]interface{}{"scenario_id": scenarioID, "threshold": key})
}

// IsType reports whether err wraps an AppError of type t
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

func IsConfigurationError(err error) bool   { return IsType(err, ErrorTypeConfiguration) }
func IsDataUnavailableError(err error) bool { return IsType(err, ErrorTypeDataUnavailable) }
func IsComputationError(err error) bool     { return IsType(err, ErrorTypeComputation) }
func IsIntegrationError(err error) bool     { return IsType(err, ErrorTypeIntegration) }
