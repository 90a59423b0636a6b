// Package errors provides a lightweight structured error type (OpsError)
// for category-based classification and retry semantics in the CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a takops error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// External system integration errors
	CategoryCertbot  ErrorCategory = "certbot"
	CategorySystemd  ErrorCategory = "systemd"
	CategoryCron     ErrorCategory = "cron"
	CategoryDocker   ErrorCategory = "docker"
	CategoryGit      ErrorCategory = "git"
	CategoryNetwork  ErrorCategory = "network"

	// Deployment and filesystem errors
	CategoryDeploy     ErrorCategory = "deploy"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// OpsError is a structured error with category, retryability, and context
type OpsError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for OpsError
type ContextFields map[string]any

// Error implements the error interface
func (e *OpsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *OpsError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *OpsError) WithContext(key string, value any) *OpsError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new OpsError
func New(category ErrorCategory, severity ErrorSeverity, message string) *OpsError {
	return &OpsError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new OpsError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *OpsError {
	return &OpsError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// Retryable creates a new retryable OpsError
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *OpsError {
	return &OpsError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// WrapRetryable creates a new retryable OpsError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *OpsError {
	return &OpsError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if oe, ok := err.(*OpsError); ok {
		return oe.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if oe, ok := err.(*OpsError); ok {
		return oe.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not an OpsError
func GetCategory(err error) ErrorCategory {
	if oe, ok := err.(*OpsError); ok {
		return oe.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error
func ValidationError(message string) *OpsError {
	return &OpsError{
		Category:  CategoryValidation,
		Severity:  SeverityWarning,
		Message:   message,
		Retryable: false,
	}
}

// ConfigError creates a new configuration error
func ConfigError(message string) *OpsError {
	return &OpsError{
		Category:  CategoryConfig,
		Severity:  SeverityError,
		Message:   message,
		Retryable: false,
	}
}

// WrapError wraps an existing error with a new OpsError at error severity
func WrapError(err error, category ErrorCategory, message string) *OpsError {
	return &OpsError{
		Category:  category,
		Severity:  SeverityError,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}
