// Package errors provides the error vocabulary shared by the coordinator's
// packages: sentinel errors, domain-specific error types carrying context,
// semantic error types, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures of a subsystem:
//   - CycleError: a coordinator control cycle failed
//   - StoreError: persisting or loading state failed
//
// Semantic errors represent common conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewCycleError("monitor cycle failed", cause).WithCycle(12).WithMode("optimizing")
//
//	if errors.Is(err, errors.ErrStateLocked) { ... }
//
//	var cycleErr *errors.CycleError
//	if errors.As(err, &cycleErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Task-related sentinel errors
var (
	// ErrTaskNotFound indicates that a task could not be found.
	ErrTaskNotFound = New("task not found")
	// ErrInvalidTransition indicates a status change outside the lifecycle table.
	ErrInvalidTransition = New("invalid status transition")
	// ErrDependenciesPending indicates a task whose dependencies are not completed.
	ErrDependenciesPending = New("dependencies not completed")
)

// Persistence-related sentinel errors
var (
	// ErrStateLocked indicates that another process holds the state lock.
	ErrStateLocked = New("state is locked")
	// ErrStateCorrupted indicates that persisted state could not be decoded.
	ErrStateCorrupted = New("state data corrupted")
	// ErrStoreClosed indicates use of a store after Close.
	ErrStoreClosed = New("store is closed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// ForemanError is implemented by every error type in this package.
type ForemanError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
}

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if the cause matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// CycleError represents a failure inside one coordinator control cycle.
// Cycle errors are retryable by default: the control loop backs off and runs
// again. A non-retryable cycle error waits for the next regular interval.
//
// Example:
//
//	err := errors.NewCycleError("assessment failed", cause).WithCycle(4).WithPhase("assess")
//	fmt.Println(err) // "cycle error [cycle=4, phase=assess]: assessment failed: ..."
type CycleError struct {
	baseError
	Cycle uint64
	Mode  string
	Phase string
}

// NewCycleError creates a new CycleError.
func NewCycleError(message string, cause error) *CycleError {
	return &CycleError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
	}
}

// WithCycle records the cycle number.
func (e *CycleError) WithCycle(n uint64) *CycleError {
	e.Cycle = n
	return e
}

// WithMode records the operating mode the cycle ran in.
func (e *CycleError) WithMode(mode string) *CycleError {
	e.Mode = mode
	return e
}

// WithPhase records which phase of the cycle failed.
func (e *CycleError) WithPhase(phase string) *CycleError {
	e.Phase = phase
	return e
}

// WithSeverity sets the error severity.
func (e *CycleError) WithSeverity(s Severity) *CycleError {
	e.severity = s
	return e
}

// WithRetryable sets whether the loop should retry after a short backoff.
func (e *CycleError) WithRetryable(retryable bool) *CycleError {
	e.retryable = retryable
	return e
}

// Error returns the formatted error message.
func (e *CycleError) Error() string {
	var parts []string
	if e.Cycle > 0 {
		parts = append(parts, fmt.Sprintf("cycle=%d", e.Cycle))
	}
	if e.Mode != "" {
		parts = append(parts, fmt.Sprintf("mode=%s", e.Mode))
	}
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	return formatWithContext("cycle error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *CycleError) Is(target error) bool {
	if _, ok := target.(*CycleError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StoreError represents a failure to persist or load state.
//
// Example:
//
//	err := errors.NewStoreError("write state", cause).WithPath("/var/lib/foreman/tasks.json")
type StoreError struct {
	baseError
	Path string
}

// NewStoreError creates a new StoreError.
func NewStoreError(message string, cause error) *StoreError {
	return &StoreError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
			// Lock contention clears once the other process finishes.
			retryable: errors.Is(cause, ErrStateLocked),
		},
	}
}

// WithPath records the file or database path involved.
func (e *StoreError) WithPath(path string) *StoreError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *StoreError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return formatWithContext("store error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("task", "abc123")
//	fmt.Println(err) // "task 'abc123' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity: SeverityWarning,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if e.ResourceType == "task" && target == ErrTaskNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("priority must be one of low, medium, high, critical")
//	err = err.WithField("priority").WithValue("urgent")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("probing worker w-1", 5*time.Second)
//	fmt.Println(err) // "timeout error: probing worker w-1 (timeout: 5s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var fe ForemanError
	if As(err, &fe) {
		return fe.IsRetryable()
	}
	return Is(err, ErrTimeout) || Is(err, ErrStateLocked)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ForemanError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var fe ForemanError
	if As(err, &fe) {
		return fe.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
