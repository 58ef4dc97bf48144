package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCycleError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CycleError
		want string
	}{
		{
			name: "no context",
			err:  NewCycleError("balancing failed", nil),
			want: "cycle error: balancing failed",
		},
		{
			name: "full context with cause",
			err: NewCycleError("balancing failed", ErrTaskNotFound).
				WithCycle(3).WithMode("emergency").WithPhase("execute"),
			want: "cycle error [cycle=3, mode=emergency, phase=execute]: balancing failed: task not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCycleError_Classification(t *testing.T) {
	err := NewCycleError("assess", ErrTimeout)
	if !err.IsRetryable() {
		t.Error("cycle errors should be retryable")
	}
	if GetSeverity(err) != SeverityError {
		t.Errorf("GetSeverity() = %v, want error", GetSeverity(err))
	}
	if GetSeverity(err.WithSeverity(SeverityCritical)) != SeverityCritical {
		t.Error("WithSeverity did not apply")
	}
	if IsRetryable(Join(New("other"), NewCycleError("panic", nil).WithRetryable(false))) {
		t.Error("WithRetryable(false) did not apply")
	}

	wrapped := fmt.Errorf("run: %w", err)
	var cycleErr *CycleError
	if !As(wrapped, &cycleErr) {
		t.Fatal("As should find CycleError through wrapping")
	}
	if !Is(wrapped, ErrTimeout) {
		t.Error("Is should reach the cause")
	}
	if !Is(wrapped, &CycleError{}) {
		t.Error("Is should match any *CycleError")
	}
}

func TestStoreError(t *testing.T) {
	locked := NewStoreError("save state", ErrStateLocked).WithPath("/tmp/tasks.json")
	if !locked.IsRetryable() {
		t.Error("lock contention should be retryable")
	}
	if got, want := locked.Error(), "store error [path=/tmp/tasks.json]: save state: state is locked"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	corrupt := NewStoreError("load state", ErrStateCorrupted)
	if corrupt.IsRetryable() {
		t.Error("corruption should not be retryable")
	}
	if !Is(corrupt, ErrStateCorrupted) {
		t.Error("Is should reach the cause")
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("task", "t-1")
	if err.Error() != "task 't-1' not found" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !Is(err, ErrTaskNotFound) {
		t.Error("task NotFoundError should match ErrTaskNotFound")
	}
	if Is(NewNotFoundError("report", "r-1"), ErrTaskNotFound) {
		t.Error("report NotFoundError should not match ErrTaskNotFound")
	}
	withCause := NewNotFoundError("report", "r-1").WithCause(ErrStoreClosed)
	if !Is(withCause, ErrStoreClosed) {
		t.Error("Is should reach the cause")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("unknown priority").WithField("priority").WithValue("urgent")
	want := "validation error [field=priority, value=urgent]: unknown priority"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
	if err.IsRetryable() {
		t.Error("validation errors are not retryable")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("probing worker w-1", 5*time.Second)
	if err.Error() != "timeout error: probing worker w-1 (timeout: 5s)" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !Is(err, ErrTimeout) {
		t.Error("TimeoutError should match ErrTimeout")
	}
	if !IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
}

func TestIsRetryable_PlainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"wrapped timeout", fmt.Errorf("x: %w", ErrTimeout), true},
		{"wrapped lock", fmt.Errorf("x: %w", ErrStateLocked), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSeverity_Defaults(t *testing.T) {
	if GetSeverity(nil) != SeverityDebug {
		t.Error("nil should be debug")
	}
	if GetSeverity(errors.New("boom")) != SeverityError {
		t.Error("plain errors should be error severity")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
	err := Wrapf(ErrStoreClosed, "append report %s", "r-1")
	if err.Error() != "append report r-1: store is closed" {
		t.Errorf("Wrapf = %q", err.Error())
	}
	if !Is(Wrap(ErrStoreClosed, "x"), ErrStoreClosed) {
		t.Error("Wrap should preserve the chain")
	}
}
