// Package errors tests for error code definitions and error handling.
package errors

import (
	"errors"
	"fmt"
	"testing"
)

// TestErrorCodeValues verifies all error codes have non-empty values.
func TestErrorCodeValues(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		// General errors
		{"internal", ErrInternal},
		{"invalid", ErrInvalid},
		{"not found", ErrNotFound},
		{"validation", ErrValidation},

		// Store errors
		{"store", ErrStore},
		{"migration", ErrMigration},
		{"constraint", ErrConstraint},

		// Queue errors
		{"enqueue failed", ErrEnqueueFailed},
		{"queue read", ErrQueueRead},

		// Sync errors
		{"sync in progress", ErrSyncInProgress},
		{"sync failed", ErrSyncFailed},
		{"sync conflict", ErrSyncConflict},
		{"sync timeout", ErrSyncTimeout},

		// Dispatch errors
		{"dispatch failed", ErrDispatchFailed},
		{"auth failed", ErrAuthFailed},

		// Conflict resolution errors
		{"unknown policy", ErrUnknownPolicy},
		{"merge failed", ErrMergeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code == "" {
				t.Errorf("ErrorCode %q should not be empty", tt.name)
			}
		})
	}
}

// TestAppError_Error verifies error message formatting.
func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "error without underlying error",
			appError: &AppError{Code: ErrInternal, Message: "something failed"},
			want:     "[INTERNAL_ERROR] something failed",
		},
		{
			name:     "error with underlying error",
			appError: &AppError{Code: ErrStore, Message: "query failed", Err: errors.New("connection lost")},
			want:     "[STORE_ERROR] query failed: connection lost",
		},
		{
			name:     "not found error",
			appError: &AppError{Code: ErrNotFound, Message: "item not found"},
			want:     "[NOT_FOUND] item not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appError.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestAppError_Unwrap verifies unwrapping of underlying error.
func TestAppError_Unwrap(t *testing.T) {
	underlyingErr := errors.New("underlying error")

	withErr := &AppError{Code: ErrInternal, Message: "failed", Err: underlyingErr}
	if withErr.Unwrap() != underlyingErr {
		t.Errorf("Unwrap() = %v, want %v", withErr.Unwrap(), underlyingErr)
	}

	withoutErr := &AppError{Code: ErrInternal, Message: "failed"}
	if withoutErr.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", withoutErr.Unwrap())
	}
}

// TestNew verifies AppError creation.
func TestNew(t *testing.T) {
	err := New(ErrInternal, "test error")
	if err == nil {
		t.Fatal("New() returned nil")
	}
	if err.Code != ErrInternal {
		t.Errorf("New() code = %q, want %q", err.Code, ErrInternal)
	}
	if err.Message != "test error" {
		t.Errorf("New() message = %q, want 'test error'", err.Message)
	}
	if err.Err != nil {
		t.Error("New() should not wrap an error")
	}
}

// TestWrap verifies error wrapping.
func TestWrap(t *testing.T) {
	underlyingErr := errors.New("underlying")

	err := Wrap(ErrStore, "query failed", underlyingErr)
	if err == nil {
		t.Fatal("Wrap() returned nil")
	}
	if err.Code != ErrStore {
		t.Errorf("Wrap() code = %q, want %q", err.Code, ErrStore)
	}
	if err.Err != underlyingErr {
		t.Errorf("Wrap() underlying error = %v, want %v", err.Err, underlyingErr)
	}
}

// TestIs verifies error code checking through wrapping layers.
func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{
			name: "matching AppError",
			err:  &AppError{Code: ErrNotFound, Message: "not found"},
			code: ErrNotFound,
			want: true,
		},
		{
			name: "non-matching AppError",
			err:  &AppError{Code: ErrNotFound, Message: "not found"},
			code: ErrInternal,
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("plain"),
			code: ErrInternal,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			code: ErrInternal,
			want: false,
		},
		{
			name: "code buried under fmt wrapping",
			err:  fmt.Errorf("outer: %w", Wrap(ErrQueueRead, "read failed", errors.New("io"))),
			code: ErrQueueRead,
			want: true,
		},
		{
			name: "code buried under AppError wrapping",
			err:  Wrap(ErrSyncFailed, "run failed", New(ErrQueueRead, "read failed")),
			code: ErrQueueRead,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Is(tt.err, tt.code)
			if got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}
