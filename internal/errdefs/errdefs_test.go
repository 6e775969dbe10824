package errdefs

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAndCodeOf(t *testing.T) {
	err := New(CodeSessionNotFound, "session abc not found")
	if CodeOf(err) != CodeSessionNotFound {
		t.Errorf("CodeOf = %s, want %s", CodeOf(err), CodeSessionNotFound)
	}
	if err.Recoverable {
		t.Error("not-found errors should not be recoverable by default")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeDatabaseQuery, "insert failed", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if CodeOf(err) != CodeDatabaseQuery {
		t.Errorf("CodeOf = %s, want %s", CodeOf(err), CodeDatabaseQuery)
	}
}

func TestWrapSameCodeCollapses(t *testing.T) {
	inner := New(CodeToolTimeout, "read timed out")
	outer := Wrap(CodeToolTimeout, "execution failed", inner)
	if outer != inner {
		t.Error("wrapping with the same code should return the inner error")
	}
}

func TestCodeOfThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("turn failed: %w", New(CodeProviderRateLimit, "429"))
	if !IsCode(err, CodeProviderRateLimit) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
	if e, ok := As(err); !ok || !e.Recoverable {
		t.Error("rate-limit errors should unwrap as recoverable")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(errors.New("boom")) != CodeUnknownError {
		t.Error("plain errors map to UNKNOWN_ERROR")
	}
	if CodeOf(nil) != "" {
		t.Error("nil maps to empty code")
	}
}

func TestWithContext(t *testing.T) {
	err := New(CodeInvalidParams, "missing path").
		WithContext("tool", "read").
		WithContext("param", "path")
	if err.Context["tool"] != "read" || err.Context["param"] != "path" {
		t.Errorf("context = %v", err.Context)
	}
}

func TestRecoverableDefaults(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeInvalidParams, true},
		{CodeToolTimeout, true},
		{CodeToolExecutionFailed, true},
		{CodeProviderRateLimit, true},
		{CodeLLMContextTooLong, true},
		{CodeProviderAuthFailed, false},
		{CodeDatabaseCorruption, false},
		{CodeInternalError, false},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").Recoverable; got != tt.want {
			t.Errorf("recoverable(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
