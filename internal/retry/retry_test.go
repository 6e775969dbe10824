package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/strandlabs/loom/internal/errdefs"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errdefs.New(errdefs.CodeProviderRateLimit, "slow down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errdefs.New(errdefs.CodeProviderAuthFailed, "bad key")
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return errdefs.New(errdefs.CodeNetworkError, "connection reset")
	})
	if errdefs.CodeOf(err) != errdefs.CodeNetworkError {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 10, InitialDelay: time.Hour}
	err := Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return errdefs.New(errdefs.CodeNetworkError, "boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoCustomPredicate(t *testing.T) {
	calls := 0
	p := fastPolicy(3)
	p.ShouldRetry = func(error) bool { return true }
	_ = Do(context.Background(), p, func(context.Context) error {
		calls++
		return errors.New("plain error")
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3 with always-retry predicate", calls)
	}
}

func TestDoValue(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errdefs.New(errdefs.CodeProviderRateLimit, "slow down")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("DoValue = %q, %v", got, err)
	}
}

func TestTransient(t *testing.T) {
	if !Transient(errdefs.New(errdefs.CodeNetworkError, "x")) {
		t.Error("network errors are transient")
	}
	if Transient(errdefs.New(errdefs.CodeValidationError, "x")) {
		t.Error("validation errors are not transient")
	}
	if Transient(errors.New("plain")) {
		t.Error("plain errors are not transient")
	}
}
