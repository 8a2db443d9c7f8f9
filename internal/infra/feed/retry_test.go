package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		expect Class
	}{
		{errors.New("429 Too Many Requests"), ClassTransient},
		{errors.New("503 Service Unavailable"), ClassTransient},
		{errors.New("connection reset by peer"), ClassTransient},
		{errors.New("timeout"), ClassTransient},
		{context.DeadlineExceeded, ClassTransient},
		{&StatusError{Code: 502, Body: "upstream"}, ClassTransient},
		{errors.New("could not find account"), ClassNotFound},
		{errors.New("Token not found"), ClassNotFound},
		{errors.New("no such account: abc"), ClassNotFound},
		{fmt.Errorf("prices: %w", ErrNotFound), ClassNotFound},
		{&StatusError{Code: 404}, ClassNotFound},
		{&StatusError{Code: 400, Body: "bad request"}, ClassFatal},
		{fmt.Errorf("%w: unexpected token", ErrMalformed), ClassFatal},
		{context.Canceled, ClassFatal},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.expect {
			t.Errorf("Classify(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	if IsNotFound(nil) {
		t.Error("nil error must not be not-found")
	}
	if !IsNotFound(fmt.Errorf("fetch transactions for T: %w", errors.New("could not find account"))) {
		t.Error("wrapped account error should be not-found")
	}
	if IsNotFound(errors.New("502 bad gateway")) {
		t.Error("gateway error should not be not-found")
	}
}

func TestRetry_RetriesTransientOnly(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 2}

	calls := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("503 service unavailable")
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected 3 attempts and an error, got %d attempts, err=%v", calls, err)
	}

	calls = 0
	err = Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("could not find account")
	})
	if calls != 1 || !IsNotFound(err) {
		t.Fatalf("not-found must not be retried: calls=%d err=%v", calls, err)
	}

	calls = 0
	err = Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second attempt, calls=%d err=%v", calls, err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for attempt, w := range want {
		if got := calculateBackoff(attempt, cfg); got != w {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}
