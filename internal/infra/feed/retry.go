package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the upstream reports an unknown token or account.
	ErrNotFound = errors.New("not found")

	// ErrMalformed is returned when an upstream response has an unexpected shape.
	ErrMalformed = errors.New("malformed response")
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"     default:"4"`
	InitialDelay    time.Duration `yaml:"initial_delay"    default:"500ms"`
	MaxDelay        time.Duration `yaml:"max_delay"        default:"10s"`
	BackoffMultiple float64       `yaml:"backoff_multiple" default:"2"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     4,
	InitialDelay:    500 * time.Millisecond,
	MaxDelay:        10 * time.Second,
	BackoffMultiple: 2.0,
}

// Class determines how an upstream error is handled.
type Class int

const (
	// ClassTransient errors are retried with backoff and never count against a subscription.
	ClassTransient Class = iota
	// ClassNotFound errors count towards deactivation of the subscription.
	ClassNotFound
	// ClassFatal errors are not retried.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassNotFound:
		return "not_found"
	default:
		return "fatal"
	}
}

var notFoundTokens = []string{
	"not found",
	"could not find account",
	"no such account",
	"invalid account",
	"account does not exist",
}

var transientTokens = []string{
	"429", "too many requests", "rate limit",
	"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable",
	"timeout", "deadline exceeded",
	"connection refused", "connection reset", "broken pipe", "no such host", "eof",
}

// Classify determines the class of an upstream error.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	if errors.Is(err, context.Canceled) {
		return ClassFatal
	}
	if errors.Is(err, ErrNotFound) {
		return ClassNotFound
	}
	if errors.Is(err, ErrMalformed) {
		return ClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 404:
			return ClassNotFound
		case statusErr.Code == 429 || statusErr.Code >= 500:
			return ClassTransient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, notFoundTokens) {
		return ClassNotFound
	}
	if containsAny(lower, transientTokens) {
		return ClassTransient
	}
	if statusErr != nil {
		return ClassFatal
	}
	return ClassTransient
}

// IsNotFound reports whether err is a not-found/invalid-account error.
func IsNotFound(err error) bool {
	return err != nil && Classify(err) == ClassNotFound
}

// Retry executes fn with exponential backoff while it fails with transient errors.
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if Classify(err) != ClassTransient {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		delay := calculateBackoff(attempt, config)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiple := config.BackoffMultiple
	if multiple <= 0 {
		multiple = 2
	}
	delay := float64(config.InitialDelay) * math.Pow(multiple, float64(attempt))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
