package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/metrics"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
	"github.com/cenetex/cosyworld-sub000/internal/infra/storage"
)

// DefaultErrorThreshold is the number of consecutive not-found errors that
// deactivates a subscription.
const DefaultErrorThreshold = 5

// Cleanup releases state tied to a deactivated subscription.
type Cleanup func(sub *domain.TrackedToken)

// Notifier announces a deactivation to the subscription's destination.
type Notifier interface {
	NotifyDeactivated(ctx context.Context, sub *domain.TrackedToken, message string)
}

// Lifecycle tracks consecutive failures per subscription and deactivates it
// once they reach the threshold.
type Lifecycle struct {
	tokens    storage.TokenRepository
	threshold int
	cleanups  []Cleanup
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(tokens storage.TokenRepository, threshold int, notifier Notifier, logger *slog.Logger, cleanups ...Cleanup) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	return &Lifecycle{
		tokens:    tokens,
		threshold: threshold,
		cleanups:  cleanups,
		notifier:  notifier,
		logger:    logger.With("component", "lifecycle"),
		now:       time.Now,
	}
}

// OnSuccess resets the error counter after a successful or empty cycle.
func (l *Lifecycle) OnSuccess(ctx context.Context, sub *domain.TrackedToken) error {
	if sub.ConsecutiveErrors == 0 {
		return nil
	}
	if err := l.tokens.UpdateErrorCount(ctx, sub.ID, 0); err != nil {
		return fmt.Errorf("reset error count: %w", err)
	}
	sub.ConsecutiveErrors = 0
	return nil
}

// OnError records a failed cycle. Only not-found errors count towards
// deactivation; anything else is retried on the next interval. It reports
// whether the subscription was deactivated.
func (l *Lifecycle) OnError(ctx context.Context, sub *domain.TrackedToken, cause error) (bool, error) {
	if !feed.IsNotFound(cause) {
		l.logger.Warn("Poll cycle error, will retry",
			"destination", sub.DestinationID,
			"token", sub.TokenAddress,
			"class", feed.Classify(cause).String(),
			"error", cause,
		)
		return false, nil
	}

	count := sub.ConsecutiveErrors + 1
	if err := l.tokens.UpdateErrorCount(ctx, sub.ID, count); err != nil {
		return false, fmt.Errorf("update error count: %w", err)
	}
	sub.ConsecutiveErrors = count

	l.logger.Warn("Token lookup failed",
		"destination", sub.DestinationID,
		"token", sub.TokenAddress,
		"consecutive_errors", count,
		"threshold", l.threshold,
		"error", cause,
	)
	if count < l.threshold {
		return false, nil
	}

	if err := l.Deactivate(ctx, sub, cause); err != nil {
		return false, err
	}
	return true, nil
}

// Deactivate marks sub inactive, runs cleanups and sends a single notice. A
// subscription that is already inactive is left untouched.
func (l *Lifecycle) Deactivate(ctx context.Context, sub *domain.TrackedToken, cause error) error {
	reason := fmt.Sprintf("%d consecutive lookup failures: %v", sub.ConsecutiveErrors, cause)
	changed, err := l.tokens.Deactivate(ctx, sub.ID, reason, l.now())
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if !changed {
		return nil
	}
	sub.Active = false
	sub.DeactivationReason = reason
	metrics.Deactivations.Inc()

	for _, cleanup := range l.cleanups {
		cleanup(sub)
	}

	l.logger.Info("Subscription deactivated",
		"destination", sub.DestinationID,
		"token", sub.TokenAddress,
		"reason", reason,
	)
	if l.notifier != nil {
		l.notifier.NotifyDeactivated(ctx, sub, DeactivationMessage(sub, l.threshold))
	}
	return nil
}

// DeactivationMessage explains in plain language why tracking stopped.
func DeactivationMessage(sub *domain.TrackedToken, threshold int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stopped tracking %s after %d failed lookups in a row.\n", sub.TokenAddress, threshold)
	b.WriteString("The data provider could not find this token. Common causes:\n")
	b.WriteString("- the address is mistyped or is not a token mint\n")
	b.WriteString("- the token is brand new and not indexed yet\n")
	b.WriteString("- the token has had no on-chain activity\n")
	b.WriteString("Check the address and subscribe again to resume tracking.")
	return b.String()
}
