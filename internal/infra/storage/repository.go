package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

var (
	// ErrNotFound is returned when a subscription doesn't exist
	ErrNotFound = errors.New("subscription not found")

	// ErrAlreadySubscribed is returned when an active subscription exists for the same tuple
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrDuplicate is returned by stores whose insert hits a unique key
	ErrDuplicate = errors.New("duplicate key")
)

// TokenRepository handles tracked token subscriptions
type TokenRepository interface {
	// Subscribe creates a fresh active subscription. It fails with
	// ErrAlreadySubscribed when an active one exists for (scope, destination, token, platform).
	Subscribe(ctx context.Context, token *domain.TrackedToken) error

	// Unsubscribe soft-deletes every active subscription for (destination, token)
	// and returns the newest of them
	Unsubscribe(ctx context.Context, destination, token string) (*domain.TrackedToken, error)

	// Get retrieves the most recent subscription for (destination, token), active or not
	Get(ctx context.Context, destination, token string) (*domain.TrackedToken, error)

	// ListByDestination lists active subscriptions of a destination
	ListByDestination(ctx context.Context, destination string) ([]*domain.TrackedToken, error)

	// ListActive lists every active subscription
	ListActive(ctx context.Context) ([]*domain.TrackedToken, error)

	// UpdateCursor merges cursor into the stored one; fields never decrease
	UpdateCursor(ctx context.Context, id string, cursor domain.Cursor) (domain.Cursor, error)

	// UpdateErrorCount sets the consecutive error counter
	UpdateErrorCount(ctx context.Context, id string, count int) error

	// UpdateSnapshot records the last seen price and market cap
	UpdateSnapshot(ctx context.Context, id string, priceUSD, marketCapUSD float64) error

	// Deactivate transitions an active subscription to inactive. It reports
	// false when the subscription was already inactive.
	Deactivate(ctx context.Context, id, reason string, at time.Time) (bool, error)
}

// EventRepository records processed transaction signatures per destination
type EventRepository interface {
	// Record inserts the event if its signature is new for destination.
	// It reports false for an already recorded signature.
	Record(ctx context.Context, destination string, event *domain.TransactionEvent) (bool, error)

	// Exists reports whether signature was recorded for destination
	Exists(ctx context.Context, destination, signature string) (bool, error)

	// Count returns the number of events recorded for destination
	Count(ctx context.Context, destination string) (int, error)

	// DeleteOlderThan removes events recorded before the given time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
