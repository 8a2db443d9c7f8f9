// Package aggregate rolls up low-value transfers between the same two parties
// into a single summary once their combined value crosses a threshold.
package aggregate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/metrics"
)

// Outcome tells the caller what to do with a transfer after aggregation.
type Outcome int

const (
	// Continue means notify the transfer normally.
	Continue Outcome = iota
	// Suppress means the transfer was absorbed by a bucket below threshold.
	Suppress
	// Handled means the transfer tipped its bucket over threshold and a summary
	// replaces the individual notification.
	Handled
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Suppress:
		return "suppress"
	case Handled:
		return "handled"
	default:
		return "unknown"
	}
}

type bucketKey struct {
	subscription string
	destination  string
	token        string
	sender       string
	recipient    string
}

type bucket struct {
	totalUSD    float64
	totalAmount decimal.Decimal
	events      []*domain.TransactionEvent
	createdAt   time.Time
	expiresAt   time.Time
}

// Aggregator holds the live buckets.
type Aggregator struct {
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// New creates an aggregator whose buckets live for window after their first transfer.
func New(window time.Duration, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		window:  window,
		logger:  logger.With("component", "aggregator"),
		buckets: make(map[bucketKey]*bucket),
	}
}

// Handle folds a transfer into the bucket of sub. Subscriptions sharing a
// destination on different platforms keep separate buckets. The summary is
// non-nil only for Handled.
func (a *Aggregator) Handle(now time.Time, sub *domain.TrackedToken, ev *domain.TransactionEvent, thresholdUSD float64) (Outcome, *domain.Summary) {
	outcome, summary := a.handle(now, sub, ev, thresholdUSD)
	metrics.AggregationOutcomes.WithLabelValues(outcome.String()).Inc()
	return outcome, summary
}

func (a *Aggregator) handle(now time.Time, sub *domain.TrackedToken, ev *domain.TransactionEvent, thresholdUSD float64) (Outcome, *domain.Summary) {
	if thresholdUSD <= 0 {
		return Continue, nil
	}

	destination := sub.DestinationID
	key := bucketKey{
		subscription: sub.ID,
		destination:  destination,
		token:        ev.Mint,
		sender:       ev.Sender,
		recipient:    ev.Recipient,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.reportLocked()

	b, ok := a.buckets[key]
	if ok && !now.Before(b.expiresAt) {
		delete(a.buckets, key)
		ok = false
	}

	if ev.AmountUSD >= thresholdUSD {
		delete(a.buckets, key)
		return Continue, nil
	}

	if !ok {
		b = &bucket{
			totalAmount: decimal.Zero,
			createdAt:   now,
			expiresAt:   now.Add(a.window),
		}
		a.buckets[key] = b
	}
	b.totalUSD += ev.AmountUSD
	b.totalAmount = b.totalAmount.Add(ev.Amount)
	b.events = append(b.events, ev)

	if b.totalUSD < thresholdUSD {
		return Suppress, nil
	}

	delete(a.buckets, key)
	summary := &domain.Summary{
		Destination: destination,
		Token:       ev.Mint,
		Sender:      ev.Sender,
		Recipient:   ev.Recipient,
		TotalUSD:    b.totalUSD,
		TotalAmount: b.totalAmount,
		Events:      b.events,
		FirstSeen:   b.createdAt,
		LastSeen:    now,
	}
	a.logger.Debug("Aggregation bucket flushed",
		"destination", destination,
		"token", ev.Mint,
		"transfers", summary.Count(),
		"total_usd", summary.TotalUSD,
	)
	return Handled, summary
}

// Sweep drops expired buckets and returns how many were dropped.
// Their sub-threshold activity is not reported.
func (a *Aggregator) Sweep(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.reportLocked()

	n := 0
	for k, b := range a.buckets {
		if !now.Before(b.expiresAt) {
			delete(a.buckets, k)
			n++
		}
	}
	if n > 0 {
		metrics.AggregationOutcomes.WithLabelValues("expired").Add(float64(n))
	}
	return n
}

// DropToken removes every bucket of token for destination.
func (a *Aggregator) DropToken(destination, token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.reportLocked()

	for k := range a.buckets {
		if k.destination == destination && k.token == token {
			delete(a.buckets, k)
		}
	}
}

// Len returns the number of live buckets.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}

// Run sweeps expired buckets every interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.Sweep(now); n > 0 {
				a.logger.Debug("Expired aggregation buckets dropped", "count", n)
			}
		}
	}
}

func (a *Aggregator) reportLocked() {
	metrics.AggregationBuckets.Set(float64(len(a.buckets)))
}
