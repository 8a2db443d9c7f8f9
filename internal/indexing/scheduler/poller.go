package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/classify"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/metrics"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
	"github.com/cenetex/cosyworld-sub000/internal/infra/storage"
	"github.com/cenetex/cosyworld-sub000/internal/market"
)

// Config holds polling configuration.
type Config struct {
	Interval       time.Duration   `yaml:"interval" default:"30s"`
	PageSize       int             `yaml:"page_size" default:"50"`
	MaxPages       int             `yaml:"max_pages" default:"5"`
	ErrorThreshold int             `yaml:"error_threshold" default:"5"`
	Classify       classify.Policy `yaml:"classify"`
}

// Sink receives the new events of a cycle together with every active
// subscription of the polled key.
type Sink interface {
	Emit(ctx context.Context, subs []*domain.TrackedToken, info *domain.TokenInfo, events []*domain.TransactionEvent)
}

// Result describes one poll cycle.
type Result struct {
	Pages   int
	Fetched int
	New     int
	Capped  bool
	Cursor  domain.Cursor
}

// Poller performs the ingest cycle for a subscription: page the feed from the
// stored cursor, normalize, classify and dedupe records, persist the cursor and
// hand new events to the sink.
type Poller struct {
	cfg        Config
	tokens     storage.TokenRepository
	events     storage.EventRepository
	feed       feed.TransactionFeed
	meta       feed.PriceFeed
	classifier *classify.Classifier
	lifecycle  *Lifecycle
	sink       Sink
	logger     *slog.Logger
}

// NewPoller creates a poller. meta is usually a market.MetadataCache.
func NewPoller(
	cfg Config,
	tokens storage.TokenRepository,
	events storage.EventRepository,
	txFeed feed.TransactionFeed,
	meta feed.PriceFeed,
	lifecycle *Lifecycle,
	sink Sink,
	logger *slog.Logger,
) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	return &Poller{
		cfg:        cfg,
		tokens:     tokens,
		events:     events,
		feed:       txFeed,
		meta:       meta,
		classifier: classify.NewClassifier(cfg.Classify),
		lifecycle:  lifecycle,
		sink:       sink,
		logger:     logger.With("component", "poller"),
	}
}

// Cycle runs one poll for key. It returns ErrStopPolling when the subscription
// is missing, inactive, or was deactivated by this cycle.
//
// Several subscriptions may share a key on different platforms or scopes. The
// newest one drives the lifecycle; the cursor is stored on all of them and new
// events are emitted to all of them.
func (p *Poller) Cycle(ctx context.Context, key domain.TokenKey) (Result, error) {
	sub, err := p.tokens.Get(ctx, key.Destination, key.Token)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, ErrStopPolling
	}
	if err != nil {
		return Result{}, fmt.Errorf("load subscription: %w", err)
	}
	if !sub.Active {
		return Result{}, ErrStopPolling
	}

	res, events, info, ingestErr := p.ingest(ctx, sub)

	subs, err := p.subscriptions(ctx, sub)
	if err != nil || len(subs) == 0 {
		if err != nil {
			p.logger.Warn("Failed to list subscriptions of key", "key", key.String(), "error", err)
		}
		subs = []*domain.TrackedToken{sub}
	}

	// Persisted on every cycle, including empty ones, so history is not refetched.
	cursor := res.Cursor
	for _, s := range subs {
		stored, err := p.tokens.UpdateCursor(ctx, s.ID, cursor)
		if err != nil {
			p.logger.Error("Failed to persist cursor", "key", key.String(), "subscription", s.ID, "error", err)
			continue
		}
		if s.ID == sub.ID {
			res.Cursor = stored
		}
	}

	if ingestErr != nil {
		metrics.PollCycles.WithLabelValues("error").Inc()
		deactivated, err := p.lifecycle.OnError(ctx, sub, ingestErr)
		if err != nil {
			p.logger.Error("Lifecycle update failed", "key", key.String(), "error", err)
		}
		if deactivated {
			for _, s := range subs {
				if s.ID == sub.ID {
					continue
				}
				s.ConsecutiveErrors = sub.ConsecutiveErrors
				if err := p.lifecycle.Deactivate(ctx, s, ingestErr); err != nil {
					p.logger.Error("Failed to deactivate subscription", "key", key.String(), "subscription", s.ID, "error", err)
				}
			}
			return res, ErrStopPolling
		}
		if len(events) == 0 {
			return res, ingestErr
		}
	} else if err := p.lifecycle.OnSuccess(ctx, sub); err != nil {
		p.logger.Warn("Failed to reset error count", "key", key.String(), "error", err)
	}

	switch {
	case ingestErr != nil:
	case res.Capped:
		metrics.PollCycles.WithLabelValues("capped").Inc()
	case res.New == 0:
		metrics.PollCycles.WithLabelValues("empty").Inc()
	default:
		metrics.PollCycles.WithLabelValues("ok").Inc()
	}

	if len(events) == 0 {
		return res, ingestErr
	}

	if info.Found() {
		for _, s := range subs {
			if err := p.tokens.UpdateSnapshot(ctx, s.ID, info.PriceUSD, info.MarketCapUSD); err != nil {
				p.logger.Warn("Failed to store price snapshot", "key", key.String(), "subscription", s.ID, "error", err)
			}
		}
	}

	// Subscriptions may have been removed while the feed was being read.
	current, err := p.subscriptions(ctx, sub)
	if err != nil || len(current) == 0 {
		p.logger.Info("Discarding events of inactive subscription", "key", key.String(), "events", len(events))
		return res, ErrStopPolling
	}

	for _, ev := range events {
		metrics.EventsIngested.WithLabelValues(string(ev.Type)).Inc()
	}
	p.sink.Emit(ctx, current, info, events)
	return res, ingestErr
}

// subscriptions returns the active subscriptions sharing the key of sub,
// newest first.
func (p *Poller) subscriptions(ctx context.Context, sub *domain.TrackedToken) ([]*domain.TrackedToken, error) {
	all, err := p.tokens.ListByDestination(ctx, sub.DestinationID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.TrackedToken, 0, 1)
	for _, t := range all {
		if t.Active && t.TokenAddress == sub.TokenAddress {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b *domain.TrackedToken) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// ingest pages the feed and returns the new events. When the feed fails part
// way through or a record cannot be handled, the events gathered so far are
// returned with the error and the cursor stops at the last handled record.
func (p *Poller) ingest(ctx context.Context, sub *domain.TrackedToken) (Result, []*domain.TransactionEvent, *domain.TokenInfo, error) {
	res := Result{Cursor: sub.Cursor}

	info, err := p.meta.GetTokenInfo(ctx, sub.TokenAddress)
	if err != nil {
		return res, nil, nil, fmt.Errorf("token info: %w", err)
	}
	decimals := market.UnknownDecimals
	var price float64
	if info.Found() {
		decimals = info.Decimals
		price = info.PriceUSD
	}

	q := feed.TransactionQuery{
		Token:          sub.TokenAddress,
		SinceSlot:      sub.Cursor.LastSeenSlot,
		SinceSignature: sub.Cursor.LastSeenSignature,
		Limit:          p.cfg.PageSize,
	}
	if !sub.Cursor.LastSeenAt.IsZero() {
		q.SinceBlockTime = sub.Cursor.LastSeenAt.Unix()
	}

	var events []*domain.TransactionEvent
	for {
		page, err := p.feed.FetchTransactions(ctx, q)
		if err != nil {
			return res, events, info, fmt.Errorf("fetch transactions: %w", err)
		}
		res.Pages++
		metrics.PollPages.Inc()

		for _, raw := range page.Transactions {
			res.Fetched++
			ev, err := p.process(ctx, sub, raw, decimals, price)
			if err != nil {
				// The cursor stays on the last handled record so this one is
				// fetched again next cycle.
				return res, events, info, err
			}
			var blockTime time.Time
			if raw.Timestamp > 0 {
				blockTime = time.Unix(raw.Timestamp, 0).UTC()
			}
			res.Cursor = res.Cursor.Advance(raw.Slot, blockTime, raw.Signature)
			if ev != nil {
				events = append(events, ev)
				res.New++
			}
		}

		if !page.Pagination.HasMore {
			return res, events, info, nil
		}
		if res.Pages >= p.cfg.MaxPages {
			res.Capped = true
			p.logger.Debug("Page cap reached, resuming next cycle",
				"destination", sub.DestinationID,
				"token", sub.TokenAddress,
				"pages", res.Pages,
			)
			return res, events, info, nil
		}
		q.PageToken = page.Pagination.Next
	}
}

// process turns one raw record into a new event. It returns nil for records
// that are skipped.
func (p *Poller) process(ctx context.Context, sub *domain.TrackedToken, raw feed.RawTransaction, decimals int, price float64) (*domain.TransactionEvent, error) {
	ev, err := classify.Normalize(raw, sub.TokenAddress, decimals)
	switch {
	case errors.Is(err, market.ErrUnknownDecimals):
		metrics.EventsSkipped.WithLabelValues("decimals_unknown").Inc()
		return nil, fmt.Errorf("normalize %s: %w", raw.Signature, err)
	case errors.Is(err, classify.ErrUnrelated):
		metrics.EventsSkipped.WithLabelValues("other_mint").Inc()
		return nil, nil
	case err != nil:
		metrics.EventsSkipped.WithLabelValues("malformed").Inc()
		p.logger.Warn("Skipping malformed record", "token", sub.TokenAddress, "signature", raw.Signature, "error", err)
		return nil, nil
	}

	p.classifier.Classify(ev)
	ev.AmountUSD = classify.USDValue(ev.Amount, price)

	inserted, err := p.events.Record(ctx, sub.DestinationID, ev)
	if err != nil {
		return nil, fmt.Errorf("record event %s: %w", ev.Signature, err)
	}
	if !inserted {
		metrics.EventsSkipped.WithLabelValues("duplicate").Inc()
		return nil, nil
	}
	return ev, nil
}
