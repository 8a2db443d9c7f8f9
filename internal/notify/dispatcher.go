package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

// Captioner produces optional enrichment text for a notification.
type Captioner interface {
	Caption(ctx context.Context, n Notification) (string, error)
}

// IdentityResolver maps a wallet to a known participant.
type IdentityResolver interface {
	Resolve(ctx context.Context, wallet string) (*domain.Participant, bool)
}

// Dispatcher renders notifications and delivers them within posting limits.
type Dispatcher struct {
	renderer   *Renderer
	limiter    *PostLimiter
	metrics    *Metrics
	channels   map[domain.Platform]Channel
	fallback   Channel
	captioner  Captioner
	identities IdentityResolver
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChannel routes a platform to ch.
func WithChannel(platform domain.Platform, ch Channel) Option {
	return func(d *Dispatcher) { d.channels[platform] = ch }
}

// WithFallback sets the channel used for platforms without a route.
func WithFallback(ch Channel) Option {
	return func(d *Dispatcher) { d.fallback = ch }
}

func WithCaptioner(c Captioner) Option {
	return func(d *Dispatcher) { d.captioner = c }
}

func WithIdentities(r IdentityResolver) Option {
	return func(d *Dispatcher) { d.identities = r }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(renderer *Renderer, limiter *PostLimiter, m *Metrics, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = NewMetrics()
	}
	d := &Dispatcher{
		renderer: renderer,
		limiter:  limiter,
		metrics:  m,
		channels: make(map[domain.Platform]Channel),
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Metrics returns the dispatcher counters.
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// Dispatch renders and delivers n. Rate-limited posts are dropped, never queued.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) Outcome {
	out := d.dispatch(ctx, n)
	d.metrics.record(out, d.now())

	attrs := []any{"kind", n.Kind, "destination", n.Destination(), "status", out.Status}
	switch out.Status {
	case StatusDropped:
		d.logger.Debug("Notification dropped", append(attrs, "reason", out.Reason)...)
	case StatusFailed:
		d.logger.Warn("Notification failed", append(attrs, "error", out.Err)...)
	default:
		d.logger.Debug("Notification posted", append(attrs, "channel", out.Receipt.Channel, "message_id", out.Receipt.MessageID)...)
	}
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, n Notification) Outcome {
	sub := n.Subscription
	if sub == nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("notification without subscription")}
	}

	if n.Kind == KindSwap && sub.Preferences.MinNotifyUSD > 0 && n.ValueUSD() < sub.Preferences.MinNotifyUSD {
		return Outcome{Status: StatusDropped, Reason: ReasonBelowMinUSD}
	}

	ch := d.channels[sub.Platform]
	if ch == nil {
		ch = d.fallback
	}
	if ch == nil {
		return Outcome{Status: StatusDropped, Reason: ReasonNoChannel}
	}

	// A deactivation notice is sent once and must not be lost to the limiter.
	var reservation *Reservation
	if n.Kind != KindDeactivation && d.limiter != nil {
		r, reason, err := d.limiter.Acquire(ctx, sub)
		if err != nil {
			return Outcome{Status: StatusDropped, Reason: ReasonLimiter, Err: err}
		}
		if reason != "" {
			return Outcome{Status: StatusDropped, Reason: reason}
		}
		reservation = r
	}

	var caption string
	if d.captioner != nil && n.Kind != KindDeactivation {
		text, err := d.captioner.Caption(ctx, n)
		if err != nil {
			d.logger.Warn("Caption enrichment failed, posting without it", "destination", sub.DestinationID, "error", err)
		} else {
			caption = text
		}
	}

	sender, recipient := d.parties(ctx, n)
	msg := d.renderer.Render(n, sender, recipient, caption)

	receipt, err := ch.Send(ctx, msg)
	if err != nil {
		if relErr := d.limiter.Release(ctx, reservation); relErr != nil {
			d.logger.Warn("Failed to release posting slot", "error", relErr)
		}
		return Outcome{Status: StatusFailed, Err: err}
	}
	return Outcome{Status: StatusPosted, Receipt: receipt}
}

func (d *Dispatcher) parties(ctx context.Context, n Notification) (Identity, Identity) {
	var sender, recipient string
	switch {
	case n.Summary != nil:
		sender, recipient = n.Summary.Sender, n.Summary.Recipient
	case n.Event != nil:
		sender, recipient = n.Event.Sender, n.Event.Recipient
	}
	return d.identity(ctx, sender), d.identity(ctx, recipient)
}

func (d *Dispatcher) identity(ctx context.Context, wallet string) Identity {
	id := Identity{Address: wallet}
	if d.identities == nil || wallet == "" {
		return id
	}
	if p, ok := d.identities.Resolve(ctx, wallet); ok {
		id.Name = p.Name
		id.Emoji = p.Emoji
	}
	return id
}

// HTTPCaptioner asks an external enrichment endpoint for caption text.
type HTTPCaptioner struct {
	url    string
	client *http.Client
}

func NewHTTPCaptioner(url string, timeout time.Duration) *HTTPCaptioner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPCaptioner{url: url, client: &http.Client{Timeout: timeout}}
}

func (c *HTTPCaptioner) Caption(ctx context.Context, n Notification) (string, error) {
	payload := map[string]any{
		"kind":      n.Kind,
		"token":     n.Subscription.TokenAddress,
		"value_usd": n.ValueUSD(),
	}
	if n.Info != nil {
		payload["symbol"] = n.Info.Symbol
	}
	if n.Event != nil {
		payload["direction"] = n.Event.Direction
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("caption request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("caption service returned %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode caption: %w", err)
	}
	return out.Text, nil
}
