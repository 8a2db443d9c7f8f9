// Package reaction batches participant reactions to token activity per
// destination so a burst of trades yields one reply per participant.
package reaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/market"
)

// Registry resolves wallets to participants.
type Registry interface {
	Resolve(ctx context.Context, wallet string) (*domain.Participant, bool)
}

// Reaction is one merged reaction request for a participant.
type Reaction struct {
	Destination string                     `json:"destination"`
	Participant *domain.Participant        `json:"participant"`
	Roles       []domain.Role              `json:"roles"`
	Events      []*domain.TransactionEvent `json:"events"`
	Context     string                     `json:"context"`
}

// Reactor produces a participant's reply.
type Reactor interface {
	React(ctx context.Context, r Reaction) error
}

// Party is a wallet taking part in an event.
type Party struct {
	Wallet string
	Role   domain.Role
}

// Parties returns the wallets of ev with their roles. For swaps the side that
// received the tracked token is the buyer.
func Parties(ev *domain.TransactionEvent) []Party {
	var out []Party
	add := func(wallet string, role domain.Role) {
		if wallet != "" {
			out = append(out, Party{Wallet: wallet, Role: role})
		}
	}
	if ev.Type == domain.EventTypeSwap {
		add(ev.Recipient, domain.RoleBuyer)
		add(ev.Sender, domain.RoleSeller)
	} else {
		add(ev.Sender, domain.RoleSender)
		add(ev.Recipient, domain.RoleRecipient)
	}
	return out
}

// describe renders the context line for a single event.
func describe(role domain.Role, ev *domain.TransactionEvent) string {
	return fmt.Sprintf("%s of %s %s ($%.2f) in %s",
		role, ev.Amount.String(), market.ShortAddress(ev.Mint), ev.AmountUSD, market.ShortAddress(ev.Signature))
}

// StaticRegistry is a Registry backed by a fixed participant list.
type StaticRegistry struct {
	mu       sync.RWMutex
	byWallet map[string]*domain.Participant
}

func NewStaticRegistry(participants []domain.Participant) *StaticRegistry {
	r := &StaticRegistry{byWallet: make(map[string]*domain.Participant, len(participants))}
	for i := range participants {
		p := participants[i]
		if p.Status == "" {
			p.Status = domain.ParticipantAlive
		}
		r.byWallet[p.Wallet] = &p
	}
	return r
}

// Resolve returns a copy of the participant bound to wallet.
func (r *StaticRegistry) Resolve(ctx context.Context, wallet string) (*domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byWallet[wallet]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// SetStatus updates the status of the participant bound to wallet.
func (r *StaticRegistry) SetStatus(wallet string, status domain.ParticipantStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byWallet[wallet]
	if ok {
		p.Status = status
	}
	return ok
}

// Suppress keeps the participant from reacting until the given time.
func (r *StaticRegistry) Suppress(wallet string, until time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byWallet[wallet]
	if ok {
		p.SuppressedUntil = until
	}
	return ok
}

func (r *StaticRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byWallet)
}

// LogReactor logs reactions instead of producing replies.
type LogReactor struct {
	logger *slog.Logger
}

func NewLogReactor(logger *slog.Logger) *LogReactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReactor{logger: logger.With("component", "reactor")}
}

func (l *LogReactor) React(ctx context.Context, r Reaction) error {
	l.logger.Info("Participant reaction",
		"destination", r.Destination,
		"participant", r.Participant.DisplayName(),
		"events", len(r.Events),
		"context", r.Context,
	)
	return nil
}

// WebhookReactor forwards reactions to an HTTP endpoint that generates replies.
type WebhookReactor struct {
	url    string
	client *http.Client
}

func NewWebhookReactor(url string, timeout time.Duration) *WebhookReactor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookReactor{url: url, client: &http.Client{Timeout: timeout}}
}

func (w *WebhookReactor) React(ctx context.Context, r Reaction) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reaction: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create reaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send reaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reactor returned status %d", resp.StatusCode)
	}
	return nil
}

func joinRoles(roles []domain.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
