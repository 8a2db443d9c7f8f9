package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/infra/storage"
)

type MemoryStorage struct {
	tokens map[string]*domain.TrackedToken // by id
	events map[string]map[string]recordedEvent
	mu     sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tokens: make(map[string]*domain.TrackedToken),
		events: make(map[string]map[string]recordedEvent),
	}
}

func clone(t *domain.TrackedToken) *domain.TrackedToken {
	c := *t
	c.Preferences.Buttons = append([]domain.ButtonTemplate(nil), t.Preferences.Buttons...)
	if t.DeactivatedAt != nil {
		at := *t.DeactivatedAt
		c.DeactivatedAt = &at
	}
	return &c
}

// -----------------------------------------------------------------------------
// Token Repository
// -----------------------------------------------------------------------------

type TokenRepo struct {
	store *MemoryStorage
	now   func() time.Time
}

func NewTokenRepo(store *MemoryStorage) *TokenRepo {
	return &TokenRepo{store: store, now: time.Now}
}

func (r *TokenRepo) Subscribe(ctx context.Context, token *domain.TrackedToken) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, t := range r.store.tokens {
		if t.Active &&
			t.Scope == token.Scope &&
			t.DestinationID == token.DestinationID &&
			t.TokenAddress == token.TokenAddress &&
			t.Platform == token.Platform {
			return storage.ErrAlreadySubscribed
		}
	}

	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	now := r.now()
	token.Active = true
	token.ConsecutiveErrors = 0
	token.CreatedAt = now
	token.UpdatedAt = now
	token.DeactivatedAt = nil
	token.DeactivationReason = ""
	r.store.tokens[token.ID] = clone(token)
	return nil
}

func (r *TokenRepo) Unsubscribe(ctx context.Context, destination, token string) (*domain.TrackedToken, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var removed *domain.TrackedToken
	now := r.now()
	for _, t := range r.store.tokens {
		if !t.Active || t.DestinationID != destination || t.TokenAddress != token {
			continue
		}
		t.Active = false
		t.DeactivatedAt = &now
		t.DeactivationReason = "unsubscribed"
		t.UpdatedAt = now
		if removed == nil || t.CreatedAt.After(removed.CreatedAt) {
			removed = t
		}
	}
	if removed == nil {
		return nil, storage.ErrNotFound
	}
	return clone(removed), nil
}

func (r *TokenRepo) Get(ctx context.Context, destination, token string) (*domain.TrackedToken, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var best *domain.TrackedToken
	for _, t := range r.store.tokens {
		if t.DestinationID != destination || t.TokenAddress != token {
			continue
		}
		// An active record wins, then the newest one.
		if best == nil ||
			(t.Active && !best.Active) ||
			(t.Active == best.Active && t.CreatedAt.After(best.CreatedAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return clone(best), nil
}

func (r *TokenRepo) ListByDestination(ctx context.Context, destination string) ([]*domain.TrackedToken, error) {
	return r.list(func(t *domain.TrackedToken) bool {
		return t.Active && t.DestinationID == destination
	}), nil
}

func (r *TokenRepo) ListActive(ctx context.Context) ([]*domain.TrackedToken, error) {
	return r.list(func(t *domain.TrackedToken) bool { return t.Active }), nil
}

func (r *TokenRepo) list(match func(*domain.TrackedToken) bool) []*domain.TrackedToken {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.TrackedToken
	for _, t := range r.store.tokens {
		if match(t) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *TokenRepo) UpdateCursor(ctx context.Context, id string, cursor domain.Cursor) (domain.Cursor, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t, ok := r.store.tokens[id]
	if !ok {
		return domain.Cursor{}, storage.ErrNotFound
	}
	t.Cursor = t.Cursor.Merge(cursor)
	t.UpdatedAt = r.now()
	return t.Cursor, nil
}

func (r *TokenRepo) UpdateErrorCount(ctx context.Context, id string, count int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t, ok := r.store.tokens[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.ConsecutiveErrors = count
	t.UpdatedAt = r.now()
	return nil
}

func (r *TokenRepo) UpdateSnapshot(ctx context.Context, id string, priceUSD, marketCapUSD float64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t, ok := r.store.tokens[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.LastPriceUSD = priceUSD
	t.LastMarketCapUSD = marketCapUSD
	t.UpdatedAt = r.now()
	return nil
}

func (r *TokenRepo) Deactivate(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t, ok := r.store.tokens[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if !t.Active {
		return false, nil
	}
	t.Active = false
	t.DeactivatedAt = &at
	t.DeactivationReason = reason
	t.UpdatedAt = at
	return true, nil
}

// -----------------------------------------------------------------------------
// Event Repository
// -----------------------------------------------------------------------------

type recordedEvent struct {
	event *domain.TransactionEvent
	at    time.Time
}

type EventRepo struct {
	store *MemoryStorage
	now   func() time.Time
}

func NewEventRepo(store *MemoryStorage) *EventRepo {
	return &EventRepo{store: store, now: time.Now}
}

func (r *EventRepo) Record(ctx context.Context, destination string, event *domain.TransactionEvent) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	byDest, ok := r.store.events[destination]
	if !ok {
		byDest = make(map[string]recordedEvent)
		r.store.events[destination] = byDest
	}
	if _, exists := byDest[event.Signature]; exists {
		return false, nil
	}
	c := *event
	byDest[event.Signature] = recordedEvent{event: &c, at: r.now()}
	return true, nil
}

func (r *EventRepo) Exists(ctx context.Context, destination, signature string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.events[destination][signature]
	return ok, nil
}

func (r *EventRepo) Count(ctx context.Context, destination string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.events[destination]), nil
}

func (r *EventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for dest, byDest := range r.store.events {
		for sig, rec := range byDest {
			if rec.at.Before(before) {
				delete(byDest, sig)
				n++
			}
		}
		if len(byDest) == 0 {
			delete(r.store.events, dest)
		}
	}
	return n, nil
}
