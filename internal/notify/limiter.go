package notify

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

// Window is the rolling window the hourly cap applies to.
const Window = time.Hour

// Policy bounds posting for one scope. Zero values disable a check.
type Policy struct {
	HourlyCap   int           `yaml:"hourly_cap"`
	MinInterval time.Duration `yaml:"min_interval"`
}

// Enabled reports whether the policy constrains anything.
func (p Policy) Enabled() bool {
	return p.HourlyCap > 0 || p.MinInterval > 0
}

// WindowStore records posts in a rolling window. Reserve checks and records
// atomically; a non-empty reason means the post was refused.
type WindowStore interface {
	Reserve(ctx context.Context, scope string, now time.Time, window time.Duration, limit int, minInterval time.Duration) (reason, token string, err error)
	Release(ctx context.Context, scope, token string) error
}

// Reservation is a granted posting slot.
type Reservation struct {
	scope string
	token string
}

// PostLimiter enforces posting policies per scope. Globally shared destinations
// use one window for all subscriptions; per-destination ones get a window each.
type PostLimiter struct {
	store    WindowStore
	policies map[domain.Scope]Policy
	now      func() time.Time
}

// NewPostLimiter creates a limiter over store with a policy per scope.
func NewPostLimiter(store WindowStore, policies map[domain.Scope]Policy) *PostLimiter {
	if store == nil {
		store = NewMemoryWindow()
	}
	return &PostLimiter{store: store, policies: policies, now: time.Now}
}

func scopeKey(sub *domain.TrackedToken) string {
	if sub.Scope == domain.ScopeGlobal {
		return "global"
	}
	return "destination:" + sub.DestinationID
}

// Acquire reserves a posting slot for sub. A non-empty reason means the post
// must be dropped.
func (l *PostLimiter) Acquire(ctx context.Context, sub *domain.TrackedToken) (*Reservation, string, error) {
	policy, ok := l.policies[sub.Scope]
	if !ok || !policy.Enabled() {
		return nil, "", nil
	}
	scope := scopeKey(sub)
	reason, token, err := l.store.Reserve(ctx, scope, l.now(), Window, policy.HourlyCap, policy.MinInterval)
	if err != nil || reason != "" {
		return nil, reason, err
	}
	return &Reservation{scope: scope, token: token}, "", nil
}

// Release gives back a slot whose post was not delivered.
func (l *PostLimiter) Release(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	return l.store.Release(ctx, r.scope, r.token)
}

type post struct {
	at    time.Time
	token string
}

// MemoryWindow is an in-process WindowStore.
type MemoryWindow struct {
	mu    sync.Mutex
	posts map[string][]post
	seq   uint64
}

func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{posts: make(map[string][]post)}
}

func (m *MemoryWindow) Reserve(ctx context.Context, scope string, now time.Time, window time.Duration, limit int, minInterval time.Duration) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	kept := m.posts[scope][:0]
	for _, p := range m.posts[scope] {
		if p.at.After(cutoff) {
			kept = append(kept, p)
		}
	}
	m.posts[scope] = kept

	if limit > 0 && len(kept) >= limit {
		return ReasonHourlyCap, "", nil
	}
	if minInterval > 0 && len(kept) > 0 && now.Sub(kept[len(kept)-1].at) < minInterval {
		return ReasonMinInterval, "", nil
	}

	m.seq++
	token := strconv.FormatUint(m.seq, 10)
	m.posts[scope] = append(kept, post{at: now, token: token})
	return "", token, nil
}

func (m *MemoryWindow) Release(ctx context.Context, scope, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	posts := m.posts[scope]
	for i, p := range posts {
		if p.token == token {
			m.posts[scope] = append(posts[:i], posts[i+1:]...)
			return nil
		}
	}
	return nil
}
