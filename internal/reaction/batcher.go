package reaction

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/metrics"
)

// Config controls batching.
type Config struct {
	// Debounce is how long a destination stays quiet before its batch flushes.
	Debounce time.Duration `yaml:"debounce" default:"5s"`
	// Stagger separates consecutive reactions within one flush.
	Stagger     time.Duration `yaml:"stagger" default:"2s"`
	SkipHistory int           `yaml:"skip_history" default:"100"`
	ReactorURL  string        `yaml:"reactor_url"`
}

// SkipRecord notes a participant that was not allowed to react.
type SkipRecord struct {
	Destination string    `json:"destination"`
	Participant string    `json:"participant"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

type entry struct {
	participant *domain.Participant
	roles       []domain.Role
	events      []*domain.TransactionEvent
	contexts    []string
}

type batch struct {
	entries map[string]*entry
	order   []string
	timer   *time.Timer
}

// Batcher accumulates reactions per destination behind a single debounce timer.
type Batcher struct {
	cfg      Config
	reactor  Reactor
	registry Registry
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	batches map[string]*batch
	skips   []SkipRecord
	skipPos int
}

// NewBatcher creates a batcher that sends flushed reactions to reactor. When
// registry is set, participant status is re-read at flush time.
func NewBatcher(cfg Config, reactor Reactor, registry Registry, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SkipHistory <= 0 {
		cfg.SkipHistory = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher{
		cfg:      cfg,
		reactor:  reactor,
		registry: registry,
		logger:   logger.With("component", "reaction_batcher"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		batches:  make(map[string]*batch),
	}
}

// Add records that participant took part in ev with role, and restarts the
// destination's debounce timer.
func (b *Batcher) Add(destination string, participant *domain.Participant, role domain.Role, ev *domain.TransactionEvent) {
	if participant == nil || ev == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	bt, ok := b.batches[destination]
	if !ok {
		bt = &batch{entries: make(map[string]*entry)}
		b.batches[destination] = bt
	}

	key := participant.ID
	if key == "" {
		key = participant.Wallet
	}
	e, ok := bt.entries[key]
	if !ok {
		e = &entry{participant: participant}
		bt.entries[key] = e
		bt.order = append(bt.order, key)
	}
	e.participant = participant
	if !slices.Contains(e.roles, role) {
		e.roles = append(e.roles, role)
	}
	e.events = append(e.events, ev)
	e.contexts = append(e.contexts, describe(role, ev))

	if bt.timer != nil {
		bt.timer.Stop()
	}
	bt.timer = time.AfterFunc(b.cfg.Debounce, func() {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		b.wg.Add(1)
		b.mu.Unlock()

		defer b.wg.Done()
		b.flush(b.ctx, destination, bt)
	})
}

// Flush dispatches the pending batch of destination immediately.
func (b *Batcher) Flush(ctx context.Context, destination string) {
	b.mu.Lock()
	bt := b.batches[destination]
	b.mu.Unlock()
	if bt != nil {
		b.flush(ctx, destination, bt)
	}
}

// Pending returns the number of destinations with a live batch.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches)
}

// Close stops all timers, flushes pending batches and waits for running
// flushes. Flushes still running when ctx ends are cancelled.
func (b *Batcher) Close(ctx context.Context) {
	b.mu.Lock()
	b.closed = true
	pending := make(map[string]*batch, len(b.batches))
	for dest, bt := range b.batches {
		if bt.timer != nil {
			bt.timer.Stop()
		}
		pending[dest] = bt
	}
	b.mu.Unlock()

	for dest, bt := range pending {
		b.flush(ctx, dest, bt)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.cancel()
		<-done
	}
	b.cancel()
}

// Skips returns recent skip records, oldest first.
func (b *Batcher) Skips() []SkipRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.skips) < b.cfg.SkipHistory {
		return slices.Clone(b.skips)
	}
	out := make([]SkipRecord, 0, len(b.skips))
	out = append(out, b.skips[b.skipPos:]...)
	out = append(out, b.skips[:b.skipPos]...)
	return out
}

func (b *Batcher) recordSkip(rec SkipRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.skips) < b.cfg.SkipHistory {
		b.skips = append(b.skips, rec)
		return
	}
	b.skips[b.skipPos] = rec
	b.skipPos = (b.skipPos + 1) % b.cfg.SkipHistory
}

// flush detaches bt from the destination, if it is still the live batch, and
// dispatches its reactions in arrival order.
func (b *Batcher) flush(ctx context.Context, destination string, bt *batch) {
	b.mu.Lock()
	if b.batches[destination] != bt {
		b.mu.Unlock()
		return
	}
	delete(b.batches, destination)
	if bt.timer != nil {
		bt.timer.Stop()
	}
	reactions := make([]Reaction, 0, len(bt.order))
	for _, key := range bt.order {
		reactions = append(reactions, merge(destination, bt.entries[key]))
	}
	b.mu.Unlock()

	first := true
	for _, r := range reactions {
		if b.registry != nil {
			if p, ok := b.registry.Resolve(ctx, r.Participant.Wallet); ok {
				r.Participant = p
			}
		}
		if ok, reason := r.Participant.Eligible(b.now()); !ok {
			b.recordSkip(SkipRecord{
				Destination: destination,
				Participant: r.Participant.DisplayName(),
				Reason:      reason,
				At:          b.now(),
			})
			metrics.Reactions.WithLabelValues("skipped").Inc()
			b.logger.Debug("Participant skipped", "destination", destination, "participant", r.Participant.Name, "reason", reason)
			continue
		}

		if !first && b.cfg.Stagger > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.cfg.Stagger):
			}
		}
		first = false

		if err := b.reactor.React(ctx, r); err != nil {
			metrics.Reactions.WithLabelValues("failed").Inc()
			b.logger.Warn("Reaction failed", "destination", destination, "participant", r.Participant.Name, "error", err)
			continue
		}
		metrics.Reactions.WithLabelValues("sent").Inc()
	}
}

// merge builds the reaction for one participant. A single event keeps its own
// context; several events get a summary listing roles and every constituent.
func merge(destination string, e *entry) Reaction {
	r := Reaction{
		Destination: destination,
		Participant: e.participant,
		Roles:       slices.Clone(e.roles),
		Events:      slices.Clone(e.events),
	}
	if len(e.contexts) == 1 {
		r.Context = e.contexts[0]
		return r
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d recent events as %s:", len(e.contexts), joinRoles(e.roles))
	for i, c := range e.contexts {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, c)
	}
	r.Context = sb.String()
	return r
}
