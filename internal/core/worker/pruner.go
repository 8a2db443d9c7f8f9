package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/infra/storage"
)

// Pruner deletes processed events older than the retention period. The cursor
// keeps pruned signatures from being fetched again.
type Pruner struct {
	events    storage.EventRepository
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(events storage.EventRepository, retention time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		events:    events,
		retention: retention,
		logger:    logger.With("component", "pruner"),
		now:       time.Now,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes events recorded before now minus the retention period.
func (p *Pruner) Prune(ctx context.Context) int64 {
	threshold := p.now().Add(-p.retention)

	n, err := p.events.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.logger.Error("Failed to prune events", "before", threshold, "error", err)
		return 0
	}
	if n > 0 {
		p.logger.Info("Pruned processed events", "count", n, "before", threshold)
	}
	return n
}
