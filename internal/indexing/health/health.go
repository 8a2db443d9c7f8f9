// Package health provides system health monitoring and status reporting.
package health

import (
	"context"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/cache"
	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/notify"
	"github.com/cenetex/cosyworld-sub000/internal/reaction"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the result of one dependency check.
type ComponentHealth struct {
	Name      string       `json:"name"`
	Status    SystemStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	LatencyMS int64        `json:"latency_ms"`
}

// Stats is the engine state included in the detailed report.
type Stats struct {
	Subscriptions      int                    `json:"subscriptions"`
	ActivePollers      int                    `json:"active_pollers"`
	AggregationBuckets int                    `json:"aggregation_buckets"`
	PendingReactions   int                    `json:"pending_reactions"`
	Notifications      notify.MetricsSnapshot `json:"notifications"`
	MetadataCache      cache.Stats            `json:"metadata_cache"`
	RecentSkips        []reaction.SkipRecord  `json:"recent_skips,omitempty"`
}

// SubscriptionStatus is one row of the subscriptions listing.
type SubscriptionStatus struct {
	ID                string          `json:"id"`
	Destination       string          `json:"destination"`
	Token             string          `json:"token"`
	Platform          domain.Platform `json:"platform"`
	Scope             domain.Scope    `json:"scope"`
	Polling           bool            `json:"polling"`
	ConsecutiveErrors int             `json:"consecutive_errors"`
	Cursor            domain.Cursor   `json:"cursor"`
	LastPriceUSD      float64         `json:"last_price_usd"`
	LastMarketCapUSD  float64         `json:"last_market_cap_usd"`
}

// Source exposes the engine state to the monitor and the server.
type Source interface {
	Stats(ctx context.Context) (Stats, error)
	Subscriptions(ctx context.Context) ([]SubscriptionStatus, error)
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Components   map[string]ComponentHealth `json:"components"`
	Stats        *Stats                     `json:"stats,omitempty"`
	CheckedAt    time.Time                  `json:"checked_at"`
}
