package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCycles tracks poll cycles per outcome (ok, empty, error, capped)
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_poll_cycles_total",
			Help: "Total number of poll cycles",
		},
		[]string{"outcome"},
	)

	// PollPages tracks feed pages fetched
	PollPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenwatch_poll_pages_total",
			Help: "Total number of transaction feed pages fetched",
		},
	)

	// EventsIngested tracks new events per type
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_events_ingested_total",
			Help: "Total number of new transaction events ingested",
		},
		[]string{"type"},
	)

	// EventsSkipped tracks skipped records per reason (duplicate, malformed, other_mint)
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_events_skipped_total",
			Help: "Total number of skipped transaction records",
		},
		[]string{"reason"},
	)

	// ActivePollers tracks the number of running polling loops
	ActivePollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenwatch_active_pollers",
			Help: "Number of running polling loops",
		},
	)

	// Deactivations tracks subscriptions deactivated by the lifecycle manager
	Deactivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenwatch_deactivations_total",
			Help: "Total number of subscriptions deactivated after repeated errors",
		},
	)

	// FeedRequests tracks upstream feed calls per feed and status
	FeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_feed_requests_total",
			Help: "Total number of upstream feed requests",
		},
		[]string{"feed", "status"},
	)

	// FeedLatency tracks upstream feed latency
	FeedLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenwatch_feed_latency_seconds",
			Help:    "Upstream feed latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"feed"},
	)

	// CacheLookups tracks cache lookups per cache and result (hit, miss)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache", "result"},
	)

	// AggregationOutcomes tracks aggregator decisions
	AggregationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_aggregation_outcomes_total",
			Help: "Total number of transfer aggregation decisions",
		},
		[]string{"outcome"},
	)

	// AggregationBuckets tracks live aggregation buckets
	AggregationBuckets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenwatch_aggregation_buckets",
			Help: "Number of live aggregation buckets",
		},
	)

	// Notifications tracks notification outcomes (posted, dropped, failed) per reason
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_notifications_total",
			Help: "Total number of notification attempts by outcome",
		},
		[]string{"outcome", "reason"},
	)

	// Reactions tracks reaction dispatches (sent, skipped, failed)
	Reactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenwatch_reactions_total",
			Help: "Total number of participant reactions",
		},
		[]string{"outcome"},
	)

	// DBConnectionPoolUsage tracks the percentage of used database connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokenwatch_db_connection_pool_usage_percent",
			Help: "Percentage of database connections in use",
		},
	)
)
