package notify

import (
	"sync"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/indexing/metrics"
)

// MetricsSnapshot is a point-in-time copy of the dispatcher counters.
type MetricsSnapshot struct {
	Attempts    int64            `json:"attempts"`
	Posted      int64            `json:"posted"`
	Failed      int64            `json:"failed"`
	Dropped     map[string]int64 `json:"dropped"`
	LastStatus  Status           `json:"last_status,omitempty"`
	LastReason  string           `json:"last_reason,omitempty"`
	LastAttempt time.Time        `json:"last_attempt,omitempty"`
}

// Metrics records dispatch outcomes for observability.
type Metrics struct {
	mu   sync.Mutex
	snap MetricsSnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{snap: MetricsSnapshot{Dropped: make(map[string]int64)}}
}

func (m *Metrics) record(o Outcome, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.Attempts++
	switch o.Status {
	case StatusPosted:
		m.snap.Posted++
	case StatusDropped:
		m.snap.Dropped[o.Reason]++
	case StatusFailed:
		m.snap.Failed++
	}
	m.snap.LastStatus = o.Status
	m.snap.LastReason = o.Reason
	m.snap.LastAttempt = at

	metrics.Notifications.WithLabelValues(string(o.Status), o.Reason).Inc()
}

// Snapshot returns a copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snap
	out.Dropped = make(map[string]int64, len(m.snap.Dropped))
	for k, v := range m.snap.Dropped {
		out.Dropped[k] = v
	}
	return out
}
