package health

import (
	"context"
	"sync"
	"time"
)

// Dependency is one external component the monitor checks. A critical failure marks the system critical,
// any other failure marks it degraded.
type Dependency struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	deps       []Dependency
	source     Source
	interval   time.Duration
	timeout    time.Duration
	now        func() time.Time
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. source may be nil.
func NewMonitor(source Source, deps ...Dependency) *Monitor {
	return &Monitor{
		deps:     deps,
		source:   source,
		interval: 10 * time.Second,
		timeout:  3 * time.Second,
		now:      time.Now,
	}
}

// CheckHealth runs every dependency, reusing the last report for a short interval.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering dependencies
	if m.lastReport != nil && m.now().Sub(m.lastCheck) < m.interval {
		return m.lastReport
	}

	report := &HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.deps)+1),
		CheckedAt:    m.now(),
	}

	for _, p := range m.deps {
		c := m.run(ctx, p)
		report.Components[p.Name] = c
		report.SystemStatus = worst(report.SystemStatus, c.Status)
	}

	if m.source != nil {
		stats, err := m.source.Stats(ctx)
		c := ComponentHealth{Name: "engine", Status: StatusHealthy}
		switch {
		case err != nil:
			c.Status = StatusDegraded
			c.Error = err.Error()
		case stats.Subscriptions > 0 && stats.ActivePollers == 0:
			c.Status = StatusDegraded
			c.Error = "no active pollers"
		}
		if err == nil {
			report.Stats = &stats
		}
		report.Components[c.Name] = c
		report.SystemStatus = worst(report.SystemStatus, c.Status)
	}

	m.lastCheck = report.CheckedAt
	m.lastReport = report
	return report
}

func (m *Monitor) run(ctx context.Context, p Dependency) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := m.now()
	err := p.Check(ctx)
	c := ComponentHealth{Name: p.Name, Status: StatusHealthy}
	c.LatencyMS = m.now().Sub(start).Milliseconds()
	if err != nil {
		c.Error = err.Error()
		c.Status = StatusDegraded
		if p.Critical {
			c.Status = StatusCritical
		}
	}
	return c
}

// worst returns the more severe of a and b.
func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
