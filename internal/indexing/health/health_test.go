package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

type stubSource struct {
	stats Stats
	err   error
	subs  []SubscriptionStatus
	calls int
}

func (s *stubSource) Stats(ctx context.Context) (Stats, error) {
	s.calls++
	return s.stats, s.err
}

func (s *stubSource) Subscriptions(ctx context.Context) ([]SubscriptionStatus, error) {
	return s.subs, s.err
}

func ok(ctx context.Context) error { return nil }

func failing(ctx context.Context) error { return errors.New("connection refused") }

func TestMonitor_Statuses(t *testing.T) {
	tests := []struct {
		name  string
		deps  []Dependency
		stats Stats
		want  SystemStatus
	}{
		{"all healthy", []Dependency{{Name: "database", Critical: true, Check: ok}}, Stats{Subscriptions: 1, ActivePollers: 1}, StatusHealthy},
		{"critical dependency fails", []Dependency{{Name: "database", Critical: true, Check: failing}}, Stats{}, StatusCritical},
		{"optional dependency fails", []Dependency{{Name: "redis", Check: failing}}, Stats{}, StatusDegraded},
		{"subscriptions without pollers", nil, Stats{Subscriptions: 2}, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(&stubSource{stats: tt.stats}, tt.deps...)
			report := m.CheckHealth(context.Background())
			assert.Equal(t, tt.want, report.SystemStatus)
			assert.Contains(t, report.Components, "engine")
		})
	}
}

func TestMonitor_CachesReport(t *testing.T) {
	src := &stubSource{}
	m := NewMonitor(src)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	m.CheckHealth(context.Background())
	m.CheckHealth(context.Background())
	assert.Equal(t, 1, src.calls)

	now = now.Add(11 * time.Second)
	m.CheckHealth(context.Background())
	assert.Equal(t, 2, src.calls)
}

func TestServer_Endpoints(t *testing.T) {
	src := &stubSource{
		stats: Stats{Subscriptions: 1, ActivePollers: 1},
		subs: []SubscriptionStatus{
			{ID: "1", Destination: "chat-a", Token: "T1", Platform: domain.PlatformTelegram, Polling: true},
			{ID: "2", Destination: "chat-b", Token: "T2", Platform: domain.PlatformDiscord},
		},
	}
	srv := NewServer(NewMonitor(src, Dependency{Name: "database", Critical: true, Check: ok}), src, 0)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/health/detailed")
	require.NoError(t, err)
	var report HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	require.NotNil(t, report.Stats)
	assert.Equal(t, 1, report.Stats.ActivePollers)

	resp, err = http.Get(ts.URL + "/subscriptions?destination=chat-b")
	require.NoError(t, err)
	var subs []SubscriptionStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&subs))
	resp.Body.Close()
	require.Len(t, subs, 1)
	assert.Equal(t, "T2", subs[0].Token)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CriticalReturns503(t *testing.T) {
	srv := NewServer(NewMonitor(nil, Dependency{Name: "database", Critical: true, Check: failing}), nil, 0)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"critical"}`, rec.Body.String())
}
