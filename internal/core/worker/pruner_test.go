package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

type stubEvents struct {
	before time.Time
	n      int64
	err    error
}

func (s *stubEvents) Record(ctx context.Context, destination string, ev *domain.TransactionEvent) (bool, error) {
	return true, nil
}

func (s *stubEvents) Exists(ctx context.Context, destination, signature string) (bool, error) {
	return false, nil
}

func (s *stubEvents) Count(ctx context.Context, destination string) (int, error) { return 0, nil }

func (s *stubEvents) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	s.before = before
	return s.n, s.err
}

func TestPruner_UsesRetentionThreshold(t *testing.T) {
	events := &stubEvents{n: 4}
	p := NewPruner(events, 24*time.Hour, nil)
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	assert.Equal(t, int64(4), p.Prune(context.Background()))
	assert.Equal(t, now.Add(-24*time.Hour), events.before)
}

func TestPruner_ErrorReturnsZero(t *testing.T) {
	p := NewPruner(&stubEvents{n: 3, err: errors.New("db down")}, time.Hour, nil)
	assert.Equal(t, int64(0), p.Prune(context.Background()))
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	events := &stubEvents{}
	p := NewPruner(events, 0, nil)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return with retention disabled")
	}
	assert.True(t, events.before.IsZero())
}
