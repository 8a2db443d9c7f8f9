package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

type countingRunner struct {
	mu     sync.Mutex
	counts map[domain.TokenKey]int
	stopAt int
}

func (r *countingRunner) Cycle(ctx context.Context, key domain.TokenKey) (Result, error) {
	r.mu.Lock()
	r.counts[key]++
	c := r.counts[key]
	r.mu.Unlock()

	if r.stopAt > 0 && c >= r.stopAt {
		return Result{}, ErrStopPolling
	}
	return Result{}, nil
}

func (r *countingRunner) count(key domain.TokenKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	r := &countingRunner{counts: map[domain.TokenKey]int{}}
	s := New(r, time.Hour, nil)
	defer s.StopAll()

	assert.True(t, s.Start("chat", "tok"))
	assert.False(t, s.Start("chat", "tok"))
	assert.Len(t, s.Keys(), 1)

	key := domain.TokenKey{Destination: "chat", Token: "tok"}
	require.Eventually(t, func() bool { return r.count(key) == 1 }, time.Second, time.Millisecond)
}

func TestScheduler_StopWaitsForLoop(t *testing.T) {
	r := &countingRunner{counts: map[domain.TokenKey]int{}}
	s := New(r, time.Millisecond, nil)
	key := domain.TokenKey{Destination: "chat", Token: "tok"}

	s.Start("chat", "tok")
	require.Eventually(t, func() bool { return r.count(key) >= 3 }, time.Second, time.Millisecond)

	assert.True(t, s.Stop("chat", "tok"))
	after := r.count(key)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, r.count(key), "no cycle runs after Stop returns")
	assert.False(t, s.Stop("chat", "tok"))
	assert.False(t, s.Running("chat", "tok"))
}

func TestScheduler_IndependentLoops(t *testing.T) {
	r := &countingRunner{counts: map[domain.TokenKey]int{}}
	s := New(r, time.Millisecond, nil)

	s.Start("a", "tok")
	s.Start("b", "tok")
	s.Start("a", "other")

	for _, key := range s.Keys() {
		require.Eventually(t, func() bool { return r.count(key) >= 2 }, time.Second, time.Millisecond)
	}
	s.StopAll()
	assert.Empty(t, s.Keys())
}

func TestScheduler_RunnerCanEndLoop(t *testing.T) {
	r := &countingRunner{counts: map[domain.TokenKey]int{}, stopAt: 2}
	s := New(r, time.Millisecond, nil)
	key := domain.TokenKey{Destination: "chat", Token: "tok"}

	s.Start("chat", "tok")
	require.Eventually(t, func() bool { return !s.Running("chat", "tok") }, time.Second, time.Millisecond)
	assert.Equal(t, 2, r.count(key))

	assert.True(t, s.Start("chat", "tok"), "a finished loop can be started again")
	s.StopAll()
}

func TestScheduler_BindCancelsLoops(t *testing.T) {
	r := &countingRunner{counts: map[domain.TokenKey]int{}}
	s := New(r, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Bind(ctx)

	s.Start("chat", "tok")
	cancel()
	s.StopAll()
	assert.False(t, s.Running("chat", "tok"))
}
