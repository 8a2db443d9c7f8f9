// Package scheduler runs one independent polling loop per tracked
// (destination, token) pair and drives the ingest cycle of each.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/metrics"
)

// ErrStopPolling is returned by a cycle when its loop must end, because the
// subscription is gone or was deactivated.
var ErrStopPolling = errors.New("stop polling")

// Runner executes one poll cycle for a key.
type Runner interface {
	Cycle(ctx context.Context, key domain.TokenKey) (Result, error)
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns the recurring polling tasks.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	tasks map[domain.TokenKey]*task
	base  context.Context
}

// New creates a scheduler that runs runner every interval for each started key.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
		tasks:    make(map[domain.TokenKey]*task),
		base:     context.Background(),
	}
}

// Bind sets the parent context for tasks started afterwards.
func (s *Scheduler) Bind(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = ctx
}

// Start begins polling key. It is a no-op when key is already polled.
func (s *Scheduler) Start(destination, token string) bool {
	key := domain.TokenKey{Destination: destination, Token: token}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[key]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(s.base)
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[key] = t
	metrics.ActivePollers.Inc()

	go s.loop(ctx, key, t)
	s.logger.Info("Polling started", "key", key.String(), "interval", s.interval)
	return true
}

// Stop cancels polling of key and waits for its loop to exit. It must not be
// called from inside a cycle of the same key.
func (s *Scheduler) Stop(destination, token string) bool {
	key := domain.TokenKey{Destination: destination, Token: token}

	s.mu.Lock()
	t, ok := s.tasks[key]
	if ok {
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	metrics.ActivePollers.Dec()
	s.logger.Info("Polling stopped", "key", key.String())
	return true
}

// StopAll cancels every loop and waits for them to exit.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[domain.TokenKey]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
		metrics.ActivePollers.Dec()
	}
	if len(tasks) > 0 {
		s.logger.Info("All polling stopped", "count", len(tasks))
	}
}

// Running reports whether key is being polled.
func (s *Scheduler) Running(destination, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[domain.TokenKey{Destination: destination, Token: token}]
	return ok
}

// Keys returns the polled keys.
func (s *Scheduler) Keys() []domain.TokenKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]domain.TokenKey, 0, len(s.tasks))
	for k := range s.tasks {
		keys = append(keys, k)
	}
	return keys
}

func (s *Scheduler) loop(ctx context.Context, key domain.TokenKey, t *task) {
	defer close(t.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		_, err := s.runner.Cycle(ctx, key)
		switch {
		case errors.Is(err, ErrStopPolling):
			s.detach(key, t)
			return
		case err != nil && ctx.Err() == nil:
			s.logger.Warn("Poll cycle failed", "key", key.String(), "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// detach removes a loop that ended by itself.
func (s *Scheduler) detach(key domain.TokenKey, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[key] == t {
		delete(s.tasks, key)
		t.cancel()
		metrics.ActivePollers.Dec()
		s.logger.Info("Polling ended", "key", key.String())
	}
}
