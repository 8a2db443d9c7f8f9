package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cenetex/cosyworld-sub000/internal/core/config"
	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/core/worker"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/aggregate"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/health"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/scheduler"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
	"github.com/cenetex/cosyworld-sub000/internal/infra/storage"
	"github.com/cenetex/cosyworld-sub000/internal/market"
	"github.com/cenetex/cosyworld-sub000/internal/notify"
	"github.com/cenetex/cosyworld-sub000/internal/reaction"
)

var (
	// ErrInvalidRequest is returned for a subscription request missing a destination or token.
	ErrInvalidRequest = errors.New("destination and token are required")

	// ErrStopped is returned by Start on an engine that was already stopped.
	ErrStopped = errors.New("engine stopped")

	// ErrNoWalletFeed is returned by wallet queries when no wallet feed is configured.
	ErrNoWalletFeed = errors.New("wallet feed not configured")
)

const queueSize = 256

// Deps are the external collaborators of an Engine.
type Deps struct {
	Tokens       storage.TokenRepository
	Events       storage.EventRepository
	Transactions feed.TransactionFeed
	Prices       feed.PriceFeed
	// Wallets is optional; wallet queries fail without it.
	Wallets   feed.WalletFeed
	Window    notify.WindowStore
	Channels  map[domain.Platform]notify.Channel
	Fallback  notify.Channel
	Captioner notify.Captioner
	Registry  reaction.Registry
	Reactor   reaction.Reactor
	// Dependencies are reported by the health server.
	Dependencies []health.Dependency
	// Background runs alongside the engine until it stops.
	Background []func(ctx context.Context)
	// Closers are called once when the engine stops.
	Closers []func() error
}

// SubscribeRequest asks to start tracking a token for a destination.
type SubscribeRequest struct {
	Destination string
	Token       string
	Platform    domain.Platform
	Scope       domain.Scope
	Preferences domain.Preferences
}

type swapJob struct {
	sub   *domain.TrackedToken
	info  *domain.TokenInfo
	event *domain.TransactionEvent
}

type summaryJob struct {
	sub     *domain.TrackedToken
	info    *domain.TokenInfo
	summary *domain.Summary
}

// Engine wires polling, aggregation, notification and reactions together and
// exposes the subscription API.
type Engine struct {
	cfg        *config.AppConfig
	tokens     storage.TokenRepository
	meta       *market.MetadataCache
	wallets    *market.WalletInsightsCache
	aggregator *aggregate.Aggregator
	dispatcher *notify.Dispatcher
	batcher    *reaction.Batcher
	registry   reaction.Registry
	lifecycle  *scheduler.Lifecycle
	scheduler  *scheduler.Scheduler
	monitor    *health.Monitor
	server     *health.Server
	background []func(ctx context.Context)
	closers    []func() error
	log        *slog.Logger
	now        func() time.Time

	// Swaps and transfers are produced by poll loops; summaries by the transfer consumer.
	swaps     chan swapJob
	transfers chan swapJob
	summaries chan summaryJob

	mu        sync.Mutex
	running   bool
	stopped   bool
	cancel    context.CancelFunc
	consumers *errgroup.Group
	bg        *errgroup.Group
	closeOnce sync.Once
}

// NewEngine builds an engine from configuration and its collaborators.
func NewEngine(cfg *config.AppConfig, deps Deps, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Tokens == nil || deps.Events == nil {
		return nil, errors.New("token and event repositories are required")
	}
	if deps.Transactions == nil || deps.Prices == nil {
		return nil, errors.New("transaction and price feeds are required")
	}

	e := &Engine{
		cfg:        cfg,
		tokens:     deps.Tokens,
		registry:   deps.Registry,
		background: deps.Background,
		closers:    deps.Closers,
		log:        logger.With("component", "engine"),
		now:        time.Now,
		swaps:      make(chan swapJob, queueSize),
		transfers:  make(chan swapJob, queueSize),
		summaries:  make(chan summaryJob, queueSize),
	}

	e.meta = market.NewMetadataCache(deps.Prices, market.MetadataConfig{
		TTL:         cfg.Cache.MetadataTTL,
		NegativeTTL: cfg.Cache.NegativeTTL,
		MaxEntries:  cfg.Cache.MaxTokens,
	}, logger)
	if deps.Wallets != nil {
		e.wallets = market.NewWalletInsightsCache(deps.Wallets, e.meta, market.WalletConfig{
			TTL:              cfg.Cache.WalletTTL,
			MaxWallets:       cfg.Cache.MaxWallets,
			PriceLookupLimit: cfg.Cache.PriceLookupLimit,
		}, logger)
	}

	e.aggregator = aggregate.New(cfg.Aggregation.Window, logger)

	limiter := notify.NewPostLimiter(deps.Window, map[domain.Scope]notify.Policy{
		domain.ScopeGlobal: {
			HourlyCap:   cfg.Notify.GlobalHourlyCap,
			MinInterval: cfg.Notify.GlobalMinInterval,
		},
		domain.ScopeDestination: {
			HourlyCap:   cfg.Notify.DestinationHourlyCap,
			MinInterval: cfg.Notify.DestinationMinInterval,
		},
	})
	renderer := notify.NewRenderer(notify.RenderConfig{
		EmojiStepUSD: cfg.Notify.EmojiStepUSD,
		MaxEmojis:    cfg.Notify.MaxEmojis,
	})
	opts := make([]notify.Option, 0, len(deps.Channels)+3)
	for platform, ch := range deps.Channels {
		opts = append(opts, notify.WithChannel(platform, ch))
	}
	fallback := deps.Fallback
	if fallback == nil {
		fallback = notify.NewLogChannel(logger)
	}
	opts = append(opts, notify.WithFallback(fallback))
	if deps.Captioner != nil {
		opts = append(opts, notify.WithCaptioner(deps.Captioner))
	}
	if deps.Registry != nil {
		opts = append(opts, notify.WithIdentities(deps.Registry))
	}
	e.dispatcher = notify.NewDispatcher(renderer, limiter, nil, logger, opts...)

	reactor := deps.Reactor
	if reactor == nil {
		reactor = reaction.NewLogReactor(logger)
	}
	e.batcher = reaction.NewBatcher(cfg.Reactions, reactor, deps.Registry, logger)

	e.lifecycle = scheduler.NewLifecycle(deps.Tokens, cfg.Polling.ErrorThreshold, e, logger,
		func(sub *domain.TrackedToken) { e.aggregator.DropToken(sub.DestinationID, sub.TokenAddress) },
		func(sub *domain.TrackedToken) { e.meta.Invalidate(sub.TokenAddress) },
	)
	poller := scheduler.NewPoller(scheduler.Config{
		Interval:       cfg.Polling.Interval,
		PageSize:       cfg.Polling.PageSize,
		MaxPages:       cfg.Polling.MaxPages,
		ErrorThreshold: cfg.Polling.ErrorThreshold,
		Classify:       cfg.Polling.Classify(),
	}, deps.Tokens, deps.Events, deps.Transactions, e.meta, e.lifecycle, e, logger)
	e.scheduler = scheduler.New(poller, cfg.Polling.Interval, logger)

	pruner := worker.NewPruner(deps.Events, cfg.Polling.EventRetention, logger)
	e.background = append(e.background, pruner.Start)

	e.monitor = health.NewMonitor(e, deps.Dependencies...)
	if cfg.Server.Port > 0 {
		e.server = health.NewServer(e.monitor, e, cfg.Server.Port)
	}

	return e, nil
}

// Start launches the background workers and resumes polling of every active
// subscription. It returns once everything is running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.running {
		return nil
	}

	active, err := e.tokens.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.scheduler.Bind(ctx)

	e.consumers = &errgroup.Group{}
	e.consumers.Go(func() error { e.consumeSwaps(ctx); return nil })
	e.consumers.Go(func() error { e.consumeTransfers(ctx); return nil })
	e.consumers.Go(func() error { e.consumeSummaries(ctx); return nil })

	bg, bgCtx := errgroup.WithContext(ctx)
	e.bg = bg
	bg.Go(func() error {
		e.aggregator.Run(bgCtx, e.cfg.Aggregation.SweepInterval)
		return nil
	})
	for _, fn := range e.background {
		bg.Go(func() error { fn(bgCtx); return nil })
	}
	if e.server != nil {
		bg.Go(func() error {
			e.log.Info("Health server listening", "port", e.cfg.Server.Port)
			if err := e.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.log.Error("Health server failed", "error", err)
			}
			return nil
		})
		bg.Go(func() error {
			<-bgCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return e.server.Stop(shutdownCtx)
		})
	}

	e.running = true
	for _, sub := range active {
		e.scheduler.Start(sub.DestinationID, sub.TokenAddress)
	}
	e.log.Info("Engine started", "subscriptions", len(active))
	return nil
}

// Stop halts polling, drains queued notifications, flushes pending reactions and
// releases resources. It is safe to call more than once.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	wasRunning := e.running
	e.running = false
	e.stopped = true
	e.mu.Unlock()

	if wasRunning {
		e.log.Info("Stopping engine...")

		// No loop can emit after StopAll returns.
		e.scheduler.StopAll()
		close(e.swaps)
		close(e.transfers)

		drained := make(chan struct{})
		go func() {
			_ = e.consumers.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			e.log.Warn("Notification queues not drained before deadline")
		}

		e.batcher.Close(ctx)
		e.cancel()
		if err := e.bg.Wait(); err != nil {
			e.log.Warn("Background worker stopped with error", "error", err)
		}
	}

	return e.Close()
}

// Close releases external resources without draining. Stop calls it.
func (e *Engine) Close() error {
	var errs []error
	e.closeOnce.Do(func() {
		for _, c := range e.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Subscribe creates an active subscription and starts polling it when the
// engine is running.
func (e *Engine) Subscribe(ctx context.Context, req SubscribeRequest) (*domain.TrackedToken, error) {
	if req.Destination == "" || req.Token == "" {
		return nil, ErrInvalidRequest
	}
	if req.Scope == "" {
		req.Scope = domain.ScopeDestination
	}
	if req.Platform == "" {
		req.Platform = domain.PlatformPlain
	}

	// An unknown token is still tracked; the lifecycle deactivates it if the
	// feed keeps reporting it missing.
	if info, err := e.meta.GetTokenInfo(ctx, req.Token); err == nil && !info.Found() {
		e.log.Warn("Subscribing to token without metadata",
			"destination", req.Destination,
			"token", req.Token,
			"warning", info.Warning,
		)
	}

	sub := &domain.TrackedToken{
		DestinationID: req.Destination,
		Scope:         req.Scope,
		TokenAddress:  req.Token,
		Platform:      req.Platform,
		Active:        true,
		Preferences:   req.Preferences,
	}
	sibling, err := e.tokens.Get(ctx, req.Destination, req.Token)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if err := e.tokens.Subscribe(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	// Another platform already follows this token here; start from its cursor.
	if sibling != nil && sibling.Active && !sibling.Cursor.IsZero() {
		stored, err := e.tokens.UpdateCursor(ctx, sub.ID, sibling.Cursor)
		if err != nil {
			e.log.Warn("Failed to copy cursor of existing subscription", "id", sub.ID, "error", err)
		} else {
			sub.Cursor = stored
		}
	}

	e.mu.Lock()
	if e.running {
		e.scheduler.Start(sub.DestinationID, sub.TokenAddress)
	}
	e.mu.Unlock()

	e.log.Info("Subscribed",
		"id", sub.ID,
		"destination", sub.DestinationID,
		"token", sub.TokenAddress,
		"platform", sub.Platform,
		"scope", sub.Scope,
	)
	return sub, nil
}

// Unsubscribe deactivates the subscription of destination to token and stops
// its polling loop.
func (e *Engine) Unsubscribe(ctx context.Context, destination, token string) (*domain.TrackedToken, error) {
	sub, err := e.tokens.Unsubscribe(ctx, destination, token)
	if err != nil {
		return nil, fmt.Errorf("failed to unsubscribe: %w", err)
	}
	e.scheduler.Stop(destination, token)
	e.aggregator.DropToken(destination, token)
	e.log.Info("Unsubscribed", "destination", destination, "token", token)
	return sub, nil
}

// ListSubscriptions returns the active subscriptions of destination, or of
// every destination when destination is empty.
func (e *Engine) ListSubscriptions(ctx context.Context, destination string) ([]*domain.TrackedToken, error) {
	if destination == "" {
		return e.tokens.ListActive(ctx)
	}
	return e.tokens.ListByDestination(ctx, destination)
}

// GetMetrics returns the notification dispatch counters.
func (e *Engine) GetMetrics() notify.MetricsSnapshot {
	return e.dispatcher.Metrics().Snapshot()
}

// Health returns the current health report.
func (e *Engine) Health(ctx context.Context) *health.HealthReport {
	return e.monitor.CheckHealth(ctx)
}

// Stats implements health.Source.
func (e *Engine) Stats(ctx context.Context) (health.Stats, error) {
	active, err := e.tokens.ListActive(ctx)
	if err != nil {
		return health.Stats{}, err
	}
	return health.Stats{
		Subscriptions:      len(active),
		ActivePollers:      len(e.scheduler.Keys()),
		AggregationBuckets: e.aggregator.Len(),
		PendingReactions:   e.batcher.Pending(),
		Notifications:      e.GetMetrics(),
		MetadataCache:      e.meta.Stats(),
		RecentSkips:        e.batcher.Skips(),
	}, nil
}

// Subscriptions implements health.Source.
func (e *Engine) Subscriptions(ctx context.Context) ([]health.SubscriptionStatus, error) {
	active, err := e.tokens.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]health.SubscriptionStatus, 0, len(active))
	for _, sub := range active {
		out = append(out, health.SubscriptionStatus{
			ID:                sub.ID,
			Destination:       sub.DestinationID,
			Token:             sub.TokenAddress,
			Platform:          sub.Platform,
			Scope:             sub.Scope,
			Polling:           e.scheduler.Running(sub.DestinationID, sub.TokenAddress),
			ConsecutiveErrors: sub.ConsecutiveErrors,
			Cursor:            sub.Cursor,
			LastPriceUSD:      sub.LastPriceUSD,
			LastMarketCapUSD:  sub.LastMarketCapUSD,
		})
	}
	return out, nil
}

// TokenInfo returns the cached metadata of token.
func (e *Engine) TokenInfo(ctx context.Context, token string) (*domain.TokenInfo, error) {
	return e.meta.GetTokenInfo(ctx, token)
}

// WalletBalance returns the balance of mint held by wallet.
func (e *Engine) WalletBalance(ctx context.Context, wallet, mint string) (decimal.Decimal, error) {
	if e.wallets == nil {
		return decimal.Zero, ErrNoWalletFeed
	}
	return e.wallets.GetBalance(ctx, wallet, mint)
}

// WalletHoldings returns the most valuable holdings of wallet.
func (e *Engine) WalletHoldings(ctx context.Context, wallet string, minUSD float64, limit int) ([]domain.Holding, error) {
	if e.wallets == nil {
		return nil, ErrNoWalletFeed
	}
	return e.wallets.GetTopHoldings(ctx, wallet, minUSD, limit)
}

// WalletCollectionCount returns how many assets of collection wallet holds.
func (e *Engine) WalletCollectionCount(ctx context.Context, wallet, collection string) (int, error) {
	if e.wallets == nil {
		return 0, ErrNoWalletFeed
	}
	return e.wallets.GetCollectionCount(ctx, wallet, collection)
}
