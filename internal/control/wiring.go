package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cenetex/cosyworld-sub000/internal/core/config"
	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/health"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
	redisclient "github.com/cenetex/cosyworld-sub000/internal/infra/redis"
	"github.com/cenetex/cosyworld-sub000/internal/infra/storage/memory"
	"github.com/cenetex/cosyworld-sub000/internal/infra/storage/postgres"
	"github.com/cenetex/cosyworld-sub000/internal/notify"
	"github.com/cenetex/cosyworld-sub000/internal/reaction"
)

// Build creates an engine backed by the infrastructure named in cfg: Postgres
// when a database URL is set (memory otherwise), Redis for the posting window
// when configured, and the HTTP feeds.
func Build(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var deps Deps
	var err error
	closeAll := func() {
		for _, c := range deps.Closers {
			_ = c()
		}
	}

	// 1. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		deps.Closers = append(deps.Closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		deps.Tokens = postgres.NewTokenRepo(db)
		deps.Events = postgres.NewEventRepo(db)
		deps.Dependencies = append(deps.Dependencies, health.Dependency{Name: "database", Critical: true, Check: db.Health})
		deps.Background = append(deps.Background, db.StartMetricsCollector)
		logger.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		deps.Tokens = memory.NewTokenRepo(store)
		deps.Events = memory.NewEventRepo(store)
		logger.Info("Using Memory storage")
	}

	// 2. Posting window
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Closers = append(deps.Closers, client.Close)
		deps.Window = redisclient.NewPostWindow(client)
		deps.Dependencies = append(deps.Dependencies, health.Dependency{Name: "redis", Check: client.Ping})
		logger.Info("Using Redis posting window")
	} else {
		deps.Window = notify.NewMemoryWindow()
	}

	// 3. Feeds
	deps.Transactions = feed.NewTransactionClient(feed.NewClient(cfg.Feeds.Transactions.ClientConfig("transactions"), logger))
	deps.Prices = feed.NewPriceClient(feed.NewClient(cfg.Feeds.Prices.ClientConfig("prices"), logger))
	if cfg.Feeds.Wallets.URL != "" {
		deps.Wallets = feed.NewWalletClient(feed.NewClient(cfg.Feeds.Wallets.ClientConfig("wallets"), logger))
	}

	// 4. Delivery
	deps.Channels, err = buildChannels(cfg, logger, &deps)
	if err != nil {
		closeAll()
		return nil, err
	}
	if cfg.Notify.CaptionURL != "" {
		deps.Captioner = notify.NewHTTPCaptioner(cfg.Notify.CaptionURL, cfg.Notify.CaptionTimeout)
	}

	// 5. Participants and reactions
	deps.Registry = reaction.NewStaticRegistry(participants(cfg.Participants))
	if cfg.Reactions.ReactorURL != "" {
		deps.Reactor = reaction.NewWebhookReactor(cfg.Reactions.ReactorURL, cfg.Notify.CaptionTimeout)
	}

	engine, err := NewEngine(cfg, deps, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	return engine, nil
}

func buildChannels(cfg *config.AppConfig, logger *slog.Logger, deps *Deps) (map[domain.Platform]notify.Channel, error) {
	channels := make(map[domain.Platform]notify.Channel, len(cfg.Notify.Channels))
	var kafkaCh *notify.KafkaChannel

	for _, c := range cfg.Notify.Channels {
		var ch notify.Channel
		switch c.Type {
		case "log":
			ch = notify.NewLogChannel(logger)
		case "webhook":
			ch = notify.NewWebhookChannel(c.URL, c.Timeout)
		case "kafka":
			if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
				return nil, fmt.Errorf("channel %s: kafka brokers and topic are required", c.Platform)
			}
			if kafkaCh == nil {
				kafkaCh = notify.NewKafkaChannel(cfg.Kafka)
				deps.Closers = append(deps.Closers, kafkaCh.Close)
			}
			ch = kafkaCh
		default:
			return nil, fmt.Errorf("channel %s: unknown type %q", c.Platform, c.Type)
		}
		channels[domain.Platform(c.Platform)] = ch
		logger.Info("Notification channel configured", "platform", c.Platform, "type", c.Type)
	}
	return channels, nil
}

func participants(cfgs []config.ParticipantConfig) []domain.Participant {
	out := make([]domain.Participant, 0, len(cfgs))
	for _, p := range cfgs {
		out = append(out, domain.Participant{
			ID:              p.ID,
			Name:            p.Name,
			Emoji:           p.Emoji,
			Wallet:          p.Wallet,
			Claimed:         p.Claimed,
			Status:          domain.ParticipantStatus(p.Status),
			SuppressedUntil: p.SuppressedUntil,
		})
	}
	return out
}
