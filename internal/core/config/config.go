package config

import (
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/indexing/classify"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
	redisclient "github.com/cenetex/cosyworld-sub000/internal/infra/redis"
	"github.com/cenetex/cosyworld-sub000/internal/infra/storage/postgres"
	"github.com/cenetex/cosyworld-sub000/internal/notify"
	"github.com/cenetex/cosyworld-sub000/internal/reaction"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig        `yaml:"server"`
	Logging      LoggingConfig       `yaml:"logging"`
	Database     postgres.Config     `yaml:"database"`
	Redis        redisclient.Config  `yaml:"redis"`
	Kafka        notify.KafkaConfig  `yaml:"kafka"`
	Feeds        FeedsConfig         `yaml:"feeds"`
	Polling      PollingConfig       `yaml:"polling"`
	Cache        CacheConfig         `yaml:"cache"`
	Aggregation  AggregationConfig   `yaml:"aggregation"`
	Notify       NotifyConfig        `yaml:"notify"`
	Reactions    reaction.Config     `yaml:"reactions"`
	Participants []ParticipantConfig `yaml:"participants" validate:"dive"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"  default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=json text"`
}

// FeedsConfig holds the upstream feed endpoints.
type FeedsConfig struct {
	Transactions FeedConfig `yaml:"transactions"`
	Prices       FeedConfig `yaml:"prices"`
	Wallets      FeedConfig `yaml:"wallets"`
}

// FeedConfig holds settings for one upstream feed.
type FeedConfig struct {
	URL     string           `yaml:"url"     validate:"omitempty,url"`
	APIKey  string           `yaml:"api_key"`
	Timeout time.Duration    `yaml:"timeout" default:"15s"`
	RPS     float64          `yaml:"rps"     default:"5" validate:"gte=0"`
	Burst   int              `yaml:"burst"   default:"5" validate:"gte=0"`
	Retry   feed.RetryConfig `yaml:"retry"`
}

// ClientConfig converts the section into a feed client configuration.
func (f FeedConfig) ClientConfig(name string) feed.ClientConfig {
	return feed.ClientConfig{
		Name:    name,
		BaseURL: f.URL,
		APIKey:  f.APIKey,
		Timeout: f.Timeout,
		RPS:     f.RPS,
		Burst:   f.Burst,
		Retry:   f.Retry,
	}
}

// PollingConfig holds the per-token polling settings.
type PollingConfig struct {
	Interval       time.Duration `yaml:"interval"        default:"30s" validate:"gt=0"`
	PageSize       int           `yaml:"page_size"       default:"50"  validate:"gt=0,lte=1000"`
	MaxPages       int           `yaml:"max_pages"       default:"5"   validate:"gt=0"`
	ErrorThreshold int           `yaml:"error_threshold" default:"5"   validate:"gt=0"`
	// TransferFeeThreshold is the highest fee, in lamports, of a plain transfer.
	TransferFeeThreshold uint64 `yaml:"transfer_fee_threshold" default:"10000"`
	// EventRetention bounds how long processed signatures are kept. Zero keeps them forever.
	EventRetention time.Duration `yaml:"event_retention" default:"720h"`
}

// Classify returns the classification policy.
func (p PollingConfig) Classify() classify.Policy {
	return classify.Policy{MaxTransferFeeLamports: p.TransferFeeThreshold}
}

// CacheConfig holds the metadata and wallet cache settings.
type CacheConfig struct {
	MetadataTTL      time.Duration `yaml:"metadata_ttl"       default:"5m"`
	NegativeTTL      time.Duration `yaml:"negative_ttl"       default:"10m"`
	MaxTokens        int           `yaml:"max_tokens"         default:"5000"`
	WalletTTL        time.Duration `yaml:"wallet_ttl"         default:"2m"`
	MaxWallets       int           `yaml:"max_wallets"        default:"1000"`
	PriceLookupLimit int           `yaml:"price_lookup_limit" default:"20"`
}

// AggregationConfig holds the transfer aggregation settings.
type AggregationConfig struct {
	Window        time.Duration `yaml:"window"         default:"10m" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" default:"30s" validate:"gt=0"`
	// DefaultThresholdUSD applies to subscriptions without their own threshold.
	DefaultThresholdUSD float64 `yaml:"default_threshold_usd" validate:"gte=0"`
}

// NotifyConfig holds the notification settings.
type NotifyConfig struct {
	GlobalHourlyCap   int           `yaml:"global_hourly_cap"   default:"30"`
	GlobalMinInterval time.Duration `yaml:"global_min_interval" default:"30s"`
	// Per-destination limits are disabled unless set.
	DestinationHourlyCap   int             `yaml:"destination_hourly_cap"`
	DestinationMinInterval time.Duration   `yaml:"destination_min_interval"`
	EmojiStepUSD           float64         `yaml:"emoji_step_usd" default:"100"`
	MaxEmojis              int             `yaml:"max_emojis" default:"20"`
	CaptionURL             string          `yaml:"caption_url" validate:"omitempty,url"`
	CaptionTimeout         time.Duration   `yaml:"caption_timeout" default:"5s"`
	Channels               []ChannelConfig `yaml:"channels" validate:"dive"`
}

// ChannelConfig routes one platform to a delivery channel.
type ChannelConfig struct {
	Platform string        `yaml:"platform" validate:"required"`
	Type     string        `yaml:"type"     validate:"required,oneof=log webhook kafka"`
	URL      string        `yaml:"url"      validate:"required_if=Type webhook"`
	Timeout  time.Duration `yaml:"timeout"  default:"10s"`
}

// ParticipantConfig binds a wallet to a virtual participant.
type ParticipantConfig struct {
	ID      string `yaml:"id"     validate:"required"`
	Name    string `yaml:"name"   validate:"required"`
	Emoji   string `yaml:"emoji"`
	Wallet  string `yaml:"wallet" validate:"required"`
	Claimed bool   `yaml:"claimed"`
	Status  string `yaml:"status" default:"alive" validate:"oneof=alive dead inactive incapacitated"`
	// SuppressedUntil keeps the participant from reacting until this RFC 3339 time.
	SuppressedUntil time.Time `yaml:"suppressed_until"`
}
