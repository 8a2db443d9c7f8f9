package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/cache"
	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/metrics"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
)

// MetadataConfig configures the token metadata cache.
type MetadataConfig struct {
	TTL         time.Duration
	NegativeTTL time.Duration
	MaxEntries  int
}

// MetadataCache serves token price and display metadata, coalescing concurrent
// lookups and caching failed lookups as placeholders for a cooldown window.
type MetadataCache struct {
	feed   feed.PriceFeed
	cache  *cache.TTL[*domain.TokenInfo]
	now    func() time.Time
	logger *slog.Logger
}

// NewMetadataCache creates a metadata cache in front of a price feed.
func NewMetadataCache(priceFeed feed.PriceFeed, cfg MetadataConfig, logger *slog.Logger) *MetadataCache {
	return newMetadataCache(priceFeed, cfg, time.Now, logger)
}

func newMetadataCache(priceFeed feed.PriceFeed, cfg MetadataConfig, now func() time.Time, logger *slog.Logger) *MetadataCache {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MetadataCache{
		feed:   priceFeed,
		now:    now,
		logger: logger.With("component", "metadata_cache"),
	}
	m.cache = cache.New(cache.Options[*domain.TokenInfo]{
		TTL:          cfg.TTL,
		NegativeTTL:  cfg.NegativeTTL,
		MaxEntries:   cfg.MaxEntries,
		StaleOnError: true,
		Now:          now,
		Negative:     m.placeholder,
	})
	return m
}

func (m *MetadataCache) placeholder(token string, err error) (*domain.TokenInfo, bool) {
	m.logger.Warn("Token metadata lookup failed, caching placeholder",
		"token", token,
		"error", err,
	)
	return &domain.TokenInfo{
		Address:   token,
		Name:      "Unknown token",
		Symbol:    ShortAddress(token),
		Warning:   fmt.Sprintf("metadata unavailable: %v", err),
		FetchedAt: m.now(),
	}, true
}

// GetTokenInfo returns metadata for token. A failed lookup yields a placeholder
// carrying a Warning rather than an error.
func (m *MetadataCache) GetTokenInfo(ctx context.Context, token string) (*domain.TokenInfo, error) {
	if info, ok := m.cache.Get(token); ok {
		metrics.CacheLookups.WithLabelValues("metadata", "hit").Inc()
		return clone(info), nil
	}
	metrics.CacheLookups.WithLabelValues("metadata", "miss").Inc()

	info, err := m.cache.GetOrFetch(ctx, token, m.feed.GetTokenInfo)
	if err != nil {
		return nil, err
	}
	return clone(info), nil
}

// Invalidate drops any cached entry for token.
func (m *MetadataCache) Invalidate(token string) {
	m.cache.Invalidate(token)
}

// Stats exposes the underlying cache counters.
func (m *MetadataCache) Stats() cache.Stats {
	return m.cache.Stats()
}

func clone(info *domain.TokenInfo) *domain.TokenInfo {
	if info == nil {
		return nil
	}
	c := *info
	return &c
}

// ShortAddress abbreviates an address as "abcd…wxyz".
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:4] + "…" + addr[len(addr)-4:]
}
