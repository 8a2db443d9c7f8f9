package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cenetex/cosyworld-sub000/internal/core/cache"
	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/indexing/metrics"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
)

// WalletConfig configures the wallet insights cache.
type WalletConfig struct {
	TTL              time.Duration
	MaxWallets       int
	PriceLookupLimit int
	PriceConcurrency int
}

// WalletInsightsCache answers balance and holdings questions from a single
// cached snapshot per wallet.
type WalletInsightsCache struct {
	feed  feed.WalletFeed
	meta  *MetadataCache
	cache *cache.TTL[*domain.WalletSnapshot]
	cfg   WalletConfig
	now   func() time.Time

	logger *slog.Logger
}

// NewWalletInsightsCache creates a wallet cache. meta prices holdings.
func NewWalletInsightsCache(walletFeed feed.WalletFeed, meta *MetadataCache, cfg WalletConfig, logger *slog.Logger) *WalletInsightsCache {
	return newWalletInsightsCache(walletFeed, meta, cfg, time.Now, logger)
}

func newWalletInsightsCache(walletFeed feed.WalletFeed, meta *MetadataCache, cfg WalletConfig, now func() time.Time, logger *slog.Logger) *WalletInsightsCache {
	if cfg.PriceLookupLimit <= 0 {
		cfg.PriceLookupLimit = 20
	}
	if cfg.PriceConcurrency <= 0 {
		cfg.PriceConcurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletInsightsCache{
		feed: walletFeed,
		meta: meta,
		cache: cache.New(cache.Options[*domain.WalletSnapshot]{
			TTL:          cfg.TTL,
			MaxEntries:   cfg.MaxWallets,
			StaleOnError: true,
			Now:          now,
		}),
		cfg:    cfg,
		now:    now,
		logger: logger.With("component", "wallet_cache"),
	}
}

// Snapshot returns the cached or freshly fetched snapshot for wallet.
func (w *WalletInsightsCache) Snapshot(ctx context.Context, wallet string) (*domain.WalletSnapshot, error) {
	if snap, ok := w.cache.Get(wallet); ok {
		metrics.CacheLookups.WithLabelValues("wallet", "hit").Inc()
		return snap, nil
	}
	metrics.CacheLookups.WithLabelValues("wallet", "miss").Inc()
	return w.cache.GetOrFetch(ctx, wallet, w.fetch)
}

func (w *WalletInsightsCache) fetch(ctx context.Context, wallet string) (*domain.WalletSnapshot, error) {
	raw, err := w.feed.GetWalletSnapshot(ctx, wallet)
	if err != nil {
		return nil, err
	}

	snap := &domain.WalletSnapshot{Address: wallet, FetchedAt: w.now()}
	for _, b := range raw.Tokens {
		n, err := NormalizeAmount(b.Amount, UnknownDecimals)
		if err != nil {
			w.logger.Debug("Skipping unreadable balance", "wallet", wallet, "mint", b.Mint, "error", err)
			continue
		}
		snap.Balances = append(snap.Balances, domain.TokenBalance{
			Mint:     b.Mint,
			Amount:   n.UI,
			Raw:      n.Raw,
			Decimals: n.Decimals,
		})
	}
	for _, a := range raw.Assets {
		snap.Assets = append(snap.Assets, domain.Asset{ID: a.ID, Collection: a.Collection, Name: a.Name})
	}
	return snap, nil
}

// GetBalance returns the UI balance of mint held by wallet, zero if none.
func (w *WalletInsightsCache) GetBalance(ctx context.Context, wallet, mint string) (decimal.Decimal, error) {
	snap, err := w.Snapshot(ctx, wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", wallet, err)
	}
	total := decimal.Zero
	for _, b := range snap.Balances {
		if b.Mint == mint {
			total = total.Add(b.Amount)
		}
	}
	return total, nil
}

// GetCollectionCount returns how many assets of collection wallet holds.
func (w *WalletInsightsCache) GetCollectionCount(ctx context.Context, wallet, collection string) (int, error) {
	snap, err := w.Snapshot(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("collection count of %s: %w", wallet, err)
	}
	n := 0
	for _, a := range snap.Assets {
		if a.Collection == collection {
			n++
		}
	}
	return n, nil
}

// GetTopHoldings returns up to limit holdings worth at least minUSD, ordered by
// USD value descending. Only the PriceLookupLimit largest balances by raw amount
// are priced.
func (w *WalletInsightsCache) GetTopHoldings(ctx context.Context, wallet string, minUSD float64, limit int) ([]domain.Holding, error) {
	snap, err := w.Snapshot(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("top holdings of %s: %w", wallet, err)
	}

	candidates := make([]domain.TokenBalance, 0, len(snap.Balances))
	for _, b := range snap.Balances {
		if b.Raw.IsPositive() {
			candidates = append(candidates, b)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Raw.GreaterThan(candidates[j].Raw)
	})
	if len(candidates) > w.cfg.PriceLookupLimit {
		candidates = candidates[:w.cfg.PriceLookupLimit]
	}

	priced := make([]*domain.Holding, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.PriceConcurrency)
	for i, b := range candidates {
		g.Go(func() error {
			info, err := w.meta.GetTokenInfo(gctx, b.Mint)
			if err != nil || !info.Found() || info.PriceUSD <= 0 {
				return nil
			}
			value, _ := b.Amount.Mul(decimal.NewFromFloat(info.PriceUSD)).Float64()
			priced[i] = &domain.Holding{
				Mint:     b.Mint,
				Symbol:   info.Symbol,
				Amount:   b.Amount,
				ValueUSD: value,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	holdings := make([]domain.Holding, 0, len(priced))
	for _, h := range priced {
		if h != nil && h.ValueUSD >= minUSD {
			holdings = append(holdings, *h)
		}
	}
	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].ValueUSD > holdings[j].ValueUSD
	})
	if limit > 0 && len(holdings) > limit {
		holdings = holdings[:limit]
	}
	return holdings, nil
}

// Invalidate drops the cached snapshot for wallet.
func (w *WalletInsightsCache) Invalidate(wallet string) {
	w.cache.Invalidate(wallet)
}
