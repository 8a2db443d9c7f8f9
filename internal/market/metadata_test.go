package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
)

type mockPriceFeed struct {
	mu       sync.Mutex
	calls    map[string]int
	infos    map[string]*domain.TokenInfo
	err      error
	release  chan struct{}
	inFlight atomic.Int32
}

func newMockPriceFeed() *mockPriceFeed {
	return &mockPriceFeed{calls: map[string]int{}, infos: map[string]*domain.TokenInfo{}}
}

func (m *mockPriceFeed) GetTokenInfo(ctx context.Context, token string) (*domain.TokenInfo, error) {
	m.mu.Lock()
	m.calls[token]++
	release := m.release
	m.mu.Unlock()

	if release != nil {
		m.inFlight.Add(1)
		<-release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.infos[token]
	if !ok {
		return nil, feed.ErrNotFound
	}
	c := *info
	return &c, nil
}

func (m *mockPriceFeed) callCount(token string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[token]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMetadataCache_ConcurrentLookupsCallUpstreamOnce(t *testing.T) {
	pf := newMockPriceFeed()
	pf.infos["T"] = &domain.TokenInfo{Address: "T", Symbol: "TKN", PriceUSD: 2}
	pf.release = make(chan struct{})

	m := NewMetadataCache(pf, MetadataConfig{TTL: time.Minute, NegativeTTL: time.Minute}, nil)

	const callers = 25
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := m.GetTokenInfo(context.Background(), "T")
			assert.NoError(t, err)
			assert.Equal(t, "TKN", info.Symbol)
		}()
	}

	require.Eventually(t, func() bool { return pf.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return m.Stats().Misses == callers }, time.Second, time.Millisecond)
	close(pf.release)
	wg.Wait()

	assert.Equal(t, 1, pf.callCount("T"))
}

func TestMetadataCache_FailureCachesPlaceholder(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	pf := newMockPriceFeed()
	m := newMetadataCache(pf, MetadataConfig{TTL: time.Hour, NegativeTTL: 5 * time.Minute}, clk.Now, nil)

	info, err := m.GetTokenInfo(context.Background(), "MissingTokenAddress123")
	require.NoError(t, err)
	assert.False(t, info.Found())
	assert.NotEmpty(t, info.Warning)
	assert.Equal(t, "Miss…s123", info.Symbol)

	_, _ = m.GetTokenInfo(context.Background(), "MissingTokenAddress123")
	assert.Equal(t, 1, pf.callCount("MissingTokenAddress123"), "negative entry must not be retried during cooldown")

	clk.Advance(5 * time.Minute)
	pf.infos["MissingTokenAddress123"] = &domain.TokenInfo{Address: "MissingTokenAddress123", Symbol: "NEW"}
	info, err = m.GetTokenInfo(context.Background(), "MissingTokenAddress123")
	require.NoError(t, err)
	assert.True(t, info.Found())
	assert.Equal(t, "NEW", info.Symbol)
	assert.Equal(t, 2, pf.callCount("MissingTokenAddress123"))
}

func TestMetadataCache_StaleOnError(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	pf := newMockPriceFeed()
	pf.infos["T"] = &domain.TokenInfo{Address: "T", Symbol: "TKN", PriceUSD: 1}
	m := newMetadataCache(pf, MetadataConfig{TTL: time.Minute}, clk.Now, nil)

	_, err := m.GetTokenInfo(context.Background(), "T")
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	pf.err = errors.New("503 service unavailable")
	info, err := m.GetTokenInfo(context.Background(), "T")
	require.NoError(t, err)
	assert.True(t, info.Found(), "stale value should be served while upstream is down")
	assert.Equal(t, "TKN", info.Symbol)
}

func TestMetadataCache_Invalidate(t *testing.T) {
	pf := newMockPriceFeed()
	pf.infos["T"] = &domain.TokenInfo{Address: "T", Symbol: "TKN"}
	m := NewMetadataCache(pf, MetadataConfig{TTL: time.Hour}, nil)

	_, _ = m.GetTokenInfo(context.Background(), "T")
	m.Invalidate("T")
	_, _ = m.GetTokenInfo(context.Background(), "T")
	assert.Equal(t, 2, pf.callCount("T"))
}

type mockWalletFeed struct {
	mu    sync.Mutex
	calls int
	snaps map[string]*feed.WalletSnapshot
}

func (m *mockWalletFeed) GetWalletSnapshot(ctx context.Context, wallet string) (*feed.WalletSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	snap, ok := m.snaps[wallet]
	if !ok {
		return nil, feed.ErrNotFound
	}
	return snap, nil
}

func TestWalletInsights_TopHoldings(t *testing.T) {
	pf := newMockPriceFeed()
	pf.infos["BIG"] = &domain.TokenInfo{Address: "BIG", Symbol: "BIG", PriceUSD: 0.001}
	pf.infos["MID"] = &domain.TokenInfo{Address: "MID", Symbol: "MID", PriceUSD: 10}
	pf.infos["SMALL"] = &domain.TokenInfo{Address: "SMALL", Symbol: "SMALL", PriceUSD: 1000}

	wf := &mockWalletFeed{snaps: map[string]*feed.WalletSnapshot{
		"W": {Tokens: []feed.WalletBalance{
			{Mint: "BIG", Amount: feed.Amount{UIAmount: ptr(1_000_000.0)}},
			{Mint: "MID", Amount: feed.Amount{RawAmount: "50000000", Decimals: ptr(6)}},
			{Mint: "SMALL", Amount: feed.Amount{UIAmount: ptr(0.5)}},
			{Mint: "DUST", Amount: feed.Amount{UIAmount: ptr(3.0)}},
		}},
	}}

	meta := NewMetadataCache(pf, MetadataConfig{TTL: time.Hour}, nil)
	w := NewWalletInsightsCache(wf, meta, WalletConfig{TTL: time.Hour, MaxWallets: 10, PriceLookupLimit: 3}, nil)

	holdings, err := w.GetTopHoldings(context.Background(), "W", 100, 5)
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "BIG", holdings[0].Mint)
	assert.InDelta(t, 1000, holdings[0].ValueUSD, 1e-9)
	assert.Equal(t, "MID", holdings[1].Mint)
	assert.InDelta(t, 500, holdings[1].ValueUSD, 1e-9)

	// SMALL has the lowest raw amount and falls outside the lookup bound of 3
	// behind MID (raw 50000000), BIG and DUST.
	assert.Equal(t, 0, pf.callCount("SMALL"), "lookups must be bounded to the largest raw balances")
	assert.Equal(t, 1, wf.calls)

	bal, err := w.GetBalance(context.Background(), "W", "MID")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 1, wf.calls, "sub-queries share one snapshot")
}
