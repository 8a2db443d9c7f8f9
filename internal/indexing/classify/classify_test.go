package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
	"github.com/cenetex/cosyworld-sub000/internal/market"
)

func dec(n int) *int { return &n }

func transfer(mint, from, to, raw string) feed.TokenTransfer {
	return feed.TokenTransfer{
		Mint:            mint,
		FromUserAccount: from,
		ToUserAccount:   to,
		Amount:          feed.Amount{RawAmount: raw, Decimals: dec(6)},
	}
}

func TestNormalize(t *testing.T) {
	raw := feed.RawTransaction{
		Signature: "sig1",
		Slot:      500,
		Timestamp: 1_700_000_000,
		Fee:       5000,
		FeePayer:  "alice",
		TokenTransfers: []feed.TokenTransfer{
			transfer("TKN", "alice", "bob", "2500000"),
		},
	}

	ev, err := Normalize(raw, "TKN", market.UnknownDecimals)
	require.NoError(t, err)
	assert.Equal(t, "sig1", ev.Signature)
	assert.Equal(t, uint64(500), ev.Slot)
	assert.Equal(t, int64(1_700_000_000), ev.BlockTime.Unix())
	assert.Equal(t, "alice", ev.Sender)
	assert.Equal(t, "bob", ev.Recipient)
	assert.Equal(t, "2500000", ev.RawAmount)
	assert.Equal(t, 6, ev.Decimals)
	assert.Equal(t, "2.5", ev.Amount.String())
	assert.Equal(t, []string{"TKN"}, ev.Mints)
	assert.Equal(t, []string{"alice", "bob"}, ev.Wallets)
	assert.Equal(t, 1, ev.Pairs)
	assert.False(t, ev.MintOrBurn)
}

func TestNormalize_Rejects(t *testing.T) {
	_, err := Normalize(feed.RawTransaction{}, "TKN", 6)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Normalize(feed.RawTransaction{Signature: "s"}, "TKN", 6)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Normalize(feed.RawTransaction{
		Signature:      "s",
		TokenTransfers: []feed.TokenTransfer{transfer("OTHER", "a", "b", "1")},
	}, "TKN", 6)
	assert.ErrorIs(t, err, ErrUnrelated)

	_, err = Normalize(feed.RawTransaction{
		Signature:      "s",
		TokenTransfers: []feed.TokenTransfer{{Mint: "TKN", FromUserAccount: "a", ToUserAccount: "b"}},
	}, "TKN", 6)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNormalize_RawAmountWithoutDecimalsIsNotMalformed(t *testing.T) {
	raw := feed.RawTransaction{
		Signature: "s",
		TokenTransfers: []feed.TokenTransfer{
			{Mint: "TKN", FromUserAccount: "a", ToUserAccount: "b", Amount: feed.Amount{RawAmount: "1000000"}},
		},
	}
	_, err := Normalize(raw, "TKN", market.UnknownDecimals)
	assert.ErrorIs(t, err, market.ErrUnknownDecimals)
	assert.NotErrorIs(t, err, ErrMalformed)

	ev, err := Normalize(raw, "TKN", 6)
	require.NoError(t, err)
	assert.Equal(t, "1", ev.Amount.String())
}

func TestNormalize_PrefersFeePayerMovement(t *testing.T) {
	raw := feed.RawTransaction{
		Signature: "sig",
		FeePayer:  "trader",
		TokenTransfers: []feed.TokenTransfer{
			transfer("TKN", "pool", "vault", "90000000"),
			transfer("SOL", "trader", "pool", "1000000"),
			transfer("TKN", "pool", "trader", "10000000"),
		},
	}
	ev, err := Normalize(raw, "TKN", market.UnknownDecimals)
	require.NoError(t, err)
	assert.Equal(t, "pool", ev.Sender)
	assert.Equal(t, "trader", ev.Recipient)
	assert.Equal(t, "10", ev.Amount.String())
}

func TestClassifier(t *testing.T) {
	c := NewClassifier(Policy{MaxTransferFeeLamports: 10_000})

	tests := []struct {
		name      string
		raw       feed.RawTransaction
		expect    domain.EventType
		direction domain.Direction
	}{
		{
			name: "plain transfer",
			raw: feed.RawTransaction{Signature: "s", Fee: 5000, FeePayer: "a",
				TokenTransfers: []feed.TokenTransfer{transfer("TKN", "a", "b", "1")}},
			expect: domain.EventTypeTransfer,
		},
		{
			name: "two mints is a swap",
			raw: feed.RawTransaction{Signature: "s", Fee: 5000, FeePayer: "a",
				TokenTransfers: []feed.TokenTransfer{
					transfer("SOL", "a", "pool", "1"),
					transfer("TKN", "pool", "a", "1"),
				}},
			expect:    domain.EventTypeSwap,
			direction: domain.DirectionBuy,
		},
		{
			name: "sell into pool",
			raw: feed.RawTransaction{Signature: "s", Fee: 5000, FeePayer: "a",
				TokenTransfers: []feed.TokenTransfer{
					transfer("TKN", "a", "pool", "1"),
					transfer("SOL", "pool", "a", "1"),
				}},
			expect:    domain.EventTypeSwap,
			direction: domain.DirectionSell,
		},
		{
			name: "fee above threshold",
			raw: feed.RawTransaction{Signature: "s", Fee: 10_001, FeePayer: "a",
				TokenTransfers: []feed.TokenTransfer{transfer("TKN", "a", "b", "1")}},
			expect:    domain.EventTypeSwap,
			direction: domain.DirectionSell,
		},
		{
			name: "fee at threshold",
			raw: feed.RawTransaction{Signature: "s", Fee: 10_000, FeePayer: "a",
				TokenTransfers: []feed.TokenTransfer{transfer("TKN", "a", "b", "1")}},
			expect: domain.EventTypeTransfer,
		},
		{
			name: "mint flag",
			raw: feed.RawTransaction{Signature: "s", Fee: 5000, Mint: true, FeePayer: "b",
				TokenTransfers: []feed.TokenTransfer{transfer("TKN", "a", "b", "1")}},
			expect:    domain.EventTypeSwap,
			direction: domain.DirectionBuy,
		},
		{
			name: "single mint multi party",
			raw: feed.RawTransaction{Signature: "s", Fee: 5000, FeePayer: "relayer",
				TokenTransfers: []feed.TokenTransfer{
					transfer("TKN", "a", "b", "1"),
					transfer("TKN", "b", "c", "1"),
				}},
			expect:    domain.EventTypeSwap,
			direction: domain.DirectionBuy,
		},
		{
			name: "missing source side is a mint",
			raw: feed.RawTransaction{Signature: "s", Fee: 5000,
				TokenTransfers: []feed.TokenTransfer{transfer("TKN", "", "b", "1")}},
			expect:    domain.EventTypeSwap,
			direction: domain.DirectionBuy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Normalize(tt.raw, "TKN", 6)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, c.Classify(ev))
			assert.Equal(t, tt.expect, ev.Type)
			assert.Equal(t, tt.direction, ev.Direction)
		})
	}
}

func TestNewClassifier_DefaultPolicy(t *testing.T) {
	c := NewClassifier(Policy{})
	ev := &domain.TransactionEvent{Mints: []string{"T"}, Wallets: []string{"a", "b"}, Pairs: 1, Fee: DefaultMaxTransferFeeLamports}
	assert.Equal(t, domain.EventTypeTransfer, c.Classify(ev))
}
