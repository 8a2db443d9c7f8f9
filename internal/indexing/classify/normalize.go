// Package classify turns raw feed records into TransactionEvents and decides
// whether each is a swap or a plain transfer.
package classify

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
	"github.com/cenetex/cosyworld-sub000/internal/market"
)

var (
	// ErrMalformed marks a record that cannot be turned into an event.
	ErrMalformed = errors.New("malformed transaction record")

	// ErrUnrelated marks a record that does not move the tracked token.
	ErrUnrelated = errors.New("transaction does not involve tracked token")
)

// Normalize converts a raw record into a TransactionEvent for the tracked mint.
// decimals is the mint's known decimals, or market.UnknownDecimals. A base-unit
// amount of the tracked mint that cannot be scaled yields
// market.ErrUnknownDecimals rather than ErrMalformed.
func Normalize(raw feed.RawTransaction, mint string, decimals int) (*domain.TransactionEvent, error) {
	if raw.Signature == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	if len(raw.TokenTransfers) == 0 {
		return nil, fmt.Errorf("%w: %s has no token transfers", ErrMalformed, raw.Signature)
	}

	ev := &domain.TransactionEvent{
		Signature:  raw.Signature,
		Slot:       raw.Slot,
		Mint:       mint,
		Fee:        raw.Fee,
		FeePayer:   raw.FeePayer,
		MintOrBurn: raw.Mint || raw.Burn,
	}
	if raw.Timestamp > 0 {
		ev.BlockTime = time.Unix(raw.Timestamp, 0).UTC()
	}

	mints := newSet()
	wallets := newSet()
	pairs := newSet()

	var (
		primary    *feed.TokenTransfer
		primaryAmt market.NormalizedAmount
	)
	for i := range raw.TokenTransfers {
		tr := &raw.TokenTransfers[i]
		if tr.Mint == "" {
			return nil, fmt.Errorf("%w: %s transfer %d has no mint", ErrMalformed, raw.Signature, i)
		}
		mints.add(tr.Mint)
		wallets.add(tr.FromUserAccount)
		wallets.add(tr.ToUserAccount)
		pairs.add(tr.FromUserAccount + ">" + tr.ToUserAccount)

		// A transfer without one side is the token being created or destroyed.
		if tr.FromUserAccount == "" || tr.ToUserAccount == "" {
			ev.MintOrBurn = true
		}

		if tr.Mint != mint {
			continue
		}
		amt, err := market.NormalizeAmount(tr.Amount, decimals)
		if errors.Is(err, market.ErrUnknownDecimals) {
			return nil, fmt.Errorf("%s: %w", raw.Signature, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, raw.Signature, err)
		}
		if primary == nil || prefer(tr, amt, primary, primaryAmt, raw.FeePayer) {
			primary, primaryAmt = tr, amt
		}
	}

	if primary == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnrelated, raw.Signature)
	}

	ev.Sender = primary.FromUserAccount
	ev.Recipient = primary.ToUserAccount
	ev.Amount = primaryAmt.UI
	ev.RawAmount = primaryAmt.RawString()
	ev.Decimals = primaryAmt.Decimals
	ev.Mints = mints.list()
	ev.Wallets = wallets.list()
	ev.Pairs = pairs.len()
	return ev, nil
}

// prefer reports whether candidate should replace current as the primary
// movement of the tracked mint. Movements touching the fee payer win, then the
// larger amount.
func prefer(candidate *feed.TokenTransfer, candAmt market.NormalizedAmount, current *feed.TokenTransfer, curAmt market.NormalizedAmount, feePayer string) bool {
	candPayer := touches(candidate, feePayer)
	curPayer := touches(current, feePayer)
	if candPayer != curPayer {
		return candPayer
	}
	return candAmt.UI.GreaterThan(curAmt.UI)
}

func touches(tr *feed.TokenTransfer, wallet string) bool {
	return wallet != "" && (tr.FromUserAccount == wallet || tr.ToUserAccount == wallet)
}

// set keeps insertion order so event fields are deterministic.
type set struct {
	seen  map[string]struct{}
	order []string
}

func newSet() *set {
	return &set{seen: make(map[string]struct{})}
}

func (s *set) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *set) list() []string { return s.order }
func (s *set) len() int       { return len(s.order) }

// USDValue prices amount at priceUSD.
func USDValue(amount decimal.Decimal, priceUSD float64) float64 {
	if priceUSD <= 0 {
		return 0
	}
	v, _ := amount.Mul(decimal.NewFromFloat(priceUSD)).Float64()
	return v
}
