// Package market provides cached views over upstream market data: token
// metadata with prices, and wallet balances with derived holdings.
package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
)

// UnknownDecimals marks a mint whose decimals are not known to the caller.
const UnknownDecimals = -1

// ErrUnknownDecimals is returned for a base-unit amount that cannot be scaled
// because neither the amount nor the caller knows the mint's decimals.
var ErrUnknownDecimals = errors.New("decimals unknown")

// AmountSource names the representation an amount was taken from.
type AmountSource string

const (
	SourceUI        AmountSource = "ui"
	SourceRaw       AmountSource = "raw"
	SourceAmbiguous AmountSource = "ambiguous"
)

// NormalizedAmount is an amount resolved to both display units and base units.
type NormalizedAmount struct {
	UI       decimal.Decimal
	Raw      decimal.Decimal
	Decimals int
	Source   AmountSource
}

// RawString returns the base-unit amount as an integer string.
func (n NormalizedAmount) RawString() string {
	return n.Raw.Truncate(0).String()
}

// NormalizeAmount resolves a heterogeneous upstream amount, preferring the most
// explicit representation: an explicit UI amount, then a raw amount with
// decimals, then the bare numeric amount. fallbackDecimals is used when the
// amount does not carry its own decimals; pass UnknownDecimals if none are known.
func NormalizeAmount(a feed.Amount, fallbackDecimals int) (NormalizedAmount, error) {
	decimals := fallbackDecimals
	if a.Decimals != nil {
		decimals = *a.Decimals
	}
	if decimals < UnknownDecimals {
		return NormalizedAmount{}, fmt.Errorf("negative decimals %d", decimals)
	}

	// Explicit UI amount.
	if a.UIAmountString != "" || a.UIAmount != nil {
		var ui decimal.Decimal
		if a.UIAmountString != "" {
			d, err := decimal.NewFromString(a.UIAmountString)
			if err != nil {
				return NormalizedAmount{}, fmt.Errorf("ui amount %q: %w", a.UIAmountString, err)
			}
			ui = d
		} else {
			ui = decimal.NewFromFloat(*a.UIAmount)
		}
		n := NormalizedAmount{UI: ui, Raw: ui, Decimals: decimals, Source: SourceUI}
		if a.RawAmount != "" {
			raw, err := decimal.NewFromString(a.RawAmount)
			if err != nil {
				return NormalizedAmount{}, fmt.Errorf("raw amount %q: %w", a.RawAmount, err)
			}
			n.Raw = raw
		} else if decimals >= 0 {
			n.Raw = ui.Shift(int32(decimals)).Truncate(0)
		}
		if n.Decimals < 0 {
			n.Decimals = 0
		}
		return n, nil
	}

	// Raw amount plus decimals.
	if a.RawAmount != "" {
		raw, err := decimal.NewFromString(a.RawAmount)
		if err != nil {
			return NormalizedAmount{}, fmt.Errorf("raw amount %q: %w", a.RawAmount, err)
		}
		if decimals < 0 {
			return NormalizedAmount{}, fmt.Errorf("raw amount %q: %w", a.RawAmount, ErrUnknownDecimals)
		}
		return NormalizedAmount{UI: raw.Shift(-int32(decimals)), Raw: raw, Decimals: decimals, Source: SourceRaw}, nil
	}

	// Bare numeric amount. A fractional value can only be in display units; an
	// integer is read as base units when decimals are known.
	if a.Number != "" {
		s := a.Number.String()
		d, err := decimal.NewFromString(s)
		if err != nil {
			return NormalizedAmount{}, fmt.Errorf("amount %q: %w", s, err)
		}
		fractional := strings.ContainsAny(s, ".eE")
		if !fractional && decimals >= 0 {
			return NormalizedAmount{UI: d.Shift(-int32(decimals)), Raw: d, Decimals: decimals, Source: SourceAmbiguous}, nil
		}
		n := NormalizedAmount{UI: d, Raw: d, Decimals: 0, Source: SourceAmbiguous}
		if decimals >= 0 {
			n.Raw = d.Shift(int32(decimals)).Truncate(0)
			n.Decimals = decimals
		}
		return n, nil
	}

	return NormalizedAmount{}, fmt.Errorf("amount has no usable representation")
}
