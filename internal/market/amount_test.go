package market

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenetex/cosyworld-sub000/internal/infra/feed"
)

func ptr[T any](v T) *T { return &v }

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name     string
		in       feed.Amount
		fallback int
		ui       string
		raw      string
		source   AmountSource
	}{
		{
			name:     "explicit ui amount wins over raw",
			in:       feed.Amount{UIAmount: ptr(1.5), RawAmount: "1500000", Decimals: ptr(6), Number: "999"},
			fallback: UnknownDecimals,
			ui:       "1.5", raw: "1500000", source: SourceUI,
		},
		{
			name:     "ui amount string",
			in:       feed.Amount{UIAmountString: "0.000123", Decimals: ptr(9)},
			fallback: UnknownDecimals,
			ui:       "0.000123", raw: "123000", source: SourceUI,
		},
		{
			name:     "raw with decimals",
			in:       feed.Amount{RawAmount: "2500000000", Decimals: ptr(9)},
			fallback: UnknownDecimals,
			ui:       "2.5", raw: "2500000000", source: SourceRaw,
		},
		{
			name:     "raw with fallback decimals",
			in:       feed.Amount{RawAmount: "42000"},
			fallback: 3,
			ui:       "42", raw: "42000", source: SourceRaw,
		},
		{
			name:     "ambiguous fractional is ui",
			in:       feed.Amount{Number: json.Number("12.75"), Decimals: ptr(2)},
			fallback: UnknownDecimals,
			ui:       "12.75", raw: "1275", source: SourceAmbiguous,
		},
		{
			name:     "ambiguous integer with decimals is raw",
			in:       feed.Amount{Number: json.Number("1000000")},
			fallback: 6,
			ui:       "1", raw: "1000000", source: SourceAmbiguous,
		},
		{
			name:     "ambiguous integer without decimals is ui",
			in:       feed.Amount{Number: json.Number("300")},
			fallback: UnknownDecimals,
			ui:       "300", raw: "300", source: SourceAmbiguous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NormalizeAmount(tt.in, tt.fallback)
			require.NoError(t, err)
			assert.Equal(t, tt.ui, n.UI.String())
			assert.Equal(t, tt.raw, n.RawString())
			assert.Equal(t, tt.source, n.Source)
		})
	}
}

func TestNormalizeAmount_Errors(t *testing.T) {
	_, err := NormalizeAmount(feed.Amount{}, 6)
	assert.Error(t, err)

	_, err = NormalizeAmount(feed.Amount{RawAmount: "100"}, UnknownDecimals)
	assert.ErrorIs(t, err, ErrUnknownDecimals, "raw amount needs decimals")

	_, err = NormalizeAmount(feed.Amount{RawAmount: "12abc", Decimals: ptr(2)}, UnknownDecimals)
	assert.Error(t, err)
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "abc", ShortAddress("abc"))
	assert.Equal(t, "So11…1112", ShortAddress("So11111111111111111111111111111111111111112"))
}
