package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletSnapshot is a point-in-time view of a wallet's fungible balances and
// collectible assets.
type WalletSnapshot struct {
	Address   string
	Balances  []TokenBalance
	Assets    []Asset
	FetchedAt time.Time
}

// TokenBalance is one normalized fungible balance.
type TokenBalance struct {
	Mint     string
	Amount   decimal.Decimal
	Raw      decimal.Decimal
	Decimals int
}

// Asset is a held collectible.
type Asset struct {
	ID         string
	Collection string
	Name       string
}

// Holding is a priced balance.
type Holding struct {
	Mint     string
	Symbol   string
	Amount   decimal.Decimal
	ValueUSD float64
}
