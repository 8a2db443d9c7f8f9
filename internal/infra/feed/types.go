// Package feed contains the HTTP clients for the upstream data feeds: the paged
// transaction feed, the price/metadata feed and the wallet balances feed.
package feed

import (
	"context"
	"encoding/json"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

// TransactionQuery is an incremental query for one token.
type TransactionQuery struct {
	Token          string
	SinceSlot      uint64
	SinceSignature string
	SinceBlockTime int64
	Limit          int
	PageToken      string
}

// TransactionPage is one page of raw transaction records.
type TransactionPage struct {
	Transactions []RawTransaction `json:"transactions"`
	Pagination   Pagination       `json:"pagination"`
}

// Pagination carries the opaque continuation token.
type Pagination struct {
	Next    string `json:"next"`
	HasMore bool   `json:"hasMore"`
}

// RawTransaction is a transaction record as returned by the feed.
type RawTransaction struct {
	Signature      string          `json:"signature"`
	Slot           uint64          `json:"slot"`
	Timestamp      int64           `json:"timestamp"`
	Fee            uint64          `json:"fee"`
	FeePayer       string          `json:"feePayer"`
	Type           string          `json:"type,omitempty"`
	TokenTransfers []TokenTransfer `json:"tokenTransfers"`
	Mint           bool            `json:"isMint,omitempty"`
	Burn           bool            `json:"isBurn,omitempty"`
}

// TokenTransfer is a single token movement inside a transaction.
type TokenTransfer struct {
	Mint            string `json:"mint"`
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount
}

// Amount is the heterogeneous amount shape used across feeds. Upstreams send any
// combination of an explicit UI amount, a raw integer amount with decimals, or a
// bare numeric amount whose scale is not stated.
type Amount struct {
	UIAmount       *float64    `json:"uiAmount,omitempty"`
	UIAmountString string      `json:"uiAmountString,omitempty"`
	RawAmount      string      `json:"rawAmount,omitempty"`
	Decimals       *int        `json:"decimals,omitempty"`
	Number         json.Number `json:"amount,omitempty"`
}

// PriceInfo is the price feed response body.
type PriceInfo struct {
	Address      string  `json:"address"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	Decimals     int     `json:"decimals"`
	PriceUSD     float64 `json:"priceUsd"`
	MarketCapUSD float64 `json:"marketCap"`
	LiquidityUSD float64 `json:"liquidity"`
	ImageURL     string  `json:"image"`
}

// WalletSnapshot is the wallet feed response body.
type WalletSnapshot struct {
	Address string          `json:"address"`
	Tokens  []WalletBalance `json:"tokens"`
	Assets  []WalletAsset   `json:"assets"`
}

// WalletBalance is one fungible balance of a wallet.
type WalletBalance struct {
	Mint string `json:"mint"`
	Amount
}

// WalletAsset is one collectible held by a wallet.
type WalletAsset struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Name       string `json:"name"`
}

// TransactionFeed pages through a token's transactions.
type TransactionFeed interface {
	FetchTransactions(ctx context.Context, q TransactionQuery) (*TransactionPage, error)
}

// PriceFeed resolves token price and display metadata.
type PriceFeed interface {
	GetTokenInfo(ctx context.Context, token string) (*domain.TokenInfo, error)
}

// WalletFeed resolves wallet balances and held assets.
type WalletFeed interface {
	GetWalletSnapshot(ctx context.Context, wallet string) (*WalletSnapshot, error)
}
