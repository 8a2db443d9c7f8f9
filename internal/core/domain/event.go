package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypeSwap     EventType = "swap"
	EventTypeTransfer EventType = "transfer"
)

// Direction of a swap relative to the tracked token.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// TransactionEvent represents a normalized on-chain transfer or swap.
type TransactionEvent struct {
	Signature  string          `json:"signature"`
	Slot       uint64          `json:"slot"`
	BlockTime  time.Time       `json:"block_time"`
	Type       EventType       `json:"type"`
	Direction  Direction       `json:"direction,omitempty"`
	Mint       string          `json:"mint"`
	Sender     string          `json:"sender"`
	Recipient  string          `json:"recipient"`
	RawAmount  string          `json:"raw_amount"`
	Decimals   int             `json:"decimals"`
	Amount     decimal.Decimal `json:"amount"`
	AmountUSD  float64         `json:"amount_usd"`
	Fee        uint64          `json:"fee"`
	FeePayer   string          `json:"fee_payer"`
	Mints      []string        `json:"mints"`
	Wallets    []string        `json:"wallets"`
	Pairs      int             `json:"pairs"`
	MintOrBurn bool            `json:"mint_or_burn"`
}

// Summary is the consolidated result of an aggregation bucket flush.
type Summary struct {
	Destination string              `json:"destination"`
	Token       string              `json:"token"`
	Sender      string              `json:"sender"`
	Recipient   string              `json:"recipient"`
	TotalUSD    float64             `json:"total_usd"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Events      []*TransactionEvent `json:"events"`
	FirstSeen   time.Time           `json:"first_seen"`
	LastSeen    time.Time           `json:"last_seen"`
}

// Count returns the number of constituent transfers.
func (s *Summary) Count() int {
	return len(s.Events)
}
