package domain

import (
	"fmt"
	"time"
)

// Scope distinguishes a subscription that posts into its own destination from one
// that posts into a channel shared by every subscriber.
type Scope string

const (
	ScopeDestination Scope = "per_destination"
	ScopeGlobal      Scope = "global"
)

// Platform identifies the chat platform a destination lives on.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
	PlatformX        Platform = "x"
	PlatformPlain    Platform = "plain"
)

// ButtonTemplate is a link button attached to a notification. URL may contain
// {token}, {signature} and {wallet} placeholders.
type ButtonTemplate struct {
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url"   yaml:"url"`
}

// Preferences holds per-destination notification settings.
type Preferences struct {
	Emoji                   string           `json:"emoji"`
	Buttons                 []ButtonTemplate `json:"buttons"`
	AggregationThresholdUSD float64          `json:"aggregation_threshold_usd"`
	MinNotifyUSD            float64          `json:"min_notify_usd"`
}

// TrackedToken is a (destination, token, platform) tracking subscription.
type TrackedToken struct {
	ID                 string      `json:"id"`
	DestinationID      string      `json:"destination_id"`
	Scope              Scope       `json:"scope"`
	TokenAddress       string      `json:"token_address"`
	Platform           Platform    `json:"platform"`
	Active             bool        `json:"active"`
	Cursor             Cursor      `json:"cursor"`
	ConsecutiveErrors  int         `json:"consecutive_errors"`
	LastPriceUSD       float64     `json:"last_price_usd"`
	LastMarketCapUSD   float64     `json:"last_market_cap_usd"`
	Preferences        Preferences `json:"preferences"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	DeactivatedAt      *time.Time  `json:"deactivated_at,omitempty"`
	DeactivationReason string      `json:"deactivation_reason,omitempty"`
}

// Key returns the scheduling key of the subscription.
func (t *TrackedToken) Key() TokenKey {
	return TokenKey{Destination: t.DestinationID, Token: t.TokenAddress}
}

// TokenKey identifies one polling loop.
type TokenKey struct {
	Destination string
	Token       string
}

func (k TokenKey) String() string {
	return fmt.Sprintf("%s/%s", k.Destination, k.Token)
}

// TokenInfo is the price and display metadata of a token.
type TokenInfo struct {
	Address      string    `json:"address"`
	Name         string    `json:"name"`
	Symbol       string    `json:"symbol"`
	Decimals     int       `json:"decimals"`
	PriceUSD     float64   `json:"price_usd"`
	MarketCapUSD float64   `json:"market_cap_usd"`
	LiquidityUSD float64   `json:"liquidity_usd"`
	ImageURL     string    `json:"image_url,omitempty"`
	Warning      string    `json:"warning,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Found reports whether the info came from a successful lookup.
func (i *TokenInfo) Found() bool {
	return i != nil && i.Warning == ""
}
