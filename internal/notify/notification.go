// Package notify renders activity notifications and delivers them to
// destination channels under per-scope posting limits.
package notify

import (
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

// Kind is the category of a notification.
type Kind string

const (
	KindSwap         Kind = "swap"
	KindTransfer     Kind = "transfer"
	KindSummary      Kind = "summary"
	KindDeactivation Kind = "deactivation"
)

// Notification is a request to post about token activity to a destination.
type Notification struct {
	Kind         Kind
	Subscription *domain.TrackedToken
	Event        *domain.TransactionEvent
	Summary      *domain.Summary
	Info         *domain.TokenInfo
	// Text carries the body of a deactivation notice.
	Text string
}

// Destination returns the posting target.
func (n Notification) Destination() string {
	if n.Subscription == nil {
		return ""
	}
	return n.Subscription.DestinationID
}

// ValueUSD returns the USD value the notification reports.
func (n Notification) ValueUSD() float64 {
	switch {
	case n.Summary != nil:
		return n.Summary.TotalUSD
	case n.Event != nil:
		return n.Event.AmountUSD
	default:
		return 0
	}
}

// Button is a rendered link button.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Message is a rendered, platform-specific post.
type Message struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Destination string          `json:"destination"`
	Platform    domain.Platform `json:"platform"`
	Token       string          `json:"token"`
	Text        string          `json:"text"`
	Caption     string          `json:"caption,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Buttons     []Button        `json:"buttons,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Receipt acknowledges a delivered message.
type Receipt struct {
	Channel   string
	MessageID string
}

// Status is the result class of a dispatch.
type Status string

const (
	StatusPosted  Status = "posted"
	StatusDropped Status = "dropped"
	StatusFailed  Status = "failed"
)

// Drop reasons.
const (
	ReasonHourlyCap   = "hourly_cap"
	ReasonMinInterval = "min_interval"
	ReasonBelowMinUSD = "below_min_usd"
	ReasonNoChannel   = "no_channel"
	ReasonLimiter     = "limiter_error"
)

// Outcome is the result of a dispatch.
type Outcome struct {
	Status  Status
	Reason  string
	Receipt Receipt
	Err     error
}
