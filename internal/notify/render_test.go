package notify

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

func TestRender_SwapSell(t *testing.T) {
	r := NewRenderer(RenderConfig{EmojiStepUSD: 100, MaxEmojis: 3})
	sub := testSub(domain.ScopeDestination)
	sub.Preferences.Emoji = "🐳"
	n := swapNotification(sub, 250)
	n.Event.Direction = domain.DirectionSell
	n.Info.MarketCapUSD = 1_250_000

	msg := r.Render(n, Identity{Address: "pool", Name: "Seller"}, Identity{Address: "buyer"}, "")

	lines := strings.Split(msg.Text, "\n")
	assert.Equal(t, "🐳🐳", lines[0])
	assert.Contains(t, msg.Text, "TKN SELL")
	assert.Contains(t, msg.Text, "Seller sold 100 TKN ($250.00)")
	assert.Contains(t, msg.Text, "MC: $1.25M")
	assert.Equal(t, sub.DestinationID, msg.Destination)
	assert.NotEmpty(t, msg.ID)
}

func TestRender_TierCapped(t *testing.T) {
	r := NewRenderer(RenderConfig{EmojiStepUSD: 10, MaxEmojis: 3})
	assert.Equal(t, "🔔🔔🔔", r.tier(10_000, "🔔"))
	assert.Equal(t, "🔔", r.tier(1, "🔔"))
	assert.Empty(t, r.tier(0, "🔔"))
}

func TestRender_TelegramEscapes(t *testing.T) {
	r := NewRenderer(RenderConfig{})
	sub := testSub(domain.ScopeDestination)
	sub.Platform = domain.PlatformTelegram
	n := Notification{
		Kind:         KindTransfer,
		Subscription: sub,
		Event:        &domain.TransactionEvent{Sender: "a", Recipient: "b", Amount: decimal.NewFromInt(5), AmountUSD: 1},
		Info:         &domain.TokenInfo{Symbol: "<T>"},
	}

	msg := r.Render(n, Identity{Address: "a", Name: "A&B"}, Identity{Address: "b"}, "")
	assert.Contains(t, msg.Text, "<b>🔔 &lt;T&gt; transfer</b>")
	assert.Contains(t, msg.Text, "A&amp;B")
}

func TestRender_Buttons(t *testing.T) {
	r := NewRenderer(RenderConfig{})
	sub := testSub(domain.ScopeDestination)
	sub.Preferences.Buttons = []domain.ButtonTemplate{
		{Label: "Chart", URL: "https://example.com/t/{token}"},
		{Label: "Tx", URL: "https://example.com/tx/{signature}?w={wallet}"},
	}
	msg := r.Render(swapNotification(sub, 1), Identity{}, Identity{}, "")

	assert.Equal(t, "https://example.com/t/"+sub.TokenAddress, msg.Buttons[0].URL)
	assert.Equal(t, "https://example.com/tx/sig?w=buyer", msg.Buttons[1].URL)
}

func TestRender_Summary(t *testing.T) {
	r := NewRenderer(RenderConfig{})
	n := Notification{
		Kind:         KindSummary,
		Subscription: testSub(domain.ScopeDestination),
		Summary: &domain.Summary{
			Sender:      "a",
			Recipient:   "b",
			TotalUSD:    1500,
			TotalAmount: decimal.NewFromInt(12345),
			Events:      []*domain.TransactionEvent{{Signature: "s1"}, {Signature: "s2"}},
		},
	}
	msg := r.Render(n, Identity{Address: "a"}, Identity{Address: "b"}, "caption")
	assert.Contains(t, msg.Text, "2 transfers totaling 12,345")
	assert.Contains(t, msg.Text, "($1,500)")
	assert.True(t, strings.HasSuffix(msg.Text, "caption"))
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "1,234,567", groupThousands("1234567"))
	assert.Equal(t, "-1,000", groupThousands("-1000"))
	assert.Equal(t, "$999.50", formatUSD(999.5))
	assert.Equal(t, "$12.3K", formatCompactUSD(12_300))
	assert.Equal(t, "0.000123", formatAmount(decimal.RequireFromString("0.000123")))
}
