package notify

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/market"
)

// Identity is the display identity of a wallet.
type Identity struct {
	Address string
	Name    string
	Emoji   string
}

// Display returns "emoji name" for known wallets and a shortened address otherwise.
func (i Identity) Display() string {
	if i.Name == "" {
		return market.ShortAddress(i.Address)
	}
	if i.Emoji == "" {
		return i.Name
	}
	return i.Emoji + " " + i.Name
}

// RenderConfig configures message rendering.
type RenderConfig struct {
	// EmojiStepUSD adds one tier emoji per step of USD value.
	EmojiStepUSD float64
	MaxEmojis    int
	DefaultEmoji string
}

// Renderer turns notifications into platform-specific messages.
type Renderer struct {
	cfg RenderConfig
	now func() time.Time
}

func NewRenderer(cfg RenderConfig) *Renderer {
	if cfg.MaxEmojis <= 0 {
		cfg.MaxEmojis = 20
	}
	if cfg.DefaultEmoji == "" {
		cfg.DefaultEmoji = "🔔"
	}
	return &Renderer{cfg: cfg, now: time.Now}
}

// Render builds the message for n. sender and recipient are the resolved
// identities of the event's parties.
func (r *Renderer) Render(n Notification, sender, recipient Identity, caption string) Message {
	sub := n.Subscription
	platform := sub.Platform
	f := formatter{platform: platform}

	msg := Message{
		ID:          uuid.NewString(),
		Kind:        n.Kind,
		Destination: sub.DestinationID,
		Platform:    platform,
		Token:       sub.TokenAddress,
		Caption:     caption,
		CreatedAt:   r.now(),
	}

	symbol := market.ShortAddress(sub.TokenAddress)
	if n.Info != nil && n.Info.Symbol != "" {
		symbol = n.Info.Symbol
	}
	if n.Info != nil && n.Info.Found() {
		msg.ImageURL = n.Info.ImageURL
	}
	emoji := sub.Preferences.Emoji
	if emoji == "" {
		emoji = r.cfg.DefaultEmoji
	}

	var lines []string
	switch n.Kind {
	case KindDeactivation:
		lines = append(lines, f.bold("⚠️ Tracking stopped for "+symbol), f.escape(n.Text))

	case KindSwap:
		ev := n.Event
		if tier := r.tier(ev.AmountUSD, emoji); tier != "" {
			lines = append(lines, tier)
		}
		verb, actor, label := "bought", recipient, "BUY"
		if ev.Direction == domain.DirectionSell {
			verb, actor, label = "sold", sender, "SELL"
		}
		lines = append(lines,
			f.bold(fmt.Sprintf("%s %s %s", emoji, symbol, label)),
			fmt.Sprintf("%s %s %s %s (%s)", f.escape(actor.Display()), verb, formatAmount(ev.Amount), f.escape(symbol), formatUSD(ev.AmountUSD)),
		)
		lines = append(lines, r.marketLine(n.Info)...)

	case KindTransfer:
		ev := n.Event
		lines = append(lines,
			f.bold(fmt.Sprintf("%s %s transfer", emoji, symbol)),
			fmt.Sprintf("%s → %s", f.escape(sender.Display()), f.escape(recipient.Display())),
			fmt.Sprintf("%s %s (%s)", formatAmount(ev.Amount), f.escape(symbol), formatUSD(ev.AmountUSD)),
		)
		lines = append(lines, r.marketLine(n.Info)...)

	case KindSummary:
		s := n.Summary
		lines = append(lines,
			f.bold(fmt.Sprintf("%s %s activity", emoji, symbol)),
			fmt.Sprintf("%s → %s", f.escape(sender.Display()), f.escape(recipient.Display())),
			fmt.Sprintf("%d transfers totaling %s %s (%s)", s.Count(), formatAmount(s.TotalAmount), f.escape(symbol), formatUSD(s.TotalUSD)),
		)
		lines = append(lines, r.marketLine(n.Info)...)
	}

	if caption != "" {
		lines = append(lines, "", f.escape(caption))
	}
	msg.Text = strings.Join(lines, "\n")
	msg.Buttons = renderButtons(sub.Preferences.Buttons, n)
	return msg
}

// tier returns one emoji per EmojiStepUSD of value, capped at MaxEmojis.
func (r *Renderer) tier(usd float64, emoji string) string {
	if r.cfg.EmojiStepUSD <= 0 || usd <= 0 {
		return ""
	}
	count := int(math.Floor(usd / r.cfg.EmojiStepUSD))
	if count < 1 {
		count = 1
	}
	if count > r.cfg.MaxEmojis {
		count = r.cfg.MaxEmojis
	}
	return strings.Repeat(emoji, count)
}

func (r *Renderer) marketLine(info *domain.TokenInfo) []string {
	if info == nil || !info.Found() {
		return nil
	}
	parts := make([]string, 0, 2)
	if info.PriceUSD > 0 {
		parts = append(parts, "Price: "+formatPrice(info.PriceUSD))
	}
	if info.MarketCapUSD > 0 {
		parts = append(parts, "MC: "+formatCompactUSD(info.MarketCapUSD))
	}
	if len(parts) == 0 {
		return nil
	}
	return []string{strings.Join(parts, " | ")}
}

func renderButtons(templates []domain.ButtonTemplate, n Notification) []Button {
	if len(templates) == 0 {
		return nil
	}
	var signature, wallet string
	switch {
	case n.Event != nil:
		signature = n.Event.Signature
		wallet = n.Event.Recipient
		if n.Event.Direction == domain.DirectionSell {
			wallet = n.Event.Sender
		}
	case n.Summary != nil && len(n.Summary.Events) > 0:
		signature = n.Summary.Events[len(n.Summary.Events)-1].Signature
		wallet = n.Summary.Recipient
	}
	replacer := strings.NewReplacer(
		"{token}", n.Subscription.TokenAddress,
		"{signature}", signature,
		"{wallet}", wallet,
	)
	buttons := make([]Button, 0, len(templates))
	for _, t := range templates {
		buttons = append(buttons, Button{Label: t.Label, URL: replacer.Replace(t.URL)})
	}
	return buttons
}

type formatter struct {
	platform domain.Platform
}

func (f formatter) bold(s string) string {
	switch f.platform {
	case domain.PlatformTelegram:
		return "<b>" + html.EscapeString(s) + "</b>"
	case domain.PlatformDiscord:
		return "**" + s + "**"
	default:
		return s
	}
}

func (f formatter) escape(s string) string {
	if f.platform == domain.PlatformTelegram {
		return html.EscapeString(s)
	}
	return s
}

func formatAmount(d decimal.Decimal) string {
	switch {
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return groupThousands(d.StringFixed(0))
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1)):
		return d.Round(2).String()
	default:
		return d.Round(6).String()
	}
}

func formatUSD(v float64) string {
	if v >= 1000 {
		return "$" + groupThousands(fmt.Sprintf("%.0f", v))
	}
	return fmt.Sprintf("$%.2f", v)
}

func formatPrice(v float64) string {
	if v >= 0.01 {
		return fmt.Sprintf("$%.4f", v)
	}
	return fmt.Sprintf("$%.4g", v)
}

func formatCompactUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
