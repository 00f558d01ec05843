package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the rule family that produced an event.
type Kind int

const (
	KindPriceChange Kind = iota
	KindSpread
)

// String returns the storage/log label for the kind.
func (k Kind) String() string {
	switch k {
	case KindPriceChange:
		return "price_change"
	case KindSpread:
		return "spread"
	default:
		return "unknown"
	}
}

// Event 是一次已确认的阈值穿越，包含渲染与审计所需的全部字段。
type Event struct {
	Kind   Kind
	RuleID string
	Symbol string

	// Scope is the rule's symbol scope label ("all" or a symbol).
	Scope string

	MetricPct    decimal.Decimal
	ThresholdPct decimal.Decimal
	Window       time.Duration
	At           time.Time

	// Price is the latest observed price. Price-change events only.
	Price decimal.Decimal

	// SpotPrice and PerpPrice are the two quotes behind a spread event.
	SpotPrice decimal.Decimal
	PerpPrice decimal.Decimal

	// Notable marks a spread wide enough to be worth an arbitrage look.
	Notable bool
}

// Direction labels which way the metric points: premium/discount for
// spreads, up/down/flat for price moves.
func (e Event) Direction() string {
	if e.Kind == KindSpread {
		if e.MetricPct.Sign() < 0 {
			return "discount"
		}
		return "premium"
	}
	switch e.MetricPct.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

// Render produces the human-readable alert text for an event. Rendering is
// pure: the same event always yields the same text.
func Render(event Event) (string, error) {
	switch event.Kind {
	case KindPriceChange:
		return renderPriceChange(event), nil
	case KindSpread:
		return renderSpread(event), nil
	default:
		return "", fmt.Errorf("render: unknown event kind %d", int(event.Kind))
	}
}

func renderPriceChange(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Price Move] %s\n", event.Symbol)
	fmt.Fprintf(&b, "Scope: %s (rule %s)\n", event.Scope, event.RuleID)
	fmt.Fprintf(&b, "Price: %s\n", event.Price.StringFixed(4))
	fmt.Fprintf(&b, "Change: %s over %s, threshold %s%%\n",
		signedPct(event.MetricPct), event.Window, event.ThresholdPct.StringFixed(2))
	fmt.Fprintf(&b, "Time: %s", event.At.UTC().Format(time.RFC3339))
	return b.String()
}

func renderSpread(event Event) string {
	frame := strings.Repeat("=", 30)

	var b strings.Builder
	b.WriteString(frame + "\n")
	fmt.Fprintf(&b, "[Spot-Perp Spread] %s\n", event.Symbol)
	fmt.Fprintf(&b, "Scope: %s (rule %s)\n", event.Scope, event.RuleID)
	fmt.Fprintf(&b, "Spot: %s\n", event.SpotPrice.StringFixed(4))
	fmt.Fprintf(&b, "Perp: %s\n", event.PerpPrice.StringFixed(4))
	fmt.Fprintf(&b, "Spread: %s (%s), threshold %s%%\n",
		signedPct(event.MetricPct), event.Direction(), event.ThresholdPct.StringFixed(2))
	fmt.Fprintf(&b, "Window: %s\n", event.Window)
	fmt.Fprintf(&b, "Time: %s\n", event.At.UTC().Format(time.RFC3339))

	if event.Notable && event.ThresholdPct.Sign() == 1 {
		ratio := event.MetricPct.Abs().Div(event.ThresholdPct)
		b.WriteString("Arbitrage watch\n")
		fmt.Fprintf(&b, "Spread at %sx of configured threshold\n", ratio.StringFixed(1))
	}

	b.WriteString(frame)
	return b.String()
}

// signedPct keeps the sign visible on positive values.
func signedPct(d decimal.Decimal) string {
	text := d.StringFixed(2)
	if d.Sign() >= 0 {
		text = "+" + text
	}
	return text + "%"
}
