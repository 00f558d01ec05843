package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"spot-perp-alerts/internal/alerting"
	"spot-perp-alerts/internal/config"
	"spot-perp-alerts/internal/tracker"
)

// Rule is one immutable threshold definition loaded from configuration.
type Rule struct {
	ID   string
	Kind alerting.Kind

	// Symbol scopes the rule to one symbol; empty means every tracked symbol.
	Symbol string

	// Channel is the price channel a price-change rule watches.
	Channel string

	ThresholdPct decimal.Decimal
	Window       time.Duration
	Cooldown     time.Duration

	// ArbMultiplier marks spread crossings as notable at
	// threshold x multiplier. Spread rules only.
	ArbMultiplier decimal.Decimal

	Enabled bool
}

// Scope is the human label for the rule's symbol scope.
func (r Rule) Scope() string {
	if r.Symbol == "" {
		return "all"
	}
	return r.Symbol
}

// Validate rejects malformed rules at load time, before any evaluation.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	switch r.Kind {
	case alerting.KindPriceChange, alerting.KindSpread:
	default:
		return fmt.Errorf("rule %s: unknown kind", r.ID)
	}
	if r.ThresholdPct.Sign() != 1 {
		return fmt.Errorf("rule %s: threshold_pct must be greater than zero", r.ID)
	}
	if r.Window <= 0 {
		return fmt.Errorf("rule %s: window must be greater than zero", r.ID)
	}
	if r.Cooldown <= 0 {
		return fmt.Errorf("rule %s: cooldown must be greater than zero", r.ID)
	}
	if r.Kind == alerting.KindPriceChange {
		switch r.Channel {
		case tracker.ChannelPerp, tracker.ChannelSpot:
		default:
			return fmt.Errorf("rule %s: channel must be %q or %q", r.ID, tracker.ChannelPerp, tracker.ChannelSpot)
		}
	}
	if r.Kind == alerting.KindSpread && r.ArbMultiplier.Cmp(decimal.NewFromInt(1)) < 0 {
		return fmt.Errorf("rule %s: arbitrage_multiplier must be at least 1", r.ID)
	}
	return nil
}

// ParseRules converts configured rules into their runtime form and
// validates the full set.
func ParseRules(cfgs []config.RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfgs))
	for _, cfg := range cfgs {
		rule := Rule{
			ID:            cfg.ID,
			Symbol:        cfg.Symbol,
			Channel:       cfg.Channel,
			ThresholdPct:  decimal.NewFromFloat(cfg.Threshold),
			Window:        cfg.Window,
			Cooldown:      cfg.Cooldown,
			ArbMultiplier: decimal.NewFromFloat(cfg.ArbitrageMultiplier),
			Enabled:       cfg.Enabled,
		}
		switch cfg.Kind {
		case config.RuleKindPriceChange:
			rule.Kind = alerting.KindPriceChange
		case config.RuleKindSpread:
			rule.Kind = alerting.KindSpread
		default:
			return nil, fmt.Errorf("rule %s: unknown kind %q", cfg.ID, cfg.Kind)
		}
		rules = append(rules, rule)
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// ValidateRules checks a full rule set, including id uniqueness.
func ValidateRules(rules []Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return err
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("rule %s: duplicate id", rule.ID)
		}
		seen[rule.ID] = struct{}{}
	}
	return nil
}
