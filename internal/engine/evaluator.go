package engine

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"spot-perp-alerts/internal/alerting"
	"spot-perp-alerts/internal/tracker"
)

// Evaluator decides which (symbol, rule) pairs have newly crossed their
// threshold in a given tracker snapshot, applying cooldown suppression.
type Evaluator struct {
	rules  []Rule
	ledger *Ledger
	logger zerolog.Logger
}

// NewEvaluator constructs an evaluator over a validated rule set.
func NewEvaluator(rules []Rule, ledger *Ledger, logger zerolog.Logger) (*Evaluator, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}
	if ledger == nil {
		return nil, errors.New("cooldown ledger is required")
	}
	return &Evaluator{
		rules:  rules,
		ledger: ledger,
		logger: logger.With().Str("component", "evaluator").Logger(),
	}, nil
}

// Evaluate runs every enabled rule against every symbol in its scope and
// returns the crossings eligible for dispatch. Rules fire independently;
// a failure to evaluate one pair never aborts the rest of the pass.
func (e *Evaluator) Evaluate(snap *tracker.Snapshot) []alerting.Event {
	var events []alerting.Event
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		symbols := []string{rule.Symbol}
		if rule.Symbol == "" {
			symbols = snap.Symbols()
		}

		for _, symbol := range symbols {
			event, ok := e.evaluatePair(snap, rule, symbol)
			if ok {
				events = append(events, event)
			}
		}
	}
	return events
}

func (e *Evaluator) evaluatePair(snap *tracker.Snapshot, rule Rule, symbol string) (alerting.Event, bool) {
	event := alerting.Event{
		Kind:         rule.Kind,
		RuleID:       rule.ID,
		Symbol:       symbol,
		Scope:        rule.Scope(),
		ThresholdPct: rule.ThresholdPct,
		Window:       rule.Window,
		At:           snap.At,
	}

	switch rule.Kind {
	case alerting.KindPriceChange:
		change, err := snap.PercentChange(symbol, rule.Channel, rule.Window)
		if err != nil {
			e.skip(symbol, rule, err)
			return alerting.Event{}, false
		}
		latest, err := snap.Latest(symbol, rule.Channel)
		if err != nil {
			e.skip(symbol, rule, err)
			return alerting.Event{}, false
		}
		event.MetricPct = change
		event.Price = latest.Price

	case alerting.KindSpread:
		quote, err := snap.Spread(symbol, tracker.ChannelSpot, tracker.ChannelPerp)
		if err != nil {
			e.skip(symbol, rule, err)
			return alerting.Event{}, false
		}
		event.MetricPct = quote.Pct
		event.SpotPrice = quote.Reference.Price
		event.PerpPrice = quote.Derivative.Price
		event.Notable = quote.Pct.Abs().Cmp(rule.ThresholdPct.Mul(rule.ArbMultiplier)) >= 0

	default:
		return alerting.Event{}, false
	}

	if event.MetricPct.Abs().Cmp(rule.ThresholdPct) < 0 {
		return alerting.Event{}, false
	}
	if !e.ledger.Eligible(symbol, rule.ID, rule.Cooldown, snap.At) {
		return alerting.Event{}, false
	}
	return event, true
}

// skip drops a pair for the current pass. Insufficient data is routine and
// stays silent; data-quality conditions are surfaced at warn level.
func (e *Evaluator) skip(symbol string, rule Rule, err error) {
	if errors.Is(err, tracker.ErrDataQuality) {
		e.logger.Warn().
			Str("symbol", symbol).
			Str("rule", rule.ID).
			Err(err).
			Msg("skipping pair on bad upstream data")
	}
}
