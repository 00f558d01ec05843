package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spot-perp-alerts/internal/alerting"
	"spot-perp-alerts/internal/tracker"
)

func spreadRule(threshold string) Rule {
	return Rule{
		ID:            "spread-1",
		Kind:          alerting.KindSpread,
		ThresholdPct:  decimal.RequireFromString(threshold),
		Window:        time.Minute,
		Cooldown:      time.Minute,
		ArbMultiplier: decimal.RequireFromString("1.5"),
		Enabled:       true,
	}
}

func changeRule(id string, threshold string) Rule {
	return Rule{
		ID:           id,
		Kind:         alerting.KindPriceChange,
		Channel:      tracker.ChannelPerp,
		ThresholdPct: decimal.RequireFromString(threshold),
		Window:       time.Minute,
		Cooldown:     time.Minute,
		Enabled:      true,
	}
}

func snapshotWithSpread(t *testing.T, spot, perp string) *tracker.Snapshot {
	t.Helper()
	tr := tracker.New(tracker.Options{Staleness: time.Minute})
	now := time.Now().UTC()
	tr.Ingest("BTCUSDT", tracker.ChannelSpot, tracker.Sample{Time: now, Price: decimal.RequireFromString(spot)})
	tr.Ingest("BTCUSDT", tracker.ChannelPerp, tracker.Sample{Time: now, Price: decimal.RequireFromString(perp)})
	return tr.Snapshot()
}

func newEvaluator(t *testing.T, ledger *Ledger, rules ...Rule) *Evaluator {
	t.Helper()
	eval, err := NewEvaluator(rules, ledger, zerolog.Nop())
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	return eval
}

func TestEvaluatorEmitsSpreadCrossing(t *testing.T) {
	ledger := NewLedger()
	eval := newEvaluator(t, ledger, spreadRule("0.3"))

	snap := snapshotWithSpread(t, "100450", "100000")
	events := eval.Evaluate(snap)
	if len(events) != 1 {
		t.Fatalf("expected one crossing, got %d", len(events))
	}

	event := events[0]
	if event.Kind != alerting.KindSpread {
		t.Fatalf("wrong kind: %v", event.Kind)
	}
	if !event.MetricPct.Equal(decimal.RequireFromString("0.45")) {
		t.Fatalf("expected spread 0.45, got %s", event.MetricPct)
	}
	if event.Direction() != "premium" {
		t.Fatalf("expected premium, got %s", event.Direction())
	}
}

func TestNotableBoundary(t *testing.T) {
	// threshold 0.3, multiplier 1.5: exactly 0.45 is notable, 0.449 is not.
	cases := []struct {
		spot    string
		notable bool
	}{
		{"100450", true},
		{"100449", false},
	}

	for _, tc := range cases {
		eval := newEvaluator(t, NewLedger(), spreadRule("0.3"))
		events := eval.Evaluate(snapshotWithSpread(t, tc.spot, "100000"))
		if len(events) != 1 {
			t.Fatalf("spot=%s: expected one crossing, got %d", tc.spot, len(events))
		}
		if events[0].Notable != tc.notable {
			t.Fatalf("spot=%s: expected notable=%v, got %v (spread %s)",
				tc.spot, tc.notable, events[0].Notable, events[0].MetricPct)
		}
	}
}

func TestCooldownSuppression(t *testing.T) {
	ledger := NewLedger()
	eval := newEvaluator(t, ledger, spreadRule("0.3"))
	snap := snapshotWithSpread(t, "100450", "100000")

	events := eval.Evaluate(snap)
	if len(events) != 1 {
		t.Fatalf("first pass should cross, got %d events", len(events))
	}
	ledger.MarkFired("BTCUSDT", "spread-1", snap.At)

	// Metric still above threshold, but inside the cooldown window.
	if events = eval.Evaluate(snap); len(events) != 0 {
		t.Fatalf("pair inside cooldown must be suppressed, got %d events", len(events))
	}

	// Eligible again once exactly one cooldown has elapsed.
	ledger.MarkFired("BTCUSDT", "spread-1", snap.At.Add(-time.Minute))
	if events = eval.Evaluate(snap); len(events) != 1 {
		t.Fatalf("pair past cooldown must fire again, got %d events", len(events))
	}
}

func TestLedgerEligibility(t *testing.T) {
	ledger := NewLedger()
	now := time.Now().UTC()

	if !ledger.Eligible("BTCUSDT", "r", time.Minute, now) {
		t.Fatal("never-fired pair must be eligible")
	}
	ledger.MarkFired("BTCUSDT", "r", now)
	if ledger.Eligible("BTCUSDT", "r", time.Minute, now.Add(59*time.Second)) {
		t.Fatal("pair must stay suppressed before cooldown elapses")
	}
	if !ledger.Eligible("BTCUSDT", "r", time.Minute, now.Add(time.Minute)) {
		t.Fatal("pair must be eligible at exactly one cooldown")
	}
}

func TestDisabledRuleSkipped(t *testing.T) {
	rule := spreadRule("0.3")
	rule.Enabled = false
	eval := newEvaluator(t, NewLedger(), rule)

	if events := eval.Evaluate(snapshotWithSpread(t, "100450", "100000")); len(events) != 0 {
		t.Fatalf("disabled rule must not evaluate, got %d events", len(events))
	}
}

func TestInsufficientDataSkipsSilently(t *testing.T) {
	tr := tracker.New(tracker.Options{Staleness: time.Minute})
	tr.Ingest("BTCUSDT", tracker.ChannelPerp, tracker.Sample{Time: time.Now().UTC(), Price: decimal.NewFromInt(100)})

	ledger := NewLedger()
	eval := newEvaluator(t, ledger, spreadRule("0.3"))

	if events := eval.Evaluate(tr.Snapshot()); len(events) != 0 {
		t.Fatalf("missing spot channel must skip, got %d events", len(events))
	}
	if _, fired := ledger.LastFired("BTCUSDT", "spread-1"); fired {
		t.Fatal("a skipped pair must not mutate the cooldown ledger")
	}
}

func TestRulesFireIndependently(t *testing.T) {
	tr := tracker.New(tracker.Options{Staleness: time.Minute})
	now := time.Now().UTC()
	tr.Ingest("BTCUSDT", tracker.ChannelPerp, tracker.Sample{Time: now.Add(-2 * time.Minute), Price: decimal.NewFromInt(100)})
	tr.Ingest("BTCUSDT", tracker.ChannelPerp, tracker.Sample{Time: now, Price: decimal.NewFromInt(110)})

	eval := newEvaluator(t, NewLedger(), changeRule("loose", "2"), changeRule("tight", "5"))

	events := eval.Evaluate(tr.Snapshot())
	if len(events) != 2 {
		t.Fatalf("both matching rules must fire independently, got %d", len(events))
	}
	if events[0].RuleID == events[1].RuleID {
		t.Fatal("events should come from distinct rules")
	}
}

func TestScopedRuleOnlyWatchesItsSymbol(t *testing.T) {
	tr := tracker.New(tracker.Options{Staleness: time.Minute})
	now := time.Now().UTC()
	for _, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		tr.Ingest(symbol, tracker.ChannelSpot, tracker.Sample{Time: now, Price: decimal.RequireFromString("101")})
		tr.Ingest(symbol, tracker.ChannelPerp, tracker.Sample{Time: now, Price: decimal.RequireFromString("100")})
	}

	rule := spreadRule("0.3")
	rule.Symbol = "ETHUSDT"
	eval := newEvaluator(t, NewLedger(), rule)

	events := eval.Evaluate(tr.Snapshot())
	if len(events) != 1 || events[0].Symbol != "ETHUSDT" {
		t.Fatalf("scoped rule must only fire for its symbol: %+v", events)
	}
}

func TestValidateRulesRejectsMalformed(t *testing.T) {
	bad := []Rule{
		{ID: "", Kind: alerting.KindSpread},
		{ID: "r", Kind: alerting.Kind(42), ThresholdPct: decimal.NewFromInt(1), Window: time.Second, Cooldown: time.Second},
		{ID: "r", Kind: alerting.KindSpread, ThresholdPct: decimal.Zero, Window: time.Second, Cooldown: time.Second},
		{ID: "r", Kind: alerting.KindSpread, ThresholdPct: decimal.NewFromInt(1), Window: 0, Cooldown: time.Second},
		{ID: "r", Kind: alerting.KindSpread, ThresholdPct: decimal.NewFromInt(1), Window: time.Second, Cooldown: 0},
	}
	for i, rule := range bad {
		if err := rule.Validate(); err == nil {
			t.Fatalf("case %d: malformed rule must be rejected", i)
		}
	}

	dup := spreadRule("0.3")
	if err := ValidateRules([]Rule{dup, dup}); err == nil {
		t.Fatal("duplicate ids must be rejected")
	}
}
