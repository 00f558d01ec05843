package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Binance: BinanceConfig{
			SpotPollInterval: 30 * time.Second,
		},
		Tracker: TrackerConfig{
			Capacity:        100,
			StalenessFactor: 2,
		},
		Evaluator: EvaluatorConfig{
			Interval: 10 * time.Second,
		},
		Alerting: AlertingConfig{
			DefaultCooldown: 5 * time.Minute,
		},
		Export: ExportConfig{
			MaxDataPoints: 1000,
		},
	}
}

func validRule() RuleConfig {
	return RuleConfig{
		ID:        "pump-1m",
		Kind:      RuleKindPriceChange,
		Channel:   "perp",
		Threshold: 3,
		Window:    time.Minute,
		Cooldown:  5 * time.Minute,
		Enabled:   true,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	if cfg.Tracker.Capacity != 100 {
		t.Fatalf("default capacity: got %d", cfg.Tracker.Capacity)
	}
	if cfg.Binance.SpotPollInterval != 30*time.Second {
		t.Fatalf("default spot poll interval: got %s", cfg.Binance.SpotPollInterval)
	}
	if cfg.Binance.QuoteAsset != "USDT" {
		t.Fatalf("default quote asset: got %q", cfg.Binance.QuoteAsset)
	}
	if cfg.Evaluator.Interval != 10*time.Second {
		t.Fatalf("default evaluator interval: got %s", cfg.Evaluator.Interval)
	}
	if cfg.Alerting.DefaultCooldown != 5*time.Minute {
		t.Fatalf("default cooldown: got %s", cfg.Alerting.DefaultCooldown)
	}
}

func TestStalenessScalesPollInterval(t *testing.T) {
	tr := TrackerConfig{StalenessFactor: 2}
	if got := tr.Staleness(30 * time.Second); got != time.Minute {
		t.Fatalf("staleness: got %s", got)
	}

	// Zero factor falls back to the default multiplier.
	tr = TrackerConfig{}
	if got := tr.Staleness(15 * time.Second); got != 30*time.Second {
		t.Fatalf("staleness fallback: got %s", got)
	}
}

func TestApplyRuleDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Rules = []RuleConfig{
		{ID: "spread-default", Kind: RuleKindSpread, Threshold: 0.3, Window: time.Minute},
	}

	applyRuleDefaults(&cfg)

	rule := cfg.Rules[0]
	if rule.Cooldown != cfg.Alerting.DefaultCooldown {
		t.Fatalf("cooldown should inherit the global default, got %s", rule.Cooldown)
	}
	if rule.Channel != "perp" {
		t.Fatalf("channel should default to perp, got %q", rule.Channel)
	}
	if rule.ArbitrageMultiplier != 1.5 {
		t.Fatalf("spread multiplier should default to 1.5, got %v", rule.ArbitrageMultiplier)
	}
}

func TestValidateRejectsMalformedRules(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*RuleConfig)
		wantErr string
	}{
		{"missing id", func(r *RuleConfig) { r.ID = "" }, "id is required"},
		{"unknown kind", func(r *RuleConfig) { r.Kind = "volume" }, "unknown kind"},
		{"zero threshold", func(r *RuleConfig) { r.Threshold = 0 }, "threshold_pct"},
		{"negative threshold", func(r *RuleConfig) { r.Threshold = -1 }, "threshold_pct"},
		{"zero window", func(r *RuleConfig) { r.Window = 0 }, "window"},
		{"zero cooldown", func(r *RuleConfig) { r.Cooldown = 0 }, "cooldown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			rule := validRule()
			tc.mutate(&rule)
			cfg.Rules = []RuleConfig{rule}

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q should mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateRejectsDuplicateRuleIDs(t *testing.T) {
	cfg := validConfig()
	first := validRule()
	second := validRule()
	cfg.Rules = []RuleConfig{first, second}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("duplicate ids must be rejected, got %v", err)
	}
}

func TestValidateRejectsLowSpreadMultiplier(t *testing.T) {
	cfg := validConfig()
	rule := validRule()
	rule.Kind = RuleKindSpread
	rule.ArbitrageMultiplier = 0.5
	cfg.Rules = []RuleConfig{rule}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "arbitrage_multiplier") {
		t.Fatalf("sub-1 multiplier must be rejected, got %v", err)
	}
}

func TestValidateTelegramRequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Telegram.Enabled = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled telegram without credentials must fail validation")
	}
}
