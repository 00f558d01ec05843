package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"spot-perp-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Rules     []RuleConfig    `mapstructure:"rules"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for alert auditing.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// BinanceConfig covers the two upstream price sources.
type BinanceConfig struct {
	FuturesWSURL     string        `mapstructure:"futures_ws_url"`
	SpotBaseURL      string        `mapstructure:"spot_base_url"`
	SpotPollInterval time.Duration `mapstructure:"spot_poll_interval"`
	QuoteAsset       string        `mapstructure:"quote_asset"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// TrackerConfig bounds in-memory price history.
type TrackerConfig struct {
	Capacity int `mapstructure:"capacity"`

	// StalenessFactor scales the spot poll interval into the maximum
	// tolerated sample age for spread computation.
	StalenessFactor float64 `mapstructure:"staleness_factor"`
}

// Staleness resolves the cross-channel staleness bound.
func (t TrackerConfig) Staleness(pollInterval time.Duration) time.Duration {
	factor := t.StalenessFactor
	if factor <= 0 {
		factor = 2
	}
	return time.Duration(float64(pollInterval) * factor)
}

// EvaluatorConfig governs the evaluation loop.
type EvaluatorConfig struct {
	Interval              time.Duration `mapstructure:"interval"`
	AlignToInterval       bool          `mapstructure:"align_to_interval"`
	StartupDelay          time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey       int64         `mapstructure:"advisory_lock_key"`
	MaxConcurrentDispatch int           `mapstructure:"max_concurrent_dispatch"`
}

// AlertingConfig defines alert delivery and the shared cooldown default.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	DefaultCooldown time.Duration  `mapstructure:"default_cooldown"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// RuleConfig is one threshold rule as written in configuration.
type RuleConfig struct {
	ID        string  `mapstructure:"id"`
	Kind      string  `mapstructure:"kind"`
	Symbol    string  `mapstructure:"symbol"`
	Channel   string  `mapstructure:"channel"`
	Threshold float64 `mapstructure:"threshold_pct"`

	Window   time.Duration `mapstructure:"window"`
	Cooldown time.Duration `mapstructure:"cooldown"`

	ArbitrageMultiplier float64 `mapstructure:"arbitrage_multiplier"`
	Enabled             bool    `mapstructure:"enabled"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Rule kinds accepted in configuration.
const (
	RuleKindPriceChange = "price_change"
	RuleKindSpread      = "spread"
)

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PERPWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyRuleDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "perpwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("binance.futures_ws_url", "wss://fstream.binance.com/ws/!miniTicker@arr")
	v.SetDefault("binance.spot_base_url", "https://api.binance.com")
	v.SetDefault("binance.spot_poll_interval", "30s")
	v.SetDefault("binance.quote_asset", "USDT")
	v.SetDefault("binance.request_timeout", "10s")
	v.SetDefault("binance.reconnect_delay", "5s")
	v.SetDefault("binance.user_agent", "perpwatcher/1.0")

	v.SetDefault("tracker.capacity", 100)
	v.SetDefault("tracker.staleness_factor", 2.0)

	v.SetDefault("evaluator.interval", "10s")
	v.SetDefault("evaluator.align_to_interval", true)
	v.SetDefault("evaluator.startup_delay", "0s")
	v.SetDefault("evaluator.advisory_lock_key", int64(0x70657270))
	v.SetDefault("evaluator.max_concurrent_dispatch", 4)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.default_cooldown", "5m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// applyRuleDefaults fills per-rule fields that inherit global defaults.
func applyRuleDefaults(cfg *Config) {
	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		if rule.Cooldown == 0 {
			rule.Cooldown = cfg.Alerting.DefaultCooldown
		}
		if rule.Channel == "" {
			rule.Channel = "perp"
		}
		if rule.Kind == RuleKindSpread && rule.ArbitrageMultiplier == 0 {
			rule.ArbitrageMultiplier = 1.5
		}
	}
}

// Validate performs load-time sanity checks. Malformed rules are rejected
// here, before any evaluation runs.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Evaluator.Interval <= 0 {
		return fmt.Errorf("evaluator.interval must be greater than zero")
	}
	if c.Binance.SpotPollInterval <= 0 {
		return fmt.Errorf("binance.spot_poll_interval must be greater than zero")
	}
	if c.Tracker.Capacity <= 0 {
		return fmt.Errorf("tracker.capacity must be greater than zero")
	}
	if c.Alerting.DefaultCooldown <= 0 {
		return fmt.Errorf("alerting.default_cooldown must be greater than zero")
	}

	seen := make(map[string]struct{}, len(c.Rules))
	for _, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rules: id is required")
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("rules: duplicate id %q", rule.ID)
		}
		seen[rule.ID] = struct{}{}

		if rule.Kind != RuleKindPriceChange && rule.Kind != RuleKindSpread {
			return fmt.Errorf("rules: %s has unknown kind %q", rule.ID, rule.Kind)
		}
		if rule.Threshold <= 0 {
			return fmt.Errorf("rules: %s threshold_pct must be greater than zero", rule.ID)
		}
		if rule.Window <= 0 {
			return fmt.Errorf("rules: %s window must be greater than zero", rule.ID)
		}
		if rule.Cooldown <= 0 {
			return fmt.Errorf("rules: %s cooldown must be greater than zero", rule.ID)
		}
		if rule.Kind == RuleKindSpread && rule.ArbitrageMultiplier < 1 {
			return fmt.Errorf("rules: %s arbitrage_multiplier must be at least 1", rule.ID)
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
