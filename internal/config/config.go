package config

import (
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"feed-sentinel/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Sentinel  SentinelConfig  `mapstructure:"sentinel"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs ingestion cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	IngestAttempts  uint          `mapstructure:"ingest_attempts"`
	IngestRetryWait time.Duration `mapstructure:"ingest_retry_wait"`
}

// FeedConfig selects and parameterises the upstream price source.
type FeedConfig struct {
	// Kind selects the adapter: "chainlink" or "http".
	Kind              string        `mapstructure:"kind"`
	RPCURL            string        `mapstructure:"rpc_url"`
	AggregatorAddress string        `mapstructure:"aggregator_address"`
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// SentinelConfig carries the guarded pair and its safety bounds.
type SentinelConfig struct {
	BaseToken     string `mapstructure:"base_token"`
	QuoteToken    string `mapstructure:"quote_token"`
	BaseDecimals  uint8  `mapstructure:"base_decimals"`
	QuoteDecimals uint8  `mapstructure:"quote_decimals"`
	MaxDropBps    uint64 `mapstructure:"max_drop_bps"`
	MaxRiseBps    uint64 `mapstructure:"max_rise_bps"`
	// Lambda is the per-minute decay rate as a decimal string, e.g. "0.1".
	Lambda string `mapstructure:"lambda"`
}

// Pair renders the canonical pair label used for storage and logging.
func (c SentinelConfig) Pair() string {
	return c.BaseToken + "/" + c.QuoteToken
}

// LambdaFixedPoint parses the configured decay rate into 1e18 fixed point.
func (c SentinelConfig) LambdaFixedPoint() (sdkmath.Int, error) {
	d, err := decimal.NewFromString(c.Lambda)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("parse sentinel.lambda: %w", err)
	}
	if d.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("sentinel.lambda cannot be negative")
	}
	return sdkmath.NewIntFromBigInt(d.Shift(18).BigInt()), nil
}

// AlertingConfig defines rejection-alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDSENTINEL")
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
	v.SetDefault("app.name", "feed-sentinel")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73656e74))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.ingest_attempts", uint(3))
	v.SetDefault("scheduler.ingest_retry_wait", "2s")

	v.SetDefault("feed.kind", "chainlink")
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "feed-sentinel/1.0")

	v.SetDefault("sentinel.base_decimals", uint8(18))
	v.SetDefault("sentinel.quote_decimals", uint8(18))
	v.SetDefault("sentinel.max_drop_bps", uint64(200))
	v.SetDefault("sentinel.max_rise_bps", uint64(200))
	v.SetDefault("sentinel.lambda", "0.1")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Sentinel.BaseToken == "" || c.Sentinel.QuoteToken == "" {
		return fmt.Errorf("sentinel.base_token and sentinel.quote_token must be configured")
	}
	if c.Sentinel.BaseToken == c.Sentinel.QuoteToken {
		return fmt.Errorf("sentinel.base_token and sentinel.quote_token must differ")
	}
	if c.Sentinel.MaxDropBps > 10_000 {
		return fmt.Errorf("sentinel.max_drop_bps cannot exceed 10000")
	}
	if _, err := c.Sentinel.LambdaFixedPoint(); err != nil {
		return err
	}
	switch c.Feed.Kind {
	case "chainlink", "http":
	default:
		return fmt.Errorf("feed.kind must be chainlink or http, got %q", c.Feed.Kind)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
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
