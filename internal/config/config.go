package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ideaboard/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Source    SourceConfig    `mapstructure:"source"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Prices    PricesConfig    `mapstructure:"prices"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
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
}

// ServerConfig governs the REST API listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SourceConfig covers access to the investment forum.
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ThrottleConfig tunes the anti-detection fetch cadence.
type ThrottleConfig struct {
	BaseMin   time.Duration `mapstructure:"base_min"`
	BaseMax   time.Duration `mapstructure:"base_max"`
	JitterMax time.Duration `mapstructure:"jitter_max"`
	LongEvery int           `mapstructure:"long_every"`
	LongMin   time.Duration `mapstructure:"long_min"`
	LongMax   time.Duration `mapstructure:"long_max"`
}

// PricesConfig covers the market data provider.
type PricesConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Freshness      time.Duration `mapstructure:"freshness"`
	MaxAgeHours    int           `mapstructure:"max_age_hours"`
}

// PipelineConfig tunes the ingestion pipeline.
type PipelineConfig struct {
	HistoryYears  int `mapstructure:"history_years"`
	RecPriceBatch int `mapstructure:"rec_price_batch"`
}

// CacheConfig selects the short-freshness price cache backend.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

// SchedulerConfig governs the daily pipeline cadence in run mode.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// NotifyConfig routes run-completion notifications.
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram notification channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	TopN int `mapstructure:"top_n"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IDEABOARD")
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
	v.SetDefault("app.name", "ideaboard")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("source.base_url", "https://valueinvestorsclub.com")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	v.SetDefault("source.request_timeout", "30s")

	v.SetDefault("throttle.base_min", "8s")
	v.SetDefault("throttle.base_max", "12s")
	v.SetDefault("throttle.jitter_max", "4s")
	v.SetDefault("throttle.long_every", 5)
	v.SetDefault("throttle.long_min", "60s")
	v.SetDefault("throttle.long_max", "90s")

	v.SetDefault("prices.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("prices.request_timeout", "15s")
	v.SetDefault("prices.freshness", "5m")
	v.SetDefault("prices.max_age_hours", 24)

	v.SetDefault("pipeline.history_years", 5)
	v.SetDefault("pipeline.rec_price_batch", 100)

	v.SetDefault("cache.dial_timeout", "5s")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.top_n", 25)
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
	if c.Throttle.BaseMin <= 0 || c.Throttle.BaseMax < c.Throttle.BaseMin {
		return fmt.Errorf("throttle.base_min/base_max must form a positive range")
	}
	if c.Throttle.LongEvery <= 0 {
		return fmt.Errorf("throttle.long_every must be greater than zero")
	}
	if c.Throttle.LongMin <= 0 || c.Throttle.LongMax < c.Throttle.LongMin {
		return fmt.Errorf("throttle.long_min/long_max must form a positive range")
	}
	if c.Prices.Freshness <= 0 {
		return fmt.Errorf("prices.freshness must be greater than zero")
	}
	if c.Prices.MaxAgeHours <= 0 {
		return fmt.Errorf("prices.max_age_hours must be greater than zero")
	}
	if c.Pipeline.HistoryYears <= 0 {
		return fmt.Errorf("pipeline.history_years must be greater than zero")
	}
	if c.Pipeline.RecPriceBatch <= 0 {
		return fmt.Errorf("pipeline.rec_price_batch must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.TopN <= 0 {
		return fmt.Errorf("export.top_n must be greater than zero")
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when enabled")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when enabled")
		}
	}
	return nil
}
