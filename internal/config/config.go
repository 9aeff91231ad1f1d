package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stellar-insights/internal/logging"
)

const (
	// DriverSQLite selects the embedded SQLite store.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the PostgreSQL store.
	DriverPostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Horizon     HorizonConfig     `mapstructure:"horizon"`
	Ingestion   IngestionConfig   `mapstructure:"ingestion"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Muxed       MuxedConfig       `mapstructure:"muxed"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the backing store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the ingestion cycle cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	CycleTimeout    time.Duration `mapstructure:"cycle_timeout"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// HorizonConfig covers the remote payments source.
type HorizonConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PageLimit      int           `mapstructure:"page_limit"`
	UserAgent      string        `mapstructure:"user_agent"`
	MockMode       bool          `mapstructure:"mock_mode"`
}

// IngestionConfig tunes the payment ingestor.
type IngestionConfig struct {
	TaskName    string `mapstructure:"task_name"`
	StartCursor string `mapstructure:"start_cursor"`
	MaxBatches  int    `mapstructure:"max_batches"`
}

// AggregationConfig tunes the hourly corridor aggregation job.
type AggregationConfig struct {
	JobID          string `mapstructure:"job_id"`
	MaxRetries     int    `mapstructure:"max_retries"`
	MaxHoursPerRun int    `mapstructure:"max_hours_per_run"`
}

// CacheConfig configures the cache-aside read path.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	CorridorTTL   time.Duration `mapstructure:"corridor_ttl"`
	MuxedTTL      time.Duration `mapstructure:"muxed_ttl"`
	AnchorTTL     time.Duration `mapstructure:"anchor_ttl"`
}

// MuxedConfig controls multiplexed address analytics.
type MuxedConfig struct {
	TopN int `mapstructure:"top_n"`
}

// ScoringConfig holds the reliability score weights.
type ScoringConfig struct {
	SuccessWeight      float64 `mapstructure:"success_weight"`
	SettlementWeight   float64 `mapstructure:"settlement_weight"`
	TargetSettlementMs float64 `mapstructure:"target_settlement_ms"`
}

// AlertingConfig defines alert routing for exhausted aggregation jobs.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram bot parameters.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("STELLAR_INSIGHTS")
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

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
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
	v.SetDefault("app.name", "stellar-insights")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "stellar_insights.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.cycle_timeout", "4m")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73746c72))

	v.SetDefault("horizon.base_url", "https://horizon.stellar.org")
	v.SetDefault("horizon.request_timeout", "15s")
	v.SetDefault("horizon.page_limit", 200)
	v.SetDefault("horizon.user_agent", "stellar-insights/1.0")
	v.SetDefault("horizon.mock_mode", false)

	v.SetDefault("ingestion.task_name", "payments")
	v.SetDefault("ingestion.start_cursor", "")
	v.SetDefault("ingestion.max_batches", 10)

	v.SetDefault("aggregation.job_id", "hourly_corridor_metrics")
	v.SetDefault("aggregation.max_retries", 5)
	v.SetDefault("aggregation.max_hours_per_run", 24)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "stellar-insights")
	v.SetDefault("cache.corridor_ttl", "5m")
	v.SetDefault("cache.muxed_ttl", "10m")
	v.SetDefault("cache.anchor_ttl", "5m")

	v.SetDefault("muxed.top_n", 20)

	v.SetDefault("scoring.success_weight", 0.8)
	v.SetDefault("scoring.settlement_weight", 0.2)
	v.SetDefault("scoring.target_settlement_ms", 5000.0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)
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
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.CycleTimeout <= 0 {
		return fmt.Errorf("scheduler.cycle_timeout must be greater than zero")
	}
	if c.Horizon.PageLimit <= 0 || c.Horizon.PageLimit > 200 {
		return fmt.Errorf("horizon.page_limit must be between 1 and 200")
	}
	if !c.Horizon.MockMode && c.Horizon.BaseURL == "" {
		return fmt.Errorf("horizon.base_url is required unless horizon.mock_mode is set")
	}
	if c.Ingestion.TaskName == "" {
		return fmt.Errorf("ingestion.task_name must not be empty")
	}
	if c.Ingestion.MaxBatches <= 0 {
		return fmt.Errorf("ingestion.max_batches must be greater than zero")
	}
	if c.Aggregation.JobID == "" {
		return fmt.Errorf("aggregation.job_id must not be empty")
	}
	if c.Aggregation.MaxRetries < 0 {
		return fmt.Errorf("aggregation.max_retries cannot be negative")
	}
	if c.Aggregation.MaxHoursPerRun <= 0 {
		return fmt.Errorf("aggregation.max_hours_per_run must be greater than zero")
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr is required when cache.enabled is set")
	}
	if c.Muxed.TopN <= 0 {
		return fmt.Errorf("muxed.top_n must be greater than zero")
	}
	if c.Scoring.SuccessWeight < 0 || c.Scoring.SettlementWeight < 0 || c.Scoring.SuccessWeight+c.Scoring.SettlementWeight == 0 {
		return fmt.Errorf("scoring weights must be non-negative and not both zero")
	}
	if c.Scoring.TargetSettlementMs <= 0 {
		return fmt.Errorf("scoring.target_settlement_ms must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
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

// ResolveTopN returns either the CLI override or config default.
func (c *Config) ResolveTopN(override int) int {
	if override > 0 {
		return override
	}
	return c.Muxed.TopN
}
