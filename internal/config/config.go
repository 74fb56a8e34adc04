package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"options-flow-scanner/internal/logging"
	"options-flow-scanner/internal/trend"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid config")

// DefaultWatchlist is the focus list scored by the trend stage.
var DefaultWatchlist = []string{
	"NVDA", "GOOG", "GOOGL", "AAPL", "MSFT", "AMZN", "META", "AVGO",
	"TSM", "TSLA", "SPY", "QQQ", "SPX", "NDX", "PLTR", "AMD", "UBER",
	"QCOM", "GLD", "SLV", "MU", "NOW",
}

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Input     InputConfig     `mapstructure:"input"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Trend     TrendConfig     `mapstructure:"trend"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	// Timezone defines the calendar date of a run.
	Timezone string `mapstructure:"timezone"`
}

// InputConfig locates the sheet export.
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// AnalysisConfig tunes the flow stages.
type AnalysisConfig struct {
	DaysBack            int     `mapstructure:"days_back"`
	NearTermMonths      int     `mapstructure:"near_term_months"`
	RepetitionThreshold int     `mapstructure:"repetition_threshold"`
	LargeOrderMin       float64 `mapstructure:"large_order_min"`
	TopN                int     `mapstructure:"top_n"`
}

// TrendConfig tunes the EMA scorer.
type TrendConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	Watchlist    []string          `mapstructure:"watchlist"`
	Timeframes   []TimeframeConfig `mapstructure:"timeframes"`
	Span         int               `mapstructure:"span"`
	Workers      int               `mapstructure:"workers"`
	FetchTimeout time.Duration     `mapstructure:"fetch_timeout"`
	MinHistory   int               `mapstructure:"min_history"`
}

// TimeframeConfig is one entry of trend.timeframes. A bare label decodes
// into an entry whose Span is zero, meaning trend.span applies.
type TimeframeConfig struct {
	Label string `mapstructure:"label"`
	Span  int    `mapstructure:"span"`
}

// Frames resolves trend.timeframes in configured order with each entry's
// EMA span filled in.
func (t TrendConfig) Frames() ([]trend.Timeframe, error) {
	labels := make([]string, len(t.Timeframes))
	for i, tf := range t.Timeframes {
		labels[i] = tf.Label
	}
	frames, err := trend.SelectTimeframes(labels)
	if err != nil {
		return nil, err
	}
	for i := range frames {
		if t.Span > 0 {
			frames[i].Span = t.Span
		}
		if i < len(t.Timeframes) && t.Timeframes[i].Span > 0 {
			frames[i].Span = t.Timeframes[i].Span
		}
	}
	return frames, nil
}

// FeedConfig captures price feed connectivity.
type FeedConfig struct {
	BaseURL           string            `mapstructure:"base_url"`
	UserAgent         string            `mapstructure:"user_agent"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	RequestsPerMinute int               `mapstructure:"requests_per_minute"`
	Retries           int               `mapstructure:"retries"`
	SymbolAliases     map[string]string `mapstructure:"symbol_aliases"`
}

// SnapshotConfig controls dated snapshot files.
type SnapshotConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the daily run.
type SchedulerConfig struct {
	// RunAt is the HH:MM wall-clock time in app.timezone.
	RunAt           string        `mapstructure:"run_at"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines digest routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	TopN     int            `mapstructure:"top_n"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram digest channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig sets where Prometheus metrics are written.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOWSCAN")
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
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flowscan")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "America/New_York")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("input.path", ".tmp/raw_sheet_data.json")

	v.SetDefault("analysis.days_back", 15)
	v.SetDefault("analysis.near_term_months", 2)
	v.SetDefault("analysis.repetition_threshold", 2)
	v.SetDefault("analysis.large_order_min", 5_000_000.0)
	v.SetDefault("analysis.top_n", 20)

	v.SetDefault("trend.enabled", true)
	v.SetDefault("trend.watchlist", DefaultWatchlist)
	v.SetDefault("trend.timeframes", []string{"5m", "10m", "1h", "4h", "1d", "1wk"})
	v.SetDefault("trend.span", 39)
	v.SetDefault("trend.workers", 4)
	v.SetDefault("trend.fetch_timeout", "15s")
	v.SetDefault("trend.min_history", 1)

	v.SetDefault("feed.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("feed.user_agent", "Mozilla/5.0 (flowscan)")
	v.SetDefault("feed.timeout", "10s")
	v.SetDefault("feed.requests_per_minute", 120)
	v.SetDefault("feed.retries", 2)
	v.SetDefault("feed.symbol_aliases", map[string]string{"SPX": "^SPX", "NDX": "^NDX", "VIX": "^VIX"})

	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.dir", ".tmp/snapshots")

	v.SetDefault("scheduler.run_at", "16:30")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x666c6f77))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.top_n", 10)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			labelToTimeframeHook(),
		)
	}
}

// labelToTimeframeHook lets trend.timeframes mix bare labels with
// {label, span} entries.
func labelToTimeframeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(TimeframeConfig{}) {
			return data, nil
		}
		return map[string]any{"label": data}, nil
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return invalid("app.timezone %q: %v", c.App.Timezone, err)
	}
	if c.Analysis.DaysBack < 0 {
		return invalid("analysis.days_back cannot be negative")
	}
	if c.Analysis.NearTermMonths < 0 {
		return invalid("analysis.near_term_months cannot be negative")
	}
	if c.Analysis.RepetitionThreshold < 1 {
		return invalid("analysis.repetition_threshold must be at least 1")
	}
	if c.Analysis.LargeOrderMin < 0 {
		return invalid("analysis.large_order_min cannot be negative")
	}

	seen := make(map[string]bool, len(c.Trend.Timeframes))
	for _, tf := range c.Trend.Timeframes {
		label := strings.ToLower(strings.TrimSpace(tf.Label))
		if label == "" {
			return invalid("trend.timeframes contains an empty label")
		}
		if _, ok := trend.LookupTimeframe(label); !ok {
			return invalid("trend.timeframes: unknown timeframe %q", tf.Label)
		}
		if seen[label] {
			return invalid("trend.timeframes contains %q twice", label)
		}
		if tf.Span < 0 {
			return invalid("trend.timeframes %q: span cannot be negative", label)
		}
		seen[label] = true
	}
	if c.Trend.Span < 1 {
		return invalid("trend.span must be at least 1")
	}
	if c.Trend.Workers < 1 {
		return invalid("trend.workers must be at least 1")
	}
	if c.Trend.FetchTimeout <= 0 {
		return invalid("trend.fetch_timeout must be greater than zero")
	}
	if c.Feed.Retries < 0 {
		return invalid("feed.retries cannot be negative")
	}

	if _, _, err := c.RunAt(); err != nil {
		return invalid("scheduler.run_at %q: %v", c.Scheduler.RunAt, err)
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return invalid("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return invalid("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// Location resolves app.timezone. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.App.Timezone)
}

// RunAt parses scheduler.run_at into hour and minute.
func (c *Config) RunAt() (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.Scheduler.RunAt))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// ResolveTopN returns either the CLI override or config default.
func (c *Config) ResolveTopN(override int) int {
	if override > 0 {
		return override
	}
	return c.Analysis.TopN
}
