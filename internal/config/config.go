package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"nyfed-stress/internal/logging"
	"nyfed-stress/internal/nyfed"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	NYFed     NYFedConfig     `mapstructure:"nyfed"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Stress    StressConfig    `mapstructure:"stress"`
	Series    []SeriesConfig  `mapstructure:"series"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	HTTP      HTTPConfig      `mapstructure:"http"`
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

// SchedulerConfig governs the ingestion cadence of the run command.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	AlignToStart bool          `mapstructure:"align_to_start"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// NYFedConfig covers upstream API access.
type NYFedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MonitorConfig tunes the ingestion and scoring pass.
type MonitorConfig struct {
	LookbackDays int     `mapstructure:"lookback_days"`
	MinHistory   int     `mapstructure:"min_history"`
	AlertScore   float64 `mapstructure:"alert_score"`
	PlotsDir     string  `mapstructure:"plots_dir"`
}

// StressConfig holds the composite score weights.
type StressConfig struct {
	Weights WeightsConfig `mapstructure:"weights"`
}

// WeightsConfig blends the three stress components.
type WeightsConfig struct {
	ZComponent      float64 `mapstructure:"z_component"`
	PctileComponent float64 `mapstructure:"pctile_component"`
	DeltaComponent  float64 `mapstructure:"delta_component"`
}

// SeriesConfig describes one monitored series.
type SeriesConfig struct {
	ID       string         `mapstructure:"id"`
	Label    string         `mapstructure:"label"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Triggers TriggersConfig `mapstructure:"triggers"`
}

// FetchConfig names the upstream dataset and series key.
type FetchConfig struct {
	Dataset string `mapstructure:"dataset"`
	Key     string `mapstructure:"key"`
}

// Spec builds the validated fetch specification for the series.
func (f FetchConfig) Spec() (nyfed.FetchSpec, error) {
	return nyfed.NewFetchSpec(f.Dataset, f.Key)
}

// TriggersConfig sets per-series trigger thresholds; zero values fall back to
// the stress engine defaults.
type TriggersConfig struct {
	ZAbs       float64 `mapstructure:"z_abs"`
	Pctile     float64 `mapstructure:"pctile"`
	Delta7dPct float64 `mapstructure:"delta_7d_pct"`
}

// NotifyConfig defines alert routing.
type NotifyConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Channels []string      `mapstructure:"channels"`
	Slack    SlackConfig   `mapstructure:"slack"`
	Console  ConsoleConfig `mapstructure:"console"`
}

// SlackConfig captures incoming-webhook delivery.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// ConsoleConfig toggles stdout delivery.
type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HTTPConfig configures the read-side dashboard API.
type HTTPConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NYFEDSTRESS")
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
	v.SetDefault("app.name", "nyfed-stress")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("nyfed.base_url", "https://markets.newyorkfed.org/api")
	v.SetDefault("nyfed.request_timeout", "30s")
	v.SetDefault("nyfed.user_agent", "nyfed-stress/1.0")

	v.SetDefault("monitor.lookback_days", 365)
	v.SetDefault("monitor.min_history", 10)
	v.SetDefault("monitor.alert_score", 70.0)
	v.SetDefault("monitor.plots_dir", "plots")

	v.SetDefault("stress.weights.z_component", 0.6)
	v.SetDefault("stress.weights.pctile_component", 0.2)
	v.SetDefault("stress.weights.delta_component", 0.2)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.channels", []string{"console"})
	v.SetDefault("notify.console.enabled", true)
	v.SetDefault("notify.slack.enabled", false)

	v.SetDefault("http.listen_addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "30s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

var envPlaceholderPattern = regexp.MustCompile(`^\$\{([A-Z0-9_]+)\}$`)

// expandEnvHook replaces string values of the form "${VAR_NAME}" with the
// environment variable's value. Missing variables leave the value unchanged.
func expandEnvHook() mapstructure.DecodeHookFuncKind {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		m := envPlaceholderPattern.FindStringSubmatch(strings.TrimSpace(s))
		if m == nil {
			return data, nil
		}
		if v, found := os.LookupEnv(m[1]); found {
			return v, nil
		}
		return data, nil
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			expandEnvHook(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values. Every series'
// dataset name is parsed here so a bad fetch spec is rejected at load time
// rather than on the first ingestion pass.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Monitor.LookbackDays <= 0 {
		return fmt.Errorf("monitor.lookback_days must be greater than zero")
	}
	if c.Monitor.MinHistory <= 0 {
		return fmt.Errorf("monitor.min_history must be greater than zero")
	}
	if c.Monitor.AlertScore < 0 {
		return fmt.Errorf("monitor.alert_score cannot be negative")
	}

	seen := make(map[string]struct{}, len(c.Series))
	for i, s := range c.Series {
		if s.ID == "" {
			return fmt.Errorf("series[%d].id is required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("series id %q configured more than once", s.ID)
		}
		seen[s.ID] = struct{}{}
		if _, err := s.Fetch.Spec(); err != nil {
			return fmt.Errorf("series %q: %w", s.ID, err)
		}
	}

	if c.Notify.Slack.Enabled && c.Notify.Slack.WebhookURL == "" {
		return fmt.Errorf("notify.slack.webhook_url is required when slack is enabled")
	}
	return nil
}
