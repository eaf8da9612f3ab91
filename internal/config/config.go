package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pricetool/internal/logging"
	"pricetool/internal/source"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Convert  ConvertConfig  `mapstructure:"convert"`
	Stdev    StdevConfig    `mapstructure:"stdev"`
	Database DatabaseConfig `mapstructure:"database"`
	Alerting AlertingConfig `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Progress    bool   `mapstructure:"progress"`
}

// ConvertConfig holds the default inputs and options of the conversion pipeline.
type ConvertConfig struct {
	DataDir       string         `mapstructure:"data_dir"`
	OutputDir     string         `mapstructure:"output_dir"`
	CcyFile       string         `mapstructure:"ccy_file"`
	SpotFile      string         `mapstructure:"spot_file"`
	PriceFile     string         `mapstructure:"price_file"`
	OutputFile    string         `mapstructure:"output_file"`
	RejectsFile   string         `mapstructure:"rejects_file"`
	Start         string         `mapstructure:"start"`
	End           string         `mapstructure:"end"`
	SpotTolerance time.Duration  `mapstructure:"spot_tolerance"`
	Columns       source.Columns `mapstructure:"columns"`
}

// StdevConfig holds the default inputs and options of the rolling stdev pipeline.
type StdevConfig struct {
	DataDir    string         `mapstructure:"data_dir"`
	OutputDir  string         `mapstructure:"output_dir"`
	InputFile  string         `mapstructure:"input_file"`
	OutputFile string         `mapstructure:"output_file"`
	ChartFile  string         `mapstructure:"chart_file"`
	Start      string         `mapstructure:"start"`
	End        string         `mapstructure:"end"`
	Window     int            `mapstructure:"window"`
	Interval   time.Duration  `mapstructure:"interval"`
	Population bool           `mapstructure:"population"`
	AddGapFlag bool           `mapstructure:"add_gap_flag"`
	Columns    source.Columns `mapstructure:"columns"`
}

// DatabaseConfig encapsulates the optional PostgreSQL result sink.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AlertingConfig defines run summary notifications.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	MinSkipped   int            `mapstructure:"min_skipped"`
	NotifyAlways bool           `mapstructure:"notify_always"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICETOOL")
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
	v.SetDefault("app.name", "pricetool")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.progress", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	convertCols := source.DefaultConvertColumns()
	v.SetDefault("convert.data_dir", "data")
	v.SetDefault("convert.output_dir", "results")
	v.SetDefault("convert.ccy_file", "rates_ccy_data.csv")
	v.SetDefault("convert.spot_file", "rates_spot_rate_data.parq.gzip")
	v.SetDefault("convert.price_file", "rates_price_data.parq.gzip")
	v.SetDefault("convert.output_file", "converted_prices.csv")
	v.SetDefault("convert.rejects_file", "")
	v.SetDefault("convert.start", "")
	v.SetDefault("convert.end", "")
	v.SetDefault("convert.spot_tolerance", "0s")
	v.SetDefault("convert.columns.timestamp", convertCols.Timestamp)
	v.SetDefault("convert.columns.currency", convertCols.Currency)
	v.SetDefault("convert.columns.security_id", convertCols.SecurityID)
	v.SetDefault("convert.columns.bid", convertCols.Bid)
	v.SetDefault("convert.columns.mid", convertCols.Mid)
	v.SetDefault("convert.columns.ask", convertCols.Ask)
	v.SetDefault("convert.columns.rate", convertCols.Rate)
	v.SetDefault("convert.columns.convert_price", convertCols.ConvertPrice)
	v.SetDefault("convert.columns.conversion_factor", convertCols.ConversionFactor)

	stdevCols := source.DefaultStdevColumns()
	v.SetDefault("stdev.data_dir", "data")
	v.SetDefault("stdev.output_dir", "results")
	v.SetDefault("stdev.input_file", "stdev_price_data.parq.gzip")
	v.SetDefault("stdev.output_file", "rolling_stdev.csv")
	v.SetDefault("stdev.chart_file", "")
	v.SetDefault("stdev.start", "")
	v.SetDefault("stdev.end", "")
	v.SetDefault("stdev.window", 20)
	v.SetDefault("stdev.interval", "1h")
	v.SetDefault("stdev.population", false)
	v.SetDefault("stdev.add_gap_flag", false)
	v.SetDefault("stdev.columns.timestamp", stdevCols.Timestamp)
	v.SetDefault("stdev.columns.security_id", stdevCols.SecurityID)
	v.SetDefault("stdev.columns.bid", stdevCols.Bid)
	v.SetDefault("stdev.columns.mid", stdevCols.Mid)
	v.SetDefault("stdev.columns.ask", stdevCols.Ask)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_skipped", 1)
	v.SetDefault("alerting.notify_always", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
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
	if c.Convert.SpotTolerance < 0 {
		return fmt.Errorf("convert.spot_tolerance cannot be negative")
	}
	if c.Stdev.Window < 2 {
		return fmt.Errorf("stdev.window must be at least 2")
	}
	if c.Stdev.Interval <= 0 {
		return fmt.Errorf("stdev.interval must be greater than zero")
	}
	if c.Alerting.MinSkipped < 0 {
		return fmt.Errorf("alerting.min_skipped cannot be negative")
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

// ResolvePath joins name onto dir unless name is already absolute or
// explicitly relative to the working directory.
func ResolvePath(dir, name string) string {
	if name == "" || dir == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "."+string(filepath.Separator)) {
		return name
	}
	return filepath.Join(dir, name)
}
