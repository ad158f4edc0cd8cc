package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"polymarket-pro/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Gamma      GammaConfig      `mapstructure:"gamma"`
	Clob       ClobConfig       `mapstructure:"clob"`
	Spot       SpotConfig       `mapstructure:"spot"`
	Series     SeriesConfig     `mapstructure:"series"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Prediction PredictionConfig `mapstructure:"prediction"`
	Export     ExportConfig     `mapstructure:"export"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Markets    MarketsConfig    `mapstructure:"markets"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FeedConfig governs the push transport and its fallback poll loop.
type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
}

// GammaConfig covers market metadata resolution.
type GammaConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ClobConfig covers the historical price endpoint.
type ClobConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	HistoryInterval string        `mapstructure:"history_interval"`
}

// SpotConfig selects and configures the reference spot-price source.
type SpotConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	Provider     string          `mapstructure:"provider"`
	PollInterval time.Duration   `mapstructure:"poll_interval"`
	Binance      BinanceConfig   `mapstructure:"binance"`
	Chainlink    ChainlinkConfig `mapstructure:"chainlink"`
}

// BinanceConfig captures REST ticker connectivity.
type BinanceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Symbol         string        `mapstructure:"symbol"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChainlinkConfig covers on-chain aggregator reads.
type ChainlinkConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	AggregatorAddress string        `mapstructure:"aggregator_address"`
	Decimals          int32         `mapstructure:"decimals"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// SeriesConfig bounds in-memory retention per instrument.
type SeriesConfig struct {
	MaxPoints int `mapstructure:"max_points"`
}

// AlertingConfig defines alert rules and routing.
type AlertingConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Rules    []AlertRuleConfig `mapstructure:"rules"`
	Telegram TelegramConfig    `mapstructure:"telegram"`
}

// AlertRuleConfig declares one one-shot threshold rule registered at startup.
type AlertRuleConfig struct {
	Direction string  `mapstructure:"direction"`
	Threshold float64 `mapstructure:"threshold"`
	Label     string  `mapstructure:"label"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// PredictionConfig tunes the random-walk prediction layer.
type PredictionConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxOffset    float64       `mapstructure:"max_offset"`
	MaxStep      float64       `mapstructure:"max_step"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int    `mapstructure:"max_data_points"`
	OutputDir     string `mapstructure:"output_dir"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// MarketsConfig names the instruments to watch at startup. Slugs are
// resolved to token IDs before subscribing; token IDs are used verbatim.
type MarketsConfig struct {
	Slugs    []string `mapstructure:"slugs"`
	TokenIDs []string `mapstructure:"token_ids"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POLYPRO")
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
	v.SetDefault("app.name", "polymarket-pro")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("feed.url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("feed.reconnect_delay", "3s")
	v.SetDefault("feed.poll_interval", "30s")
	v.SetDefault("feed.dial_timeout", "10s")
	v.SetDefault("feed.read_timeout", "60s")
	v.SetDefault("feed.ping_interval", "15s")

	v.SetDefault("gamma.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("gamma.request_timeout", "10s")

	v.SetDefault("clob.base_url", "https://clob.polymarket.com")
	v.SetDefault("clob.request_timeout", "10s")
	v.SetDefault("clob.history_interval", "1d")

	v.SetDefault("spot.enabled", false)
	v.SetDefault("spot.provider", "binance")
	v.SetDefault("spot.poll_interval", "15s")
	v.SetDefault("spot.binance.base_url", "https://api.binance.com")
	v.SetDefault("spot.binance.symbol", "BTCUSDT")
	v.SetDefault("spot.binance.request_timeout", "10s")
	v.SetDefault("spot.chainlink.decimals", 8)
	v.SetDefault("spot.chainlink.request_timeout", "10s")

	v.SetDefault("series.max_points", 500)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("prediction.enabled", true)
	v.SetDefault("prediction.tick_interval", "1s")
	v.SetDefault("prediction.max_offset", 10.0)
	v.SetDefault("prediction.max_step", 0.15)

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.output_dir", ".")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")
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
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url must be configured")
	}
	if c.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed.reconnect_delay must be greater than zero")
	}
	if c.Series.MaxPoints <= 0 {
		return fmt.Errorf("series.max_points must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Spot.Provider {
	case "binance", "chainlink":
	default:
		return fmt.Errorf("spot.provider must be binance or chainlink, got %q", c.Spot.Provider)
	}
	if c.Spot.Enabled && c.Spot.Provider == "chainlink" {
		if c.Spot.Chainlink.RPCURL == "" {
			return fmt.Errorf("spot.chainlink.rpc_url must be configured")
		}
		if c.Spot.Chainlink.AggregatorAddress == "" {
			return fmt.Errorf("spot.chainlink.aggregator_address must be configured")
		}
	}
	if c.Prediction.Enabled {
		if c.Prediction.MaxOffset <= 0 {
			return fmt.Errorf("prediction.max_offset must be greater than zero")
		}
		if c.Prediction.MaxStep <= 0 {
			return fmt.Errorf("prediction.max_step must be greater than zero")
		}
	}
	for i, r := range c.Alerting.Rules {
		switch r.Direction {
		case "above", "below":
		default:
			return fmt.Errorf("alerting.rules[%d].direction must be above or below, got %q", i, r.Direction)
		}
		if r.Threshold < 0 || r.Threshold > 1 {
			return fmt.Errorf("alerting.rules[%d].threshold must be within [0, 1], got %v", i, r.Threshold)
		}
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

// WatchKeys returns true when at least one instrument is configured, either
// by slug or by raw token ID.
func (c *Config) WatchKeys() bool {
	return len(c.Markets.Slugs) > 0 || len(c.Markets.TokenIDs) > 0
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
