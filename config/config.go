package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"marketdesk/pkg/binance"
	"marketdesk/pkg/bybit"
	"marketdesk/pkg/dhan"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Exchanges   ExchangesConfig `mapstructure:"exchanges"`
	Poller      PollerConfig    `mapstructure:"poller"`
	Store       StoreConfig     `mapstructure:"store"`
	Postgres    PostgresConfig  `mapstructure:"postgres"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Log         LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type ExchangesConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Binance RESTConfig    `mapstructure:"binance"`
	Bybit   BybitConfig   `mapstructure:"bybit"`
	Dhan    RESTConfig    `mapstructure:"dhan"`
	// Gateway is where clients such as `watch --via-gateway` reach the proxy.
	Gateway string `mapstructure:"gateway"`
}

type RESTConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	TestnetURL string `mapstructure:"testnet_url"`
}

type BybitConfig struct {
	RESTConfig `mapstructure:",squash"`
	Category   string `mapstructure:"category"` // "linear" or "spot"
}

type PollerConfig struct {
	TickerEvery time.Duration `mapstructure:"ticker_every"`
	ChartEvery  time.Duration `mapstructure:"chart_every"`
	Window      int           `mapstructure:"window"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite", "postgres" or "memory"
	Path   string `mapstructure:"path"`
	Key    string `mapstructure:"key"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	BaseURL  string `mapstructure:"base_url"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("server.port", 3001)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("exchanges.timeout", 10*time.Second)
	v.SetDefault("exchanges.binance.base_url", binance.BaseURLMainnet)
	v.SetDefault("exchanges.binance.testnet_url", binance.BaseURLTestnet)
	v.SetDefault("exchanges.bybit.base_url", bybit.BaseURLMainnet)
	v.SetDefault("exchanges.bybit.testnet_url", bybit.BaseURLTestnet)
	v.SetDefault("exchanges.bybit.category", bybit.CategoryLinear)
	v.SetDefault("exchanges.dhan.base_url", dhan.BaseURL)
	v.SetDefault("exchanges.gateway", "http://localhost:3001")

	v.SetDefault("poller.ticker_every", 2*time.Second)
	v.SetDefault("poller.chart_every", 30*time.Second)
	v.SetDefault("poller.window", 200)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/marketdesk.db")
	v.SetDefault("store.key", "trading-bot-api-configs")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.dbname", "marketdesk")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("telegram.base_url", "https://api.telegram.org")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// New returns a viper instance with defaults, search paths and env binding
// set up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if ex, err := os.Executable(); err == nil {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	// MARKETDESK_SERVER_PORT overrides server.port
	v.SetEnvPrefix("MARKETDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads config.yaml (or the explicit path) and overrides with
// environment variables. A missing config file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = cfg.Environment
	}

	return &cfg, nil
}
