// Package config exposes strongly typed application configuration structs
// loaded from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment,
// metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Market describes the market data feed and the single instrument universe.
type Market struct {
	Provider      string `yaml:"provider"` // stub | polygon
	EquitySymbol  string `yaml:"equity_symbol"`
	PolygonAPIKey string `yaml:"polygon_api_key"`
	StockWSURL    string `yaml:"stock_ws_url"`
	OptionsWSURL  string `yaml:"options_ws_url"`
}

// Trading groups the cadence and contract parameters of the pipeline.
type Trading struct {
	CooldownSecs       int `yaml:"cooldown_secs"`
	QuotePollMs        int `yaml:"quote_poll_ms"`
	PositionPollSecs   int `yaml:"position_poll_secs"`
	ContractMultiplier int `yaml:"contract_multiplier"`
}

// Risk encodes guard-rails for how much size the trade generator may take on.
type Risk struct {
	StopLossMultiple    float64 `yaml:"stop_loss_multiple"`
	TakeProfitMultiple  float64 `yaml:"take_profit_multiple"`
	MaxPositionSize     int     `yaml:"max_position_size"`
	TradingCapital      float64 `yaml:"trading_capital"`
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
}

// Broker selects and configures the order-routing backend.
type Broker struct {
	Name      string `yaml:"name"` // sim | schwab
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	AccountID string `yaml:"account_id"`
	Paper     bool   `yaml:"paper"`
}

// Storage controls where the event log is persisted.
type Storage struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Market  Market  `yaml:"market"`
	Trading Trading `yaml:"trading"`
	Risk    Risk    `yaml:"risk"`
	Broker  Broker  `yaml:"broker"`
	Storage Storage `yaml:"storage"`
}

// Load reads a YAML file from disk, overlays environment variables, and
// applies defaults. A .env file next to the process is honored if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	applyEnvOverrides(&config)
	setDefaults(&config)
	return &config, nil
}

// Default returns a configuration with every default applied and no file
// input, suitable for tests and the replay binary.
func Default() *Config {
	var config Config
	setDefaults(&config)
	return &config
}

// Cooldown returns the signal suppression window as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Trading.CooldownSecs) * time.Second
}

// QuotePollInterval returns the per-symbol option polling cadence.
func (c *Config) QuotePollInterval() time.Duration {
	return time.Duration(c.Trading.QuotePollMs) * time.Millisecond
}

// PositionPollInterval returns the broker position polling cadence.
func (c *Config) PositionPollInterval() time.Duration {
	return time.Duration(c.Trading.PositionPollSecs) * time.Second
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.App.LogLevel = v
	}
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		config.Market.PolygonAPIKey = v
	}
	if v := os.Getenv("EQUITY_SYMBOL"); v != "" {
		config.Market.EquitySymbol = v
	}
	if v := os.Getenv("SCHWAB_API_KEY"); v != "" {
		config.Broker.APIKey = v
	}
	if v := os.Getenv("SCHWAB_ACCOUNT_ID"); v != "" {
		config.Broker.AccountID = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.Storage.DSN = v
	}
	if v := os.Getenv("RISK_MAX_POSITION_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Risk.MaxPositionSize = n
		}
	}
}

func setDefaults(config *Config) {
	if config.App.Name == "" {
		config.App.Name = "alpha-gen"
	}
	if config.App.MetricsAddr == "" {
		config.App.MetricsAddr = ":9109"
	}
	if config.App.LogLevel == "" {
		config.App.LogLevel = "info"
	}
	if config.Market.Provider == "" {
		config.Market.Provider = "stub"
	}
	if config.Market.EquitySymbol == "" {
		config.Market.EquitySymbol = "QQQ"
	}
	if config.Market.StockWSURL == "" {
		config.Market.StockWSURL = "wss://socket.polygon.io/stocks"
	}
	if config.Market.OptionsWSURL == "" {
		config.Market.OptionsWSURL = "wss://socket.polygon.io/options"
	}
	if config.Trading.CooldownSecs <= 0 {
		config.Trading.CooldownSecs = 30
	}
	if config.Trading.QuotePollMs <= 0 {
		config.Trading.QuotePollMs = 1000
	}
	if config.Trading.PositionPollSecs <= 0 {
		config.Trading.PositionPollSecs = 15
	}
	if config.Trading.ContractMultiplier <= 0 {
		config.Trading.ContractMultiplier = 100
	}
	if config.Risk.StopLossMultiple <= 0 {
		config.Risk.StopLossMultiple = 2.0
	}
	if config.Risk.TakeProfitMultiple <= 0 {
		config.Risk.TakeProfitMultiple = 0.5
	}
	if config.Risk.MaxPositionSize <= 0 {
		config.Risk.MaxPositionSize = 25
	}
	if config.Risk.TradingCapital <= 0 {
		config.Risk.TradingCapital = 5_000_000
	}
	if config.Broker.Name == "" {
		config.Broker.Name = "sim"
		config.Broker.Paper = true
	}
	if config.Broker.BaseURL == "" {
		config.Broker.BaseURL = "https://api.schwabapi.com"
	}
	if config.Storage.DSN == "" {
		config.Storage.DSN = "data/alphagen.db"
	}
}
