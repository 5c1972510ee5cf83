package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig                 `mapstructure:"app"`
	Exchanges  map[string]ExchangeConfig `mapstructure:"exchanges"`
	Strategies StrategiesConfig          `mapstructure:"strategies"`
	Redis      RedisConfig               `mapstructure:"redis"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	// Port serves /metrics; 0 disables the listener.
	Port int `mapstructure:"port"`
}

// ExchangeConfig describes one venue connection. Venue selects the client
// factory and the price fetch strategy; it defaults to the map key.
type ExchangeConfig struct {
	Venue         string `mapstructure:"venue"`
	BaseURL       string `mapstructure:"base_url"`
	WSURL         string `mapstructure:"ws_url"`
	APIKey        string `mapstructure:"api_key"`
	SecretKey     string `mapstructure:"secret_key"`
	WalletAddress string `mapstructure:"wallet_address"`
	PrivateKey    string `mapstructure:"private_key"`
	Sandbox       bool   `mapstructure:"sandbox"`
}

type StrategiesConfig struct {
	SpreadArb SpreadArbConfig `mapstructure:"spread_arb"`
}

type SpreadArbConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Symbol         string   `mapstructure:"symbol"`
	Exchanges      []string `mapstructure:"exchanges"`
	ThresholdOpen  float64  `mapstructure:"threshold_open"`
	ThresholdClose float64  `mapstructure:"threshold_close"`
	PollInterval   float64  `mapstructure:"poll_interval"` // seconds
	TradeAmount    float64  `mapstructure:"trade_amount"`
	ExecuteTrades  bool     `mapstructure:"execute_trades"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

var (
	ErrTooFewExchanges  = errors.New("spread arbitrage needs at least two exchanges")
	ErrInvalidThreshold = errors.New("invalid spread thresholds")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.port", 0)
	v.SetDefault("strategies.spread_arb.enabled", true)
	v.SetDefault("strategies.spread_arb.symbol", "BTC/USDT")
	v.SetDefault("strategies.spread_arb.threshold_open", 0.2)
	v.SetDefault("strategies.spread_arb.threshold_close", 0.1)
	v.SetDefault("strategies.spread_arb.poll_interval", 1.0)
	v.SetDefault("strategies.spread_arb.trade_amount", 0.001)
	v.SetDefault("strategies.spread_arb.execute_trades", false)
	v.SetDefault("redis.channel", "spread:signals")
}

// LoadConfig reads config.yaml from the directory at path. A .env file in the
// working directory or next to the config is loaded first so that secrets can
// stay out of the YAML.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(path, ".env"))

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Exchanges == nil {
		c.Exchanges = make(map[string]ExchangeConfig)
	}
	for name, ex := range c.Exchanges {
		if ex.Venue == "" {
			ex.Venue = name
		}
		ex.Venue = strings.ToLower(ex.Venue)
		applyCredentialEnv(name, &ex)
		c.Exchanges[name] = ex
	}

	sa := &c.Strategies.SpreadArb
	if len(sa.Exchanges) == 0 {
		sa.Exchanges = c.ExchangeNames()
	}
}

// applyCredentialEnv lets BINANCE_APIKEY / BINANCE_SECRET style variables
// override keys from the file.
func applyCredentialEnv(name string, ex *ExchangeConfig) {
	prefix := strings.ToUpper(name)
	if v := os.Getenv(prefix + "_APIKEY"); v != "" {
		ex.APIKey = v
	}
	if v := os.Getenv(prefix + "_SECRET"); v != "" {
		ex.SecretKey = v
	}
}

// ExchangeNames returns the configured exchange names in sorted order.
func (c *Config) ExchangeNames() []string {
	names := make([]string, 0, len(c.Exchanges))
	for name := range c.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) Validate() error {
	sa := c.Strategies.SpreadArb
	if len(sa.Exchanges) < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewExchanges, len(sa.Exchanges))
	}
	for _, name := range sa.Exchanges {
		if _, ok := c.Exchanges[name]; !ok {
			return fmt.Errorf("monitored exchange %q is not configured", name)
		}
	}
	if strings.TrimSpace(sa.Symbol) == "" {
		return errors.New("strategies.spread_arb.symbol is required")
	}
	if sa.ThresholdClose < 0 || sa.ThresholdOpen < sa.ThresholdClose {
		return fmt.Errorf("%w: open=%v close=%v (need open >= close >= 0)",
			ErrInvalidThreshold, sa.ThresholdOpen, sa.ThresholdClose)
	}
	if sa.PollInterval <= 0 {
		return fmt.Errorf("strategies.spread_arb.poll_interval must be positive, got %v", sa.PollInterval)
	}
	if sa.ExecuteTrades && sa.TradeAmount <= 0 {
		return fmt.Errorf("strategies.spread_arb.trade_amount must be positive, got %v", sa.TradeAmount)
	}
	return nil
}
