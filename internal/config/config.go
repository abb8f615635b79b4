// Package config handles configuration management with validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure.
type Config struct {
	App        AppConfig                 `yaml:"app"`
	Exchanges  map[string]ExchangeConfig `yaml:"exchanges"`
	Trading    TradingConfig             `yaml:"trading"`
	Oracle     OracleConfig              `yaml:"oracle"`
	Timing     TimingConfig              `yaml:"timing"`
	System     SystemConfig              `yaml:"system"`
	Telemetry  TelemetryConfig           `yaml:"telemetry"`
	LiveServer LiveServerConfig          `yaml:"live_server"`
	Journal    JournalConfig             `yaml:"journal"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Exchange string `yaml:"exchange"` // binance | mock
}

// ExchangeConfig contains exchange credentials and endpoint overrides.
type ExchangeConfig struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"` // Optional override for API URL
}

// TradingConfig contains the book-maintenance and sizing parameters.
type TradingConfig struct {
	Symbol     string `yaml:"symbol"`
	BaseAsset  string `yaml:"base_asset"`
	QuoteAsset string `yaml:"quote_asset"`

	TargetOrdersPerSide int     `yaml:"target_orders_per_side"`
	ExcessCeiling       int     `yaml:"excess_ceiling"`        // 0 = same as target
	TargetDepthNotional float64 `yaml:"target_depth_notional"` // 0 = count-based only

	BaseSpread float64 `yaml:"base_spread"` // fraction, e.g. 0.003
	SpreadStep float64 `yaml:"spread_step"` // fraction per staggered level

	FeeBuffer        float64 `yaml:"fee_buffer"`         // quote currency
	MinFreeThreshold float64 `yaml:"min_free_threshold"` // quote currency
	UsableFraction   float64 `yaml:"usable_fraction"`    // e.g. 0.8
	MaxOrderNotional float64 `yaml:"max_order_notional"` // per-order cap
	MinOrderNotional float64 `yaml:"min_order_notional"`

	WashPairsPerCycle int     `yaml:"wash_pairs_per_cycle"`
	WashPriceJitter   float64 `yaml:"wash_price_jitter"` // ± fraction
	WashSizeJitter    float64 `yaml:"wash_size_jitter"`  // ± fraction

	PriceDecimals    int `yaml:"price_decimals"`
	QuantityDecimals int `yaml:"quantity_decimals"`
}

// OracleConfig selects the reference price source.
type OracleConfig struct {
	Source    string `yaml:"source"` // ticker | external
	URL       string `yaml:"url"`    // required for external
	TimeoutMs int    `yaml:"timeout_ms"`
}

// TimingConfig contains the loop cadences.
type TimingConfig struct {
	PlaceIntervalMs  int `yaml:"place_interval_ms"`
	PollIntervalMs   int `yaml:"poll_interval_ms"`
	PollBatchSize    int `yaml:"poll_batch_size"`
	OrderPaceMs      int `yaml:"order_pace_ms"`
	StatusIntervalMs int `yaml:"status_interval_ms"`
}

// SystemConfig contains system settings.
type SystemConfig struct {
	LogLevel     string `yaml:"log_level"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	MetricsPort   int  `yaml:"metrics_port"`
}

// LiveServerConfig contains the websocket reporting server settings.
type LiveServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// JournalConfig contains the SQLite fill-journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	for _, check := range []func() error{
		c.validateAppConfig,
		c.validateTradingConfig,
		c.validateOracleConfig,
		c.validateTimingConfig,
		c.validateSystemConfig,
	} {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAppConfig() error {
	validExchanges := []string{"binance", "mock"}
	if !contains(validExchanges, c.App.Exchange) {
		return ValidationError{
			Field:   "app.exchange",
			Value:   c.App.Exchange,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validExchanges, ", ")),
		}
	}
	if c.App.Exchange == "mock" {
		return nil
	}
	ex, exists := c.Exchanges[c.App.Exchange]
	if !exists {
		return ValidationError{
			Field:   "exchanges",
			Value:   c.App.Exchange,
			Message: "exchange configuration not found in exchanges section",
		}
	}
	if ex.APIKey == "" {
		return ValidationError{
			Field:   fmt.Sprintf("exchanges.%s.api_key", c.App.Exchange),
			Message: "API key is required",
		}
	}
	if ex.SecretKey == "" {
		return ValidationError{
			Field:   fmt.Sprintf("exchanges.%s.secret_key", c.App.Exchange),
			Message: "secret key is required",
		}
	}
	return nil
}

func (c *Config) validateTradingConfig() error {
	t := c.Trading
	if t.Symbol == "" {
		return ValidationError{Field: "trading.symbol", Message: "trading symbol is required"}
	}
	if t.QuoteAsset == "" {
		return ValidationError{Field: "trading.quote_asset", Message: "quote asset is required"}
	}
	if t.TargetOrdersPerSide <= 0 || t.TargetOrdersPerSide > 200 {
		return ValidationError{
			Field:   "trading.target_orders_per_side",
			Value:   t.TargetOrdersPerSide,
			Message: "must be between 1 and 200",
		}
	}
	if t.ExcessCeiling != 0 && t.ExcessCeiling < t.TargetOrdersPerSide {
		return ValidationError{
			Field:   "trading.excess_ceiling",
			Value:   t.ExcessCeiling,
			Message: "must be zero or at least target_orders_per_side",
		}
	}
	if t.BaseSpread < 0 || t.BaseSpread >= 1 {
		return ValidationError{Field: "trading.base_spread", Value: t.BaseSpread, Message: "must be in [0, 1)"}
	}
	if t.SpreadStep < 0 || t.SpreadStep >= 1 {
		return ValidationError{Field: "trading.spread_step", Value: t.SpreadStep, Message: "must be in [0, 1)"}
	}
	if t.UsableFraction <= 0 || t.UsableFraction > 1 {
		return ValidationError{Field: "trading.usable_fraction", Value: t.UsableFraction, Message: "must be in (0, 1]"}
	}
	if t.MaxOrderNotional < 0 {
		return ValidationError{Field: "trading.max_order_notional", Value: t.MaxOrderNotional, Message: "cannot be negative"}
	}
	if t.WashPairsPerCycle < 0 {
		return ValidationError{Field: "trading.wash_pairs_per_cycle", Value: t.WashPairsPerCycle, Message: "cannot be negative"}
	}
	if t.PriceDecimals < 0 || t.PriceDecimals > 8 {
		return ValidationError{Field: "trading.price_decimals", Value: t.PriceDecimals, Message: "must be 0-8"}
	}
	if t.QuantityDecimals < 0 || t.QuantityDecimals > 8 {
		return ValidationError{Field: "trading.quantity_decimals", Value: t.QuantityDecimals, Message: "must be 0-8"}
	}
	return nil
}

func (c *Config) validateOracleConfig() error {
	switch c.Oracle.Source {
	case "", "ticker":
	case "external":
		if c.Oracle.URL == "" {
			return ValidationError{Field: "oracle.url", Message: "url is required for the external oracle"}
		}
	default:
		return ValidationError{
			Field:   "oracle.source",
			Value:   c.Oracle.Source,
			Message: "must be one of: ticker, external",
		}
	}
	return nil
}

func (c *Config) validateTimingConfig() error {
	if c.Timing.PlaceIntervalMs <= 0 {
		return ValidationError{Field: "timing.place_interval_ms", Value: c.Timing.PlaceIntervalMs, Message: "must be positive"}
	}
	if c.Timing.PollIntervalMs <= 0 {
		return ValidationError{Field: "timing.poll_interval_ms", Value: c.Timing.PollIntervalMs, Message: "must be positive"}
	}
	if c.Timing.PollBatchSize <= 0 {
		return ValidationError{Field: "timing.poll_batch_size", Value: c.Timing.PollBatchSize, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// CurrentExchangeConfig returns the configuration for the selected exchange.
func (c *Config) CurrentExchangeConfig() (*ExchangeConfig, error) {
	exchange, exists := c.Exchanges[c.App.Exchange]
	if !exists {
		return nil, fmt.Errorf("exchange configuration not found for: %s", c.App.Exchange)
	}
	return &exchange, nil
}

// EffectiveExcessCeiling returns the configured excess ceiling, defaulting to
// the per-side target when unset.
func (c *Config) EffectiveExcessCeiling() int {
	if c.Trading.ExcessCeiling > 0 {
		return c.Trading.ExcessCeiling
	}
	return c.Trading.TargetOrdersPerSide
}

// String returns the configuration with sensitive data masked.
func (c *Config) String() string {
	configCopy := *c
	configCopy.Exchanges = make(map[string]ExchangeConfig, len(c.Exchanges))
	for name, exchange := range c.Exchanges {
		exchange.APIKey = maskString(exchange.APIKey)
		exchange.SecretKey = maskString(exchange.SecretKey)
		configCopy.Exchanges[name] = exchange
	}

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// DefaultConfig returns a default configuration for testing.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Exchange: "mock"},
		Exchanges: map[string]ExchangeConfig{
			"binance": {
				APIKey:    "test_api_key",
				SecretKey: "test_secret_key",
			},
		},
		Trading: TradingConfig{
			Symbol:              "TOKUSDT",
			BaseAsset:           "TOK",
			QuoteAsset:          "USDT",
			TargetOrdersPerSide: 30,
			BaseSpread:          0.003,
			SpreadStep:          0.001,
			FeeBuffer:           10,
			MinFreeThreshold:    50,
			UsableFraction:      0.8,
			MaxOrderNotional:    20,
			MinOrderNotional:    5,
			WashPairsPerCycle:   2,
			WashPriceJitter:     0.0002,
			WashSizeJitter:      0.05,
			PriceDecimals:       4,
			QuantityDecimals:    2,
		},
		Oracle: OracleConfig{Source: "ticker"},
		Timing: TimingConfig{
			PlaceIntervalMs:  5000,
			PollIntervalMs:   3000,
			PollBatchSize:    10,
			OrderPaceMs:      50,
			StatusIntervalMs: 30000,
		},
		System: SystemConfig{
			LogLevel:     "INFO",
			CancelOnExit: true,
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: true,
			MetricsPort:   9091,
		},
	}
}
