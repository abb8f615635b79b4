package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
app:
  exchange: binance
exchanges:
  binance:
    api_key: test_key_12345678
    secret_key: test_secret_12345678
trading:
  symbol: TOKUSDT
  base_asset: TOK
  quote_asset: USDT
  target_orders_per_side: 30
  base_spread: 0.003
  spread_step: 0.001
  fee_buffer: 10
  min_free_threshold: 50
  usable_fraction: 0.8
  max_order_notional: 20
  min_order_notional: 5
  wash_pairs_per_cycle: 2
  price_decimals: 4
  quantity_decimals: 2
timing:
  place_interval_ms: 5000
  poll_interval_ms: 3000
  poll_batch_size: 10
system:
  log_level: INFO
  cancel_on_exit: true
`

func TestLoadConfigValid(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "binance", cfg.App.Exchange)
	assert.Equal(t, "TOKUSDT", cfg.Trading.Symbol)
	assert.Equal(t, 30, cfg.Trading.TargetOrdersPerSide)
	assert.Equal(t, 30, cfg.EffectiveExcessCeiling())
	assert.True(t, cfg.System.CancelOnExit)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_VM_API_KEY", "env_key_12345678")
	t.Setenv("TEST_VM_SECRET", "env_secret_12345678")

	yaml := strings.ReplaceAll(validYAML, "test_key_12345678", "${TEST_VM_API_KEY}")
	yaml = strings.ReplaceAll(yaml, "test_secret_12345678", "${TEST_VM_SECRET}")

	cfg, err := LoadConfig(writeConfig(t, yaml))
	require.NoError(t, err)

	ex, err := cfg.CurrentExchangeConfig()
	require.NoError(t, err)
	assert.Equal(t, "env_key_12345678", ex.APIKey)
	assert.Equal(t, "env_secret_12345678", ex.SecretKey)
}

func TestLoadConfigMissingAPIKey(t *testing.T) {
	yaml := strings.ReplaceAll(validYAML, "api_key: test_key_12345678", `api_key: ""`)
	_, err := LoadConfig(writeConfig(t, yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown exchange", func(c *Config) { c.App.Exchange = "kraken" }, "app.exchange"},
		{"zero target", func(c *Config) { c.Trading.TargetOrdersPerSide = 0 }, "target_orders_per_side"},
		{"ceiling below target", func(c *Config) { c.Trading.ExcessCeiling = 5 }, "excess_ceiling"},
		{"spread out of range", func(c *Config) { c.Trading.BaseSpread = 1.5 }, "base_spread"},
		{"usable fraction zero", func(c *Config) { c.Trading.UsableFraction = 0 }, "usable_fraction"},
		{"negative wash pairs", func(c *Config) { c.Trading.WashPairsPerCycle = -1 }, "wash_pairs_per_cycle"},
		{"bad oracle source", func(c *Config) { c.Oracle.Source = "chainlink" }, "oracle.source"},
		{"external oracle without url", func(c *Config) { c.Oracle.Source = "external" }, "oracle.url"},
		{"zero poll batch", func(c *Config) { c.Timing.PollBatchSize = 0 }, "poll_batch_size"},
		{"bad log level", func(c *Config) { c.System.LogLevel = "VERBOSE" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestExcessCeilingOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Trading.ExcessCeiling = 37
	assert.Equal(t, 37, cfg.EffectiveExcessCeiling())
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exchanges["binance"] = ExchangeConfig{
		APIKey:    "super_secret_api_key_value",
		SecretKey: "super_secret_key_value_xyz",
	}

	s := cfg.String()
	assert.NotContains(t, s, "super_secret_api_key_value")
	assert.NotContains(t, s, "super_secret_key_value_xyz")
	assert.Contains(t, s, "supe")
}
