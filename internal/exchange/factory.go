// Package exchange constructs the configured exchange implementation.
package exchange

import (
	"fmt"

	"volume_maker/internal/config"
	"volume_maker/internal/core"
	"volume_maker/internal/exchange/binance"
	"volume_maker/internal/mock"

	"github.com/shopspring/decimal"
)

// New builds the exchange selected by app.exchange. The mock exchange is
// seeded with a synthetic market for dry runs.
func New(cfg *config.Config, logger core.ILogger) (core.IExchange, error) {
	switch cfg.App.Exchange {
	case "binance":
		exCfg, err := cfg.CurrentExchangeConfig()
		if err != nil {
			return nil, err
		}
		return binance.New(exCfg, cfg.Trading, logger)

	case "mock":
		ex := mock.NewExchange()
		ex.SetDecimals(cfg.Trading.PriceDecimals, cfg.Trading.QuantityDecimals)
		ex.SetTicker(cfg.Trading.Symbol,
			decimal.RequireFromString("99.95"),
			decimal.RequireFromString("100.05"),
			decimal.RequireFromString("100"))
		ex.SetBalance(cfg.Trading.QuoteAsset, decimal.NewFromInt(10000), decimal.Zero)
		if cfg.Trading.BaseAsset != "" {
			ex.SetBalance(cfg.Trading.BaseAsset, decimal.NewFromInt(100), decimal.Zero)
		}
		return ex, nil

	default:
		return nil, fmt.Errorf("unsupported exchange: %s", cfg.App.Exchange)
	}
}
