// Package oracle supplies the reference price used to center order placement.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"volume_maker/internal/config"
	"volume_maker/internal/core"
	apperrors "volume_maker/pkg/errors"
	vmhttp "volume_maker/pkg/http"

	"github.com/shopspring/decimal"
)

// TickerOracle derives the reference price from the exchange's own book: the
// bid/ask midpoint, falling back to the last trade.
type TickerOracle struct {
	exchange core.IExchange
	symbol   string
}

// NewTickerOracle creates a midpoint oracle for the symbol.
func NewTickerOracle(exchange core.IExchange, symbol string) *TickerOracle {
	return &TickerOracle{exchange: exchange, symbol: symbol}
}

func (o *TickerOracle) Price(ctx context.Context) (decimal.Decimal, error) {
	ticker, err := o.exchange.GetTicker(ctx, o.symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker fetch failed: %w", err)
	}
	mid := ticker.Mid()
	if !mid.IsPositive() {
		return decimal.Zero, fmt.Errorf("empty book for %s: %w", o.symbol, apperrors.ErrNoPrice)
	}
	return mid, nil
}

// HTTPOracle fetches a quote from an external endpoint returning
// {"price": <number or string>}.
type HTTPOracle struct {
	client *vmhttp.Client
}

// NewHTTPOracle creates an oracle against the given quote URL.
func NewHTTPOracle(url string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPOracle{client: vmhttp.NewClient(url, timeout, nil)}
}

func (o *HTTPOracle) Price(ctx context.Context) (decimal.Decimal, error) {
	body, err := o.client.Get(ctx, "", nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote fetch failed: %w", err)
	}

	var quote struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(body, &quote); err != nil {
		return decimal.Zero, fmt.Errorf("malformed quote response: %w", err)
	}
	if !quote.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive quote: %w", apperrors.ErrNoPrice)
	}
	return quote.Price, nil
}

// New builds the oracle selected by configuration.
func New(cfg config.OracleConfig, exchange core.IExchange, symbol string) (core.IPriceOracle, error) {
	switch cfg.Source {
	case "", "ticker":
		return NewTickerOracle(exchange, symbol), nil
	case "external":
		return NewHTTPOracle(cfg.URL, time.Duration(cfg.TimeoutMs)*time.Millisecond), nil
	default:
		return nil, fmt.Errorf("unknown oracle source: %s", cfg.Source)
	}
}
