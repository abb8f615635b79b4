// Package safety runs startup sanity checks against the exchange. Failures
// are reported for logging; the bot degrades and retries on its normal ticks
// rather than refusing to start.
package safety

import (
	"context"
	"fmt"

	"volume_maker/internal/config"
	"volume_maker/internal/core"

	"github.com/shopspring/decimal"
)

// Result is the outcome of one startup check.
type Result struct {
	Name string
	Err  error
}

// OK reports whether the check passed.
func (r Result) OK() bool { return r.Err == nil }

// Checker probes exchange connectivity and account state before trading
// starts.
type Checker struct {
	exchange core.IExchange
	cfg      *config.Config
	logger   core.ILogger
}

// NewChecker creates a startup checker.
func NewChecker(exchange core.IExchange, cfg *config.Config, logger core.ILogger) *Checker {
	return &Checker{
		exchange: exchange,
		cfg:      cfg,
		logger:   logger.WithField("component", "safety_checker"),
	}
}

// Run executes all startup checks and logs each failure as a warning. The
// results are returned for callers that want to inspect them.
func (c *Checker) Run(ctx context.Context) []Result {
	results := []Result{
		{Name: "ticker_connectivity", Err: c.checkTicker(ctx)},
		{Name: "open_orders_access", Err: c.checkOpenOrders(ctx)},
		{Name: "quote_balance", Err: c.checkQuoteBalance(ctx)},
		{Name: "sizing_headroom", Err: c.checkSizingHeadroom(ctx)},
	}

	for _, r := range results {
		if r.OK() {
			c.logger.Debug("Startup check passed", "check", r.Name)
			continue
		}
		c.logger.Warn("Startup check failed, continuing degraded", "check", r.Name, "error", r.Err)
	}
	return results
}

func (c *Checker) checkTicker(ctx context.Context) error {
	ticker, err := c.exchange.GetTicker(ctx, c.cfg.Trading.Symbol)
	if err != nil {
		return fmt.Errorf("ticker unavailable: %w", err)
	}
	if !ticker.Mid().IsPositive() {
		return fmt.Errorf("no usable price for %s", c.cfg.Trading.Symbol)
	}
	return nil
}

func (c *Checker) checkOpenOrders(ctx context.Context) error {
	if _, err := c.exchange.GetOpenOrders(ctx, c.cfg.Trading.Symbol); err != nil {
		return fmt.Errorf("open orders unavailable: %w", err)
	}
	return nil
}

func (c *Checker) checkQuoteBalance(ctx context.Context) error {
	free, err := c.freeQuote(ctx)
	if err != nil {
		return err
	}
	threshold := decimal.NewFromFloat(c.cfg.Trading.MinFreeThreshold)
	if free.LessThanOrEqual(threshold) {
		return fmt.Errorf("free %s balance %s at or below threshold %s",
			c.cfg.Trading.QuoteAsset, free, threshold)
	}
	return nil
}

// checkSizingHeadroom verifies that at least one minimum-sized order fits the
// usable balance, so the first cycle is not guaranteed to be rejected.
func (c *Checker) checkSizingHeadroom(ctx context.Context) error {
	free, err := c.freeQuote(ctx)
	if err != nil {
		return err
	}
	usable := free.Sub(decimal.NewFromFloat(c.cfg.Trading.FeeBuffer))
	minNotional := decimal.NewFromFloat(c.cfg.Trading.MinOrderNotional)
	if usable.LessThan(minNotional) {
		return fmt.Errorf("usable balance %s cannot fund a %s minimum order", usable, minNotional)
	}
	return nil
}

func (c *Checker) freeQuote(ctx context.Context) (decimal.Decimal, error) {
	balances, err := c.exchange.GetBalances(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balances unavailable: %w", err)
	}
	for _, b := range balances {
		if b.Asset == c.cfg.Trading.QuoteAsset {
			return b.Free, nil
		}
	}
	return decimal.Zero, fmt.Errorf("no %s balance on account", c.cfg.Trading.QuoteAsset)
}
