// Package core defines the domain types and interfaces shared across the bot.
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IExchange is the abstract exchange client consumed by the trading loops.
// Wire-level concerns (signing, serialization, endpoints) live behind it.
type IExchange interface {
	GetName() string
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]*OpenOrder, error)
	GetBalances(ctx context.Context) ([]*BalanceSnapshot, error)

	// PlaceOrder fails with apperrors.ErrOrderRejected on invalid parameters
	// or insufficient funds.
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OpenOrder, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	// CancelAllOrders cancels every open order on the symbol and returns how
	// many were cancelled.
	CancelAllOrders(ctx context.Context, symbol string) (int, error)

	// GetOrder fails with apperrors.ErrOrderNotFound once the exchange has
	// purged the order.
	GetOrder(ctx context.Context, symbol string, orderID int64) (*OpenOrder, error)
	GetRecentTrades(ctx context.Context, symbol string, limit int, orderID int64) ([]*Trade, error)

	GetPriceDecimals() int
	GetQuantityDecimals() int
}

// IPriceOracle supplies the reference price used to center staggered order
// placement. An error (or a non-positive price) means "no price available" and
// the caller skips the cycle.
type IPriceOracle interface {
	Price(ctx context.Context) (decimal.Decimal, error)
}

// ITickSource drives a periodic loop. Tests substitute a manual source to run
// cycles synchronously without wall-clock timers.
type ITickSource interface {
	Ticks() <-chan time.Time
	Stop()
}

// ICycleRunner is one pass of a timer-driven loop. A returned error means the
// cycle was skipped; it is logged and never escalated.
type ICycleRunner interface {
	RunCycle(ctx context.Context) error
}

// ILogger is the structured logging interface used throughout the bot.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
