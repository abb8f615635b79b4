package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which side of the book an order sits on.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus is the exchange-side lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether the order can no longer change on the exchange.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Ticker is a best bid/ask snapshot for a symbol.
type Ticker struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Last   decimal.Decimal
}

// Mid returns the bid/ask midpoint, falling back to the last trade price
// when one side of the book is empty.
func (t *Ticker) Mid() decimal.Decimal {
	if t.Bid.IsPositive() && t.Ask.IsPositive() {
		return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
	}
	return t.Last
}

// OpenOrder is the exchange's view of an order. The exchange owns this data;
// local copies are snapshots and may be stale.
type OpenOrder struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	ExecutedQty   decimal.Decimal
	AvgPrice      decimal.Decimal
	Status        OrderStatus
	PlacedAt      time.Time
}

// FillPrice returns the effective execution price of the order, preferring
// the average fill price when the exchange reports one.
func (o *OpenOrder) FillPrice() decimal.Decimal {
	if o.AvgPrice.IsPositive() {
		return o.AvgPrice
	}
	return o.Price
}

// BalanceSnapshot is a point-in-time asset balance. It is fetched fresh every
// cycle and never cached across cycles.
type BalanceSnapshot struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Trade is a single execution reported by the exchange.
type Trade struct {
	ID       int64
	OrderID  int64
	Symbol   string
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Time     time.Time
}

// OrderRequest describes an order to be submitted to the exchange.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	ClientOrderID string
}

// OrderRecord is the local tracking entry created when this process places an
// order. IntendedPrice is the reference price at placement time, used both for
// reserved-balance accounting (BUY notional) and for fill classification.
// The record set is a cache of exchange truth, reconciled when a terminal
// status or a not-found response is observed.
type OrderRecord struct {
	OrderID       int64
	Side          Side
	IntendedPrice decimal.Decimal
	Quantity      decimal.Decimal
	IsWashTrade   bool
	PlacedAt      time.Time
}

// WashPair tracks a matched BUY+SELL pair placed to self-cross.
type WashPair struct {
	BuyOrderID  int64
	SellOrderID int64
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	PlacedAt    time.Time
}
