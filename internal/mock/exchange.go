// Package mock provides an in-memory exchange for tests. Behavior is
// deterministic: order ids are sequential and placement timestamps advance a
// fixed step per order.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"volume_maker/internal/core"
	apperrors "volume_maker/pkg/errors"

	"github.com/shopspring/decimal"
)

// Exchange implements core.IExchange against in-memory state. Test hooks
// inject errors, fills, and server-side cancellations.
type Exchange struct {
	mu sync.Mutex

	ticker   *core.Ticker
	balances map[string]*core.BalanceSnapshot
	orders   map[int64]*core.OpenOrder
	trades   []*core.Trade

	nextOrderID int64
	nextTradeID int64
	clock       time.Time

	priceDecimals    int
	quantityDecimals int

	// sticky per-method errors, cleared by setting nil
	errors map[string]error

	// when > 0, PlaceOrder calls beyond this count fail with ErrOrderRejected
	failPlaceAfter int

	PlaceCalls  int
	CancelCalls int
	OrderCalls  int
}

// NewExchange creates a mock with an empty book and zero balances.
func NewExchange() *Exchange {
	return &Exchange{
		balances:         make(map[string]*core.BalanceSnapshot),
		orders:           make(map[int64]*core.OpenOrder),
		errors:           make(map[string]error),
		nextOrderID:      1000,
		nextTradeID:      5000,
		clock:            time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		priceDecimals:    4,
		quantityDecimals: 2,
	}
}

// SetTicker sets the ticker returned by GetTicker.
func (e *Exchange) SetTicker(symbol string, bid, ask, last decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticker = &core.Ticker{Symbol: symbol, Bid: bid, Ask: ask, Last: last}
}

// SetBalance sets an asset balance.
func (e *Exchange) SetBalance(asset string, free, locked decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[asset] = &core.BalanceSnapshot{Asset: asset, Free: free, Locked: locked}
}

// SetDecimals overrides the price and quantity precision.
func (e *Exchange) SetDecimals(price, quantity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priceDecimals = price
	e.quantityDecimals = quantity
}

// SetError makes the named method (e.g. "PlaceOrder") fail until cleared
// with a nil error.
func (e *Exchange) SetError(method string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.errors, method)
		return
	}
	e.errors[method] = err
}

// FailPlaceOrderAfter makes every PlaceOrder call beyond the first n fail
// with ErrOrderRejected. Zero disables the hook.
func (e *Exchange) FailPlaceOrderAfter(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failPlaceAfter = n
}

// FillOrder marks an order filled at the given price, recording a trade.
func (e *Exchange) FillOrder(orderID int64, fillPrice decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, apperrors.ErrOrderNotFound)
	}
	o.Status = core.OrderStatusFilled
	o.ExecutedQty = o.Quantity
	o.AvgPrice = fillPrice

	e.nextTradeID++
	e.trades = append(e.trades, &core.Trade{
		ID:       e.nextTradeID,
		OrderID:  orderID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Price:    fillPrice,
		Quantity: o.Quantity,
		Time:     e.clock,
	})
	return nil
}

// CancelServerSide marks an order canceled without going through CancelOrder,
// as if trimmed by the exchange or another client.
func (e *Exchange) CancelServerSide(orderID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[orderID]; ok {
		o.Status = core.OrderStatusCanceled
	}
}

// PurgeOrder removes all trace of an order; subsequent GetOrder calls fail
// with ErrOrderNotFound.
func (e *Exchange) PurgeOrder(orderID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.orders, orderID)
}

// OpenOrderIDs returns ids of non-terminal orders, for assertions.
func (e *Exchange) OpenOrderIDs() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []int64
	for id, o := range e.orders {
		if !o.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *Exchange) GetName() string { return "mock" }

func (e *Exchange) GetTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.errors["GetTicker"]; err != nil {
		return nil, err
	}
	if e.ticker == nil {
		return nil, fmt.Errorf("no ticker for %s: %w", symbol, apperrors.ErrNoPrice)
	}
	t := *e.ticker
	return &t, nil
}

func (e *Exchange) GetOpenOrders(ctx context.Context, symbol string) ([]*core.OpenOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.errors["GetOpenOrders"]; err != nil {
		return nil, err
	}
	var out []*core.OpenOrder
	for _, o := range e.orders {
		if o.Symbol == symbol && !o.Status.IsTerminal() {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (e *Exchange) GetBalances(ctx context.Context) ([]*core.BalanceSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.errors["GetBalances"]; err != nil {
		return nil, err
	}
	var out []*core.BalanceSnapshot
	for _, b := range e.balances {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (e *Exchange) PlaceOrder(ctx context.Context, req *core.OrderRequest) (*core.OpenOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PlaceCalls++
	if err := e.errors["PlaceOrder"]; err != nil {
		return nil, err
	}
	if e.failPlaceAfter > 0 && e.PlaceCalls > e.failPlaceAfter {
		return nil, fmt.Errorf("placement refused: %w", apperrors.ErrOrderRejected)
	}
	if !req.Quantity.IsPositive() || !req.Price.IsPositive() {
		return nil, fmt.Errorf("non-positive price or quantity: %w", apperrors.ErrOrderRejected)
	}

	e.nextOrderID++
	e.clock = e.clock.Add(time.Millisecond)
	o := &core.OpenOrder{
		OrderID:       e.nextOrderID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Status:        core.OrderStatusNew,
		PlacedAt:      e.clock,
	}
	e.orders[o.OrderID] = o
	cp := *o
	return &cp, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CancelCalls++
	if err := e.errors["CancelOrder"]; err != nil {
		return err
	}
	o, ok := e.orders[orderID]
	if !ok || o.Status.IsTerminal() {
		return fmt.Errorf("order %d: %w", orderID, apperrors.ErrOrderNotFound)
	}
	o.Status = core.OrderStatusCanceled
	return nil
}

func (e *Exchange) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.errors["CancelAllOrders"]; err != nil {
		return 0, err
	}
	count := 0
	for _, o := range e.orders {
		if o.Symbol == symbol && !o.Status.IsTerminal() {
			o.Status = core.OrderStatusCanceled
			count++
		}
	}
	return count, nil
}

func (e *Exchange) GetOrder(ctx context.Context, symbol string, orderID int64) (*core.OpenOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OrderCalls++
	if err := e.errors["GetOrder"]; err != nil {
		return nil, err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, apperrors.ErrOrderNotFound)
	}
	cp := *o
	return &cp, nil
}

func (e *Exchange) GetRecentTrades(ctx context.Context, symbol string, limit int, orderID int64) ([]*core.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.errors["GetRecentTrades"]; err != nil {
		return nil, err
	}
	var out []*core.Trade
	for i := len(e.trades) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		t := e.trades[i]
		if t.Symbol != symbol {
			continue
		}
		if orderID != 0 && t.OrderID != orderID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (e *Exchange) GetPriceDecimals() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.priceDecimals
}

func (e *Exchange) GetQuantityDecimals() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quantityDecimals
}
