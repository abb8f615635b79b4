// Package binance adapts the Binance spot API to core.IExchange.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"volume_maker/internal/config"
	"volume_maker/internal/core"
	apperrors "volume_maker/pkg/errors"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

// Exchange implements core.IExchange against Binance spot.
type Exchange struct {
	client *binance.Client
	logger core.ILogger

	symbol           string
	priceDecimals    int
	quantityDecimals int
}

// New creates the adapter and probes exchange info for the symbol's
// precision. On probe failure the configured decimals are used.
func New(exCfg *config.ExchangeConfig, trading config.TradingConfig, logger core.ILogger) (*Exchange, error) {
	if exCfg.APIKey == "" || exCfg.SecretKey == "" {
		return nil, fmt.Errorf("binance credentials missing: %w", apperrors.ErrAuthenticationFailed)
	}

	client := binance.NewClient(exCfg.APIKey, exCfg.SecretKey)
	if exCfg.BaseURL != "" {
		client.BaseURL = exCfg.BaseURL
	}

	e := &Exchange{
		client:           client,
		logger:           logger.WithField("component", "binance"),
		symbol:           trading.Symbol,
		priceDecimals:    trading.PriceDecimals,
		quantityDecimals: trading.QuantityDecimals,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.fetchSymbolPrecision(ctx); err != nil {
		e.logger.Warn("Exchange info probe failed, using configured precision",
			"symbol", e.symbol, "error", err)
	}
	return e, nil
}

func (e *Exchange) fetchSymbolPrecision(ctx context.Context) error {
	info, err := e.client.NewExchangeInfoService().Symbol(e.symbol).Do(ctx)
	if err != nil {
		return mapError(err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != e.symbol {
			continue
		}
		if f := s.PriceFilter(); f != nil {
			e.priceDecimals = decimalsFromStep(f.TickSize, e.priceDecimals)
		}
		if f := s.LotSizeFilter(); f != nil {
			e.quantityDecimals = decimalsFromStep(f.StepSize, e.quantityDecimals)
		}
		e.logger.Info("Symbol precision resolved",
			"symbol", e.symbol, "price_decimals", e.priceDecimals, "quantity_decimals", e.quantityDecimals)
		return nil
	}
	return fmt.Errorf("symbol %s not listed: %w", e.symbol, apperrors.ErrInvalidSymbol)
}

// decimalsFromStep derives decimal places from a step size like "0.00100000".
func decimalsFromStep(step string, fallback int) int {
	d, err := decimal.NewFromString(step)
	if err != nil || !d.IsPositive() {
		return fallback
	}
	if exp := -d.Exponent(); exp >= 0 {
		trimmed := strings.TrimRight(d.String(), "0")
		if i := strings.IndexByte(trimmed, '.'); i >= 0 {
			return len(trimmed) - i - 1
		}
		return 0
	}
	return fallback
}

func (e *Exchange) GetName() string { return "binance" }

func (e *Exchange) GetTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	books, err := e.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("no book ticker for %s: %w", symbol, apperrors.ErrNoPrice)
	}
	b := books[0]

	bid, err := decimal.NewFromString(b.BidPrice)
	if err != nil {
		return nil, fmt.Errorf("malformed bid price %q: %w", b.BidPrice, err)
	}
	ask, err := decimal.NewFromString(b.AskPrice)
	if err != nil {
		return nil, fmt.Errorf("malformed ask price %q: %w", b.AskPrice, err)
	}

	t := &core.Ticker{Symbol: symbol, Bid: bid, Ask: ask}
	if prices, err := e.client.NewListPricesService().Symbol(symbol).Do(ctx); err == nil && len(prices) > 0 {
		if last, err := decimal.NewFromString(prices[0].Price); err == nil {
			t.Last = last
		}
	}
	return t, nil
}

func (e *Exchange) GetOpenOrders(ctx context.Context, symbol string) ([]*core.OpenOrder, error) {
	orders, err := e.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]*core.OpenOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, convertOrder(o))
	}
	return out, nil
}

func (e *Exchange) GetBalances(ctx context.Context) ([]*core.BalanceSnapshot, error) {
	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]*core.BalanceSnapshot, 0, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			continue
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		out = append(out, &core.BalanceSnapshot{Asset: b.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

func (e *Exchange) PlaceOrder(ctx context.Context, req *core.OrderRequest) (*core.OpenOrder, error) {
	svc := e.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Quantity(req.Quantity.String())

	switch req.Type {
	case core.OrderTypeLimit:
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(req.Price.String())
	case core.OrderTypeMarket:
		svc = svc.Type(binance.OrderTypeMarket)
	default:
		return nil, fmt.Errorf("unsupported order type %s: %w", req.Type, apperrors.ErrInvalidOrderParameter)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	price, _ := decimal.NewFromString(resp.Price)
	if !price.IsPositive() {
		price = req.Price
	}
	qty, _ := decimal.NewFromString(resp.OrigQuantity)
	execQty, _ := decimal.NewFromString(resp.ExecutedQuantity)

	return &core.OpenOrder{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         price,
		Quantity:      qty,
		ExecutedQty:   execQty,
		Status:        core.OrderStatus(resp.Status),
		PlacedAt:      time.UnixMilli(resp.TransactTime),
	}, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := e.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// CancelAllOrders lists the open orders and cancels them one by one, counting
// successes. Already-gone orders count as cancelled.
func (e *Exchange) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	open, err := e.GetOpenOrders(ctx, symbol)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, o := range open {
		if err := e.CancelOrder(ctx, symbol, o.OrderID); err != nil {
			if apperrors.IsNotFound(err) {
				count++
				continue
			}
			return count, fmt.Errorf("failed to cancel order %d: %w", o.OrderID, err)
		}
		count++
	}
	return count, nil
}

func (e *Exchange) GetOrder(ctx context.Context, symbol string, orderID int64) (*core.OpenOrder, error) {
	o, err := e.client.NewGetOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return convertOrder(o), nil
}

func (e *Exchange) GetRecentTrades(ctx context.Context, symbol string, limit int, orderID int64) ([]*core.Trade, error) {
	svc := e.client.NewListTradesService().Symbol(symbol)
	if limit > 0 {
		svc = svc.Limit(limit)
	}
	if orderID != 0 {
		svc = svc.OrderId(orderID)
	}
	trades, err := svc.Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]*core.Trade, 0, len(trades))
	for _, t := range trades {
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(t.Quantity)
		if err != nil {
			continue
		}
		side := core.SideSell
		if t.IsBuyer {
			side = core.SideBuy
		}
		out = append(out, &core.Trade{
			ID:       t.ID,
			OrderID:  t.OrderID,
			Symbol:   t.Symbol,
			Side:     side,
			Price:    price,
			Quantity: qty,
			Time:     time.UnixMilli(t.Time),
		})
	}
	return out, nil
}

func (e *Exchange) GetPriceDecimals() int    { return e.priceDecimals }
func (e *Exchange) GetQuantityDecimals() int { return e.quantityDecimals }

// convertOrder maps a spot order to the core type. Spot orders carry no
// average price; it is derived from the cumulative quote volume.
func convertOrder(o *binance.Order) *core.OpenOrder {
	price, _ := decimal.NewFromString(o.Price)
	qty, _ := decimal.NewFromString(o.OrigQuantity)
	execQty, _ := decimal.NewFromString(o.ExecutedQuantity)
	cumQuote, _ := decimal.NewFromString(o.CummulativeQuoteQuantity)

	avg := decimal.Zero
	if execQty.IsPositive() && cumQuote.IsPositive() {
		avg = cumQuote.Div(execQty)
	}

	return &core.OpenOrder{
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          core.Side(o.Side),
		Type:          core.OrderType(o.Type),
		Price:         price,
		Quantity:      qty,
		ExecutedQty:   execQty,
		AvgPrice:      avg,
		Status:        core.OrderStatus(o.Status),
		PlacedAt:      time.UnixMilli(o.Time),
	}
}

// mapError translates Binance API errors to the app error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("binance request failed: %w (%v)", apperrors.ErrNetwork, err)
	}

	switch apiErr.Code {
	case -1003, -1015:
		return fmt.Errorf("binance: %s: %w", apiErr.Message, apperrors.ErrRateLimitExceeded)
	case -2011, -2013:
		return fmt.Errorf("binance: %s: %w", apiErr.Message, apperrors.ErrOrderNotFound)
	case -2010:
		if strings.Contains(strings.ToLower(apiErr.Message), "insufficient") {
			return fmt.Errorf("binance: %s: %w", apiErr.Message, apperrors.ErrInsufficientFunds)
		}
		return fmt.Errorf("binance: %s: %w", apiErr.Message, apperrors.ErrOrderRejected)
	case -1013, -1111:
		return fmt.Errorf("binance: %s: %w", apiErr.Message, apperrors.ErrInvalidOrderParameter)
	case -2015, -2014:
		return fmt.Errorf("binance: %s: %w", apiErr.Message, apperrors.ErrAuthenticationFailed)
	case -1121:
		return fmt.Errorf("binance: %s: %w", apiErr.Message, apperrors.ErrInvalidSymbol)
	case -1001, -1021:
		return fmt.Errorf("binance: %s: %w", apiErr.Message, apperrors.ErrNetwork)
	case 429, 418:
		return fmt.Errorf("binance throttled (%d): %w", apiErr.Code, apperrors.ErrRateLimitExceeded)
	}
	return fmt.Errorf("binance error %d: %s", apiErr.Code, apiErr.Message)
}
