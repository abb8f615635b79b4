package book

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"volume_maker/internal/core"
	"volume_maker/internal/sizing"
	apperrors "volume_maker/pkg/errors"
	"volume_maker/pkg/retry"
	"volume_maker/pkg/telemetry"
	"volume_maker/pkg/tradingutils"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// Config holds the maintainer's trading parameters. Money values are quote
// currency, spreads are fractions.
type Config struct {
	Symbol     string
	QuoteAsset string

	TargetOrdersPerSide int
	ExcessCeiling       int // 0 = same as target
	TargetDepthNotional decimal.Decimal

	BaseSpread decimal.Decimal
	SpreadStep decimal.Decimal

	FeeBuffer        decimal.Decimal
	MinFreeThreshold decimal.Decimal
	UsableFraction   decimal.Decimal
	MaxOrderNotional decimal.Decimal
	MinOrderNotional decimal.Decimal

	WashPairsPerCycle int

	PriceDecimals    int
	QuantityDecimals int

	OrderPace time.Duration // minimum gap between order submissions
}

func (c Config) effectiveCeiling() int {
	if c.ExcessCeiling > 0 {
		return c.ExcessCeiling
	}
	return c.TargetOrdersPerSide
}

// Maintainer keeps the order book at its target shape. One RunCycle is a
// single pass: trim excess, top up shortfall, then place wash pairs once both
// sides are full.
type Maintainer struct {
	cfg      Config
	exchange core.IExchange
	oracle   core.IPriceOracle
	records  *RecordSet
	jitter   Jitter
	limiter  *rate.Limiter
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder

	mu        sync.Mutex
	washPairs []core.WashPair
}

const washPairHistory = 256

// NewMaintainer creates a maintainer. A nil jitter disables wash variance.
func NewMaintainer(cfg Config, exchange core.IExchange, oracle core.IPriceOracle, records *RecordSet, jitter Jitter, logger core.ILogger) *Maintainer {
	if jitter == nil {
		jitter = NoJitter
	}
	limit := rate.Inf
	if cfg.OrderPace > 0 {
		limit = rate.Every(cfg.OrderPace)
	}
	return &Maintainer{
		cfg:      cfg,
		exchange: exchange,
		oracle:   oracle,
		records:  records,
		jitter:   jitter,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.WithField("component", "book_maintainer"),
		metrics:  telemetry.GetGlobalMetrics(),
	}
}

// Records exposes the record set for the tracker loop.
func (m *Maintainer) Records() *RecordSet {
	return m.records
}

// RecentWashPairs returns the recorded wash pairs, newest last.
func (m *Maintainer) RecentWashPairs() []core.WashPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.WashPair, len(m.washPairs))
	copy(out, m.washPairs)
	return out
}

// RunCycle performs one maintenance pass. A returned error means the cycle
// was skipped; the caller logs it and waits for the next tick.
func (m *Maintainer) RunCycle(ctx context.Context) error {
	ref, err := m.oracle.Price(ctx)
	if err != nil {
		m.countSkippedCycle(ctx, "oracle")
		return fmt.Errorf("reference price unavailable: %w", err)
	}
	if !ref.IsPositive() {
		m.countSkippedCycle(ctx, "oracle")
		return fmt.Errorf("reference price not positive: %s", ref)
	}

	open, err := m.exchange.GetOpenOrders(ctx, m.cfg.Symbol)
	if err != nil {
		m.countSkippedCycle(ctx, "open_orders")
		return fmt.Errorf("failed to fetch open orders: %w", err)
	}
	balances, err := m.exchange.GetBalances(ctx)
	if err != nil {
		m.countSkippedCycle(ctx, "balances")
		return fmt.Errorf("failed to fetch balances: %w", err)
	}

	buys, sells := splitBySide(open)
	buys, err = m.trimExcess(ctx, buys)
	if err != nil {
		return err
	}
	sells, err = m.trimExcess(ctx, sells)
	if err != nil {
		return err
	}

	buyCount, sellCount := len(buys), len(sells)
	needBuys := m.cfg.TargetOrdersPerSide - buyCount
	needSells := m.cfg.TargetOrdersPerSide - sellCount

	if needBuys > 0 || needSells > 0 {
		placedBuys, placedSells := m.placeStaggered(ctx, ref, balances, max(needBuys, 0), max(needSells, 0))
		buyCount += placedBuys
		sellCount += placedSells
	}

	if buyCount >= m.cfg.TargetOrdersPerSide && sellCount >= m.cfg.TargetOrdersPerSide {
		m.placeWashPairs(ctx, ref, balances)
	}

	m.warnOnShallowDepth(open, ref)
	m.metrics.SetOpenOrders(string(core.SideBuy), int64(buyCount))
	m.metrics.SetOpenOrders(string(core.SideSell), int64(sellCount))
	m.metrics.SetReservedQuote(m.records.ReservedQuote().InexactFloat64())
	return nil
}

// trimExcess cancels oldest-first until the side is at or below the ceiling,
// returning the surviving orders.
func (m *Maintainer) trimExcess(ctx context.Context, orders []*core.OpenOrder) ([]*core.OpenOrder, error) {
	ceiling := m.cfg.effectiveCeiling()
	if len(orders) <= ceiling {
		return orders, nil
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].PlacedAt.Equal(orders[j].PlacedAt) {
			return orders[i].OrderID < orders[j].OrderID
		}
		return orders[i].PlacedAt.Before(orders[j].PlacedAt)
	})

	excess := orders[:len(orders)-ceiling]
	for _, o := range excess {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		err := retry.Do(ctx, retry.DefaultPolicy, apperrors.IsTransient, func() error {
			return m.exchange.CancelOrder(ctx, m.cfg.Symbol, o.OrderID)
		})
		if err != nil && !apperrors.IsNotFound(err) {
			m.countSkippedCycle(ctx, "cancel")
			return nil, fmt.Errorf("failed to cancel excess order %d: %w", o.OrderID, err)
		}
		m.records.Remove(o.OrderID)
		if m.metrics.Ready() {
			m.metrics.OrdersCanceledTotal.Add(ctx, 1)
		}
		m.logger.Debug("Trimmed excess order", "order_id", o.OrderID, "side", o.Side, "placed_at", o.PlacedAt)
	}
	return orders[len(orders)-ceiling:], nil
}

// placeStaggered tops up both sides with limit orders stepping away from the
// reference price. Placement is best effort: a failed order is logged and the
// pass continues.
func (m *Maintainer) placeStaggered(ctx context.Context, ref decimal.Decimal, balances []*core.BalanceSnapshot, needBuys, needSells int) (placedBuys, placedSells int) {
	res := sizing.Evaluate(sizing.GuardInput{
		FreeQuoteBalance:     freeBalance(balances, m.cfg.QuoteAsset),
		OrdersToPlaceCount:   needBuys + needSells,
		ReservedQuoteBalance: m.records.ReservedQuote(),
		FeeBufferAmount:      m.cfg.FeeBuffer,
		MinFreeThreshold:     m.cfg.MinFreeThreshold,
		OrderSizePercent:     m.cfg.UsableFraction,
		MaxPerOrderCap:       m.cfg.MaxOrderNotional,
		MinOrderNotional:     m.cfg.MinOrderNotional,
	})
	if !res.Allowed {
		m.logger.Info("Sizing guard rejected placement",
			"reason", res.Reason, "need_buys", needBuys, "need_sells", needSells,
			"usable", res.UsableNotional)
		if m.metrics.Ready() {
			m.metrics.OrdersSkippedTotal.Add(ctx, int64(needBuys+needSells))
		}
		return 0, 0
	}

	buyPrices := tradingutils.StaggeredBuyPrices(ref, m.cfg.BaseSpread, m.cfg.SpreadStep, needBuys)
	sellPrices := tradingutils.StaggeredSellPrices(ref, m.cfg.BaseSpread, m.cfg.SpreadStep, needSells)

	for _, price := range buyPrices {
		if m.placeOne(ctx, core.SideBuy, price, ref, res.PerOrderNotional, false) {
			placedBuys++
		}
	}
	for _, price := range sellPrices {
		if m.placeOne(ctx, core.SideSell, price, ref, res.PerOrderNotional, false) {
			placedSells++
		}
	}
	return placedBuys, placedSells
}

// placeOne submits a single limit order and records it. Returns false when
// the order was skipped or rejected.
func (m *Maintainer) placeOne(ctx context.Context, side core.Side, price, ref, notional decimal.Decimal, wash bool) bool {
	price = tradingutils.RoundPrice(price, m.cfg.PriceDecimals)
	if !price.IsPositive() {
		m.logger.Warn("Skipping order with non-positive price", "side", side, "price", price)
		return false
	}
	qty := tradingutils.FloorQuantity(notional.Div(price), m.cfg.QuantityDecimals)
	if !qty.IsPositive() || tradingutils.Notional(price, qty).LessThan(m.cfg.MinOrderNotional) {
		m.logger.Warn("Skipping order below minimum size",
			"side", side, "price", price, "quantity", qty, "notional", notional)
		if m.metrics.Ready() {
			m.metrics.OrdersSkippedTotal.Add(ctx, 1)
		}
		return false
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return false
	}

	var placed *core.OpenOrder
	err := retry.Do(ctx, retry.DefaultPolicy, apperrors.IsTransient, func() error {
		var err error
		placed, err = m.exchange.PlaceOrder(ctx, &core.OrderRequest{
			Symbol:        m.cfg.Symbol,
			Side:          side,
			Type:          core.OrderTypeLimit,
			Price:         price,
			Quantity:      qty,
			ClientOrderID: tradingutils.NewClientOrderID(price, string(side), m.cfg.PriceDecimals),
		})
		return err
	})
	if err != nil {
		m.logger.Warn("Order placement failed", "side", side, "price", price, "quantity", qty, "error", err)
		return false
	}

	m.records.Add(&core.OrderRecord{
		OrderID:       placed.OrderID,
		Side:          side,
		IntendedPrice: ref,
		Quantity:      qty,
		IsWashTrade:   wash,
		PlacedAt:      placed.PlacedAt,
	})
	if m.metrics.Ready() {
		m.metrics.OrdersPlacedTotal.Add(ctx, 1)
	}
	m.logger.Debug("Placed order", "order_id", placed.OrderID, "side", side,
		"price", price, "quantity", qty, "wash", wash)
	return true
}

// placeWashPairs self-crosses the book with matched BUY+SELL pairs near the
// reference price. Both legs share one price so they meet each other rather
// than resting orders.
func (m *Maintainer) placeWashPairs(ctx context.Context, ref decimal.Decimal, balances []*core.BalanceSnapshot) {
	if m.cfg.WashPairsPerCycle <= 0 {
		return
	}

	res := sizing.Evaluate(sizing.GuardInput{
		FreeQuoteBalance:     freeBalance(balances, m.cfg.QuoteAsset),
		OrdersToPlaceCount:   m.cfg.WashPairsPerCycle * 2,
		ReservedQuoteBalance: m.records.ReservedQuote(),
		FeeBufferAmount:      m.cfg.FeeBuffer,
		MinFreeThreshold:     m.cfg.MinFreeThreshold,
		OrderSizePercent:     m.cfg.UsableFraction,
		MaxPerOrderCap:       m.cfg.MaxOrderNotional,
		MinOrderNotional:     m.cfg.MinOrderNotional,
	})
	if !res.Allowed {
		m.logger.Info("Sizing guard rejected wash pairs", "reason", res.Reason, "usable", res.UsableNotional)
		return
	}

	one := decimal.NewFromInt(1)
	for i := 0; i < m.cfg.WashPairsPerCycle; i++ {
		priceFrac, sizeFrac := m.jitter()
		price := ref.Mul(one.Add(m.cfg.BaseSpread).Add(decimal.NewFromFloat(priceFrac)))
		notional := res.PerOrderNotional.Mul(one.Add(decimal.NewFromFloat(sizeFrac)))
		m.placeWashPair(ctx, ref, price, notional)
	}
}

func (m *Maintainer) placeWashPair(ctx context.Context, ref, price, notional decimal.Decimal) {
	price = tradingutils.RoundPrice(price, m.cfg.PriceDecimals)
	qty := tradingutils.FloorQuantity(notional.Div(price), m.cfg.QuantityDecimals)
	if !qty.IsPositive() || tradingutils.Notional(price, qty).LessThan(m.cfg.MinOrderNotional) {
		m.logger.Warn("Skipping wash pair below minimum size", "price", price, "quantity", qty)
		return
	}

	buyID, ok := m.placeLeg(ctx, core.SideBuy, price, ref, qty)
	if !ok {
		return
	}

	sellID, ok := m.placeLeg(ctx, core.SideSell, price, ref, qty)
	if !ok {
		// Orphaned buy leg would rest as a real order at the wrong price.
		if err := m.exchange.CancelOrder(ctx, m.cfg.Symbol, buyID); err != nil && !apperrors.IsNotFound(err) {
			m.logger.Error("Failed to cancel orphaned wash buy leg", "order_id", buyID, "error", err)
			return
		}
		m.records.Remove(buyID)
		return
	}

	pair := core.WashPair{
		BuyOrderID:  buyID,
		SellOrderID: sellID,
		Price:       price,
		Quantity:    qty,
		PlacedAt:    time.Now(),
	}
	m.mu.Lock()
	m.washPairs = append(m.washPairs, pair)
	if len(m.washPairs) > washPairHistory {
		m.washPairs = m.washPairs[len(m.washPairs)-washPairHistory:]
	}
	m.mu.Unlock()

	if m.metrics.Ready() {
		m.metrics.WashPairsTotal.Add(ctx, 1)
	}
	m.logger.Info("Placed wash pair", "buy_id", buyID, "sell_id", sellID, "price", price, "quantity", qty)
}

func (m *Maintainer) placeLeg(ctx context.Context, side core.Side, price, ref, qty decimal.Decimal) (int64, bool) {
	if err := m.limiter.Wait(ctx); err != nil {
		return 0, false
	}
	var placed *core.OpenOrder
	err := retry.Do(ctx, retry.DefaultPolicy, apperrors.IsTransient, func() error {
		var err error
		placed, err = m.exchange.PlaceOrder(ctx, &core.OrderRequest{
			Symbol:        m.cfg.Symbol,
			Side:          side,
			Type:          core.OrderTypeLimit,
			Price:         price,
			Quantity:      qty,
			ClientOrderID: tradingutils.NewClientOrderID(price, string(side), m.cfg.PriceDecimals),
		})
		return err
	})
	if err != nil {
		m.logger.Warn("Wash leg placement failed", "side", side, "price", price, "error", err)
		return 0, false
	}
	m.records.Add(&core.OrderRecord{
		OrderID:       placed.OrderID,
		Side:          side,
		IntendedPrice: ref,
		Quantity:      qty,
		IsWashTrade:   true,
		PlacedAt:      placed.PlacedAt,
	})
	if m.metrics.Ready() {
		m.metrics.OrdersPlacedTotal.Add(ctx, 1)
	}
	return placed.OrderID, true
}

func (m *Maintainer) warnOnShallowDepth(open []*core.OpenOrder, ref decimal.Decimal) {
	if !m.cfg.TargetDepthNotional.IsPositive() {
		return
	}
	depth := decimal.Zero
	for _, o := range open {
		depth = depth.Add(tradingutils.Notional(o.Price, o.Quantity.Sub(o.ExecutedQty)))
	}
	if depth.LessThan(m.cfg.TargetDepthNotional) {
		m.logger.Warn("Book depth below target",
			"depth", depth, "target", m.cfg.TargetDepthNotional, "reference", ref)
	}
}

func (m *Maintainer) countSkippedCycle(ctx context.Context, stage string) {
	if m.metrics.Ready() {
		m.metrics.CyclesSkippedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("stage", stage)))
	}
}

func splitBySide(orders []*core.OpenOrder) (buys, sells []*core.OpenOrder) {
	for _, o := range orders {
		if o.Side == core.SideBuy {
			buys = append(buys, o)
		} else {
			sells = append(sells, o)
		}
	}
	return buys, sells
}

func freeBalance(balances []*core.BalanceSnapshot, asset string) decimal.Decimal {
	for _, b := range balances {
		if b.Asset == asset {
			return b.Free
		}
	}
	return decimal.Zero
}
