package tracker

import (
	"context"
	"time"

	"volume_maker/internal/core"
	"volume_maker/internal/trading/book"
	apperrors "volume_maker/pkg/errors"
	"volume_maker/pkg/telemetry"
	"volume_maker/pkg/tradingutils"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
)

// SpreadTolerance is the maximum deviation of the realized spread from the
// configured base spread, in absolute terms, for a fill to count as a wash
// trade. 0.0005 is 0.05 percentage points.
var SpreadTolerance = decimal.RequireFromString("0.0005")

// Fill is a classified fill observed by the tracker.
type Fill struct {
	OrderID       int64           `json:"order_id"`
	Side          core.Side       `json:"side"`
	FillPrice     decimal.Decimal `json:"fill_price"`
	IntendedPrice decimal.Decimal `json:"intended_price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Notional      decimal.Decimal `json:"notional"`
	Profit        decimal.Decimal `json:"profit"`
	Wash          bool            `json:"wash"`
	FilledAt      time.Time       `json:"filled_at"`
}

// Journal persists classified fills for audit. Implementations must tolerate
// being called from the tracker loop only.
type Journal interface {
	RecordFill(ctx context.Context, f Fill) error
}

// Config holds the tracker parameters.
type Config struct {
	Symbol     string
	BaseSpread decimal.Decimal
	BatchSize  int
}

const maxRateLimitWaits = 3

// Tracker polls a rotating batch of tracked orders each cycle and settles the
// ones that reached a terminal state.
type Tracker struct {
	cfg      Config
	exchange core.IExchange
	records  *book.RecordSet
	stats    *Stats
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder
	backoff  *backoff.Backoff

	journal Journal
	onFill  func(Fill)

	lastPolledID int64
}

// NewTracker creates a tracker over the maintainer's record set.
func NewTracker(cfg Config, exchange core.IExchange, records *book.RecordSet, logger core.ILogger) *Tracker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Tracker{
		cfg:      cfg,
		exchange: exchange,
		records:  records,
		stats:    NewStats(),
		logger:   logger.WithField("component", "fill_tracker"),
		metrics:  telemetry.GetGlobalMetrics(),
		backoff: &backoff.Backoff{
			Min:    200 * time.Millisecond,
			Max:    5 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
}

// SetJournal attaches an optional fill journal.
func (t *Tracker) SetJournal(j Journal) { t.journal = j }

// SetOnFill attaches an optional callback invoked for every classified fill.
func (t *Tracker) SetOnFill(fn func(Fill)) { t.onFill = fn }

// Stats returns the tracker's statistics accumulator.
func (t *Tracker) Stats() *Stats { return t.stats }

// RunCycle polls the next batch of tracked orders. Rate limiting backs off
// within the batch and gives up on the cycle after repeated throttling; the
// remaining orders wait for the next tick.
func (t *Tracker) RunCycle(ctx context.Context) error {
	batch := t.nextBatch()
	if len(batch) == 0 {
		return nil
	}

	rateLimitWaits := 0
	for _, rec := range batch {
		order, err := t.exchange.GetOrder(ctx, t.cfg.Symbol, rec.OrderID)
		switch {
		case err == nil:
			t.backoff.Reset()
			t.settle(ctx, rec, order)

		case apperrors.IsNotFound(err):
			// The exchange purged the order; the record is stale, not failed.
			t.records.Remove(rec.OrderID)
			t.logger.Debug("Pruned stale order record", "order_id", rec.OrderID)

		case apperrors.IsRateLimit(err):
			rateLimitWaits++
			if rateLimitWaits > maxRateLimitWaits {
				t.logger.Warn("Throttled repeatedly, deferring batch to next tick",
					"polled", rateLimitWaits, "remaining", len(batch))
				return nil
			}
			wait := t.backoff.Duration()
			t.logger.Debug("Rate limited, backing off", "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}

		default:
			t.logger.Warn("Order poll failed", "order_id", rec.OrderID, "error", err)
		}
	}
	return nil
}

// nextBatch returns up to BatchSize records, resuming after the last polled
// order id and wrapping around, so every tracked order is visited eventually.
func (t *Tracker) nextBatch() []*core.OrderRecord {
	all := t.records.All()
	if len(all) == 0 {
		return nil
	}

	start := 0
	for i, r := range all {
		if r.OrderID > t.lastPolledID {
			start = i
			break
		}
	}

	size := t.cfg.BatchSize
	if size > len(all) {
		size = len(all)
	}
	batch := make([]*core.OrderRecord, 0, size)
	for i := 0; i < size; i++ {
		batch = append(batch, all[(start+i)%len(all)])
	}
	t.lastPolledID = batch[len(batch)-1].OrderID
	return batch
}

// settle reconciles one polled order against its record.
func (t *Tracker) settle(ctx context.Context, rec *core.OrderRecord, order *core.OpenOrder) {
	switch {
	case order.Status == core.OrderStatusFilled:
		t.recordFill(ctx, rec, order)
		t.records.Remove(rec.OrderID)

	case order.Status.IsTerminal():
		// canceled, rejected or expired without filling
		t.records.Remove(rec.OrderID)
		t.logger.Debug("Order reached terminal state without fill",
			"order_id", rec.OrderID, "status", order.Status)
	}
}

func (t *Tracker) recordFill(ctx context.Context, rec *core.OrderRecord, order *core.OpenOrder) {
	fillPrice := order.FillPrice()
	qty := order.ExecutedQty
	if !qty.IsPositive() {
		qty = rec.Quantity
	}

	fill := Fill{
		OrderID:       rec.OrderID,
		Side:          rec.Side,
		FillPrice:     fillPrice,
		IntendedPrice: rec.IntendedPrice,
		Quantity:      qty,
		Notional:      fillPrice.Mul(qty),
		Profit:        profit(rec.Side, rec.IntendedPrice, fillPrice, qty),
		Wash:          t.classifyWash(rec.IntendedPrice, fillPrice),
		FilledAt:      time.Now(),
	}

	t.stats.applyFill(fill)
	t.metrics.AddFill(ctx, fill.Wash, fill.Notional.InexactFloat64(), fill.Profit.InexactFloat64())

	if fill.Wash != rec.IsWashTrade {
		t.logger.Info("Fill classification differs from placement intent",
			"order_id", rec.OrderID, "intended_wash", rec.IsWashTrade, "classified_wash", fill.Wash)
	}

	if t.journal != nil {
		if err := t.journal.RecordFill(ctx, fill); err != nil {
			t.logger.Warn("Failed to journal fill", "order_id", rec.OrderID, "error", err)
		}
	}
	if t.onFill != nil {
		t.onFill(fill)
	}

	t.logger.Info("Fill settled", "order_id", fill.OrderID, "side", fill.Side,
		"fill_price", fill.FillPrice, "quantity", fill.Quantity,
		"profit", fill.Profit, "wash", fill.Wash)
}

// classifyWash reports whether a fill's realized spread sits within tolerance
// of the configured base spread. Wash legs execute at the engineered spread;
// anything further out met genuine flow.
func (t *Tracker) classifyWash(intended, fillPrice decimal.Decimal) bool {
	realized := tradingutils.RelativeSpread(fillPrice, intended)
	return realized.Sub(t.cfg.BaseSpread).Abs().LessThanOrEqual(SpreadTolerance)
}

// profit is measured against the intended reference price: a BUY below it or
// a SELL above it gains.
func profit(side core.Side, intended, fillPrice, qty decimal.Decimal) decimal.Decimal {
	if side == core.SideBuy {
		return intended.Sub(fillPrice).Mul(qty)
	}
	return fillPrice.Sub(intended).Mul(qty)
}
