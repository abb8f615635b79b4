package tracker

import (
	"context"
	"testing"
	"time"

	"volume_maker/internal/core"
	"volume_maker/internal/mock"
	"volume_maker/internal/trading/book"
	apperrors "volume_maker/pkg/errors"
	"volume_maker/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestTracker(t *testing.T, ex *mock.Exchange, records *book.RecordSet, batchSize int) *Tracker {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return NewTracker(Config{
		Symbol:     "TOKUSDT",
		BaseSpread: d("0.003"),
		BatchSize:  batchSize,
	}, ex, records, logger)
}

// placeTracked places an order on the mock exchange and registers a record
// with the given intended reference price.
func placeTracked(t *testing.T, ex *mock.Exchange, records *book.RecordSet, side core.Side, intended, price, qty string, wash bool) int64 {
	t.Helper()
	o, err := ex.PlaceOrder(context.Background(), &core.OrderRequest{
		Symbol: "TOKUSDT", Side: side, Type: core.OrderTypeLimit,
		Price: d(price), Quantity: d(qty),
	})
	require.NoError(t, err)
	records.Add(&core.OrderRecord{
		OrderID:       o.OrderID,
		Side:          side,
		IntendedPrice: d(intended),
		Quantity:      d(qty),
		IsWashTrade:   wash,
		PlacedAt:      o.PlacedAt,
	})
	return o.OrderID
}

func TestClassifiesFillAtEngineeredSpreadAsWash(t *testing.T) {
	ex := mock.NewExchange()
	records := book.NewRecordSet()
	tr := newTestTracker(t, ex, records, 10)

	id := placeTracked(t, ex, records, core.SideSell, "1.00", "1.003", "100", true)
	require.NoError(t, ex.FillOrder(id, d("1.003")))

	require.NoError(t, tr.RunCycle(context.Background()))

	snap := tr.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.WashFills)
	assert.Equal(t, int64(0), snap.RealFills)
	assert.Zero(t, records.Len())
}

func TestClassifiesFillFarFromSpreadAsReal(t *testing.T) {
	ex := mock.NewExchange()
	records := book.NewRecordSet()
	tr := newTestTracker(t, ex, records, 10)

	id := placeTracked(t, ex, records, core.SideSell, "1.00", "1.05", "100", false)
	require.NoError(t, ex.FillOrder(id, d("1.05")))

	require.NoError(t, tr.RunCycle(context.Background()))

	snap := tr.Stats().Snapshot()
	assert.Equal(t, int64(0), snap.WashFills)
	assert.Equal(t, int64(1), snap.RealFills)
}

func TestProfitSigns(t *testing.T) {
	ex := mock.NewExchange()
	records := book.NewRecordSet()
	tr := newTestTracker(t, ex, records, 10)

	// BUY below the reference gains, SELL above the reference gains
	buyID := placeTracked(t, ex, records, core.SideBuy, "100", "99.7", "2", false)
	sellID := placeTracked(t, ex, records, core.SideSell, "100", "100.3", "2", false)
	require.NoError(t, ex.FillOrder(buyID, d("99.7")))
	require.NoError(t, ex.FillOrder(sellID, d("100.3")))

	require.NoError(t, tr.RunCycle(context.Background()))

	snap := tr.Stats().Snapshot()
	// (100−99.7)×2 + (100.3−100)×2 = 1.2
	assert.True(t, snap.TotalProfit.Equal(d("1.2")), "profit = %s", snap.TotalProfit)
	assert.True(t, snap.BestProfit.Equal(d("0.6")))
	// volume uses fill notional
	expectedVolume := d("99.7").Mul(d("2")).Add(d("100.3").Mul(d("2")))
	assert.True(t, snap.TotalVolume.Equal(expectedVolume))
	assert.True(t, snap.BuyVolume.Equal(d("199.4")))
	assert.True(t, snap.SellVolume.Equal(d("200.6")))
}

func TestLosingBuyHasNegativeProfit(t *testing.T) {
	ex := mock.NewExchange()
	records := book.NewRecordSet()
	tr := newTestTracker(t, ex, records, 10)

	id := placeTracked(t, ex, records, core.SideBuy, "100", "100.5", "1", false)
	require.NoError(t, ex.FillOrder(id, d("100.5")))

	require.NoError(t, tr.RunCycle(context.Background()))
	assert.True(t, tr.Stats().Snapshot().TotalProfit.Equal(d("-0.5")))
}

func TestPrunesPurgedOrders(t *testing.T) {
	ex := mock.NewExchange()
	records := book.NewRecordSet()
	tr := newTestTracker(t, ex, records, 10)

	id := placeTracked(t, ex, records, core.SideBuy, "100", "99.7", "1", false)
	ex.PurgeOrder(id)

	require.NoError(t, tr.RunCycle(context.Background()))
	assert.Zero(t, records.Len())
	snap := tr.Stats().Snapshot()
	assert.Zero(t, snap.RealFills+snap.WashFills)
}

func TestPrunesCanceledOrders(t *testing.T) {
	ex := mock.NewExchange()
	records := book.NewRecordSet()
	tr := newTestTracker(t, ex, records, 10)

	id := placeTracked(t, ex, records, core.SideBuy, "100", "99.7", "1", false)
	ex.CancelServerSide(id)

	require.NoError(t, tr.RunCycle(context.Background()))
	assert.Zero(t, records.Len())
	assert.True(t, tr.Stats().Snapshot().TotalVolume.IsZero())
}

func TestBatchRotationVisitsAllOrders(t *testing.T) {
	ex := mock.NewExchange()
	records := book.NewRecordSet()
	tr := newTestTracker(t, ex, records, 2)

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, placeTracked(t, ex, records, core.SideBuy, "100", "99.7", "1", false))
	}
	for _, id := range ids {
		require.NoError(t, ex.FillOrder(id, d("99.7")))
	}

	ctx := context.Background()
	// batch of 2 over 5 records: three cycles settle everything
	require.NoError(t, tr.RunCycle(ctx))
	assert.Equal(t, 3, records.Len())
	require.NoError(t, tr.RunCycle(ctx))
	assert.Equal(t, 1, records.Len())
	require.NoError(t, tr.RunCycle(ctx))
	assert.Zero(t, records.Len())

	snap := tr.Stats().Snapshot()
	assert.Equal(t, int64(5), snap.RealFills+snap.WashFills)
}

func TestRateLimitDefersBatch(t *testing.T) {
	ex := mock.NewExchange()
	records := book.NewRecordSet()
	tr := newTestTracker(t, ex, records, 10)
	tr.backoff.Min = time.Millisecond // keep the test fast
	tr.backoff.Max = 2 * time.Millisecond

	placeTracked(t, ex, records, core.SideBuy, "100", "99.7", "1", false)
	ex.SetError("GetOrder", apperrors.ErrRateLimitExceeded)

	require.NoError(t, tr.RunCycle(context.Background()))
	// the record survives for the next tick
	assert.Equal(t, 1, records.Len())
}

func TestJournalAndCallbackReceiveFills(t *testing.T) {
	ex := mock.NewExchange()
	records := book.NewRecordSet()
	tr := newTestTracker(t, ex, records, 10)

	var journaled []Fill
	tr.SetJournal(journalFunc(func(ctx context.Context, f Fill) error {
		journaled = append(journaled, f)
		return nil
	}))
	var callbacks []Fill
	tr.SetOnFill(func(f Fill) { callbacks = append(callbacks, f) })

	id := placeTracked(t, ex, records, core.SideSell, "1.00", "1.003", "50", true)
	require.NoError(t, ex.FillOrder(id, d("1.003")))

	require.NoError(t, tr.RunCycle(context.Background()))

	require.Len(t, journaled, 1)
	require.Len(t, callbacks, 1)
	assert.Equal(t, id, journaled[0].OrderID)
	assert.True(t, journaled[0].Wash)
	assert.True(t, journaled[0].Notional.Equal(d("50.15")))
}

type journalFunc func(ctx context.Context, f Fill) error

func (fn journalFunc) RecordFill(ctx context.Context, f Fill) error { return fn(ctx, f) }
