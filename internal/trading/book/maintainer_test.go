package book

import (
	"context"
	"errors"
	"testing"

	"volume_maker/internal/core"
	"volume_maker/internal/mock"
	"volume_maker/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOracle struct {
	price decimal.Decimal
	err   error
}

func (s stubOracle) Price(ctx context.Context) (decimal.Decimal, error) {
	return s.price, s.err
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() Config {
	return Config{
		Symbol:              "TOKUSDT",
		QuoteAsset:          "USDT",
		TargetOrdersPerSide: 30,
		BaseSpread:          d("0.003"),
		SpreadStep:          d("0.001"),
		FeeBuffer:           d("0"),
		MinFreeThreshold:    d("10"),
		UsableFraction:      d("0.8"),
		MaxOrderNotional:    d("20"),
		MinOrderNotional:    d("1"),
		WashPairsPerCycle:   0,
		PriceDecimals:       4,
		QuantityDecimals:    2,
	}
}

func newTestMaintainer(t *testing.T, cfg Config, ex *mock.Exchange, oracle core.IPriceOracle) *Maintainer {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return NewMaintainer(cfg, ex, oracle, NewRecordSet(), NoJitter, logger)
}

func TestRunCycleFillsEmptyBook(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("5000"), decimal.Zero)
	m := newTestMaintainer(t, testConfig(), ex, stubOracle{price: d("100")})

	require.NoError(t, m.RunCycle(context.Background()))

	buys, sells := m.Records().CountBySide()
	assert.Equal(t, 30, buys)
	assert.Equal(t, 30, sells)
	assert.Len(t, ex.OpenOrderIDs(), 60)
	assert.Empty(t, m.RecentWashPairs())
}

func TestRunCycleStaggersPrices(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("5000"), decimal.Zero)
	cfg := testConfig()
	cfg.TargetOrdersPerSide = 3
	m := newTestMaintainer(t, cfg, ex, stubOracle{price: d("100")})

	require.NoError(t, m.RunCycle(context.Background()))

	open, err := ex.GetOpenOrders(context.Background(), cfg.Symbol)
	require.NoError(t, err)

	var buyPrices, sellPrices []decimal.Decimal
	for _, o := range open {
		if o.Side == core.SideBuy {
			buyPrices = append(buyPrices, o.Price)
		} else {
			sellPrices = append(sellPrices, o.Price)
		}
	}
	// buy i at 100×(1−0.003−i×0.001), sell i at 100×(1+0.003+i×0.001)
	assertPricesMatch(t, []string{"99.7", "99.6", "99.5"}, buyPrices)
	assertPricesMatch(t, []string{"100.3", "100.4", "100.5"}, sellPrices)
}

func assertPricesMatch(t *testing.T, expected []string, actual []decimal.Decimal) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for _, want := range expected {
		found := false
		for _, got := range actual {
			if got.Equal(d(want)) {
				found = true
				break
			}
		}
		assert.True(t, found, "expected price %s in %v", want, actual)
	}
}

func TestRunCycleTrimsOldestFirst(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("100000"), decimal.Zero)
	cfg := testConfig()
	m := newTestMaintainer(t, cfg, ex, stubOracle{price: d("100")})

	// Overfill: 35 buys then 37 sells, placed directly on the exchange.
	ctx := context.Background()
	var buyIDs, sellIDs []int64
	for i := 0; i < 35; i++ {
		o, err := ex.PlaceOrder(ctx, &core.OrderRequest{
			Symbol: cfg.Symbol, Side: core.SideBuy, Type: core.OrderTypeLimit,
			Price: d("99"), Quantity: d("0.2"),
		})
		require.NoError(t, err)
		buyIDs = append(buyIDs, o.OrderID)
	}
	for i := 0; i < 37; i++ {
		o, err := ex.PlaceOrder(ctx, &core.OrderRequest{
			Symbol: cfg.Symbol, Side: core.SideSell, Type: core.OrderTypeLimit,
			Price: d("101"), Quantity: d("0.2"),
		})
		require.NoError(t, err)
		sellIDs = append(sellIDs, o.OrderID)
	}

	require.NoError(t, m.RunCycle(ctx))

	open, err := ex.GetOpenOrders(ctx, cfg.Symbol)
	require.NoError(t, err)
	counts := map[core.Side]int{}
	surviving := map[int64]bool{}
	for _, o := range open {
		counts[o.Side]++
		surviving[o.OrderID] = true
	}
	assert.Equal(t, 30, counts[core.SideBuy])
	assert.Equal(t, 30, counts[core.SideSell])

	// oldest trimmed, most recent retained
	for _, id := range buyIDs[:5] {
		assert.False(t, surviving[id], "oldest buy %d should be trimmed", id)
	}
	for _, id := range buyIDs[5:] {
		assert.True(t, surviving[id], "recent buy %d should survive", id)
	}
	for _, id := range sellIDs[:7] {
		assert.False(t, surviving[id], "oldest sell %d should be trimmed", id)
	}
	for _, id := range sellIDs[7:] {
		assert.True(t, surviving[id], "recent sell %d should survive", id)
	}
}

func TestRunCycleSkipsOnOracleFailure(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("5000"), decimal.Zero)
	m := newTestMaintainer(t, testConfig(), ex, stubOracle{err: errors.New("feed down")})

	err := m.RunCycle(context.Background())
	require.Error(t, err)
	assert.Zero(t, ex.PlaceCalls)
}

func TestRunCycleSkipsOnZeroPrice(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("5000"), decimal.Zero)
	m := newTestMaintainer(t, testConfig(), ex, stubOracle{price: decimal.Zero})

	require.Error(t, m.RunCycle(context.Background()))
	assert.Zero(t, ex.PlaceCalls)
}

func TestRunCycleNeverSubmitsZeroQuantity(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("20"), decimal.Zero)
	cfg := testConfig()
	cfg.MinFreeThreshold = d("1")
	cfg.MinOrderNotional = d("0")
	// per-order notional ≈ 20×0.8/60 = 0.27, qty ≈ 0.0027 floors to zero
	m := newTestMaintainer(t, cfg, ex, stubOracle{price: d("100")})

	require.NoError(t, m.RunCycle(context.Background()))
	assert.Zero(t, ex.PlaceCalls)
	assert.Zero(t, m.Records().Len())
}

func TestRunCycleGuardRejectionSkipsPlacement(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("5"), decimal.Zero) // below min free threshold
	m := newTestMaintainer(t, testConfig(), ex, stubOracle{price: d("100")})

	require.NoError(t, m.RunCycle(context.Background()))
	assert.Zero(t, ex.PlaceCalls)
}

func TestRunCyclePlacesWashPairsWhenBookFull(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("5000"), decimal.Zero)
	cfg := testConfig()
	cfg.TargetOrdersPerSide = 2
	cfg.WashPairsPerCycle = 2
	m := newTestMaintainer(t, cfg, ex, stubOracle{price: d("100")})

	require.NoError(t, m.RunCycle(context.Background()))

	pairs := m.RecentWashPairs()
	require.Len(t, pairs, 2)
	for _, p := range pairs {
		// both legs at ref × (1 + baseSpread) with no jitter
		assert.True(t, p.Price.Equal(d("100.3")), "pair price = %s", p.Price)
		assert.NotZero(t, p.BuyOrderID)
		assert.NotZero(t, p.SellOrderID)
		assert.NotEqual(t, p.BuyOrderID, p.SellOrderID)

		buy, ok := m.Records().Get(p.BuyOrderID)
		require.True(t, ok)
		assert.True(t, buy.IsWashTrade)
		sell, ok := m.Records().Get(p.SellOrderID)
		require.True(t, ok)
		assert.True(t, sell.IsWashTrade)
	}

	// wash legs placed only after the book reached target on both sides
	assert.Equal(t, 2+2+4, ex.PlaceCalls)
}

func TestRunCycleCancelsOrphanedWashBuyLeg(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("5000"), decimal.Zero)
	cfg := testConfig()
	cfg.TargetOrdersPerSide = 1
	cfg.WashPairsPerCycle = 1
	m := newTestMaintainer(t, cfg, ex, stubOracle{price: d("100")})

	// two top-up orders succeed, the wash buy leg succeeds, the sell leg fails
	ex.FailPlaceOrderAfter(3)

	require.NoError(t, m.RunCycle(context.Background()))

	assert.Empty(t, m.RecentWashPairs())
	for _, r := range m.Records().All() {
		assert.False(t, r.IsWashTrade, "order %d should not be a dangling wash leg", r.OrderID)
	}
	// the orphaned buy leg was canceled on the exchange
	assert.Len(t, ex.OpenOrderIDs(), 2)
}

func TestRunCycleReservedQuoteTracksBuys(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetBalance("USDT", d("5000"), decimal.Zero)
	cfg := testConfig()
	cfg.TargetOrdersPerSide = 5
	m := newTestMaintainer(t, cfg, ex, stubOracle{price: d("100")})

	require.NoError(t, m.RunCycle(context.Background()))

	reserved := m.Records().ReservedQuote()
	assert.True(t, reserved.IsPositive())
	// only BUY records reserve quote
	expected := decimal.Zero
	for _, r := range m.Records().All() {
		if r.Side == core.SideBuy {
			expected = expected.Add(r.IntendedPrice.Mul(r.Quantity))
		}
	}
	assert.True(t, reserved.Equal(expected))
}
