package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"volume_maker/internal/core"
	"volume_maker/internal/mock"
	"volume_maker/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRunner) RunCycle(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testLogger(t *testing.T) core.ILogger {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return logger
}

func seedOpenOrders(t *testing.T, ex *mock.Exchange, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := ex.PlaceOrder(context.Background(), &core.OrderRequest{
			Symbol: "TOKUSDT", Side: core.SideBuy, Type: core.OrderTypeLimit,
			Price: decimal.NewFromInt(99), Quantity: decimal.NewFromInt(1),
		})
		require.NoError(t, err)
	}
}

func TestEngineRunsCyclesPerTick(t *testing.T) {
	ex := mock.NewExchange()
	maintainer := &countingRunner{}
	tracker := &countingRunner{}
	maintTicks := NewManualTicker()
	trackTicks := NewManualTicker()

	e := New(Config{Symbol: "TOKUSDT"}, ex, maintainer, tracker, maintTicks, trackTicks, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	maintTicks.Tick()
	maintTicks.Tick()
	trackTicks.Tick()
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, 2, maintainer.count())
	assert.Equal(t, 1, tracker.count())
}

func TestEngineSurvivesCycleErrors(t *testing.T) {
	ex := mock.NewExchange()
	maintainer := &countingRunner{err: errors.New("feed down")}
	maintTicks := NewManualTicker()
	trackTicks := NewManualTicker()

	e := New(Config{Symbol: "TOKUSDT"}, ex, maintainer, &countingRunner{}, maintTicks, trackTicks, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	maintTicks.Tick()
	maintTicks.Tick()
	maintTicks.Tick()
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, 3, maintainer.count())
}

func TestEngineCancelsOrdersOnExit(t *testing.T) {
	ex := mock.NewExchange()
	seedOpenOrders(t, ex, 5)

	e := New(Config{Symbol: "TOKUSDT", CancelOnExit: true}, ex,
		&countingRunner{}, &countingRunner{}, NewManualTicker(), NewManualTicker(), testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))
	assert.Empty(t, ex.OpenOrderIDs())
}

func TestEngineLeavesOrdersWithoutCancelOnExit(t *testing.T) {
	ex := mock.NewExchange()
	seedOpenOrders(t, ex, 5)

	e := New(Config{Symbol: "TOKUSDT", CancelOnExit: false}, ex,
		&countingRunner{}, &countingRunner{}, NewManualTicker(), NewManualTicker(), testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))
	assert.Len(t, ex.OpenOrderIDs(), 5)
}

func TestEngineStatusReporter(t *testing.T) {
	ex := mock.NewExchange()
	statusTicks := NewManualTicker()
	var mu sync.Mutex
	reports := 0

	e := New(Config{Symbol: "TOKUSDT"}, ex,
		&countingRunner{}, &countingRunner{}, NewManualTicker(), NewManualTicker(), testLogger(t))
	e.SetStatusReporter(statusTicks, func() {
		mu.Lock()
		reports++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	statusTicks.Tick()
	statusTicks.Tick()
	cancel()

	require.NoError(t, <-done)
	mu.Lock()
	assert.Equal(t, 2, reports)
	mu.Unlock()
}

func TestIntervalTickerFires(t *testing.T) {
	src := NewIntervalTicker(5 * time.Millisecond)
	defer src.Stop()

	select {
	case <-src.Ticks():
	case <-time.After(time.Second):
		t.Fatal("interval ticker never fired")
	}
}
