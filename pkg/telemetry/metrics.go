package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersPlacedTotal   = "volume_maker_orders_placed_total"
	MetricOrdersCanceledTotal = "volume_maker_orders_canceled_total"
	MetricOrdersSkippedTotal  = "volume_maker_orders_skipped_total"
	MetricCyclesSkippedTotal  = "volume_maker_cycles_skipped_total"
	MetricWashPairsTotal      = "volume_maker_wash_pairs_total"
	MetricFillsTotal          = "volume_maker_fills_total"
	MetricVolumeTotal         = "volume_maker_volume_total"
	MetricProfitTotal         = "volume_maker_profit_total"
	MetricOpenOrders          = "volume_maker_open_orders"
	MetricReservedQuote       = "volume_maker_reserved_quote"
)

// MetricsHolder holds initialized instruments and the backing state for
// observable gauges.
type MetricsHolder struct {
	OrdersPlacedTotal   metric.Int64Counter
	OrdersCanceledTotal metric.Int64Counter
	OrdersSkippedTotal  metric.Int64Counter
	CyclesSkippedTotal  metric.Int64Counter
	WashPairsTotal      metric.Int64Counter
	FillsTotal          metric.Int64Counter
	VolumeTotal         metric.Float64Counter
	ProfitTotal         metric.Float64UpDownCounter
	OpenOrders          metric.Int64ObservableGauge
	ReservedQuote       metric.Float64ObservableGauge

	mu             sync.RWMutex
	openOrdersMap  map[string]int64 // keyed by side
	reservedQuote  float64
	initialized    bool
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			openOrdersMap: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes the instruments using the meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed"))
	if err != nil {
		return err
	}
	m.OrdersCanceledTotal, err = meter.Int64Counter(MetricOrdersCanceledTotal, metric.WithDescription("Total orders canceled by excess trimming"))
	if err != nil {
		return err
	}
	m.OrdersSkippedTotal, err = meter.Int64Counter(MetricOrdersSkippedTotal, metric.WithDescription("Orders skipped due to sizing or precision"))
	if err != nil {
		return err
	}
	m.CyclesSkippedTotal, err = meter.Int64Counter(MetricCyclesSkippedTotal, metric.WithDescription("Maintainer cycles skipped on transient failures"))
	if err != nil {
		return err
	}
	m.WashPairsTotal, err = meter.Int64Counter(MetricWashPairsTotal, metric.WithDescription("Total wash-trade pairs placed"))
	if err != nil {
		return err
	}
	m.FillsTotal, err = meter.Int64Counter(MetricFillsTotal, metric.WithDescription("Total fills observed, labeled by classification"))
	if err != nil {
		return err
	}
	m.VolumeTotal, err = meter.Float64Counter(MetricVolumeTotal, metric.WithDescription("Total fill notional in quote currency"))
	if err != nil {
		return err
	}
	m.ProfitTotal, err = meter.Float64UpDownCounter(MetricProfitTotal, metric.WithDescription("Cumulative profit relative to intended prices"))
	if err != nil {
		return err
	}

	m.OpenOrders, err = meter.Int64ObservableGauge(MetricOpenOrders, metric.WithDescription("Currently open orders per side"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for side, val := range m.openOrdersMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("side", side)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ReservedQuote, err = meter.Float64ObservableGauge(MetricReservedQuote, metric.WithDescription("Quote balance reserved by tracked open BUY orders"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.reservedQuote)
			return nil
		}))
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

// Ready reports whether instruments were initialized. Callers guard counter
// additions so the bot runs with telemetry disabled.
func (m *MetricsHolder) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// SetOpenOrders updates the per-side open-order gauge state.
func (m *MetricsHolder) SetOpenOrders(side string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openOrdersMap[side] = count
}

// SetReservedQuote updates the reserved-quote gauge state.
func (m *MetricsHolder) SetReservedQuote(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservedQuote = value
}

// AddFill records a fill labeled with its classification.
func (m *MetricsHolder) AddFill(ctx context.Context, wash bool, notional, profit float64) {
	if !m.Ready() {
		return
	}
	kind := "real"
	if wash {
		kind = "wash"
	}
	m.FillsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	m.VolumeTotal.Add(ctx, notional)
	m.ProfitTotal.Add(ctx, profit)
}
