package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersPlacedTotal    = "connector_orders_placed_total"
	MetricOrdersFilledTotal    = "connector_orders_filled_total"
	MetricOrdersCancelledTotal = "connector_orders_cancelled_total"
	MetricOrdersFailedTotal    = "connector_orders_failed_total"
	MetricInFlightOrders       = "connector_in_flight_orders"
	MetricLatencyExchange      = "connector_latency_exchange_ms"
	MetricLatencyTickToAck     = "connector_latency_tick_to_ack_ms"
	MetricReconcileCorrections = "connector_reconcile_corrections_total"
	MetricStreamReconnects     = "connector_stream_reconnects_total"
	MetricCircuitBreakerOpen   = "connector_circuit_breaker_open"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	OrdersPlacedTotal    metric.Int64Counter
	OrdersFilledTotal    metric.Int64Counter
	OrdersCancelledTotal metric.Int64Counter
	OrdersFailedTotal    metric.Int64Counter
	InFlightOrders       metric.Int64ObservableGauge
	LatencyExchange      metric.Float64Histogram
	LatencyTickToAck     metric.Float64Histogram
	ReconcileCorrections metric.Int64Counter
	StreamReconnects     metric.Int64Counter
	CircuitBreakerOpen   metric.Int64ObservableGauge

	mu              sync.RWMutex
	inFlightMap     map[string]int64
	circuitOpenMap  map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			inFlightMap:    make(map[string]int64),
			circuitOpenMap: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders submitted to the venue"))
	if err != nil {
		return err
	}

	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total fill events applied"))
	if err != nil {
		return err
	}

	m.OrdersCancelledTotal, err = meter.Int64Counter(MetricOrdersCancelledTotal, metric.WithDescription("Total orders reaching Cancelled"))
	if err != nil {
		return err
	}

	m.OrdersFailedTotal, err = meter.Int64Counter(MetricOrdersFailedTotal, metric.WithDescription("Total orders reaching Failed"))
	if err != nil {
		return err
	}

	m.LatencyExchange, err = meter.Float64Histogram(MetricLatencyExchange, metric.WithDescription("Latency of venue REST calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.LatencyTickToAck, err = meter.Float64Histogram(MetricLatencyTickToAck, metric.WithDescription("Time from submit_order call to submit_ack"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.ReconcileCorrections, err = meter.Int64Counter(MetricReconcileCorrections, metric.WithDescription("Corrections applied by reconciliation passes"))
	if err != nil {
		return err
	}

	m.StreamReconnects, err = meter.Int64Counter(MetricStreamReconnects, metric.WithDescription("User stream reconnect attempts"))
	if err != nil {
		return err
	}

	m.InFlightOrders, err = meter.Int64ObservableGauge(MetricInFlightOrders, metric.WithDescription("Current size of the in-flight order registry"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.inFlightMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.CircuitBreakerOpen, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen, metric.WithDescription("REST circuit breaker open state (1=open, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.circuitOpenMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// SetInFlightOrders records the current registry size for a symbol.
func (m *MetricsHolder) SetInFlightOrders(symbol string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlightMap[symbol] = count
}

// SetCircuitBreakerOpen records the REST circuit breaker state for a venue.
func (m *MetricsHolder) SetCircuitBreakerOpen(venue string, open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitOpenMap[venue] = val
}
