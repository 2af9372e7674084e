package observability

import (
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type poolMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec

	totalCollateral prometheus.Gauge
	totalBorrows    prometheus.Gauge
	availableCash   prometheus.Gauge
	utilization     prometheus.Gauge
	liquidations    prometheus.Counter
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *poolMetrics
)

// PoolMetrics returns the lazily-initialised metrics registry used to record
// lending pool activity.
func PoolMetrics() *poolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &poolMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Total engine operation failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendpool",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			totalCollateral: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "pool",
				Name:      "total_collateral",
				Help:      "Aggregate collateral held by the pool in whole asset units.",
			}),
			totalBorrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "pool",
				Name:      "total_borrows",
				Help:      "Outstanding debt across all accounts in whole asset units.",
			}),
			availableCash: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "pool",
				Name:      "available_liquidity",
				Help:      "Un-borrowed debt-asset liquidity in whole asset units.",
			}),
			utilization: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "pool",
				Name:      "utilization",
				Help:      "Borrowed fraction of the pool's debt-asset value, 0 to 1.",
			}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "pool",
				Name:      "liquidations_total",
				Help:      "Count of completed liquidations.",
			}),
		}
		prometheus.MustRegister(
			poolRegistry.operations,
			poolRegistry.errors,
			poolRegistry.latency,
			poolRegistry.totalCollateral,
			poolRegistry.totalBorrows,
			poolRegistry.availableCash,
			poolRegistry.utilization,
			poolRegistry.liquidations,
		)
	})
	return poolRegistry
}

// Observe records one engine operation outcome with its duration.
func (m *poolMetrics) Observe(operation string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(operation, err.Error()).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(took.Seconds())
}

// RecordLiquidation increments the liquidation counter.
func (m *poolMetrics) RecordLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

// SetPoolGauges publishes the pool aggregates. Amounts are scaled from base
// units to whole tokens for readability; precision loss is acceptable for
// monitoring.
func (m *poolMetrics) SetPoolGauges(totalCollateral, totalBorrows, cash, utilizationWad *big.Int, collateralDecimals, debtDecimals uint8) {
	if m == nil {
		return
	}
	m.totalCollateral.Set(scaleToFloat(totalCollateral, collateralDecimals))
	m.totalBorrows.Set(scaleToFloat(totalBorrows, debtDecimals))
	m.availableCash.Set(scaleToFloat(cash, debtDecimals))
	m.utilization.Set(scaleToFloat(utilizationWad, 18))
}

func scaleToFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(amount),
		new(big.Float).SetFloat64(math.Pow10(int(decimals))),
	).Float64()
	return f
}
