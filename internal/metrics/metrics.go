package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"lukechampine.com/uint128"

	"github.com/elys-network/lpm/internal/types"
)

const namespace = "lpm"

// Metrics records manager operation outcomes in its own Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	liquidity  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Manager operations by outcome",
		}, []string{"operation", "result"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of manager operations, including confirmation",
			Buckets:   []float64{0.01, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),

		liquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_liquidity",
			Help:      "Liquidity cached by the last successful withdraw",
		}, []string{"manager"}),
	}

	registry.MustRegister(
		m.operations,
		m.duration,
		m.liquidity,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveOperation(op types.OperationType, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.operations.WithLabelValues(string(op), result).Inc()
	m.duration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

// SetLiquidity exports the cached liquidity. Values above 2^53 lose precision.
func (m *Metrics) SetLiquidity(managerID string, liquidity uint128.Uint128) {
	f, _ := new(big.Float).SetInt(liquidity.Big()).Float64()
	m.liquidity.WithLabelValues(managerID).Set(f)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
