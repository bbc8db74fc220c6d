package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	creditMetricsOnce sync.Once
	creditRegistry    *CreditMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record JSON-RPC activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "microlend",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "microlend",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "microlend",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// CreditMetrics bundles collectors tracking loan engine health.
type CreditMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	escrowBalance  *prometheus.GaugeVec
	loansDefaulted prometheus.Counter
}

// Credit exposes the metrics registry for the loan engine.
func Credit() *CreditMetrics {
	creditMetricsOnce.Do(func() {
		creditRegistry = &CreditMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "microlend",
				Subsystem: "credit",
				Name:      "operations_total",
				Help:      "Count of loan engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "microlend",
				Subsystem: "credit",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for loan engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "microlend",
				Subsystem: "credit",
				Name:      "errors_total",
				Help:      "Count of loan engine failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			escrowBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "microlend",
				Subsystem: "credit",
				Name:      "escrow_balance",
				Help:      "Collateral currently held in escrow per mint, in base token units.",
			}, []string{"mint"}),
			loansDefaulted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "microlend",
				Subsystem: "credit",
				Name:      "loans_defaulted_total",
				Help:      "Count of loans marked as defaulted.",
			}),
		}
		prometheus.MustRegister(
			creditRegistry.operations,
			creditRegistry.latency,
			creditRegistry.errors,
			creditRegistry.escrowBalance,
			creditRegistry.loansDefaulted,
		)
	})
	return creditRegistry
}

// Observe records the execution metrics for a loan engine operation.
func (m *CreditMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		reason := strings.TrimSpace(err.Error())
		if reason == "" {
			reason = "unknown"
		}
		m.errors.WithLabelValues(op, reason).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEscrowBalance updates the escrow balance gauge for a mint.
func (m *CreditMetrics) RecordEscrowBalance(mint string, balance *big.Int) {
	if m == nil {
		return
	}
	m.escrowBalance.WithLabelValues(labelMint(mint)).Set(bigToFloat(balance))
}

// EscrowBalanceGauge exposes the per-mint escrow gauge for assertions.
func (m *CreditMetrics) EscrowBalanceGauge(mint string) prometheus.Gauge {
	return m.escrowBalance.WithLabelValues(labelMint(mint))
}

// RecordDefault increments the defaulted loan counter.
func (m *CreditMetrics) RecordDefault() {
	if m == nil {
		return
	}
	m.loansDefaulted.Inc()
}

func labelMint(mint string) string {
	trimmed := strings.TrimSpace(mint)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
