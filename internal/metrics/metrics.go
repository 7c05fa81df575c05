package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Settlement outcomes
const (
	OutcomeSettled     = "settled"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
	OutcomeDebitFailed = "debit_failed"
)

// Metrics holds the service collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	orders            *prometheus.CounterVec
	cancellations     prometheus.Counter
	deletions         prometheus.Counter
	movements         *prometheus.CounterVec
	insufficientStock prometheus.Counter
	httpDuration      *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "orders_total",
			Help:      "Order creation attempts by outcome.",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled and restocked.",
		}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "orders_deleted_total",
			Help:      "Cancelled orders deleted.",
		}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "stock_movements_total",
			Help:      "Committed stock movements by reason.",
		}, []string{"reason"}),
		insufficientStock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "insufficient_stock_total",
			Help:      "Movements rejected because the level would go negative.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.orders,
		m.cancellations,
		m.deletions,
		m.movements,
		m.insufficientStock,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) OrderOutcome(outcome string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OrderCancelled() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

func (m *Metrics) OrderDeleted() {
	if m == nil {
		return
	}
	m.deletions.Inc()
}

func (m *Metrics) Movement(reason string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(reason).Inc()
}

func (m *Metrics) InsufficientStock() {
	if m == nil {
		return
	}
	m.insufficientStock.Inc()
}

// Registry exposes the registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request latency per matched route
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
