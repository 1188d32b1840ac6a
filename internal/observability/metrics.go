package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	movementsTotal    *prometheus.CounterVec
	insufficientTotal prometheus.Counter
	ordersPlaced      prometheus.Counter
	ordersCompensated prometheus.Counter
	ledgerDivergence  prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_stock_movements_total",
		Help: "Committed stock movements by type.",
	}, []string{"type"})
	insufficient := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_stock_insufficient_total",
		Help: "Movements rejected because they would drive stock negative.",
	})
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_orders_placed_total",
		Help: "Orders persisted with status pending.",
	})
	compensated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_orders_compensated_total",
		Help: "Orders whose movements were reversed by compensation.",
	})
	divergence := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_ledger_divergence_total",
		Help: "Variants found diverged from their ledger sum.",
	})
	registry.MustRegister(requests, duration, movements, insufficient, placed, compensated, divergence)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		movementsTotal:    movements,
		insufficientTotal: insufficient,
		ordersPlaced:      placed,
		ordersCompensated: compensated,
		ledgerDivergence:  divergence,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// MovementCommitted counts a committed movement of the given type.
func (m *Metrics) MovementCommitted(movementType string) {
	if m == nil {
		return
	}
	m.movementsTotal.WithLabelValues(movementType).Inc()
}

// InsufficientStock counts a rejected oversell attempt.
func (m *Metrics) InsufficientStock() {
	if m == nil {
		return
	}
	m.insufficientTotal.Inc()
}

// OrderPlaced counts a successfully persisted order.
func (m *Metrics) OrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// OrderCompensated counts an order whose stock movements were reversed.
func (m *Metrics) OrderCompensated() {
	if m == nil {
		return
	}
	m.ordersCompensated.Inc()
}

// LedgerDivergence counts a variant whose counter diverged from the ledger.
func (m *Metrics) LedgerDivergence() {
	if m == nil {
		return
	}
	m.ledgerDivergence.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
