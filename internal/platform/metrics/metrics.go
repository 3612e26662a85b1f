// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

const namespace = "orderengine"

// Registry owns a private Prometheus registry and the engine collectors.
type Registry struct {
	reg *prometheus.Registry

	checkouts    *prometheus.CounterVec
	reservations *prometheus.CounterVec
	releases     *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	payments     *prometheus.CounterVec
	notifier     *prometheus.CounterVec
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// NewRegistry registers every collector, including Go runtime and process stats.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_orders_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_reservations_total",
			Help:      "Per-line stock reservations by result.",
		}, []string{"result"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_releases_total",
			Help:      "Units returned to stock by reason.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by edge and result.",
		}, []string{"from", "to", "result"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_total",
			Help:      "Payment confirmations by result.",
		}, []string{"result"}),
		notifier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifier_publish_total",
			Help:      "Order event deliveries by sink and result.",
		}, []string{"sink", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	r.reg.MustRegister(
		r.checkouts, r.reservations, r.releases, r.transitions, r.payments, r.notifier,
		r.requests, r.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) CheckoutOutcome(outcome string) {
	r.checkouts.WithLabelValues(outcome).Inc()
}

func (r *Registry) Reservation(result string) {
	r.reservations.WithLabelValues(result).Inc()
}

func (r *Registry) Release(reason string, units int) {
	if units > 0 {
		r.releases.WithLabelValues(reason).Add(float64(units))
	}
}

func (r *Registry) Transition(from, to domain.OrderStatus, result string) {
	if from == "" {
		from = "unknown"
	}
	r.transitions.WithLabelValues(string(from), string(to), result).Inc()
}

func (r *Registry) PaymentConfirmation(result string) {
	r.payments.WithLabelValues(result).Inc()
}

func (r *Registry) NotifierPublish(sink, result string) {
	r.notifier.WithLabelValues(sink, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Middleware records request counts and latency labelled by chi route pattern,
// so path parameters do not explode label cardinality.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		r.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
