package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

func TestRegistryCountsEngineEvents(t *testing.T) {
	r := NewRegistry()

	r.CheckoutOutcome("created")
	r.CheckoutOutcome("created")
	r.CheckoutOutcome("insufficient_stock")
	r.Reservation("reserved")
	r.Release("cancel", 3)
	r.Release("cancel", 0)
	r.Transition(domain.OrderStatusPending, domain.OrderStatusCancelled, "applied")
	r.Transition("", domain.OrderStatusShipped, "rejected")
	r.PaymentConfirmation("duplicate")
	r.NotifierPublish("kafka", "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.checkouts.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.checkouts.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.releases.WithLabelValues("cancel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("pending", "cancelled", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("unknown", "shipped", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.payments.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifier.WithLabelValues("kafka", "error")))
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := NewRegistry()
	router := chi.NewRouter()
	router.Use(r.Middleware)
	router.Get("/orders/{orderID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Handle("/metrics", r.Handler())

	for _, id := range []string{"ord_1", "ord_2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(r.requests.WithLabelValues("/orders/{orderID}", "404")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "orderengine_http_requests_total"))
}
