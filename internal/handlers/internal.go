package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/services"
)

const (
	defaultCleanupBatch = 200
	maxCleanupBatch     = 1000
)

type paymentFailureRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type cleanupRequest struct {
	Limit int `json:"limit"`
}

// InternalHandlers serves service-to-service callbacks. Callers are authenticated by
// the OIDC middleware mounted on the /internal group.
type InternalHandlers struct {
	payments    services.PaymentService
	idempotency idempotency.Store
	now         func() time.Time
}

// NewInternalHandlers constructs InternalHandlers. store may be nil when cleanup runs elsewhere.
func NewInternalHandlers(payments services.PaymentService, store idempotency.Store) *InternalHandlers {
	return &InternalHandlers{payments: payments, idempotency: store, now: time.Now}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments:confirm", h.confirmPayment)
	r.Post("/payments:fail", h.failPayment)
	r.Post("/idempotency:cleanup", h.cleanupIdempotency)
}

func (h *InternalHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req confirmPaymentRequest
	if err := httpx.DecodeJSON(w, r, maxActionBodySize, &req, false); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	order, err := h.payments.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		OrderID:          strings.TrimSpace(req.OrderID),
		PaymentReference: req.PaymentReference,
		ActorID:          serviceActor(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *InternalHandlers) failPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req paymentFailureRequest
	if err := httpx.DecodeJSON(w, r, maxActionBodySize, &req, false); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	order, err := h.payments.MarkPaymentFailed(ctx, services.PaymentFailureCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		Reason:  req.Reason,
		ActorID: serviceActor(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.idempotency == nil {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_unavailable", "idempotency store not configured", http.StatusServiceUnavailable))
		return
	}
	var req cleanupRequest
	if err := httpx.DecodeJSON(w, r, maxActionBodySize, &req, true); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultCleanupBatch
	}
	limit = min(limit, maxCleanupBatch)
	removed, err := h.idempotency.CleanupExpired(ctx, h.now().UTC(), limit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "idempotency cleanup failed", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
