package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/services"
)

type cartLinePayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	Lines           []cartLinePayload `json:"lines"`
	ShippingAddress addressPayload    `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// OrderHandlers exposes checkout and the order endpoints owned by the authenticated customer.
type OrderHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	orders      services.OrderService
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
	limiter     *windowLimiter
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency wraps order creation with the given middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithOrderPayments enables POST /orders/{orderID}:pay.
func WithOrderPayments(payments services.PaymentService) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.payments = payments
	}
}

// WithCheckoutRateLimit caps order creation to limit calls per customer per window.
func WithCheckoutRateLimit(limit int, window time.Duration) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newWindowLimiter(limit, window, nil)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, checkout services.CheckoutService, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:    authn,
		checkout: checkout,
		orders:   orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:pay", h.startPayment)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if allowed, wait := h.limiter.Allow(identity.UID); !allowed {
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts", http.StatusTooManyRequests))
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(w, r, maxOrderBodySize, &req, false); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	lines := make([]services.CartLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.CartLine{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}
	address := req.ShippingAddress.toDomain()
	if address.Email == "" {
		address.Email = identity.Email
	}

	order, err := h.checkout.CreateOrder(ctx, services.CreateOrderCommand{
		CustomerID:      identity.UID,
		Lines:           lines,
		ShippingAddress: address,
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.Header().Set("Location", defaultAPIPrefix+"/orders/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	filter, err := listFilterFromRequest(r)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	filter.CustomerID = identity.UID

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderList(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.OrderQuery{OrderID: orderID, CustomerID: identity.UID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := httpx.DecodeJSON(w, r, maxActionBodySize, &req, true); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:    orderID,
		CustomerID: identity.UID,
		Reason:     req.Reason,
		ActorID:    identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// startPayment records that the customer was handed off to the wallet.
func (h *OrderHandlers) startPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if _, err := h.orders.GetOrder(ctx, services.OrderQuery{OrderID: orderID, CustomerID: identity.UID}); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	order, err := h.payments.MarkPaymentProcessing(ctx, services.PaymentProcessingCommand{OrderID: orderID, ActorID: identity.UID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}
