package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/services"
)

type transitionRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	Reason         string `json:"reason"`
}

type trackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

type confirmPaymentRequest struct {
	OrderID          string `json:"order_id,omitempty"`
	PaymentReference string `json:"payment_reference"`
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

// AdminHandlers exposes the staff console: order oversight, the status controller and stock.
type AdminHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	payments  services.PaymentService
	inventory services.InventoryService
}

// NewAdminHandlers constructs AdminHandlers. Nil services answer 503 on their routes.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, inventory services.InventoryService) *AdminHandlers {
	return &AdminHandlers{
		authn:     authn,
		orders:    orders,
		payments:  payments,
		inventory: inventory,
	}
}

// Routes registers the /admin endpoints; every route requires the staff or admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}:status", h.transitionStatus)
	r.Put("/orders/{orderID}:tracking", h.setTracking)
	r.Post("/orders/{orderID}:cancel", h.cancelOrder)
	r.Post("/orders/{orderID}:confirm-payment", h.confirmPayment)
	r.Get("/inventory/{productID}", h.peekStock)
	r.Post("/inventory/{productID}:restock", h.restock)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	filter, err := listFilterFromRequest(r)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	filter.CustomerID = strings.TrimSpace(r.URL.Query().Get("customerId"))

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderList(page))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, services.OrderQuery{OrderID: orderID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
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

	var req transitionRequest
	if err := httpx.DecodeJSON(w, r, maxActionBodySize, &req, false); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:        orderID,
		TargetStatus:   domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		TrackingNumber: cleanTracking(req.TrackingNumber),
		Reason:         req.Reason,
		ActorID:        identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) setTracking(w http.ResponseWriter, r *http.Request) {
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

	var req trackingRequest
	if err := httpx.DecodeJSON(w, r, maxActionBodySize, &req, false); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	order, err := h.orders.SetTrackingNumber(ctx, services.SetTrackingNumberCommand{
		OrderID:        orderID,
		TrackingNumber: cleanTracking(req.TrackingNumber),
		ActorID:        identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// cancelOrder lets staff cancel any customer's order; ownership is not checked.
func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
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
		OrderID: orderID,
		Reason:  req.Reason,
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
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

	var req confirmPaymentRequest
	if err := httpx.DecodeJSON(w, r, maxActionBodySize, &req, false); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	order, err := h.payments.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		OrderID:          orderID,
		PaymentReference: req.PaymentReference,
		ActorID:          identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) peekStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	level, err := h.inventory.Peek(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildStockResponse(level))
}

func (h *AdminHandlers) restock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req restockRequest
	if err := httpx.DecodeJSON(w, r, maxActionBodySize, &req, false); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	level, err := h.inventory.Restock(ctx, services.RestockCommand{
		ProductID: chi.URLParam(r, "productID"),
		Quantity:  req.Quantity,
		ActorID:   identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildStockResponse(level))
}
