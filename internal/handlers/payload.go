package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/platform/pagination"
	"github.com/hanko-field/orderengine/internal/platform/textutil"
	"github.com/hanko-field/orderengine/internal/services"
)

const (
	maxOrderBodySize  = 64 * 1024
	maxActionBodySize = 4 * 1024
	maxAddressField   = 128
	maxPostalCode     = 16
	maxPhone          = 32
)

type addressPayload struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// cleanTracking leaves length checks to the service so oversized input is rejected rather than cut.
func cleanTracking(value string) string {
	return textutil.CleanCode(value, 0)
}

// toDomain cleans every free-text field before it reaches the order.
func (a addressPayload) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   textutil.CleanText(a.FullName, maxAddressField),
		Phone:      textutil.CleanText(a.Phone, maxPhone),
		Email:      strings.TrimSpace(a.Email),
		Street:     textutil.CleanText(a.Street, maxAddressField),
		City:       textutil.CleanText(a.City, maxAddressField),
		Province:   textutil.CleanText(a.Province, maxAddressField),
		PostalCode: textutil.CleanCode(a.PostalCode, maxPostalCode),
		Country:    textutil.CleanCode(a.Country, 3),
	}
}

func addressFromDomain(a domain.ShippingAddress) addressPayload {
	return addressPayload{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Email:      a.Email,
		Street:     a.Street,
		City:       a.City,
		Province:   a.Province,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type lineItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
	ImageRef  string `json:"image_ref,omitempty"`
}

type orderPayload struct {
	ID               string            `json:"id"`
	CustomerID       string            `json:"customer_id"`
	Status           string            `json:"status"`
	PaymentMethod    string            `json:"payment_method"`
	PaymentStatus    string            `json:"payment_status"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	IsPaid           bool              `json:"is_paid"`
	IsDelivered      bool              `json:"is_delivered"`
	TrackingNumber   string            `json:"tracking_number,omitempty"`
	Currency         string            `json:"currency"`
	ItemsTotal       int64             `json:"items_total"`
	ShippingFee      int64             `json:"shipping_fee"`
	GrandTotal       int64             `json:"grand_total"`
	LineItems        []lineItemPayload `json:"line_items"`
	ShippingAddress  addressPayload    `json:"shipping_address"`
	CancelReason     string            `json:"cancel_reason,omitempty"`
	PaidAt           string            `json:"paid_at,omitempty"`
	DeliveredAt      string            `json:"delivered_at,omitempty"`
	CancelledAt      string            `json:"cancelled_at,omitempty"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
	Version          int64             `json:"version"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type stockResponse struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]lineItemPayload, 0, len(order.LineItems))
	for _, line := range order.LineItems {
		items = append(items, lineItemPayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal(),
			ImageRef:  line.ImageRef,
		})
	}
	return orderPayload{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		Status:           string(order.Status),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentReference: order.PaymentReference,
		IsPaid:           order.IsPaid,
		IsDelivered:      order.IsDelivered,
		TrackingNumber:   order.TrackingNumber,
		Currency:         order.Currency,
		ItemsTotal:       order.ItemsTotal,
		ShippingFee:      order.ShippingFee,
		GrandTotal:       order.GrandTotal,
		LineItems:        items,
		ShippingAddress:  addressFromDomain(order.ShippingAddress),
		CancelReason:     order.CancelReason,
		PaidAt:           formatTimePtr(order.PaidAt),
		DeliveredAt:      formatTimePtr(order.DeliveredAt),
		CancelledAt:      formatTimePtr(order.CancelledAt),
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
		Version:          order.Version,
	}
}

func buildOrderList(page domain.CursorPage[domain.Order]) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	return orderListResponse{Items: items, NextPageToken: page.NextPageToken}
}

func buildStockResponse(level domain.StockLevel) stockResponse {
	return stockResponse{ProductID: level.ProductID, Available: level.Available, UpdatedAt: formatTime(level.UpdatedAt)}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return formatTime(*ts)
}

// listFilterFromRequest reads pageSize, pageToken and repeated or comma separated status values.
func listFilterFromRequest(r *http.Request) (services.OrderListFilter, error) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		return services.OrderListFilter{}, err
	}
	var statuses []services.OrderStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, value := range strings.Split(raw, ",") {
			if value = strings.TrimSpace(value); value != "" {
				statuses = append(statuses, services.OrderStatus(value))
			}
		}
	}
	return services.OrderListFilter{
		Status:     statuses,
		Pagination: services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	}, nil
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func serviceActor(ctx context.Context) string {
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok {
		if svc.Email != "" {
			return "svc:" + svc.Email
		}
		return "svc:" + svc.Subject
	}
	return "svc:internal"
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		validation   *services.ValidationError
		insufficient *services.InsufficientStockError
		missing      *services.ProductNotFoundError
		transition   *services.InvalidTransitionError
	)
	switch {
	case errors.Is(err, pagination.ErrInvalidPageSize), errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.As(err, &validation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", validation.Field+" "+validation.Reason, http.StatusBadRequest).
			WithDetails(map[string]any{"field": validation.Field}))
	case errors.As(err, &insufficient):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict).
			WithDetails(map[string]any{"product_id": insufficient.ProductID, "requested": insufficient.Requested, "available": insufficient.Available}))
	case errors.As(err, &missing):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product "+missing.ProductID+" not found", http.StatusNotFound).
			WithDetails(map[string]any{"product_id": missing.ProductID}))
	case errors.As(err, &transition):
		details := map[string]any{"from": string(transition.From), "to": string(transition.To)}
		if transition.Reason != "" {
			details["reason"] = transition.Reason
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict).WithDetails(details))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "order backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process order request", http.StatusInternalServerError))
	}
}
