package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/services"
)

const createBody = `{
	"lines": [{"product_id": " p1 ", "quantity": 2}],
	"shipping_address": {
		"full_name": "  Sita <b>Sharma</b> ",
		"phone": "9800000000",
		"street": "Lazimpat",
		"city": "Kathmandu",
		"postal_code": " 44600 ",
		"country": "np"
	},
	"payment_method": " eSewa "
}`

func orderRouter(h *OrderHandlers) http.Handler {
	return NewRouter(WithOrderRoutes(h.Routes))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	checkout := &stubCheckout{order: sampleOrder("ord_1", "")}
	router := orderRouter(NewOrderHandlers(testAuthenticator(), checkout, &stubOrders{}))

	req := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(createBody)), "cust-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/orders/ord_1" {
		t.Fatalf("unexpected location %q", loc)
	}
	if len(checkout.calls) != 1 {
		t.Fatalf("expected one checkout call, got %d", len(checkout.calls))
	}
	cmd := checkout.calls[0]
	if cmd.CustomerID != "cust-1" {
		t.Fatalf("expected customer from token, got %q", cmd.CustomerID)
	}
	if cmd.PaymentMethod != domain.PaymentMethodEsewa {
		t.Fatalf("expected esewa, got %q", cmd.PaymentMethod)
	}
	if len(cmd.Lines) != 1 || cmd.Lines[0].ProductID != "p1" || cmd.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", cmd.Lines)
	}
	addr := cmd.ShippingAddress
	if addr.FullName != "Sita Sharma" {
		t.Fatalf("expected sanitised name, got %q", addr.FullName)
	}
	if addr.Country != "NP" || addr.PostalCode != "44600" {
		t.Fatalf("expected normalised codes, got %q %q", addr.Country, addr.PostalCode)
	}
	if addr.Email != "cust-1@example.com" {
		t.Fatalf("expected email from token, got %q", addr.Email)
	}

	body := decodeBody(t, rr)
	order := body["order"].(map[string]any)
	if order["grand_total"].(float64) != 3100 {
		t.Fatalf("unexpected grand total %v", order["grand_total"])
	}
	if order["status"] != "pending" {
		t.Fatalf("unexpected status %v", order["status"])
	}
}

func TestOrderHandlersCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		token  string
		status int
		code   string
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "unauthenticated",
			body:   createBody,
			status: http.StatusUnauthorized,
			code:   "unauthenticated",
		},
		{
			name:   "malformed json",
			body:   `{"lines": [`,
			token:  "cust-1",
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
		{
			name:   "unknown field",
			body:   `{"coupon": "FREE"}`,
			token:  "cust-1",
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
		{
			name:   "validation",
			err:    &services.ValidationError{Field: "lines", Reason: "must not be empty"},
			body:   createBody,
			token:  "cust-1",
			status: http.StatusBadRequest,
			code:   "invalid_request",
			check: func(t *testing.T, body map[string]any) {
				if body["field"] != "lines" {
					t.Fatalf("expected field detail, got %v", body["field"])
				}
			},
		},
		{
			name:   "insufficient stock",
			err:    &services.InsufficientStockError{ProductID: "p1", Requested: 2, Available: 1},
			body:   createBody,
			token:  "cust-1",
			status: http.StatusConflict,
			code:   "insufficient_stock",
			check: func(t *testing.T, body map[string]any) {
				if body["product_id"] != "p1" || body["available"].(float64) != 1 {
					t.Fatalf("unexpected details %v", body)
				}
			},
		},
		{
			name:   "product not found",
			err:    &services.ProductNotFoundError{ProductID: "ghost"},
			body:   createBody,
			token:  "cust-1",
			status: http.StatusNotFound,
			code:   "product_not_found",
		},
		{
			name:   "backend unavailable",
			err:    services.ErrOrderUnavailable,
			body:   createBody,
			token:  "cust-1",
			status: http.StatusServiceUnavailable,
			code:   "unavailable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checkout := &stubCheckout{err: tc.err, order: sampleOrder("ord_1", "")}
			router := orderRouter(NewOrderHandlers(testAuthenticator(), checkout, &stubOrders{}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(tc.body))
			if tc.token != "" {
				bearer(req, tc.token)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			body := decodeBody(t, rr)
			if body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
			if tc.check != nil {
				tc.check(t, body)
			}
		})
	}
}

func TestOrderHandlersCreateOrderIdempotentReplay(t *testing.T) {
	checkout := &stubCheckout{order: sampleOrder("ord_1", "")}
	store := idempotency.NewMemoryStore()
	router := orderRouter(NewOrderHandlers(testAuthenticator(), checkout, &stubOrders{},
		WithOrderIdempotency(idempotency.Middleware(store))))

	send := func() *httptest.ResponseRecorder {
		req := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(createBody)), "cust-1")
		req.Header.Set("Idempotency-Key", "checkout-42")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	second := send()

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if len(checkout.calls) != 1 {
		t.Fatalf("expected checkout to run once, ran %d times", len(checkout.calls))
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatal("expected replay header on second response")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies\n%s\n%s", first.Body.String(), second.Body.String())
	}
}

func TestOrderHandlersCreateOrderRateLimited(t *testing.T) {
	checkout := &stubCheckout{order: sampleOrder("ord_1", "")}
	router := orderRouter(NewOrderHandlers(testAuthenticator(), checkout, &stubOrders{},
		WithCheckoutRateLimit(1, time.Minute)))

	codes := make([]int, 0, 3)
	for _, token := range []string{"cust-1", "cust-1", "cust-2"} {
		req := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(createBody)), token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Fatal("expected Retry-After header")
		}
	}

	want := []int{http.StatusCreated, http.StatusTooManyRequests, http.StatusCreated}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request %d: expected %d, got %d", i, want[i], codes[i])
		}
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	orders := &stubOrders{page: domain.CursorPage[domain.Order]{
		Items:         []domain.Order{sampleOrder("ord_2", "cust-1"), sampleOrder("ord_1", "cust-1")},
		NextPageToken: "next",
	}}
	router := orderRouter(NewOrderHandlers(testAuthenticator(), &stubCheckout{}, orders))

	req := bearer(httptest.NewRequest(http.MethodGet, "/api/v1/orders?pageSize=2&status=pending,shipped&status=cancelled", nil), "cust-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(orders.filters) != 1 {
		t.Fatalf("expected one list call, got %d", len(orders.filters))
	}
	filter := orders.filters[0]
	if filter.CustomerID != "cust-1" {
		t.Fatalf("expected listing scoped to caller, got %q", filter.CustomerID)
	}
	if filter.Pagination.PageSize != 2 {
		t.Fatalf("expected page size 2, got %d", filter.Pagination.PageSize)
	}
	wantStatus := []services.OrderStatus{domain.OrderStatusPending, domain.OrderStatusShipped, domain.OrderStatusCancelled}
	if len(filter.Status) != len(wantStatus) {
		t.Fatalf("unexpected statuses %v", filter.Status)
	}
	for i := range wantStatus {
		if filter.Status[i] != wantStatus[i] {
			t.Fatalf("unexpected statuses %v", filter.Status)
		}
	}

	var body orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 2 || body.NextPageToken != "next" {
		t.Fatalf("unexpected page %+v", body)
	}
}

func TestOrderHandlersListOrdersInvalidPageSize(t *testing.T) {
	router := orderRouter(NewOrderHandlers(testAuthenticator(), &stubCheckout{}, &stubOrders{}))

	req := bearer(httptest.NewRequest(http.MethodGet, "/api/v1/orders?pageSize=zero", nil), "cust-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderScopedToOwner(t *testing.T) {
	orders := &stubOrders{order: sampleOrder("ord_1", "cust-1")}
	router := orderRouter(NewOrderHandlers(testAuthenticator(), &stubCheckout{}, orders))

	req := bearer(httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_1", nil), "cust-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", rr.Code)
	}

	req = bearer(httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_1", nil), "cust-2")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other customer, got %d", rr.Code)
	}
	if got := orders.queries[1].CustomerID; got != "cust-2" {
		t.Fatalf("expected query scoped to caller, got %q", got)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	orders := &stubOrders{order: sampleOrder("ord_1", "cust-1")}
	router := orderRouter(NewOrderHandlers(testAuthenticator(), &stubCheckout{}, orders))

	req := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:cancel", strings.NewReader(`{"reason":"changed my mind"}`)), "cust-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	cmd := orders.cancels[0]
	if cmd.OrderID != "ord_1" || cmd.CustomerID != "cust-1" || cmd.Reason != "changed my mind" {
		t.Fatalf("unexpected cancel command %+v", cmd)
	}
}

func TestOrderHandlersCancelOrderWithoutBody(t *testing.T) {
	orders := &stubOrders{order: sampleOrder("ord_1", "cust-1")}
	router := orderRouter(NewOrderHandlers(testAuthenticator(), &stubCheckout{}, orders))

	req := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:cancel", nil), "cust-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersCancelInvalidTransition(t *testing.T) {
	orders := &stubOrders{err: &services.InvalidTransitionError{
		From:   domain.OrderStatusShipped,
		To:     domain.OrderStatusCancelled,
		Reason: "order already shipped",
	}}
	router := orderRouter(NewOrderHandlers(testAuthenticator(), &stubCheckout{}, orders))

	req := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:cancel", nil), "cust-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "invalid_transition" || body["from"] != "shipped" || body["to"] != "cancelled" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestOrderHandlersStartPayment(t *testing.T) {
	orders := &stubOrders{order: sampleOrder("ord_1", "cust-1")}
	payments := &stubPayments{order: sampleOrder("ord_1", "cust-1")}
	router := orderRouter(NewOrderHandlers(testAuthenticator(), &stubCheckout{}, orders, WithOrderPayments(payments)))

	req := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:pay", nil), "cust-2")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign order, got %d", rr.Code)
	}
	if len(payments.processing) != 0 {
		t.Fatal("payment must not start for a foreign order")
	}

	req = bearer(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:pay", nil), "cust-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["order"].(map[string]any)["payment_status"] != "processing" {
		t.Fatalf("unexpected body %v", body)
	}
}
