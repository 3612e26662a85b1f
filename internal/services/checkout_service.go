package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const (
	orderIDPrefix   = "ord_"
	defaultCurrency = "NPR"
	maxLineQuantity = 10_000

	checkoutOutcomeCreated      = "created"
	checkoutOutcomeInsufficient = "insufficient_stock"
	checkoutOutcomeInvalid      = "invalid"
	checkoutOutcomeError        = "error"
)

// PricingConfig holds the shipping rule applied at checkout, in minor units.
type PricingConfig struct {
	Currency              string
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Orders          repositories.OrderRepository
	Catalog         repositories.CatalogRepository
	Ledger          repositories.InventoryLedger
	Events          OrderEventPublisher
	Metrics         Recorder
	Pricing         PricingConfig
	ReleaseAttempts int
	ReleaseBackoff  time.Duration
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	core    *orderCore
	catalog repositories.CatalogRepository
	ledger  repositories.InventoryLedger
	pricing PricingConfig
	newID   func() string
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("checkout service: inventory ledger is required")
	}
	if deps.Pricing.FreeShippingThreshold < 0 || deps.Pricing.FlatShippingFee < 0 {
		return nil, errors.New("checkout service: shipping amounts must not be negative")
	}

	pricing := deps.Pricing
	pricing.Currency = strings.ToUpper(strings.TrimSpace(pricing.Currency))
	if pricing.Currency == "" {
		pricing.Currency = defaultCurrency
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := normaliseLogger(deps.Logger)
	metrics := normaliseRecorder(deps.Metrics)

	return &checkoutService{
		core: &orderCore{
			orders:   deps.Orders,
			releaser: newStockReleaser(deps.Ledger, deps.ReleaseAttempts, deps.ReleaseBackoff, metrics, logger),
			events:   deps.Events,
			metrics:  metrics,
			clock:    normaliseClock(deps.Clock),
			logger:   logger,
		},
		catalog: deps.Catalog,
		ledger:  deps.Ledger,
		pricing: pricing,
		newID:   idGen,
	}, nil
}

func (s *checkoutService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	order, err := s.createOrder(ctx, cmd)
	s.core.metrics.CheckoutOutcome(checkoutOutcome(err))
	return order, err
}

func (s *checkoutService) createOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Order{}, invalidField("customerId", "is required")
	}
	lines, err := mergeCartLines(cmd.Lines)
	if err != nil {
		return Order{}, err
	}
	address, err := normaliseShippingAddress(cmd.ShippingAddress)
	if err != nil {
		return Order{}, err
	}
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(string(cmd.PaymentMethod))))
	if !method.Valid() {
		return Order{}, invalidField("paymentMethod", "must be esewa or khalti")
	}

	items, err := s.snapshotLines(ctx, lines)
	if err != nil {
		return Order{}, err
	}

	reserved, err := s.reserveAll(ctx, items)
	if err != nil {
		s.rollback(ctx, "", reserved)
		return Order{}, err
	}

	now := s.core.clock()
	itemsTotal := int64(0)
	for _, item := range items {
		itemsTotal += item.Subtotal()
	}
	shippingFee := s.pricing.FlatShippingFee
	if itemsTotal >= s.pricing.FreeShippingThreshold {
		shippingFee = 0
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		CustomerID:      customerID,
		LineItems:       items,
		ShippingAddress: address,
		PaymentMethod:   method,
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          domain.OrderStatusPending,
		Currency:        s.pricing.Currency,
		ItemsTotal:      itemsTotal,
		ShippingFee:     shippingFee,
		GrandTotal:      itemsTotal + shippingFee,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.core.orders.Insert(ctx, order); err != nil {
		s.rollback(ctx, order.ID, reserved)
		return Order{}, mapOrderRepositoryError(err)
	}

	s.core.logger(ctx, "order.created", map[string]any{
		"orderId":    order.ID,
		"customerId": customerID,
		"lines":      len(items),
		"grandTotal": order.GrandTotal,
	})
	s.core.publish(ctx, order, domain.OrderEventCreated, customerID, now)
	return order, nil
}

// snapshotLines resolves catalog data for every line before any stock is touched.
func (s *checkoutService) snapshotLines(ctx context.Context, lines []CartLine) ([]OrderLineItem, error) {
	items := make([]OrderLineItem, 0, len(lines))
	for _, line := range lines {
		product, err := s.catalog.FindProduct(ctx, line.ProductID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, &ProductNotFoundError{ProductID: line.ProductID}
			}
			return nil, fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
		}
		if !product.Active {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if currency := strings.ToUpper(strings.TrimSpace(product.Currency)); currency != "" && currency != s.pricing.Currency {
			return nil, invalidField("lines", fmt.Sprintf("product %s is priced in %s", line.ProductID, currency))
		}
		if product.Price < 0 {
			return nil, fmt.Errorf("%w: product %s has a negative price", ErrOrderUnavailable, line.ProductID)
		}
		items = append(items, OrderLineItem{
			ProductID: line.ProductID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
			ImageRef:  product.ImageRef,
		})
	}
	return items, nil
}

// reserveAll reserves each line in order and returns what it managed to reserve.
func (s *checkoutService) reserveAll(ctx context.Context, items []OrderLineItem) ([]OrderLineItem, error) {
	reserved := make([]OrderLineItem, 0, len(items))
	for _, item := range items {
		if _, err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			s.core.metrics.Reservation(reservationResult(err))
			var invErr *repositories.InventoryError
			if errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorStockNotFound {
				// listed in the catalog but never stocked
				return reserved, &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
			}
			return reserved, mapLedgerError(item.ProductID, item.Quantity, err)
		}
		s.core.metrics.Reservation("reserved")
		reserved = append(reserved, item)
	}
	return reserved, nil
}

func (s *checkoutService) rollback(ctx context.Context, orderID string, reserved []OrderLineItem) {
	if len(reserved) == 0 {
		return
	}
	failed := s.core.releaser.releaseLines(ctx, orderID, reserved, releaseReasonRollback)
	if len(failed) > 0 {
		s.core.logger(ctx, "checkout.rollback.incomplete", map[string]any{
			"orderId": orderID,
			"lines":   len(failed),
		})
	}
}

// mergeCartLines validates lines and folds duplicate products into one line,
// keeping first-seen order.
func mergeCartLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, invalidField("lines", "must contain at least one item")
	}
	merged := make([]CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for i, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, invalidField(fmt.Sprintf("lines[%d].productId", i), "is required")
		}
		if line.Quantity < 1 {
			return nil, invalidField(fmt.Sprintf("lines[%d].quantity", i), "must be at least 1")
		}
		if line.Quantity > maxLineQuantity {
			return nil, invalidField(fmt.Sprintf("lines[%d].quantity", i), fmt.Sprintf("must be at most %d", maxLineQuantity))
		}
		if pos, ok := index[productID]; ok {
			if merged[pos].Quantity+line.Quantity > maxLineQuantity {
				return nil, invalidField(fmt.Sprintf("lines[%d].quantity", i), fmt.Sprintf("total for %s must be at most %d", productID, maxLineQuantity))
			}
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, CartLine{ProductID: productID, Quantity: line.Quantity})
	}
	return merged, nil
}

func normaliseShippingAddress(addr ShippingAddress) (ShippingAddress, error) {
	out := ShippingAddress{
		FullName:   strings.TrimSpace(addr.FullName),
		Phone:      strings.TrimSpace(addr.Phone),
		Email:      strings.TrimSpace(addr.Email),
		Street:     strings.TrimSpace(addr.Street),
		City:       strings.TrimSpace(addr.City),
		Province:   strings.TrimSpace(addr.Province),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
	}
	required := []struct {
		field string
		value string
	}{
		{"shippingAddress.fullName", out.FullName},
		{"shippingAddress.phone", out.Phone},
		{"shippingAddress.email", out.Email},
		{"shippingAddress.street", out.Street},
		{"shippingAddress.city", out.City},
		{"shippingAddress.country", out.Country},
	}
	for _, r := range required {
		if r.value == "" {
			return ShippingAddress{}, invalidField(r.field, "is required")
		}
	}
	if _, err := mail.ParseAddress(out.Email); err != nil {
		return ShippingAddress{}, invalidField("shippingAddress.email", "is not a valid address")
	}
	region, err := language.ParseRegion(out.Country)
	if err != nil || !region.IsCountry() {
		return ShippingAddress{}, invalidField("shippingAddress.country", "must be an ISO 3166 country code")
	}
	out.Country = region.String()
	return out, nil
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return checkoutOutcomeCreated
	case errors.Is(err, ErrInsufficientStock):
		return checkoutOutcomeInsufficient
	case errors.Is(err, ErrOrderInvalidInput), errors.Is(err, ErrProductNotFound):
		return checkoutOutcomeInvalid
	default:
		return checkoutOutcomeError
	}
}

func reservationResult(err error) string {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return "insufficient"
		case repositories.InventoryErrorStockNotFound:
			return "not_found"
		}
	}
	return "error"
}
