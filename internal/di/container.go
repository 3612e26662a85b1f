package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/hanko-field/orderengine/internal/platform/config"
	"github.com/hanko-field/orderengine/internal/repositories"
	"github.com/hanko-field/orderengine/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Checkout  services.CheckoutService
	Orders    services.OrderService
	Payments  services.PaymentService
	Inventory services.InventoryService
}

// Dependencies are the cross-cutting collaborators shared by every service.
type Dependencies struct {
	Events  services.OrderEventPublisher
	Metrics services.Recorder
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies over reg.
func NewContainer(cfg config.Config, reg repositories.Registry, deps Dependencies) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, deps Dependencies) (Services, error) {
	var svc Services

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:  reg.Orders(),
		Catalog: reg.Catalog(),
		Ledger:  reg.Inventory(),
		Events:  deps.Events,
		Metrics: deps.Metrics,
		Pricing: services.PricingConfig{
			Currency:              cfg.Checkout.Currency,
			FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
			FlatShippingFee:       cfg.Checkout.FlatShippingFee,
		},
		ReleaseAttempts: cfg.Checkout.ReleaseAttempts,
		ReleaseBackoff:  cfg.Checkout.ReleaseBackoff,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          reg.Orders(),
		Ledger:          reg.Inventory(),
		Events:          deps.Events,
		Metrics:         deps.Metrics,
		ReleaseAttempts: cfg.Checkout.ReleaseAttempts,
		ReleaseBackoff:  cfg.Checkout.ReleaseBackoff,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:  reg.Orders(),
		Events:  deps.Events,
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Ledger:  reg.Inventory(),
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	return svc, nil
}
