package main

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hanko-field/orderengine/internal/notify"
	"github.com/hanko-field/orderengine/internal/platform/config"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/platform/jobs"
	"github.com/hanko-field/orderengine/internal/platform/kafka"
	"github.com/hanko-field/orderengine/internal/repositories"
	firestoreRepo "github.com/hanko-field/orderengine/internal/repositories/firestore"
	memoryRepo "github.com/hanko-field/orderengine/internal/repositories/memory"
	pebbleRepo "github.com/hanko-field/orderengine/internal/repositories/pebble"
	postgresRepo "github.com/hanko-field/orderengine/internal/repositories/postgres"
)

// backends is the repositories.Registry selected by configuration. It also
// carries the idempotency store that shares the order backend.
type backends struct {
	orders  repositories.OrderRepository
	catalog repositories.CatalogRepository
	ledger  repositories.InventoryLedger
	health  repositories.HealthRepository
	store   idempotency.Store

	checks  []repositories.DependencyCheck
	closers []func(context.Context) error
}

var _ repositories.Registry = (*backends)(nil)

func (b *backends) Inventory() repositories.InventoryLedger { return b.ledger }
func (b *backends) Orders() repositories.OrderRepository    { return b.orders }
func (b *backends) Catalog() repositories.CatalogRepository { return b.catalog }
func (b *backends) Health() repositories.HealthRepository   { return b.health }

// Close releases backends in reverse order of opening.
func (b *backends) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{}

	var (
		provider *pfirestore.Provider
		pool     *pgxpool.Pool
	)
	needs := map[string]bool{cfg.Storage.Backend: true, cfg.Storage.LedgerBackend: true}

	if needs[config.StorageBackendFirestore] {
		provider = pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, fmt.Errorf("firestore: %w", err)
		}
		b.closers = append(b.closers, provider.Close)
		b.checks = append(b.checks, repositories.DependencyCheck{Name: "firestore", Check: provider.Ping})
	}
	if needs[config.StorageBackendPostgres] {
		var err error
		pool, err = postgresRepo.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func(context.Context) error { pool.Close(); return nil })
		b.checks = append(b.checks, repositories.DependencyCheck{Name: "postgres", Check: pool.Ping})
		if cfg.Postgres.Migrate {
			if err := postgresRepo.Migrate(ctx, pool); err != nil {
				_ = b.Close(ctx)
				return nil, err
			}
		}
	}

	var err error
	switch cfg.Storage.Backend {
	case config.StorageBackendFirestore:
		if b.orders, err = firestoreRepo.NewOrderRepository(provider); err == nil {
			b.catalog, err = firestoreRepo.NewCatalogRepository(provider)
		}
		if err == nil {
			client, _ := provider.Client(ctx)
			b.store, err = idempotency.NewFirestoreStore(client)
		}
	case config.StorageBackendPostgres:
		if b.orders, err = postgresRepo.NewOrderRepository(pool); err == nil {
			b.catalog, err = postgresRepo.NewCatalogRepository(pool)
		}
		if err == nil {
			b.store, err = idempotency.NewPostgresStore(ctx, pool, cfg.Postgres.Migrate)
		}
	default:
		logger.Warn("using in-memory order storage; data is lost on restart")
		b.orders = memoryRepo.NewOrderRepository()
		b.catalog = memoryRepo.NewCatalogRepository()
		b.store = idempotency.NewMemoryStore()
	}
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}

	switch cfg.Storage.LedgerBackend {
	case config.StorageBackendFirestore:
		b.ledger, err = firestoreRepo.NewInventoryLedger(provider)
	case config.StorageBackendPostgres:
		b.ledger, err = postgresRepo.NewInventoryLedger(pool)
	case config.StorageBackendPebble:
		var ledger *pebbleRepo.InventoryLedger
		if ledger, err = pebbleRepo.Open(cfg.Pebble.Dir); err == nil {
			b.ledger = ledger
			b.closers = append(b.closers, func(context.Context) error { return ledger.Close() })
			b.checks = append(b.checks, repositories.DependencyCheck{Name: "ledger", Check: ledger.Ping})
		}
	default:
		b.ledger = memoryRepo.NewInventoryLedger(nil)
	}
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}

	if b.health, err = repositories.NewDependencyHealthRepository(b.checks); err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	return b, nil
}

// eventSinks builds the notifier sinks. The log sink is always present.
func eventSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]notify.Sink, []func(context.Context) error, error) {
	sinks := []notify.Sink{notify.NewLogSink(logger.Named("events"))}
	var closers []func(context.Context) error

	if topicName := cfg.Events.PubSubTopic; topicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.Events.PubSubProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub: %w", err)
		}
		publisher, err := jobs.NewPubSubEventPublisher(client.Topic(topicName))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		sinks = append(sinks, publisher)
		closers = append(closers, func(context.Context) error {
			publisher.Stop()
			return client.Close()
		})
	}

	if len(cfg.Events.KafkaBrokers) > 0 {
		publisher, err := kafka.NewPublisher(kafka.NewWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, publisher)
		closers = append(closers, func(context.Context) error { return publisher.Close() })
	}
	return sinks, closers, nil
}
