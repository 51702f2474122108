package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/canteen/internal/health"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
	"github.com/vladislavdragonenkov/canteen/internal/storage/postgres"
)

// runtimeDependencies — адаптеры хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	catalog        domain.MenuCatalog
	orders         domain.OrderRepository
	counter        domain.TokenCounter
	timeline       domain.TimelineRepository
	outbox         domain.OutboxRepository
	idempotency    domain.IdempotencyRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.WithField("storage_driver", cfg.StorageDriver).
			Warn("in-memory storage selected: queue token counter is process-local, not for production; set CANTEEN_STORAGE_DRIVER=postgres")
		return &runtimeDependencies{
			catalog:     memory.NewMenuCatalog(),
			orders:      memory.NewOrderRepository(),
			counter:     memory.NewTokenCounter(),
			timeline:    memory.NewTimelineRepository(),
			outbox:      memory.NewOutboxRepository(),
			idempotency: memory.NewIdempotencyRepository(),
			storageChecker: healthcheck.NewFuncChecker("storage", func(context.Context) error {
				return nil
			}),
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", cfg.StorageDriver)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("auto-migrate postgres: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err != nil {
				logger.WithError(err).Warn("failed to read migration status")
			} else {
				logger.WithFields(log.Fields{
					"schema_version": state.Version,
					"applied":        state.Applied,
				}).Info("postgres schema is up to date")
			}
		}
		return &runtimeDependencies{
			catalog:        postgres.NewMenuCatalog(store),
			orders:         postgres.NewOrderRepository(store),
			counter:        postgres.NewTokenCounter(store),
			timeline:       postgres.NewTimelineRepository(store),
			outbox:         postgres.NewOutboxRepository(store),
			idempotency:    postgres.NewIdempotencyRepository(store),
			storageChecker: healthcheck.NewFuncChecker("storage", store.Ping),
			closeFn:        store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
