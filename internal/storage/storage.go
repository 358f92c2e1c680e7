// Package storage opens the configured database backend.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-round-orders/internal/audit"
	"github.com/ariefcatur/go-round-orders/internal/config"
	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/payments"
	"github.com/ariefcatur/go-round-orders/internal/postgres"
	"github.com/ariefcatur/go-round-orders/internal/sqlite"
)

// Backend is everything the binaries need from a database.
type Backend interface {
	orders.Store
	payments.Store
	audit.Store
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Open connects to the backend named by cfg.StoreDriver and applies pending
// migrations.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		log.Info("store ready", zap.String("driver", cfg.StoreDriver), zap.Int32("max_conns", cfg.PostgresMax))
		return &postgres.Store{DB: pool}, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		log.Info("store ready", zap.String("driver", cfg.StoreDriver), zap.String("path", cfg.SQLitePath))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
