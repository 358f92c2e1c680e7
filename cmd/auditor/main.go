package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-round-orders/internal/audit"
	"github.com/ariefcatur/go-round-orders/internal/config"
	kafkax "github.com/ariefcatur/go-round-orders/internal/kafka"
	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/redisx"
	"github.com/ariefcatur/go-round-orders/internal/storage"
	"github.com/ariefcatur/go-round-orders/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.ServiceName+"-auditor")
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("auditor exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := &audit.Service{
		Store:    store,
		Logger:   logger,
		Consumer: cfg.AuditGroup,
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			logger.Warn("redis unavailable, relying on event_id uniqueness", zap.Error(err))
		} else {
			svc.Dedup = redisx.NewDedup(rdb)
		}
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroup, orders.AuditTopics, cfg.AuditWorkers, logger.Named("consumer"))
	logger.Info("audit consumer started",
		zap.String("group", cfg.AuditGroup),
		zap.Strings("topics", orders.AuditTopics),
		zap.Int("workers", cfg.AuditWorkers))
	if err := cons.Start(ctx, svc.HandleMessage); err != nil {
		return err
	}
	logger.Info("audit consumer stopped")
	return nil
}
