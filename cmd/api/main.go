package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-round-orders/internal/audit"
	"github.com/ariefcatur/go-round-orders/internal/auth"
	"github.com/ariefcatur/go-round-orders/internal/config"
	"github.com/ariefcatur/go-round-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-round-orders/internal/kafka"
	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/payments"
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
	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// DB
	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ordersHandler := &httpx.OrdersHandler{
		Service: orders.NewService(store, logger.Named("orders"), orders.WithMaxAttempts(cfg.TxMaxAttempts)),
		Logger:  logger,
	}
	paymentsHandler := &httpx.PaymentsHandler{
		Ledger:  payments.NewLedger(store, logger.Named("payments"), nil),
		History: &audit.Service{Store: store, Logger: logger.Named("audit")},
		Logger:  logger,
	}

	// Redis (optional): submit idempotency keys
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			logger.Warn("redis unavailable, idempotency keys disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			ordersHandler.Idem = redisx.NewIdempotency(rdb)
		}
	}

	// Kafka producer (optional): domain events for the auditor
	var producer *kafkax.Producer
	prodCtx, cancelProducer := context.WithCancel(context.Background())
	defer cancelProducer()
	if cfg.EventsEnabled && len(cfg.KafkaBrokers) > 0 {
		producer = kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger.Named("producer"))
		producer.Start(prodCtx)
		events := kafkax.NewEvents(producer, cfg.ServiceName)
		ordersHandler.Events = events
		paymentsHandler.Events = events
	}

	router := httpx.NewRouter(httpx.RouterConfig{
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.CORSOrigins,
		Ready:          store.Ping,
	})
	router.Group(func(r chi.Router) {
		r.Use(httpx.Authenticate(auth.NewVerifier(cfg.JWTSecret)))
		ordersHandler.Register(r)
		paymentsHandler.Register(r)
	})

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("driver", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	// flush queued events after the last request finished
	if producer != nil {
		producer.Close()
		cancelProducer()
		producer.WaitClosed()
	}
	return err
}
