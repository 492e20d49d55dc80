package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fruitapp-be/internal/address"
	"fruitapp-be/internal/auth"
	"fruitapp-be/internal/cart"
	"fruitapp-be/internal/checkout"
	"fruitapp-be/internal/config"
	"fruitapp-be/internal/db"
	"fruitapp-be/internal/logger"
	"fruitapp-be/internal/messaging/kafka"
	"fruitapp-be/internal/metrics"
	"fruitapp-be/internal/middleware"
	"fruitapp-be/internal/order"
	"fruitapp-be/internal/outbox"
	"fruitapp-be/internal/product"
	"fruitapp-be/internal/stock"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	healthTimeout   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Seams for tests.
var (
	initDBFunc = db.NewDatabase

	newPublisherFunc = func(brokers []string, topic string) (outbox.Publisher, func() error, error) {
		producer, err := kafka.NewProducer(brokers)
		if err != nil {
			return nil, nil, err
		}
		return kafka.NewOutboxPublisher(producer, topic), producer.Close, nil
	}

	startServerFunc = serve
)

// app is the fully wired checkout core. This binary only serves the ops
// endpoints and relays the outbox, so of these fields only Outbox and Metrics
// are read here; building the rest at startup checks the wiring and fails
// fast on bad config such as a missing JWT secret.
type app struct {
	Auth     auth.Authenticator
	Carts    cart.Manager
	Checkout checkout.Coordinator
	Orders   order.StateMachine
	Outbox   outbox.Repository
	Metrics  *metrics.Metrics
}

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	sqlDB, err := initDBFunc(cfg)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	a, err := newApp(cfg, sqlDB)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(middleware.DefaultLimit, middleware.DefaultBurst)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		limiter.Run(ctx)
	}()

	if len(cfg.KafkaBrokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, outbox relay disabled")
	} else {
		publisher, closePublisher, err := newPublisherFunc(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("init outbox publisher: %w", err)
		}
		defer func() {
			if err := closePublisher(); err != nil {
				log.Warn("failed to close outbox publisher", zap.Error(err))
			}
		}()

		worker := outbox.NewWorker(a.Outbox, publisher,
			outbox.WithLogger(log),
			outbox.WithMetrics(a.Metrics),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	addr := ":" + cfg.MetricsPort
	log.Info("ops server listening", zap.String("addr", addr))
	err = startServerFunc(ctx, addr, newServer(sqlDB, limiter))

	stop()
	wg.Wait()
	return err
}

func newApp(cfg *config.Config, sqlDB *sql.DB) (*app, error) {
	authenticator, err := auth.NewJWTAuthenticator(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	tx := db.NewTxManager(sqlDB)
	ledger := stock.NewLedger(sqlDB)
	events := outbox.NewRepository(sqlDB)
	orderRepo := order.NewRepository(sqlDB)
	carts := cart.NewManager(cart.NewRepository(sqlDB), product.NewRepository(sqlDB), tx)

	return &app{
		Auth:  authenticator,
		Carts: carts,
		Checkout: checkout.NewCoordinator(
			carts, ledger, address.NewRepository(sqlDB), orderRepo, events, tx, m,
		),
		Orders:  order.NewStateMachine(orderRepo, ledger, events, tx, m),
		Outbox:  events,
		Metrics: m,
	}, nil
}

// newServer builds the ops router: Prometheus metrics and a database health check.
func newServer(sqlDB *sql.DB, limiter *middleware.RateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := sqlDB.PingContext(ctx); err != nil {
			logger.FromCtx(r.Context()).Warn("health check failed", zap.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return logger.RequestIDMiddleware(logger.LoggingMiddleware(limiter.Handler(mux)))
}

// serve runs an HTTP server until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
