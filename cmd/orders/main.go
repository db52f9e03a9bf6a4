package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"marketplace/internal/app/events"
	"marketplace/internal/app/orders"
	"marketplace/internal/clients"
	"marketplace/internal/config"
	"marketplace/internal/infrastructure/database"
	"marketplace/internal/infrastructure/rabbitmq"
	"marketplace/internal/observability"
	postgres_order_repo "marketplace/internal/repository/order_repo/postgres"
	"marketplace/internal/router"
)

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	if err := zapConfig.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zapConfig.Build()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Order Service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, appLogger)
	stop()
	if err != nil {
		appLogger.Error("Order Service stopped with error", zap.Error(err))
		_ = appLogger.Sync()
		os.Exit(1)
	}
	appLogger.Info("Order Service stopped.")
	_ = appLogger.Sync()
}

// run serves until ctx is cancelled or the listener fails, then drains and releases its resources.
func run(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) error {
	shutdownTracing, err := observability.SetupTracing(ctx, "order-service", cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			appLogger.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	appLogger.Info("Waiting for database to be available...")
	db, err := database.Connect(ctx, cfg.DB(), 10, 5*time.Second, appLogger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	if err := database.Migrate(cfg.DB(), appLogger); err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}

	broker := rabbitmq.NewConnection(rabbitmq.Config{
		URL:                cfg.AMQP.URL,
		Exchange:           cfg.AMQP.Exchange,
		DeadLetterExchange: cfg.AMQP.DeadLetter,
		ReconnectAttempts:  cfg.AMQP.ReconnectAttempts,
		ReconnectDelay:     cfg.AMQP.ReconnectDelay,
		MessageTTL:         cfg.AMQP.MessageTTL,
	}, appLogger)
	if err := broker.Connect(ctx); err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer broker.Close()

	userClient := clients.NewUserClient(cfg.Services.UserURL, cfg.Services.Timeout, appLogger)
	orderService := orders.NewOrderService(orders.Dependencies{
		Orders:    postgres_order_repo.NewOrderRepository(db, appLogger),
		Carts:     clients.NewCartClient(cfg.Services.CartURL, cfg.Services.Timeout, appLogger),
		Stock:     clients.NewStockClient(cfg.Services.StockURL, cfg.Services.Timeout, appLogger),
		Addresses: userClient,
		Payments:  clients.NewPaymentClient(cfg.Services.PaymentURL, cfg.Services.Timeout, appLogger),
		Ownership: userClient,
		Publisher: events.NewPublisher(broker, cfg.HighValueThreshold, appLogger),
	}, orders.Pricing{
		FlatShippingCost:      cfg.FlatShippingCost,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		TaxRate:               cfg.TaxRate,
	}, cfg.Currency, appLogger)

	handler := router.NewRouter(router.Config{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, orderService, appLogger)

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	appLogger.Info("Order Service started", zap.String("address", serverAddr))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	appLogger.Info("Shutting down Order Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
