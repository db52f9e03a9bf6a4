package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"marketplace/internal/config"
	"marketplace/internal/consumer"
	"marketplace/internal/deadletter"
	amqp_handler "marketplace/internal/handler/amqp"
	"marketplace/internal/infrastructure/database"
	"marketplace/internal/infrastructure/kafka"
	"marketplace/internal/infrastructure/rabbitmq"
	"marketplace/internal/infrastructure/redis"
	"marketplace/internal/observability"
	postgres_notification_repo "marketplace/internal/repository/notification_repo/postgres"
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
	appLogger.Info("Notification worker starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, appLogger)
	stop()
	if err != nil {
		appLogger.Error("Notification worker stopped with error", zap.Error(err))
		_ = appLogger.Sync()
		os.Exit(1)
	}
	appLogger.Info("Notification worker stopped.")
	_ = appLogger.Sync()
}

// run owns every resource the worker opens and releases them before returning.
func run(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) error {
	shutdownTracing, err := observability.SetupTracing(ctx, "notification-worker", cfg.OtelEndpoint)
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

	db, err := database.Connect(ctx, cfg.DB(), 10, 5*time.Second, appLogger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(cfg.DB(), appLogger); err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	var producer kafka.Producer
	if cfg.KafkaBrokerURL != "" {
		producer = kafka.NewProducer(cfg.GetKafkaBrokers(), appLogger)
		defer producer.Close()
	} else {
		appLogger.Warn("KAFKA_BROKER_URL is empty, dead-lettered messages are only logged")
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

	dedup := redis.NewDedupStore(redisClient)
	sink := postgres_notification_repo.NewNotificationRepository(db, appLogger)
	pusher := redis.NewRealtimePusher(redisClient)

	orderConsumer := amqp_handler.NewOrderConsumer(sink, pusher, cfg.HighValueThreshold, appLogger)
	inventoryConsumer := amqp_handler.NewInventoryConsumer(sink, pusher, appLogger)

	runtime := func(name string, h consumer.Handler) *consumer.Runtime {
		return consumer.NewRuntime(consumer.Config{
			Name:       name,
			MaxRetries: cfg.MaxRetries,
			DedupTTL:   cfg.DedupTTL,
		}, dedup, h, appLogger)
	}
	processors := map[string]rabbitmq.Processor{
		rabbitmq.QueueVendorOrders:    runtime("vendor-orders", orderConsumer),
		rabbitmq.QueueCustomerOrders:  runtime("customer-orders", orderConsumer),
		rabbitmq.QueueAdmin:           runtime("admin", orderConsumer),
		rabbitmq.QueueVendorInventory: runtime("vendor-inventory", inventoryConsumer),
		rabbitmq.QueueDeadLetter:      deadletter.NewForwarder(producer, cfg.KafkaDeadLetterTopic, cfg.DeadLetterRequeueDelay, appLogger),
	}

	g, gctx := errgroup.WithContext(ctx)
	for queue, p := range processors {
		queue, p := queue, p
		g.Go(func() error {
			appLogger.Info("Consumer started", zap.String("queue", queue))
			if err := broker.Consume(gctx, queue, cfg.AMQP.Prefetch, p); err != nil {
				return fmt.Errorf("consumer for %s stopped: %w", queue, err)
			}
			return nil
		})
	}
	return g.Wait()
}
