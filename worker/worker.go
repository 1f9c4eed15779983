package main

import (
	"context"
	"encoding/hex"
	"flag"
	"time"

	"restaurant-order-system/activities"
	"restaurant-order-system/availability"
	"restaurant-order-system/codec"
	"restaurant-order-system/config"
	"restaurant-order-system/logging"
	"restaurant-order-system/notify"
	"restaurant-order-system/pricing"
	"restaurant-order-system/storage"
	"restaurant-order-system/workflows"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

// WorkerVersion is reported at startup; BUILD_ID drives worker versioning.
const WorkerVersion = "2.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	engine, err := pricingEngine(cfg)
	if err != nil {
		logger.Fatal("Invalid pricing configuration", zap.Error(err))
	}

	keyBytes, generated, err := codec.LoadKey(cfg.Temporal.EncryptionKey)
	if err != nil {
		logger.Fatal("Invalid encryption key", zap.Error(err))
	}
	if generated {
		logger.Warn("Generated encryption key; set ENCRYPTION_KEY to share it with the starter",
			zap.String("key", hex.EncodeToString(keyBytes)))
	}

	dataConverter, err := codec.NewEncryptionDataConverter(keyBytes)
	if err != nil {
		logger.Fatal("Failed to create encryption data converter", zap.Error(err))
	}

	c, err := client.Dial(client.Options{
		HostPort:      cfg.Temporal.Address,
		Namespace:     cfg.Temporal.Namespace,
		DataConverter: dataConverter,
		Logger:        logging.NewTemporalAdapter(logger),
	})
	if err != nil {
		logger.Fatal("Unable to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Unable to open order store", zap.Error(err))
	}
	defer closeRepo()

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		logger.Fatal("Unable to open status publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Worker versioning requires server-side task queue configuration.
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		BuildID:                                cfg.Temporal.BuildID,
		MaxConcurrentActivityExecutionSize:     100,
		MaxConcurrentWorkflowTaskExecutionSize: 50,
	})

	w.RegisterWorkflowWithOptions(workflows.OrderWorkflow, workflow.RegisterOptions{Name: workflows.OrderWorkflowName})
	w.RegisterWorkflowWithOptions(workflows.PaymentWorkflow, workflow.RegisterOptions{Name: workflows.PaymentWorkflowName})

	w.RegisterActivity(activities.NewActivities(activities.Dependencies{
		HoursBaseURL: cfg.Hours.BaseURL,
		HoursTimeout: cfg.Hours.Timeout,
		Pricing:      engine,
		Evaluator: &availability.Evaluator{
			ClosedLabel: cfg.Hours.ClosedLabel,
			Separator:   availability.DefaultEvaluator.Separator,
		},
		Repo:      repo,
		Publisher: publisher,
	}))
	w.RegisterActivity(activities.NewPaymentActivities())

	logger.Info("Starting Temporal worker",
		zap.String("version", WorkerVersion),
		zap.String("build_id", cfg.Temporal.BuildID),
		zap.String("temporal_address", cfg.Temporal.Address),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("hours_url", cfg.Hours.BaseURL),
		zap.String("tax_rate", engine.TaxRate.String()),
		zap.String("delivery_fee", engine.DeliveryFee.StringFixed(2)),
	)

	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("Unable to start worker", zap.Error(err))
	}
}

func pricingEngine(cfg config.Config) (*pricing.Engine, error) {
	taxRate, err := cfg.TaxRate()
	if err != nil {
		return nil, err
	}
	deliveryFee, err := cfg.DeliveryFee()
	if err != nil {
		return nil, err
	}
	return &pricing.Engine{
		TaxRate:       taxRate,
		DeliveryFee:   deliveryFee,
		PromotionRate: pricing.DefaultPromotionRate,
		PromotionCode: pricing.WelcomeCode,
	}, nil
}

func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.OrderRepository, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, orders are kept in memory")
		return storage.NewMemoryStore(), func() {}, nil
	}
	store, err := storage.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to Postgres")
	return store, store.Close, nil
}

func openPublisher(cfg config.Config, logger *zap.Logger) (notify.Publisher, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Warn("RABBITMQ_URL not set, status changes are only logged")
		return notify.LogPublisher{Logger: logger.Named("notify")}, nil
	}
	pub, err := notify.DialRabbit(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to RabbitMQ", zap.String("exchange", cfg.RabbitMQ.Exchange))
	return pub, nil
}
