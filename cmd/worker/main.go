package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	openai "github.com/sashabaranov/go-openai"

	"github.com/philiathrifts/thriftbot/internal/conversation"
	"github.com/philiathrifts/thriftbot/internal/inventory"
	"github.com/philiathrifts/thriftbot/internal/users"
	tiktokwebhook "github.com/philiathrifts/thriftbot/internal/webhooks/tiktok"
	"github.com/philiathrifts/thriftbot/pkg/config"
	"github.com/philiathrifts/thriftbot/pkg/db"
	"github.com/philiathrifts/thriftbot/pkg/logger"
	"github.com/philiathrifts/thriftbot/pkg/metrics"
	"github.com/philiathrifts/thriftbot/pkg/pubsub"
	"github.com/philiathrifts/thriftbot/pkg/redis"
	"github.com/philiathrifts/thriftbot/pkg/tiktok"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}

	if cfg.OpenAI.APIKey == "" {
		logg.Error(ctx, "TB_OPENAI_API_KEY is required for the worker", nil)
		os.Exit(1)
	}
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey)

	tiktokClient, err := tiktok.NewClient(
		cfg.TikTok.AccessToken,
		cfg.TikTok.BusinessID,
		tiktok.WithBaseURL(cfg.TikTok.MessagingBaseURL),
		tiktok.WithHTTPClient(&http.Client{Timeout: cfg.TikTok.RequestTimeout}),
		tiktok.WithLogger(logg),
	)
	if err != nil {
		logg.Error(ctx, "failed to create messaging client", err)
		os.Exit(1)
	}

	agent, err := conversation.NewAgent(openaiClient, inventory.NewRepository(dbClient.DB()), cfg.OpenAI.Model, logg)
	if err != nil {
		logg.Error(ctx, "failed to create conversation agent", err)
		os.Exit(1)
	}

	guard, err := tiktokwebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.IdempotencyTTL, logg)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency guard", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	workerMetrics := metrics.NewWorkerMetrics(registry)
	go serveMetrics(ctx, logg, registry)

	consumer, err := conversation.NewConsumer(conversation.ConsumerParams{
		Subscription: pubsubClient.EventsSubscription(),
		Users:        users.NewRepository(dbClient.DB()),
		Agent:        agent,
		Sender:       tiktokClient,
		Audit:        conversation.NewAuditRepository(dbClient.DB()),
		Marker:       guard,
		Metrics:      workerMetrics,
		Logger:       logg,
		Config: conversation.Config{
			Window:       cfg.TikTok.Window(),
			MaxAttempts:  cfg.Worker.MaxAttempts,
			SoftTimeout:  cfg.Worker.SoftTimeout,
			HardTimeout:  cfg.Worker.HardTimeout,
			RetryBackoff: cfg.Worker.RetryBackoff,
			SendFallback: cfg.Reply.SendFallback,
			FallbackText: cfg.Reply.FallbackText,
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to create consumer", err)
		os.Exit(1)
	}

	svc, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: consumer,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	runErr := svc.Run(ctx)
	if err := svc.Close(); err != nil {
		logg.Error(context.Background(), "error closing worker clients", err)
	}
	if runErr != nil {
		logg.Error(context.Background(), "worker stopped unexpectedly", runErr)
		os.Exit(1)
	}
	logg.Info(context.Background(), "worker shut down cleanly")
}

// serveMetrics exposes the worker's prometheus registry on its own port so
// the scraper does not depend on the api process.
func serveMetrics(ctx context.Context, logg *logger.Logger, registry *prometheus.Registry) {
	port := os.Getenv("METRICS_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Warn(logg.WithField(ctx, "port", port), "metrics server stopped")
	}
}
