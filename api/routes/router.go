package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/philiathrifts/thriftbot/api/controllers"
	webhookcontrollers "github.com/philiathrifts/thriftbot/api/controllers/webhooks"
	"github.com/philiathrifts/thriftbot/api/middleware"
	"github.com/philiathrifts/thriftbot/internal/inventory"
	"github.com/philiathrifts/thriftbot/internal/orders"
	tiktokwebhook "github.com/philiathrifts/thriftbot/internal/webhooks/tiktok"
	"github.com/philiathrifts/thriftbot/pkg/config"
	"github.com/philiathrifts/thriftbot/pkg/logger"
	"github.com/philiathrifts/thriftbot/pkg/metrics"
)

// RouterParams carries everything the HTTP surface needs. Nil pingers show up
// as unconfigured in the readiness payload; a nil guard or dispatcher makes
// the webhook endpoint answer 503.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DBPinger       controllers.Pinger
	RedisPinger    controllers.Pinger
	QueuePinger    controllers.Pinger
	WebhookGuard   *tiktokwebhook.IdempotencyGuard
	Dispatcher     *tiktokwebhook.Dispatcher
	WebhookMetrics *metrics.WebhookMetrics
	OrderService   *orders.Service
	Inventory      *inventory.Repository
	Registry       *prometheus.Registry
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DBPinger, params.RedisPinger, params.QueuePinger))
	})

	if params.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	webhookParams := webhookcontrollers.TikTokParams{
		Secret:     cfg.TikTok.WebhookSecret,
		SkipVerify: cfg.App.IsDev(),
		Metrics:    params.WebhookMetrics,
		Logger:     logg,
	}
	if params.WebhookGuard != nil {
		webhookParams.Guard = params.WebhookGuard
	}
	if params.Dispatcher != nil {
		webhookParams.Dispatcher = params.Dispatcher
	}

	r.Route("/api/v1/webhooks/tiktok", func(r chi.Router) {
		r.Get("/", webhookcontrollers.TikTokHandshake(logg))
		r.Post("/", webhookcontrollers.TikTokWebhook(webhookParams))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		if params.OrderService != nil {
			r.Post("/reservations", controllers.AdminPlaceReservation(params.OrderService, logg))
		}
		if params.Inventory != nil {
			r.Get("/inventory/stats", controllers.AdminInventoryStats(params.Inventory, logg))
		}
		if !cfg.App.IsProd() && params.Dispatcher != nil {
			r.Post("/test-message", controllers.AdminTestMessage(params.Dispatcher, logg))
		}
	})

	return r
}
