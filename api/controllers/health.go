package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/philiathrifts/thriftbot/api/responses"
	"github.com/philiathrifts/thriftbot/pkg/config"
	"github.com/philiathrifts/thriftbot/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger is the readiness surface each backing service exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Thriftbot-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every required backing service. A nil pinger means the
// dependency was never configured, which is just as not-ready as a failing one.
func HealthReady(cfg *config.Config, logg *logger.Logger, db, redis, queue Pinger) http.HandlerFunc {
	checks := []struct {
		name   string
		pinger Pinger
	}{
		{"database", db},
		{"redis", redis},
		{"pubsub", queue},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Thriftbot-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		statuses := map[string]string{}
		ready := true
		for _, check := range checks {
			if check.pinger == nil {
				statuses[check.name] = "unconfigured"
				ready = false
				continue
			}
			if err := check.pinger.Ping(ctx); err != nil {
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", check.name), "readiness ping failed", err)
				}
				statuses[check.name] = "down"
				ready = false
				continue
			}
			statuses[check.name] = "up"
		}

		status := http.StatusOK
		overall := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			overall = "not_ready"
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"status":   overall,
			"services": statuses,
		})
	}
}
