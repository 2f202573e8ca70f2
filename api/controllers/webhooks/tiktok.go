// Package webhooks holds the inbound platform-webhook HTTP surface.
package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/philiathrifts/thriftbot/api/responses"
	tiktokwebhook "github.com/philiathrifts/thriftbot/internal/webhooks/tiktok"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
	"github.com/philiathrifts/thriftbot/pkg/logger"
	"github.com/philiathrifts/thriftbot/pkg/metrics"
	"github.com/philiathrifts/thriftbot/pkg/security"
)

const (
	platformLabel    = "tiktok"
	signatureHeader  = "X-TikTok-Signature"
	maxWebhookBody   = 1 << 20
	handshakeModeKey = "hub.mode"
	challengeKey     = "hub.challenge"
	subscribeMode    = "subscribe"
)

type eventDispatcher interface {
	DispatchAsync(ctx context.Context, event *tiktokwebhook.InboundEvent, onFailure func(error)) error
}

type dedupeGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// TikTokParams wires the webhook receiver. Metrics is optional; everything
// else is required for the POST path to be considered configured.
type TikTokParams struct {
	Secret     string
	SkipVerify bool
	Guard      dedupeGuard
	Dispatcher eventDispatcher
	Metrics    *metrics.WebhookMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

// TikTokHandshake answers the platform's subscription verification probe by
// echoing the challenge.
func TikTokHandshake(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		mode := query.Get(handshakeModeKey)
		challenge := query.Get(challengeKey)
		if mode != subscribeMode || challenge == "" {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "invalid handshake request"))
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
	}
}

// TikTokWebhook receives event deliveries. The contract with the platform is
// to answer 200 quickly for anything authentic: verification failures get
// 401/400, but duplicates and even dispatch failures still return 200 so the
// platform does not hammer retries at an endpoint that cannot do better.
func TikTokWebhook(params TikTokParams) http.HandlerFunc {
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logg := params.Logger

		if params.Guard == nil || params.Dispatcher == nil {
			params.Metrics.IncRejected(platformLabel, "unconfigured")
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "webhook pipeline not configured"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			params.Metrics.IncRejected(platformLabel, "unreadable_body")
			responses.WriteError(ctx, logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "failed to read request body"))
			return
		}

		if !params.SkipVerify {
			signature := r.Header.Get(signatureHeader)
			if !security.VerifySignature(params.Secret, signature, body) {
				params.Metrics.IncRejected(platformLabel, "bad_signature")
				responses.WriteError(ctx, logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
				return
			}
		}
		params.Metrics.IncReceived(platformLabel)

		event, err := tiktokwebhook.ParseEvent(body, now())
		if err != nil {
			params.Metrics.IncRejected(platformLabel, "bad_payload")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithEventID(ctx, event.EventID)
		}

		// the guard fails open: an error here means "not a duplicate"
		duplicate, err := params.Guard.CheckAndMark(ctx, event.EventID)
		if err != nil && logg != nil {
			logg.Error(ctx, "idempotency check failed, continuing", err)
		}
		if duplicate {
			params.Metrics.IncDuplicate()
			if logg != nil {
				logg.Info(ctx, "duplicate delivery acknowledged")
			}
			responses.WriteSuccess(w, map[string]string{"status": "duplicate", "event_id": event.EventID})
			return
		}

		// onFailure runs after the response is written, so it needs a
		// context that outlives the request.
		dropCtx := context.WithoutCancel(ctx)
		onFailure := func(dispatchErr error) {
			params.Metrics.IncDispatchDropped()
			if logg != nil {
				logg.Error(dropCtx, "failed to dispatch event, delivery acknowledged anyway", dispatchErr)
			}
			if relErr := params.Guard.Release(dropCtx, event.EventID); relErr != nil && logg != nil {
				logg.Warn(dropCtx, "failed to release idempotency marker: "+relErr.Error())
			}
		}

		if err := params.Dispatcher.DispatchAsync(ctx, event, onFailure); err != nil {
			onFailure(err)
			responses.WriteSuccess(w, map[string]string{"status": "accepted", "event_id": event.EventID})
			return
		}

		params.Metrics.IncDispatched()
		responses.WriteSuccess(w, map[string]string{"status": "accepted", "event_id": event.EventID})
	}
}
