package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/philiathrifts/thriftbot/api/responses"
	"github.com/philiathrifts/thriftbot/api/validators"
	tiktokwebhook "github.com/philiathrifts/thriftbot/internal/webhooks/tiktok"
	"github.com/philiathrifts/thriftbot/pkg/logger"
)

type eventDispatcher interface {
	Dispatch(ctx context.Context, event *tiktokwebhook.InboundEvent) error
}

// TestMessageRequest synthesizes an inbound message without going through the
// platform, for exercising the worker pipeline end to end.
type TestMessageRequest struct {
	UserID string `json:"user_id" validate:"required,max=255"`
	Text   string `json:"text" validate:"required,max=2000"`
}

// AdminTestMessage injects a synthetic event into the normal dispatch path.
// Mounted only outside prod.
func AdminTestMessage(dispatcher eventDispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req TestMessageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event := &tiktokwebhook.InboundEvent{
			EventID:    fmt.Sprintf("admin_%s", uuid.NewString()),
			EventType:  "im_message",
			SenderID:   req.UserID,
			Text:       req.Text,
			ReceivedAt: time.Now().UTC(),
		}

		if logg != nil {
			ctx = logg.WithEventID(ctx, event.EventID)
			logg.Info(ctx, "admin test message dispatched")
		}

		if err := dispatcher.Dispatch(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{
			"status":   "dispatched",
			"event_id": event.EventID,
		})
	}
}
