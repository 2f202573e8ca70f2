package controllers

import (
	"context"
	"net/http"

	"github.com/philiathrifts/thriftbot/api/responses"
	"github.com/philiathrifts/thriftbot/api/validators"
	"github.com/philiathrifts/thriftbot/internal/orders"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
	"github.com/philiathrifts/thriftbot/pkg/logger"
)

type orderPlacer interface {
	Place(ctx context.Context, userID, sku string, eventID *string) (*orders.PlaceResult, error)
}

// ReservationRequest claims a piece for a user by SKU.
type ReservationRequest struct {
	UserID string `json:"user_id" validate:"required,max=255"`
	SKU    string `json:"sku" validate:"required,max=100"`
}

// AdminPlaceReservation reserves an item and opens the matching order.
// Losing the race for a one-of-one piece is a conflict, not a server fault.
func AdminPlaceReservation(svc orderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req ReservationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Place(ctx, req.UserID, req.SKU, nil)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !result.Reserved {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeConflict, "item is no longer available"))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"order_id": result.Order.ID,
			"sku":      req.SKU,
			"status":   string(result.Order.Status),
		})
	}
}
