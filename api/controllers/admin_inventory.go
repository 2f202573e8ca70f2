package controllers

import (
	"context"
	"net/http"

	"github.com/philiathrifts/thriftbot/api/responses"
	"github.com/philiathrifts/thriftbot/pkg/logger"
)

type inventoryCounter interface {
	AvailableCount(ctx context.Context) (int64, error)
}

// AdminInventoryStats reports how many pieces are still claimable.
func AdminInventoryStats(counter inventoryCounter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		count, err := counter.AvailableCount(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"available": count,
		})
	}
}
