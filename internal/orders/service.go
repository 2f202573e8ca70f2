package orders

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/philiathrifts/thriftbot/internal/inventory"
	"github.com/philiathrifts/thriftbot/pkg/db/models"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service places orders against one-of-a-kind inventory. Reservation and
// order creation share one short transaction; the row lock taken by Reserve
// is released at commit, so nothing slow may run inside the closure.
type Service struct {
	tx        txRunner
	inventory *inventory.Repository
	orders    *Repository
}

// NewService wires the order-placement transaction boundary.
func NewService(tx txRunner, inventoryRepo *inventory.Repository, ordersRepo *Repository) (*Service, error) {
	if tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if inventoryRepo == nil {
		return nil, errors.New("inventory repository is required")
	}
	if ordersRepo == nil {
		return nil, errors.New("orders repository is required")
	}
	return &Service{
		tx:        tx,
		inventory: inventoryRepo,
		orders:    ordersRepo,
	}, nil
}

// PlaceResult reports the outcome of an order placement.
type PlaceResult struct {
	Reserved bool
	Order    *models.Order
	Item     *models.InventoryItem
}

// Place reserves the item and opens a PENDING order for it. Reserved=false
// with a nil error means someone else claimed the piece first (or it never
// existed); the caller tells the customer rather than treating it as a fault.
func (s *Service) Place(ctx context.Context, userID, sku string, eventID *string) (*PlaceResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(sku) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}

	var result PlaceResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reserved, item, err := s.inventory.WithTx(tx).Reserve(ctx, sku)
		if err != nil {
			return err
		}
		if !reserved {
			return nil
		}

		order, err := s.orders.WithTx(tx).CreateFromReservation(ctx, userID, item, eventID)
		if err != nil {
			return err
		}

		result = PlaceResult{Reserved: true, Order: order, Item: item}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
