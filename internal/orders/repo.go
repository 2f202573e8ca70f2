package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/philiathrifts/thriftbot/pkg/db/models"
	"github.com/philiathrifts/thriftbot/pkg/enums"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
)

// Repository exposes order persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an orders repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// CreateFromReservation opens a PENDING order for a freshly reserved item,
// snapshotting the price so later inventory edits never change what the
// customer was quoted. eventID ties the order back to the webhook delivery
// that produced it.
func (r *Repository) CreateFromReservation(ctx context.Context, userID string, item *models.InventoryItem, eventID *string) (*models.Order, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory item is required")
	}

	order := models.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		TikTokEventID: eventID,
		TotalAmount:   item.Price,
		Items: []models.OrderItem{
			{
				ID:              uuid.New(),
				InventoryID:     item.ID,
				PriceAtPurchase: item.Price,
				Quantity:        1,
			},
		},
	}

	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByID loads an order with its items.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByUser returns the user's orders, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
