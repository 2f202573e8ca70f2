package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/philiathrifts/thriftbot/pkg/db/models"
	"github.com/philiathrifts/thriftbot/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.InventoryItem{}, &models.Order{}, &models.OrderItem{}))
	return db
}

func seedItem(t *testing.T, db *gorm.DB, price decimal.Decimal) *models.InventoryItem {
	t.Helper()
	item := models.InventoryItem{
		ID:     uuid.New(),
		SKU:    "SKU-" + uuid.NewString()[:8],
		Name:   "Vintage Jacket",
		Price:  price,
		Status: enums.InventoryStatusReserved,
	}
	require.NoError(t, db.Create(&item).Error)
	return &item
}

func TestCreateFromReservationSnapshotsPrice(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	price := decimal.NewFromFloat(48.50)
	item := seedItem(t, db, price)
	eventID := "evt-1"

	order, err := repo.CreateFromReservation(ctx, "user-1", item, &eventID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(price), "expected total %s, got %s", price, order.TotalAmount)

	// price edits after reservation must not leak into the order
	err = db.Model(&models.InventoryItem{}).
		Where("id = ?", item.ID).
		Update("price", decimal.NewFromInt(99)).Error
	require.NoError(t, err)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)

	line := stored.Items[0]
	assert.True(t, line.PriceAtPurchase.Equal(price), "expected snapshotted price %s, got %s", price, line.PriceAtPurchase)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, item.ID, line.InventoryID)
	require.NotNil(t, stored.TikTokEventID)
	assert.Equal(t, "evt-1", *stored.TikTokEventID)
}

func TestCreateFromReservationValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	_, err := repo.CreateFromReservation(ctx, "", seedItem(t, db, decimal.NewFromInt(10)), nil)
	assert.Error(t, err, "expected error for missing user")

	_, err = repo.CreateFromReservation(ctx, "user-1", nil, nil)
	assert.Error(t, err, "expected error for nil item")
}

func TestListByUser(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		item := seedItem(t, db, decimal.NewFromInt(20))
		_, err := repo.CreateFromReservation(ctx, "user-1", item, nil)
		require.NoError(t, err)
	}
	other := seedItem(t, db, decimal.NewFromInt(15))
	_, err := repo.CreateFromReservation(ctx, "user-2", other, nil)
	require.NoError(t, err)

	list, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
