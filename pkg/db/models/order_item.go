package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem links an order to an inventory item. PriceAtPurchase snapshots the
// price at reservation time; the mutable inventory row is never consulted
// retroactively. Quantity stays 1 because thrift items are unique pieces.
type OrderItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	InventoryID     uuid.UUID       `gorm:"column:inventory_id;type:uuid;not null;index"`
	PriceAtPurchase decimal.Decimal `gorm:"column:price_at_purchase;type:numeric(10,2);not null"`
	Quantity        int             `gorm:"column:quantity;not null;default:1"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
