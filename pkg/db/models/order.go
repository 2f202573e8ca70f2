package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/philiathrifts/thriftbot/pkg/enums"
)

// Order groups reserved items for a user. Contents live entirely in
// order_items; the order row carries only totals and status.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID        string            `gorm:"column:user_id;size:255;not null;index"`
	Status        enums.OrderStatus `gorm:"column:status;size:20;not null;default:PENDING"`
	TikTokEventID *string           `gorm:"column:tiktok_event_id;size:255;index"`
	TotalAmount   decimal.Decimal   `gorm:"column:total_amount;type:numeric(10,2);not null"`
	Items         []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}
