package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	dbtypes "github.com/philiathrifts/thriftbot/pkg/db/types"
	"github.com/philiathrifts/thriftbot/pkg/enums"
)

// InventoryItem is a unique thrift piece; quantity is always exactly one, so
// availability is a status, not a count.
type InventoryItem struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SKU          string                `gorm:"column:sku;size:100;not null;uniqueIndex"`
	Name         string                `gorm:"column:name;size:255;not null;index"`
	Description  *string               `gorm:"column:description"`
	Price        decimal.Decimal       `gorm:"column:price;type:numeric(10,2);not null"`
	SizeLabel    *string               `gorm:"column:size_label;size:50"`
	Measurements dbtypes.JSONMap       `gorm:"column:measurements;type:jsonb"`
	Tags         pq.StringArray        `gorm:"column:tags;type:text[]"`
	Status       enums.InventoryStatus `gorm:"column:status;size:20;not null;default:AVAILABLE;index"`
	ImageURL     *string               `gorm:"column:image_url;size:500"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string {
	return "inventory"
}
