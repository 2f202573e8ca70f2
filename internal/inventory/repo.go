package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/philiathrifts/thriftbot/pkg/db/models"
	"github.com/philiathrifts/thriftbot/pkg/enums"
)

const defaultSearchLimit = 5

// Repository exposes inventory persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an inventory repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// SearchAvailable finds AVAILABLE items whose name or description matches the
// query, newest first. The search is case-insensitive substring matching;
// inventory is small enough that full-text search would be overkill.
func (r *Repository) SearchAvailable(ctx context.Context, query string, limit int) ([]models.InventoryItem, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	tx := r.db.WithContext(ctx).
		Where("status = ?", enums.InventoryStatusAvailable)

	if trimmed := strings.TrimSpace(query); trimmed != "" {
		pattern := "%" + strings.ToLower(trimmed) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?", pattern, pattern)
	}

	var items []models.InventoryItem
	if err := tx.Order("created_at DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Reserve flips an AVAILABLE item to RESERVED under a row lock and returns
// the locked item on success. It returns false without error when the item is
// missing or already claimed, so the caller can tell the customer instead of
// failing the pipeline.
//
// Run this inside the caller's transaction (via WithTx) and commit promptly:
// the lock lives until transaction end, so never hold it across AI or
// outbound network calls. The lock is only applied on postgres; sqlite
// (tests) rejects FOR UPDATE and serializes writers anyway.
func (r *Repository) Reserve(ctx context.Context, sku string) (bool, *models.InventoryItem, error) {
	tx := r.db.WithContext(ctx)

	var item models.InventoryItem
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&item, "sku = ?", sku).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}

	if item.Status != enums.InventoryStatusAvailable {
		return false, nil, nil
	}

	// Status guard in the WHERE clause backstops the lock on dialects
	// without one.
	res := tx.Model(&models.InventoryItem{}).
		Where("id = ? AND status = ?", item.ID, enums.InventoryStatusAvailable).
		Update("status", enums.InventoryStatusReserved)
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil, nil
	}
	item.Status = enums.InventoryStatusReserved
	return true, &item, nil
}

// AvailableCount returns the number of AVAILABLE items.
func (r *Repository) AvailableCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("status = ?", enums.InventoryStatusAvailable).
		Count(&count).Error
	return count, err
}

// FindBySKU loads an item by its SKU regardless of status.
func (r *Repository) FindBySKU(ctx context.Context, sku string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "sku = ?", sku).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByID loads an item by id regardless of status.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}
