package conversation

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/philiathrifts/thriftbot/pkg/db/models"
	"github.com/philiathrifts/thriftbot/pkg/enums"
	pkgerrors "github.com/philiathrifts/thriftbot/pkg/errors"
)

// AuditRepository persists the durable processed-event log behind the Redis
// fast-path dedupe.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository constructs an audit repo bound to the provided GORM DB.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// RecordProcessed writes the terminal outcome for an event. The first write
// wins; a redelivered event keeps its original record.
func (r *AuditRepository) RecordProcessed(ctx context.Context, eventID string, status enums.EventStatus, at time.Time) error {
	if eventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	row := models.ProcessedEvent{
		EventID:     eventID,
		ProcessedAt: at,
		Status:      status,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
}

// AlreadyProcessed reports whether a durable record exists for the event.
func (r *AuditRepository) AlreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
