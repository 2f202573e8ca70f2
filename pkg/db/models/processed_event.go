package models

import (
	"time"

	"github.com/philiathrifts/thriftbot/pkg/enums"
)

// ProcessedEvent is the durable audit record behind the TTL-bounded fast-path
// dedupe key. The worker writes it after the pipeline runs, whatever the
// outcome, so it lags actual processing.
type ProcessedEvent struct {
	EventID     string            `gorm:"column:event_id;primaryKey;size:255"`
	ProcessedAt time.Time         `gorm:"column:processed_at;not null"`
	Status      enums.EventStatus `gorm:"column:status;size:50;not null"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}
