package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/philiathrifts/thriftbot/pkg/db/models"
	"github.com/philiathrifts/thriftbot/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:conversation_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.ProcessedEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRecordProcessedFirstWriteWins(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	first := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	if err := repo.RecordProcessed(ctx, "evt-1", enums.EventStatusSuccess, first); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := repo.RecordProcessed(ctx, "evt-1", enums.EventStatusFailed, first.Add(time.Minute)); err != nil {
		t.Fatalf("record duplicate: %v", err)
	}

	var row models.ProcessedEvent
	if err := db.First(&row, "event_id = ?", "evt-1").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.Status != enums.EventStatusSuccess {
		t.Fatalf("duplicate write must not overwrite, got %s", row.Status)
	}

	var count int64
	if err := db.Model(&models.ProcessedEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single row, got %d", count)
	}
}

func TestRecordProcessedValidation(t *testing.T) {
	t.Parallel()

	repo := NewAuditRepository(newTestDB(t))
	if err := repo.RecordProcessed(context.Background(), "", enums.EventStatusSuccess, time.Now()); err == nil {
		t.Fatalf("expected error for empty event id")
	}
}

func TestAlreadyProcessed(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	seen, err := repo.AlreadyProcessed(ctx, "evt-9")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if seen {
		t.Fatalf("unexpected record")
	}

	if err := repo.RecordProcessed(ctx, "evt-9", enums.EventStatusSkipped, time.Now()); err != nil {
		t.Fatalf("record: %v", err)
	}

	seen, err = repo.AlreadyProcessed(ctx, "evt-9")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !seen {
		t.Fatalf("expected record")
	}
}
