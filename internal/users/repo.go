package users

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/philiathrifts/thriftbot/pkg/db/models"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Upsert records an interaction from the user, creating the row on first
// contact and refreshing last_interaction_at on every delivery. An empty
// username never clobbers a stored one.
func (r *Repository) Upsert(ctx context.Context, tiktokID, username string, at time.Time) (*models.User, error) {
	user := models.User{
		TikTokID:          tiktokID,
		LastInteractionAt: at,
		CreatedAt:         at,
	}
	assignments := map[string]any{"last_interaction_at": at}
	if username != "" {
		user.Username = &username
		assignments["username"] = username
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tiktok_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(&user).Error
	if err != nil {
		return nil, err
	}

	return r.FindByID(ctx, tiktokID)
}

// FindByID loads a user by their TikTok OpenID.
func (r *Repository) FindByID(ctx context.Context, tiktokID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "tiktok_id = ?", tiktokID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// WithinWindow reports whether now still falls inside the platform's
// messaging-eligibility window after the last interaction. The boundary is
// exclusive: exactly window after the last interaction is already outside.
func WithinWindow(lastInteraction, now time.Time, window time.Duration) bool {
	return now.Before(lastInteraction.Add(window))
}
