package models

import (
	"time"
)

// User is a chat-platform user interacting with the bot. The platform open id
// is the primary key; there is no separate surrogate id.
type User struct {
	TikTokID          string    `gorm:"column:tiktok_id;primaryKey;size:255"`
	Username          *string   `gorm:"column:username;size:255"`
	LastInteractionAt time.Time `gorm:"column:last_interaction_at;not null;index"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}
