package users

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
)

// Profile is the public display record for a user id seen by the backend.
type Profile struct {
	UserID     string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username   string    `gorm:"column:username;size:320"`
	AvatarURL  string    `gorm:"column:avatar_url;size:512"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

// User converts the record into the external user reference.
func (p Profile) User() adventures.User {
	return adventures.User{ID: p.UserID, Username: p.Username, ProfilePicture: p.AvatarURL}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
