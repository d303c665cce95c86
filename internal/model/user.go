package model

import (
	"time"

	"gorm.io/datatypes"
)

// User is an identity record. Local accounts carry a password hash; accounts
// created through an OAuth provider carry the provider name and the
// provider-assigned subject instead. Memory holds the rolling conversation
// summary blob injected into future system prompts.
type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Username      string         `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email         string         `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash  string         `gorm:"size:255" json:"-"`
	AvatarURL     string         `gorm:"size:512" json:"avatar_url,omitempty"`
	OAuthProvider string         `gorm:"column:oauth_provider;size:32;index" json:"oauth_provider,omitempty"`
	OAuthSubject  string         `gorm:"column:oauth_subject;size:128;index" json:"-"`
	Memory        datatypes.JSON `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
