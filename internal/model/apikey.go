package model

import "time"

// ApiKey holds per-user provider credentials, at most one row per user.
// Created lazily on first save and updated in place afterwards.
type ApiKey struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	LLMKey    string    `gorm:"size:255" json:"-"`
	SearchKey string    `gorm:"size:255" json:"-"`
	ImageKey  string    `gorm:"size:255" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
