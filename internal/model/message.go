package model

import (
	"time"

	"gorm.io/datatypes"
)

// Message rows are immutable after creation. Metadata carries optional
// provider parameters, e.g. the settings of an image-generation turn.
type Message struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID uint           `gorm:"not null;index" json:"conversation_id"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	Role           string         `gorm:"size:16;not null;index" json:"role"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
