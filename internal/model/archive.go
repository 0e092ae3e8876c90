package model

import "time"

// ArchivedTurn is the durable MySQL copy of one persisted session turn,
// written behind the Redis session store by the archive worker.
type ArchivedTurn struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:128;not null;index" json:"session_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
