package model

import "time"

// SessionRecord is the durable trace of a session: identifier and lifetime
// only. The API key and the conversation state never reach this table.
type SessionRecord struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}
