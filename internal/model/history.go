package model

import "time"

// HistoryEntry records one completed question/answer exchange. Append-only,
// ordered by time, owned by exactly one session.
type HistoryEntry struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRecord is the durable form of a HistoryEntry. Rows are deleted
// together with their session; the credential is never part of a record.
type HistoryRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:64;not null;index" json:"session_id"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry converts the record back to its in-memory form.
func (r *HistoryRecord) Entry() HistoryEntry {
	return HistoryEntry{
		Question:  r.Question,
		Answer:    r.Answer,
		CreatedAt: r.CreatedAt,
	}
}
