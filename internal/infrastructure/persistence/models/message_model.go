package models

import "time"

// MessageModel is the database row for one conversation message.
// (session_id, sort_order) is unique so concurrent appends cannot
// interleave into the same slot.
type MessageModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	SessionID string `gorm:"uniqueIndex:idx_session_sort;size:64;not null"`
	SortOrder int    `gorm:"uniqueIndex:idx_session_sort;not null"`
	Role      string `gorm:"size:32;not null"` // system, user, assistant, tool
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
	Metadata  string `gorm:"type:text"` // JSON encoded tool-call payload, empty for plain messages
}

// TableName names the messages table.
func (MessageModel) TableName() string {
	return "messages"
}
