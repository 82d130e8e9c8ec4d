package models

import "time"

// SessionModel is the database row for a conversation session.
type SessionModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Title     string `gorm:"size:256"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

// TableName names the sessions table.
func (SessionModel) TableName() string {
	return "sessions"
}
