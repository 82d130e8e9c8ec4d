package entity

import "time"

// Session is a durable, ordered sequence of messages sharing one system
// prompt. Sessions are created atomically with their seed system message
// and are mutated only by appending messages.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
