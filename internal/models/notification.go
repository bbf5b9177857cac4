package models

import "time"

// Notification types.
const (
	NotificationMessage = "message"
)

// Notification is a per-recipient record derived from a message. One
// message fans out to one notification per recipient. Only is_read is
// ever mutated after creation.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	ActionURL string    `db:"action_url" json:"action_url"`
	Metadata  Metadata  `db:"metadata" json:"metadata,omitempty"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
