package models

import (
	"time"

	"github.com/lib/pq"
)

// Message delivery states. Transitions only ever advance
// sent -> delivered -> read, never backward.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

var statusRank = map[string]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// StatusAdvances reports whether moving from to next is a forward
// transition in the delivery state machine.
func StatusAdvances(from, next string) bool {
	return statusRank[next] > statusRank[from]
}

// Message is a single unit of communication inside a thread.
type Message struct {
	ID           int64          `db:"id" json:"id"`
	ThreadID     int64          `db:"thread_id" json:"thread_id"`
	SenderID     int64          `db:"sender_id" json:"sender_id"`
	RecipientIDs pq.Int64Array  `db:"recipient_ids" json:"recipient_ids"`
	Content      string         `db:"content" json:"content"`
	Attachments  AttachmentList `db:"attachments" json:"attachments,omitempty"`
	Status       string         `db:"status" json:"status"`
	IsStarred    bool           `db:"is_starred" json:"is_starred"`
	IsArchived   bool           `db:"is_archived" json:"is_archived"`
	IsFlagged    bool           `db:"is_flagged" json:"is_flagged"`
	FlagReason   *string        `db:"flag_reason" json:"flag_reason,omitempty"`
	EditedAt     *time.Time     `db:"edited_at" json:"edited_at,omitempty"`
	EditHistory  RevisionList   `db:"edit_history" json:"edit_history,omitempty"`
	DeletedAt    *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// IsDeleted reports whether the message carries a soft-delete marker.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// IsRecipient reports whether userID was snapshotted as a recipient.
func (m *Message) IsRecipient(userID int64) bool {
	for _, id := range m.RecipientIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Attachment describes a file attached to a message.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Revision is one prior content snapshot kept when a message is edited.
type Revision struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

// MessageSnapshot captures the fields a bulk operation may alter, so undo
// can restore them verbatim.
type MessageSnapshot struct {
	MessageID  int64      `json:"message_id"`
	Status     string     `json:"status"`
	IsStarred  bool       `json:"is_starred"`
	IsArchived bool       `json:"is_archived"`
	DeletedAt  *time.Time `json:"deleted_at"`
}

// Snapshot extracts the restorable state of the message.
func (m *Message) Snapshot() MessageSnapshot {
	return MessageSnapshot{
		MessageID:  m.ID,
		Status:     m.Status,
		IsStarred:  m.IsStarred,
		IsArchived: m.IsArchived,
		DeletedAt:  m.DeletedAt,
	}
}
