package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Thread kinds.
const (
	ThreadDirect = "direct"
	ThreadGroup  = "group"
)

// Thread represents a conversation between a fixed set of participants.
type Thread struct {
	ID                   int64      `db:"id" json:"id"`
	Kind                 string     `db:"kind" json:"kind"`
	ParticipantSignature string     `db:"participant_signature" json:"-"`
	LastMessagePreview   *string    `db:"last_message_preview" json:"last_message_preview,omitempty"`
	LastMessageSenderID  *int64     `db:"last_message_sender_id" json:"last_message_sender_id,omitempty"`
	LastMessageAt        *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`

	// Loaded separately, not a column.
	Participants []Participant `json:"participants,omitempty"`
}

// Participant is one user's membership and view state inside a thread.
// Each participant only ever writes its own row, so concurrent senders
// never contend on each other's read state.
type Participant struct {
	ThreadID    int64      `db:"thread_id" json:"thread_id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	LastReadAt  *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	UnreadCount int        `db:"unread_count" json:"unread_count"`
	IsPinned    bool       `db:"is_pinned" json:"is_pinned"`
	IsMuted     bool       `db:"is_muted" json:"is_muted"`
	IsArchived  bool       `db:"is_archived" json:"is_archived"`
}

// ThreadSummary is the API-friendly view of a thread for one user.
type ThreadSummary struct {
	ThreadID           int64      `json:"thread_id"`
	Kind               string     `json:"kind"`
	ParticipantIDs     []int64    `json:"participant_ids"`
	LastMessagePreview *string    `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
	IsPinned           bool       `json:"is_pinned"`
	IsMuted            bool       `json:"is_muted"`
	IsArchived         bool       `json:"is_archived"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ParticipantSignature computes the canonical signature used to dedup
// direct threads: the sorted participant ids joined with ":".
// Signature(A,B) == Signature(B,A).
func ParticipantSignature(userIDs []int64) string {
	ids := make([]int64, len(userIDs))
	copy(ids, userIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ":")
}
