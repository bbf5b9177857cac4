package models

import (
	"encoding/json"
	"time"
)

// Server -> client event types.
const (
	EventMessageNew      = "message:new"
	EventMessageEdited   = "message:edited"
	EventMessageDeleted  = "message:deleted"
	EventMessageRestored = "message:restored"
	EventReadReceipt     = "read-receipt"
	EventTypingStatus    = "typing:status"
	EventPresence        = "presence"
	EventNotificationNew = "notification:new"
	EventAuthOK          = "auth:ok"
	EventError           = "error"
)

// Client -> server event types.
const (
	EventAuth        = "auth"
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
	EventMarkRead    = "mark-read"
)

// Event is the websocket wire envelope in both directions.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// AuthPayload is the first frame a client must send after connecting.
type AuthPayload struct {
	Token string `json:"token"`
}

// RoomPayload targets a thread room for join/leave/typing events.
type RoomPayload struct {
	ThreadID int64 `json:"thread_id"`
}

// MarkReadPayload marks messages read over the transport.
type MarkReadPayload struct {
	ThreadID   int64   `json:"thread_id"`
	MessageIDs []int64 `json:"message_ids,omitempty"`
}

// ReadReceiptPayload notifies other participants that a user read up to
// read_at in a thread.
type ReadReceiptPayload struct {
	ThreadID int64     `json:"thread_id"`
	UserID   int64     `json:"user_id"`
	ReadAt   time.Time `json:"read_at"`
}

// TypingPayload carries typing indicator state for a thread.
type TypingPayload struct {
	ThreadID int64 `json:"thread_id"`
	UserID   int64 `json:"user_id"`
	IsTyping bool  `json:"is_typing"`
}

// PresencePayload announces online/offline transitions.
type PresencePayload struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

// MessageDeletedPayload identifies messages removed from a thread.
type MessageDeletedPayload struct {
	ThreadID   int64   `json:"thread_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// MessageSent is published on the internal bus after a message is
// persisted. The notification fan-out consumes it independently of the
// send path.
type MessageSent struct {
	Message    *Message
	SenderID   int64
	Recipients []int64
}
