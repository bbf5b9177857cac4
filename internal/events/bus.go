// Package events decouples the messaging service from the notification
// fan-out through typed, bounded channels. Publishing never blocks the
// send path; if the consumer lags behind the buffer, the event is dropped
// and counted, since the durable store remains the source of truth.
package events

import (
	"log"
	"sync"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// ThreadRead signals that a user marked a thread read, so downstream
// notification state can clear the matching unread notifications.
type ThreadRead struct {
	ThreadID int64
	UserID   int64
	ReadAt   time.Time
}

// Bus carries MessageSent and ThreadRead events from the service to the
// fan-out.
type Bus struct {
	sent      chan models.MessageSent
	read      chan ThreadRead
	closeOnce sync.Once
}

// NewBus creates a bus with the given per-channel buffer size.
func NewBus(size int) *Bus {
	return &Bus{
		sent: make(chan models.MessageSent, size),
		read: make(chan ThreadRead, size),
	}
}

// PublishMessageSent offers a message event to the consumer without
// blocking.
func (b *Bus) PublishMessageSent(event models.MessageSent) {
	select {
	case b.sent <- event:
	default:
		log.Printf("event bus full, dropping message_sent event for message %d", event.Message.ID)
		observability.IncBusDropped()
	}
}

// PublishThreadRead offers a read event to the consumer without blocking.
func (b *Bus) PublishThreadRead(event ThreadRead) {
	select {
	case b.read <- event:
	default:
		log.Printf("event bus full, dropping thread_read event for thread %d", event.ThreadID)
		observability.IncBusDropped()
	}
}

// MessageSent returns the consumer side of the message channel.
func (b *Bus) MessageSent() <-chan models.MessageSent {
	return b.sent
}

// ThreadRead returns the consumer side of the read channel.
func (b *Bus) ThreadRead() <-chan ThreadRead {
	return b.read
}

// Close stops the bus. Buffered events are still delivered before the
// consumer's loop ends.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.sent)
		close(b.read)
	})
}
