// Package fanout turns persisted messages into per-recipient
// notifications. It consumes the internal event bus, so a fan-out failure
// can never roll back message persistence: errors are logged, counted and
// skipped, one recipient at a time.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"messaging-service/internal/events"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// Pusher delivers an event to a user's personal room, best-effort, and
// reports whether the user has a live connection.
type Pusher interface {
	SendToUser(userID int64, event models.Event)
	IsUserOnline(userID int64) bool
}

// Fanout subscribes to the event bus and materializes notifications.
type Fanout struct {
	notifications repositories.NotificationRepository
	bus           *events.Bus
	pusher        Pusher
}

// New constructs a Fanout.
func New(notifications repositories.NotificationRepository, bus *events.Bus, pusher Pusher) *Fanout {
	return &Fanout{notifications: notifications, bus: bus, pusher: pusher}
}

// Run consumes bus events until the context is cancelled or the bus is
// closed. Call in its own goroutine.
func (f *Fanout) Run(ctx context.Context) {
	sent := f.bus.MessageSent()
	read := f.bus.ThreadRead()
	for {
		select {
		case event, ok := <-sent:
			if !ok {
				sent = nil
				if read == nil {
					return
				}
				continue
			}
			f.handleMessageSent(ctx, event)
		case event, ok := <-read:
			if !ok {
				read = nil
				if sent == nil {
					return
				}
				continue
			}
			f.handleThreadRead(ctx, event)
		case <-ctx.Done():
			return
		}
	}
}

func (f *Fanout) handleMessageSent(ctx context.Context, event models.MessageSent) {
	msg := event.Message
	for _, recipientID := range event.Recipients {
		notification := models.Notification{
			UserID:    recipientID,
			Type:      models.NotificationMessage,
			Title:     "New message",
			Body:      notificationBody(msg),
			ActionURL: fmt.Sprintf("/threads/%d", msg.ThreadID),
			Metadata: models.Metadata{
				"thread_id":  fmt.Sprintf("%d", msg.ThreadID),
				"message_id": fmt.Sprintf("%d", msg.ID),
				"sender_id":  fmt.Sprintf("%d", msg.SenderID),
			},
		}

		if err := f.notifications.CreateNotification(ctx, &notification); err != nil {
			log.Printf("create notification for user %d failed: %v", recipientID, err)
			observability.IncFanout("error")
			continue
		}
		observability.IncFanout("created")

		online := false
		if f.pusher != nil {
			online = f.pusher.IsUserOnline(recipientID)
			if data, err := json.Marshal(notification); err == nil {
				f.pusher.SendToUser(recipientID, models.Event{
					Type:      models.EventNotificationNew,
					Data:      data,
					Timestamp: notification.CreatedAt,
				})
			}
		}

		// Hand the record to the downstream delivery consumer (email,
		// mobile push), but only for recipients the live transport
		// cannot reach right now.
		if !online {
			_ = observability.PublishEvent(ctx, observability.RouteNotifications, observability.EventEnvelope{
				EventType: "notifications",
				EventName: "notification_created",
				Payload:   notification,
			}, nil)
		}
	}
}

func (f *Fanout) handleThreadRead(ctx context.Context, event events.ThreadRead) {
	cleared, err := f.notifications.MarkThreadRead(ctx, event.UserID, event.ThreadID)
	if err != nil {
		log.Printf("clear notifications for thread %d user %d failed: %v", event.ThreadID, event.UserID, err)
		return
	}
	if cleared > 0 {
		observability.IncFanout("cleared")
	}
}

func notificationBody(msg *models.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	if len(msg.Attachments) > 0 {
		return "Sent an attachment"
	}
	return "Sent a message"
}
