package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// ContactSource resolves the users who share a thread with a user, the
// audience for presence announcements.
type ContactSource interface {
	ThreadContacts(ctx context.Context, userID int64) ([]int64, error)
}

// Hub maintains the set of authenticated clients, thread rooms, and
// per-thread typing state. Thread rooms carry conversation events to
// subscribed connections; every authenticated connection also belongs to
// the user's personal delivery set used for notification pushes.
type Hub struct {
	mu          sync.RWMutex
	threadRooms map[int64]map[*Client]bool
	userClients map[int64]map[*Client]bool
	contacts    ContactSource

	typingMu      sync.Mutex
	typing        map[int64]map[int64]*time.Timer
	typingTimeout time.Duration
}

// NewHub creates an empty hub. typingTimeout bounds how long a typing
// indicator stays on without a repeat typing-start from the client.
func NewHub(typingTimeout time.Duration) *Hub {
	return &Hub{
		threadRooms:   make(map[int64]map[*Client]bool),
		userClients:   make(map[int64]map[*Client]bool),
		typing:        make(map[int64]map[int64]*time.Timer),
		typingTimeout: typingTimeout,
	}
}

// SetContactSource wires the lookup used to pick presence recipients.
// Without one the hub stays silent about online transitions.
func (h *Hub) SetContactSource(contacts ContactSource) {
	h.contacts = contacts
}

// Register adds an authenticated client to its user's delivery set. The
// user's first connection announces presence to their thread contacts.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	cameOnline := len(h.userClients[c.userID]) == 0
	if _, ok := h.userClients[c.userID]; !ok {
		h.userClients[c.userID] = make(map[*Client]bool)
	}
	h.userClients[c.userID][c] = true
	h.mu.Unlock()

	if cameOnline {
		h.notifyPresence(c.userID, true)
	}
}

// Unregister removes a client from every room it joined and from its
// user's delivery set, and clears any typing indicator the user left on.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var left []int64
	for threadID := range c.rooms {
		left = append(left, threadID)
		h.removeFromRoom(threadID, c)
	}
	c.rooms = make(map[int64]bool)
	var wentOffline bool
	if conns, ok := h.userClients[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.userClients, c.userID)
			wentOffline = true
		}
	}
	h.mu.Unlock()

	for _, threadID := range left {
		h.clearTyping(threadID, c.userID)
	}
	if wentOffline {
		h.notifyPresence(c.userID, false)
	}
}

// JoinThread subscribes a client to a thread room. Participant checks
// happen in the client before this is called.
func (h *Hub) JoinThread(threadID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.threadRooms[threadID]; !ok {
		h.threadRooms[threadID] = make(map[*Client]bool)
	}
	h.threadRooms[threadID][c] = true
	c.rooms[threadID] = true
}

// LeaveThread removes a client from a thread room.
func (h *Hub) LeaveThread(threadID int64, c *Client) {
	h.mu.Lock()
	h.removeFromRoom(threadID, c)
	delete(c.rooms, threadID)
	h.mu.Unlock()

	h.clearTyping(threadID, c.userID)
}

func (h *Hub) removeFromRoom(threadID int64, c *Client) {
	if conns, ok := h.threadRooms[threadID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.threadRooms, threadID)
		}
	}
}

// BroadcastToThread sends an event to every client subscribed to the
// thread. exceptUserID skips all connections of that user; pass 0 to
// deliver to everyone in the room.
func (h *Hub) BroadcastToThread(threadID, exceptUserID int64, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: marshal event %s: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.threadRooms[threadID]))
	for c := range h.threadRooms[threadID] {
		if exceptUserID != 0 && c.userID == exceptUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
	observability.IncWSEvent(event.Type)
}

// SendToUser delivers an event to every live connection of a user. Used
// by the notification fan-out for personal pushes; a user with no open
// connection simply misses the push and catches up via polling.
func (h *Hub) SendToUser(userID int64, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: marshal event %s: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.userClients[userID]))
	for c := range h.userClients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}

// notifyPresence fans an online/offline transition out to every contact
// with a live connection. Contacts currently offline just miss it; the
// next message exchange reveals the state anyway.
func (h *Hub) notifyPresence(userID int64, online bool) {
	if h.contacts == nil {
		return
	}
	contactIDs, err := h.contacts.ThreadContacts(context.Background(), userID)
	if err != nil {
		log.Printf("hub: resolve contacts for user %d: %v", userID, err)
		return
	}

	status := "offline"
	if online {
		status = "online"
	}
	data, _ := json.Marshal(models.PresencePayload{UserID: userID, Status: status})
	event := models.Event{
		Type:      models.EventPresence,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	for _, contactID := range contactIDs {
		h.SendToUser(contactID, event)
	}
}

// IsUserOnline reports whether the user has at least one live connection.
func (h *Hub) IsUserOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID]) > 0
}

// SetTyping turns a user's typing indicator on or off in a thread and
// broadcasts the transition. An active indicator expires on its own after
// the hub's typing timeout unless the client keeps refreshing it.
func (h *Hub) SetTyping(threadID, userID int64, isTyping bool) {
	h.typingMu.Lock()
	if isTyping {
		if _, ok := h.typing[threadID]; !ok {
			h.typing[threadID] = make(map[int64]*time.Timer)
		}
		if timer, ok := h.typing[threadID][userID]; ok {
			timer.Reset(h.typingTimeout)
			h.typingMu.Unlock()
			return
		}
		h.typing[threadID][userID] = time.AfterFunc(h.typingTimeout, func() {
			h.clearTyping(threadID, userID)
		})
		h.typingMu.Unlock()
		h.broadcastTyping(threadID, userID, true)
		return
	}
	h.typingMu.Unlock()
	h.clearTyping(threadID, userID)
}

// clearTyping stops the expiry timer and broadcasts typing=false, but
// only if the indicator was actually on.
func (h *Hub) clearTyping(threadID, userID int64) {
	h.typingMu.Lock()
	timer, ok := h.typing[threadID][userID]
	if ok {
		timer.Stop()
		delete(h.typing[threadID], userID)
		if len(h.typing[threadID]) == 0 {
			delete(h.typing, threadID)
		}
	}
	h.typingMu.Unlock()
	if ok {
		h.broadcastTyping(threadID, userID, false)
	}
}

func (h *Hub) broadcastTyping(threadID, userID int64, isTyping bool) {
	data, _ := json.Marshal(models.TypingPayload{
		ThreadID: threadID,
		UserID:   userID,
		IsTyping: isTyping,
	})
	h.BroadcastToThread(threadID, userID, models.Event{
		Type:      models.EventTypingStatus,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// publishConnEvent emits a connection lifecycle event to the audit
// exchange. Best-effort; failures only increment the error counter.
func publishConnEvent(ctx context.Context, name string, info ConnInfo, threadID int64, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       name,
			"conn_id":     info.ConnID,
			"thread_id":   threadID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, observability.RouteWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload:   payload,
	}, headers)
	observability.IncWSEvent(name)
}
