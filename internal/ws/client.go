package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = (pongWait * 9) / 10

	// An unauthenticated connection must send its auth frame within this
	// window or the server closes it.
	authWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection. Incoming frames are processed in
// order on the read pump; outgoing frames go through a buffered send
// channel drained by the write pump. A connection that cannot keep up
// with its send buffer is dropped rather than blocking broadcasts.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	svc      *service.Service
	verifier auth.TokenVerifier
	send     chan []byte

	userID int64
	authed bool
	info   ConnInfo

	// rooms is the set of thread rooms this connection joined. Guarded
	// by the hub mutex.
	rooms map[int64]bool
}

func newClient(hub *Hub, conn *websocket.Conn, svc *service.Service, verifier auth.TokenVerifier, info ConnInfo) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		svc:      svc,
		verifier: verifier,
		send:     make(chan []byte, 256),
		userID:   info.UserID,
		authed:   info.UserID != 0,
		info:     info,
		rooms:    make(map[int64]bool),
	}
}

func (c *Client) start() {
	if c.authed {
		c.hub.Register(c)
		c.sendEvent(models.EventAuthOK, map[string]int64{"user_id": c.userID})
	}
	go c.writePump()
	go c.readPump()
}

// enqueue hands a frame to the write pump without blocking. A full
// buffer means the peer stopped reading; close the connection and let it
// reconnect with a clean slate.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		log.Printf("ws: send buffer full, dropping conn %s (user %d)", c.info.ConnID, c.userID)
		c.conn.Close()
	}
}

func (c *Client) readPump() {
	var closeReason string
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		observability.DecWSActive()
		publishConnEvent(context.Background(), "ws_disconnect", c.info, 0, closeReason)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if c.authed {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	} else {
		c.conn.SetReadDeadline(time.Now().Add(authWait))
	}
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishConnEvent(context.Background(), "ws_error", c.info, 0, closeReason)
			}
			return
		}

		var event models.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sendError("malformed event")
			continue
		}

		if !c.authed {
			if event.Type != models.EventAuth {
				c.sendError("authentication required")
				closeReason = "unauthenticated frame"
				return
			}
			if !c.handleAuth(event.Data) {
				closeReason = "auth failed"
				return
			}
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}

		c.handleEvent(event)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleAuth(data json.RawMessage) bool {
	var payload models.AuthPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" {
		c.sendError("invalid auth payload")
		return false
	}

	userID, err := c.verifier.Verify(context.Background(), payload.Token)
	if err != nil {
		c.sendError("invalid token")
		return false
	}

	c.userID = userID
	c.authed = true
	c.info.UserID = userID
	c.hub.Register(c)
	c.sendEvent(models.EventAuthOK, map[string]int64{"user_id": userID})
	publishConnEvent(context.Background(), "ws_authenticated", c.info, 0, "")
	return true
}

func (c *Client) handleEvent(event models.Event) {
	ctx := context.Background()

	switch event.Type {
	case models.EventJoinRoom:
		var payload models.RoomPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil || payload.ThreadID == 0 {
			c.sendError("invalid room payload")
			return
		}
		if !c.svc.IsParticipant(ctx, payload.ThreadID, c.userID) {
			c.sendError("not a participant of thread")
			return
		}
		c.hub.JoinThread(payload.ThreadID, c)
		publishConnEvent(ctx, "ws_join_room", c.info, payload.ThreadID, "")

	case models.EventLeaveRoom:
		var payload models.RoomPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil || payload.ThreadID == 0 {
			c.sendError("invalid room payload")
			return
		}
		c.hub.LeaveThread(payload.ThreadID, c)

	case models.EventTypingStart, models.EventTypingStop:
		var payload models.RoomPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil || payload.ThreadID == 0 {
			c.sendError("invalid typing payload")
			return
		}
		if !c.inRoom(payload.ThreadID) {
			c.sendError("join the thread room first")
			return
		}
		c.hub.SetTyping(payload.ThreadID, c.userID, event.Type == models.EventTypingStart)

	case models.EventMarkRead:
		var payload models.MarkReadPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil || payload.ThreadID == 0 {
			c.sendError("invalid mark-read payload")
			return
		}
		if _, err := c.svc.MarkRead(ctx, payload.ThreadID, c.userID, payload.MessageIDs); err != nil {
			log.Printf("ws: mark read thread %d user %d: %v", payload.ThreadID, c.userID, err)
			c.sendError("mark read failed")
		}

	default:
		c.sendError("unknown event type")
	}
}

func (c *Client) inRoom(threadID int64) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.rooms[threadID]
}

func (c *Client) sendEvent(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, err := json.Marshal(models.Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *Client) sendError(message string) {
	c.sendEvent(models.EventError, map[string]string{"message": message})
}
