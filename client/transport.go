package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
)

var ErrAuthRejected = errors.New("transport auth rejected")

// Transport is one websocket session against the messaging service. It
// implements Dialer: Connect dials, authenticates with the first frame,
// re-joins the subscribed rooms, then blocks reading events until the
// connection drops.
type Transport struct {
	url     string
	token   string
	onEvent func(models.Event)

	mu    sync.Mutex
	rooms map[int64]bool
}

// NewTransport builds a transport for the given websocket URL and token.
// onEvent receives every server event, on the read goroutine.
func NewTransport(url, token string, onEvent func(models.Event)) *Transport {
	return &Transport{
		url:     url,
		token:   token,
		onEvent: onEvent,
		rooms:   make(map[int64]bool),
	}
}

// Subscribe remembers a room to join on every (re)connect.
func (t *Transport) Subscribe(threadID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rooms[threadID] = true
}

// Connect runs one session. A nil-error return never happens before the
// session was authenticated; callers treat any return as a drop.
func (t *Transport) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := t.authenticate(conn); err != nil {
		return err
	}

	t.mu.Lock()
	rooms := make([]int64, 0, len(t.rooms))
	for id := range t.rooms {
		rooms = append(rooms, id)
	}
	t.mu.Unlock()
	for _, threadID := range rooms {
		if err := writeEvent(conn, models.EventJoinRoom, models.RoomPayload{ThreadID: threadID}); err != nil {
			return fmt.Errorf("join room %d: %w", threadID, err)
		}
	}

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event models.Event
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		if t.onEvent != nil {
			t.onEvent(event)
		}
	}
}

func (t *Transport) authenticate(conn *websocket.Conn) error {
	if err := writeEvent(conn, models.EventAuth, models.AuthPayload{Token: t.token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	var event models.Event
	if err := conn.ReadJSON(&event); err != nil {
		return fmt.Errorf("await auth ack: %w", err)
	}
	if event.Type != models.EventAuthOK {
		return ErrAuthRejected
	}
	return nil
}

func writeEvent(conn *websocket.Conn, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(models.Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
