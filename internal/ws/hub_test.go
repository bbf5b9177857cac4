package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func newTestClient(hub *Hub, userID int64) *Client {
	c := newClient(hub, nil, nil, nil, ConnInfo{ConnID: "test", UserID: userID})
	hub.Register(c)
	return c
}

func receive(t *testing.T, c *Client) models.Event {
	t.Helper()
	select {
	case payload := <-c.send:
		var event models.Event
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return models.Event{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event: %s", payload)
	default:
	}
}

type staticContacts map[int64][]int64

func (s staticContacts) ThreadContacts(_ context.Context, userID int64) ([]int64, error) {
	return s[userID], nil
}

func presencePayload(t *testing.T, event models.Event) models.PresencePayload {
	t.Helper()
	require.Equal(t, models.EventPresence, event.Type)
	var payload models.PresencePayload
	require.NoError(t, json.Unmarshal(event.Data, &payload))
	return payload
}

func TestPresenceAnnouncedToContacts(t *testing.T) {
	hub := NewHub(3 * time.Second)
	hub.SetContactSource(staticContacts{1: {2}, 2: {1}})

	watcher := newTestClient(hub, 2)
	assertNoEvent(t, watcher) // user 1 was not online, nothing to announce

	subject := newTestClient(hub, 1)
	payload := presencePayload(t, receive(t, watcher))
	assert.Equal(t, int64(1), payload.UserID)
	assert.Equal(t, "online", payload.Status)
	assertNoEvent(t, subject)

	hub.Unregister(subject)
	payload = presencePayload(t, receive(t, watcher))
	assert.Equal(t, int64(1), payload.UserID)
	assert.Equal(t, "offline", payload.Status)
}

func TestPresenceOnlyOnFirstAndLastConnection(t *testing.T) {
	hub := NewHub(3 * time.Second)
	hub.SetContactSource(staticContacts{1: {2}})

	watcher := newTestClient(hub, 2)
	first := newTestClient(hub, 1)
	assert.Equal(t, "online", presencePayload(t, receive(t, watcher)).Status)

	second := newTestClient(hub, 1)
	assertNoEvent(t, watcher) // already online, no repeat announcement

	hub.Unregister(first)
	assertNoEvent(t, watcher) // still reachable through the second device

	hub.Unregister(second)
	assert.Equal(t, "offline", presencePayload(t, receive(t, watcher)).Status)
}

func TestPresenceSilentWithoutContactSource(t *testing.T) {
	hub := NewHub(3 * time.Second)
	watcher := newTestClient(hub, 2)
	newTestClient(hub, 1)
	assertNoEvent(t, watcher)
}

func TestBroadcastToThreadSkipsExcludedUser(t *testing.T) {
	hub := NewHub(3 * time.Second)
	sender := newTestClient(hub, 1)
	receiver := newTestClient(hub, 2)
	hub.JoinThread(10, sender)
	hub.JoinThread(10, receiver)

	hub.BroadcastToThread(10, 1, models.Event{Type: models.EventMessageNew})

	event := receive(t, receiver)
	assert.Equal(t, models.EventMessageNew, event.Type)
	assertNoEvent(t, sender)
}

func TestBroadcastToThreadNoExclusion(t *testing.T) {
	hub := NewHub(3 * time.Second)
	a := newTestClient(hub, 1)
	b := newTestClient(hub, 2)
	hub.JoinThread(10, a)
	hub.JoinThread(10, b)

	hub.BroadcastToThread(10, 0, models.Event{Type: models.EventReadReceipt})

	assert.Equal(t, models.EventReadReceipt, receive(t, a).Type)
	assert.Equal(t, models.EventReadReceipt, receive(t, b).Type)
}

func TestBroadcastOnlyReachesJoinedRooms(t *testing.T) {
	hub := NewHub(3 * time.Second)
	in := newTestClient(hub, 1)
	out := newTestClient(hub, 2)
	hub.JoinThread(10, in)

	hub.BroadcastToThread(10, 0, models.Event{Type: models.EventMessageNew})

	receive(t, in)
	assertNoEvent(t, out)
}

func TestSendToUserReachesAllConnections(t *testing.T) {
	hub := NewHub(3 * time.Second)
	phone := newTestClient(hub, 1)
	laptop := newTestClient(hub, 1)
	other := newTestClient(hub, 2)

	hub.SendToUser(1, models.Event{Type: models.EventNotificationNew})

	assert.Equal(t, models.EventNotificationNew, receive(t, phone).Type)
	assert.Equal(t, models.EventNotificationNew, receive(t, laptop).Type)
	assertNoEvent(t, other)
}

func TestUnregisterLeavesRooms(t *testing.T) {
	hub := NewHub(3 * time.Second)
	gone := newTestClient(hub, 1)
	stays := newTestClient(hub, 2)
	hub.JoinThread(10, gone)
	hub.JoinThread(10, stays)

	hub.Unregister(gone)
	hub.BroadcastToThread(10, 0, models.Event{Type: models.EventMessageNew})

	receive(t, stays)
	assertNoEvent(t, gone)
	assert.False(t, hub.IsUserOnline(1))
	assert.True(t, hub.IsUserOnline(2))
}

func TestTypingBroadcastAndAutoExpiry(t *testing.T) {
	hub := NewHub(50 * time.Millisecond)
	typist := newTestClient(hub, 1)
	watcher := newTestClient(hub, 2)
	hub.JoinThread(10, typist)
	hub.JoinThread(10, watcher)

	hub.SetTyping(10, 1, true)

	event := receive(t, watcher)
	require.Equal(t, models.EventTypingStatus, event.Type)
	var payload models.TypingPayload
	require.NoError(t, json.Unmarshal(event.Data, &payload))
	assert.True(t, payload.IsTyping)
	assert.Equal(t, int64(1), payload.UserID)

	// Typing is never echoed to the typist.
	assertNoEvent(t, typist)

	// Without a stop, the indicator expires on its own.
	select {
	case raw := <-watcher.send:
		require.NoError(t, json.Unmarshal(raw, &event))
		require.NoError(t, json.Unmarshal(event.Data, &payload))
		assert.False(t, payload.IsTyping)
	case <-time.After(time.Second):
		t.Fatal("typing indicator did not expire")
	}
}

func TestTypingStopClearsImmediately(t *testing.T) {
	hub := NewHub(time.Hour)
	typist := newTestClient(hub, 1)
	watcher := newTestClient(hub, 2)
	hub.JoinThread(10, typist)
	hub.JoinThread(10, watcher)

	hub.SetTyping(10, 1, true)
	receive(t, watcher)

	hub.SetTyping(10, 1, false)
	event := receive(t, watcher)
	var payload models.TypingPayload
	require.NoError(t, json.Unmarshal(event.Data, &payload))
	assert.False(t, payload.IsTyping)
}

func TestTypingStopWithoutStartIsSilent(t *testing.T) {
	hub := NewHub(time.Hour)
	watcher := newTestClient(hub, 2)
	hub.JoinThread(10, watcher)

	hub.SetTyping(10, 1, false)
	assertNoEvent(t, watcher)
}

func TestTypingRefreshExtendsExpiry(t *testing.T) {
	hub := NewHub(80 * time.Millisecond)
	typist := newTestClient(hub, 1)
	watcher := newTestClient(hub, 2)
	hub.JoinThread(10, typist)
	hub.JoinThread(10, watcher)

	hub.SetTyping(10, 1, true)
	receive(t, watcher)

	// Refresh before expiry; no duplicate "typing" event is emitted.
	time.Sleep(40 * time.Millisecond)
	hub.SetTyping(10, 1, true)
	assertNoEvent(t, watcher)

	// Well after the original deadline the refreshed timer is still live.
	time.Sleep(60 * time.Millisecond)
	assertNoEvent(t, watcher)
}
