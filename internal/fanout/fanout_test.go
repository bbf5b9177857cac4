package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/events"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func runFanout(t *testing.T, fan *Fanout, bus *events.Bus) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fan.Run(context.Background())
		close(done)
	}()
	return func() {
		bus.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("fan-out did not stop after bus close")
		}
	}
}

func TestFanoutCreatesNotificationPerRecipient(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	pusher := new(mocks.PusherMock)
	bus := events.NewBus(16)
	fan := New(notificationRepo, bus, pusher)

	var mu sync.Mutex
	var created []models.Notification
	notificationRepo.On("CreateNotification", mock.Anything, mock.AnythingOfType("*models.Notification")).
		Run(func(args mock.Arguments) {
			n := args.Get(1).(*models.Notification)
			mu.Lock()
			created = append(created, *n)
			mu.Unlock()
		}).Return(nil)
	pusher.On("IsUserOnline", mock.AnythingOfType("int64")).Return(false)
	pusher.On("SendToUser", mock.AnythingOfType("int64"), mock.AnythingOfType("models.Event")).Return()

	wait := runFanout(t, fan, bus)
	bus.PublishMessageSent(models.MessageSent{
		Message: &models.Message{
			ID:       42,
			ThreadID: 7,
			SenderID: 1,
			Content:  "hello there",
		},
		SenderID:   1,
		Recipients: []int64{2, 3},
	})
	wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, created, 2)
	byUser := map[int64]models.Notification{}
	for _, n := range created {
		byUser[n.UserID] = n
	}
	for _, userID := range []int64{2, 3} {
		n, ok := byUser[userID]
		require.True(t, ok, "no notification for user %d", userID)
		assert.Equal(t, models.NotificationMessage, n.Type)
		assert.Equal(t, "New message", n.Title)
		assert.Equal(t, "hello there", n.Body)
		assert.Equal(t, "/threads/7", n.ActionURL)
		assert.Equal(t, "42", n.Metadata["message_id"])
		assert.Equal(t, "1", n.Metadata["sender_id"])
	}

	pusher.AssertNumberOfCalls(t, "SendToUser", 2)
	pusher.AssertCalled(t, "SendToUser", int64(2), mock.AnythingOfType("models.Event"))
	pusher.AssertCalled(t, "SendToUser", int64(3), mock.AnythingOfType("models.Event"))
}

func TestFanoutPushPayload(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	pusher := new(mocks.PusherMock)
	bus := events.NewBus(16)
	fan := New(notificationRepo, bus, pusher)

	notificationRepo.On("CreateNotification", mock.Anything, mock.Anything).Return(nil)

	var pushed models.Event
	pusher.On("IsUserOnline", int64(2)).Return(true)
	pusher.On("SendToUser", int64(2), mock.AnythingOfType("models.Event")).
		Run(func(args mock.Arguments) {
			pushed = args.Get(1).(models.Event)
		}).Return()

	wait := runFanout(t, fan, bus)
	bus.PublishMessageSent(models.MessageSent{
		Message:    &models.Message{ID: 9, ThreadID: 3, SenderID: 1},
		SenderID:   1,
		Recipients: []int64{2},
	})
	wait()

	assert.Equal(t, models.EventNotificationNew, pushed.Type)
	var payload models.Notification
	require.NoError(t, json.Unmarshal(pushed.Data, &payload))
	assert.Equal(t, int64(2), payload.UserID)
	assert.Equal(t, "Sent a message", payload.Body)
}

func TestFanoutAttachmentBody(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	bus := events.NewBus(16)
	fan := New(notificationRepo, bus, nil)

	var body string
	notificationRepo.On("CreateNotification", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			body = args.Get(1).(*models.Notification).Body
		}).Return(nil)

	wait := runFanout(t, fan, bus)
	bus.PublishMessageSent(models.MessageSent{
		Message: &models.Message{
			ID:          5,
			ThreadID:    3,
			SenderID:    1,
			Attachments: models.AttachmentList{{URL: "https://cdn.example/p.jpg", Filename: "p.jpg"}},
		},
		SenderID:   1,
		Recipients: []int64{2},
	})
	wait()

	assert.Equal(t, "Sent an attachment", body)
}

func TestFanoutContinuesAfterRepoError(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	pusher := new(mocks.PusherMock)
	bus := events.NewBus(16)
	fan := New(notificationRepo, bus, pusher)

	notificationRepo.On("CreateNotification", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		return n.UserID == 2
	})).Return(errors.New("insert failed"))
	notificationRepo.On("CreateNotification", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		return n.UserID == 3
	})).Return(nil)
	pusher.On("IsUserOnline", int64(3)).Return(false)
	pusher.On("SendToUser", int64(3), mock.AnythingOfType("models.Event")).Return()

	wait := runFanout(t, fan, bus)
	bus.PublishMessageSent(models.MessageSent{
		Message:    &models.Message{ID: 1, ThreadID: 4, SenderID: 1, Content: "hi"},
		SenderID:   1,
		Recipients: []int64{2, 3},
	})
	wait()

	// The failed recipient gets no push, the rest of the fan-out proceeds.
	pusher.AssertNumberOfCalls(t, "SendToUser", 1)
	notificationRepo.AssertNumberOfCalls(t, "CreateNotification", 2)
}

func TestFanoutClearsOnThreadRead(t *testing.T) {
	notificationRepo := new(mocks.NotificationRepositoryMock)
	bus := events.NewBus(16)
	fan := New(notificationRepo, bus, nil)

	notificationRepo.On("MarkThreadRead", mock.Anything, int64(2), int64(7)).Return(int64(3), nil)

	wait := runFanout(t, fan, bus)
	bus.PublishThreadRead(events.ThreadRead{ThreadID: 7, UserID: 2, ReadAt: time.Now()})
	wait()

	notificationRepo.AssertExpectations(t)
}

func TestFanoutStopsOnContextCancel(t *testing.T) {
	bus := events.NewBus(16)
	fan := New(new(mocks.NotificationRepositoryMock), bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fan.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fan-out did not stop on cancel")
	}
}
