package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
)

type ThreadRepositoryMock struct {
	mock.Mock
}

func (m *ThreadRepositoryMock) CreateOrGetThread(ctx context.Context, participantIDs []int64) (models.Thread, error) {
	args := m.Called(ctx, participantIDs)
	var thread models.Thread
	if val := args.Get(0); val != nil {
		thread = val.(models.Thread)
	}
	return thread, args.Error(1)
}

func (m *ThreadRepositoryMock) GetThread(ctx context.Context, threadID int64) (models.Thread, error) {
	args := m.Called(ctx, threadID)
	var thread models.Thread
	if val := args.Get(0); val != nil {
		thread = val.(models.Thread)
	}
	return thread, args.Error(1)
}

func (m *ThreadRepositoryMock) GetParticipants(ctx context.Context, threadID int64) ([]models.Participant, error) {
	args := m.Called(ctx, threadID)
	var list []models.Participant
	if val := args.Get(0); val != nil {
		list = val.([]models.Participant)
	}
	return list, args.Error(1)
}

func (m *ThreadRepositoryMock) GetParticipant(ctx context.Context, threadID, userID int64) (models.Participant, error) {
	args := m.Called(ctx, threadID, userID)
	var p models.Participant
	if val := args.Get(0); val != nil {
		p = val.(models.Participant)
	}
	return p, args.Error(1)
}

func (m *ThreadRepositoryMock) IsParticipant(ctx context.Context, threadID, userID int64) (bool, error) {
	args := m.Called(ctx, threadID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ThreadRepositoryMock) ListThreads(ctx context.Context, userID int64) ([]models.ThreadSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ThreadSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ThreadSummary)
	}
	return list, args.Error(1)
}

func (m *ThreadRepositoryMock) ListContacts(ctx context.Context, userID int64) ([]int64, error) {
	args := m.Called(ctx, userID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *ThreadRepositoryMock) SetLastMessage(ctx context.Context, threadID, senderID int64, preview string, at time.Time) error {
	args := m.Called(ctx, threadID, senderID, preview, at)
	return args.Error(0)
}

func (m *ThreadRepositoryMock) IncrementUnread(ctx context.Context, threadID, exceptUserID int64) error {
	args := m.Called(ctx, threadID, exceptUserID)
	return args.Error(0)
}

func (m *ThreadRepositoryMock) UpdateReadState(ctx context.Context, threadID, userID int64, readAt time.Time) error {
	args := m.Called(ctx, threadID, userID, readAt)
	return args.Error(0)
}

func (m *ThreadRepositoryMock) SetPinned(ctx context.Context, threadID, userID int64, pinned bool) error {
	args := m.Called(ctx, threadID, userID, pinned)
	return args.Error(0)
}

func (m *ThreadRepositoryMock) CountPinned(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *ThreadRepositoryMock) SetMuted(ctx context.Context, threadID, userID int64, muted bool) error {
	args := m.Called(ctx, threadID, userID, muted)
	return args.Error(0)
}

func (m *ThreadRepositoryMock) SetArchived(ctx context.Context, threadID, userID int64, archived bool) error {
	args := m.Called(ctx, threadID, userID, archived)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListThreadMessages(ctx context.Context, threadID int64, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, threadID, limit, offset)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) GetThreadMessagesByIDs(ctx context.Context, threadID int64, messageIDs []int64) ([]models.Message, error) {
	args := m.Called(ctx, threadID, messageIDs)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID int64, content string, editedAt time.Time, history models.RevisionList) error {
	args := m.Called(ctx, messageID, content, editedAt, history)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SoftDeleteMessages(ctx context.Context, messageIDs []int64, deletedAt time.Time) (int64, error) {
	args := m.Called(ctx, messageIDs, deletedAt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) RestoreSnapshots(ctx context.Context, snapshots []models.MessageSnapshot) (int64, error) {
	args := m.Called(ctx, snapshots)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) AdvanceStatus(ctx context.Context, messageIDs []int64, userID int64, status string) (int64, error) {
	args := m.Called(ctx, messageIDs, userID, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) ListUnreadMessageIDs(ctx context.Context, threadID, userID int64) ([]int64, error) {
	args := m.Called(ctx, threadID, userID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *MessageRepositoryMock) SetStarred(ctx context.Context, messageID int64, starred bool) error {
	args := m.Called(ctx, messageID, starred)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetArchived(ctx context.Context, messageID int64, archived bool) error {
	args := m.Called(ctx, messageID, archived)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetFlagged(ctx context.Context, messageID int64, reason string) error {
	args := m.Called(ctx, messageID, reason)
	return args.Error(0)
}

type OperationRepositoryMock struct {
	mock.Mock
}

func (m *OperationRepositoryMock) CreateOperation(ctx context.Context, op *models.Operation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *OperationRepositoryMock) ConsumeOperation(ctx context.Context, operationID int64, token string, actorID int64, now time.Time) (models.Operation, error) {
	args := m.Called(ctx, operationID, token, actorID, now)
	var op models.Operation
	if val := args.Get(0); val != nil {
		op = val.(models.Operation)
	}
	return op, args.Error(1)
}

func (m *OperationRepositoryMock) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type NotificationRepositoryMock struct {
	mock.Mock
}

func (m *NotificationRepositoryMock) CreateNotification(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *NotificationRepositoryMock) ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationRepositoryMock) CountUnread(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *NotificationRepositoryMock) MarkRead(ctx context.Context, userID int64, notificationIDs []int64) (int64, error) {
	args := m.Called(ctx, userID, notificationIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepositoryMock) MarkThreadRead(ctx context.Context, userID, threadID int64) (int64, error) {
	args := m.Called(ctx, userID, threadID)
	return args.Get(0).(int64), args.Error(1)
}

// BroadcasterMock records events handed to the websocket hub.
type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastToThread(threadID, exceptUserID int64, event models.Event) {
	m.Called(threadID, exceptUserID, event)
}

// PusherMock records personal-room pushes from the fan-out.
type PusherMock struct {
	mock.Mock
}

func (m *PusherMock) SendToUser(userID int64, event models.Event) {
	m.Called(userID, event)
}

func (m *PusherMock) IsUserOnline(userID int64) bool {
	args := m.Called(userID)
	return args.Bool(0)
}

// VerifierMock resolves tokens from a fixed table.
type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}
