package service

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/events"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/sanitize"
	"messaging-service/internal/spamgate"
)

type fixture struct {
	threads     *mocks.ThreadRepositoryMock
	messages    *mocks.MessageRepositoryMock
	operations  *mocks.OperationRepositoryMock
	broadcaster *mocks.BroadcasterMock
	bus         *events.Bus
	svc         *Service
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		threads:     new(mocks.ThreadRepositoryMock),
		messages:    new(mocks.MessageRepositoryMock),
		operations:  new(mocks.OperationRepositoryMock),
		broadcaster: new(mocks.BroadcasterMock),
		bus:         events.NewBus(16),
		now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	gate := spamgate.NewWithClock(spamgate.Policy{
		RateLimit:    30,
		RateWindow:   time.Minute,
		DuplicateGap: 5 * time.Second,
		MaxLinks:     5,
		Blacklist:    []string{"forbidden phrase"},
	}, func() time.Time { return f.now })

	f.svc = New(f.threads, f.messages, f.operations, sanitize.New(), gate, f.bus, f.broadcaster, Policy{
		EditWindow:          15 * time.Minute,
		UndoWindow:          30 * time.Second,
		PinLimit:            10,
		ReadReceiptSelfEcho: true,
	})
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) expectParticipant(threadID, userID int64, ok bool) {
	f.threads.On("IsParticipant", mock.Anything, threadID, userID).Return(ok, nil)
}

func TestSendMessageHappyPath(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 1, true)
	f.threads.On("GetParticipants", mock.Anything, int64(10)).Return([]models.Participant{
		{ThreadID: 10, UserID: 1}, {ThreadID: 10, UserID: 2},
	}, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, mock.AnythingOfType("*models.Message")).Run(func(args mock.Arguments) {
		msg := args.Get(1).(*models.Message)
		msg.ID = 100
		msg.Status = models.StatusSent
		msg.CreatedAt = f.now
	}).Return(nil).Once()
	f.threads.On("SetLastMessage", mock.Anything, int64(10), int64(1), "hello", f.now).Return(nil).Once()
	f.threads.On("IncrementUnread", mock.Anything, int64(10), int64(1)).Return(nil).Once()
	f.broadcaster.On("BroadcastToThread", int64(10), int64(1), mock.Anything).Once()

	msg, err := f.svc.SendMessage(context.Background(), 10, 1, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), msg.ID)
	assert.Equal(t, models.StatusSent, msg.Status)
	assert.Equal(t, []int64{2}, []int64(msg.RecipientIDs))

	select {
	case sent := <-f.bus.MessageSent():
		assert.Equal(t, int64(100), sent.Message.ID)
		assert.Equal(t, []int64{2}, sent.Recipients)
	default:
		t.Fatal("expected a MessageSent bus event")
	}

	f.threads.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.broadcaster.AssertExpectations(t)
}

func TestSendMessageSanitizesContent(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 1, true)
	f.threads.On("GetParticipants", mock.Anything, int64(10)).Return([]models.Participant{
		{ThreadID: 10, UserID: 1}, {ThreadID: 10, UserID: 2},
	}, nil).Once()

	var stored string
	f.messages.On("CreateMessage", mock.Anything, mock.AnythingOfType("*models.Message")).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*models.Message).Content
	}).Return(nil).Once()
	f.threads.On("SetLastMessage", mock.Anything, int64(10), int64(1), mock.Anything, mock.Anything).Return(nil).Once()
	f.threads.On("IncrementUnread", mock.Anything, int64(10), int64(1)).Return(nil).Once()
	f.broadcaster.On("BroadcastToThread", int64(10), int64(1), mock.Anything).Once()

	_, err := f.svc.SendMessage(context.Background(), 10, 1, `hi <script>alert(1)</script>there`, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", stored)
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 99, false)

	_, err := f.svc.SendMessage(context.Background(), 10, 99, "hi", nil)
	assert.ErrorIs(t, err, ErrNotParticipant)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestSendMessageRejectsEmptyAfterSanitize(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 1, true)

	_, err := f.svc.SendMessage(context.Background(), 10, 1, "<script>only()</script>", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSendMessageSpamRejection(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 1, true)

	_, err := f.svc.SendMessage(context.Background(), 10, 1, "totally forbidden phrase here", nil)
	var spamErr *SpamError
	require.ErrorAs(t, err, &spamErr)
	assert.Equal(t, spamgate.ReasonBlacklisted, spamErr.Reason)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestEditMessageInsideWindow(t *testing.T) {
	f := newFixture(t)
	created := f.now.Add(-14 * time.Minute)
	f.messages.On("GetMessage", mock.Anything, int64(5)).Return(models.Message{
		ID: 5, ThreadID: 10, SenderID: 1, Content: "old", CreatedAt: created,
	}, nil).Once()
	f.messages.On("UpdateContent", mock.Anything, int64(5), "new", f.now, mock.Anything).Return(nil).Once()
	f.broadcaster.On("BroadcastToThread", int64(10), int64(0), mock.Anything).Once()

	msg, err := f.svc.EditMessage(context.Background(), 5, 1, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", msg.Content)
	require.Len(t, msg.EditHistory, 1)
	assert.Equal(t, "old", msg.EditHistory[0].Content)
}

func TestEditMessageWindowBoundary(t *testing.T) {
	f := newFixture(t)

	// One second inside the window: allowed.
	f.messages.On("GetMessage", mock.Anything, int64(5)).Return(models.Message{
		ID: 5, ThreadID: 10, SenderID: 1, Content: "old",
		CreatedAt: f.now.Add(-15*time.Minute + time.Second),
	}, nil).Once()
	f.messages.On("UpdateContent", mock.Anything, int64(5), mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.broadcaster.On("BroadcastToThread", int64(10), int64(0), mock.Anything).Once()

	_, err := f.svc.EditMessage(context.Background(), 5, 1, "edit")
	require.NoError(t, err)

	// One second past the window: rejected.
	f.messages.On("GetMessage", mock.Anything, int64(6)).Return(models.Message{
		ID: 6, ThreadID: 10, SenderID: 1, Content: "old",
		CreatedAt: f.now.Add(-15*time.Minute - time.Second),
	}, nil).Once()

	_, err = f.svc.EditMessage(context.Background(), 6, 1, "edit")
	assert.ErrorIs(t, err, ErrEditWindowExpired)
}

func TestEditMessageSenderOnly(t *testing.T) {
	f := newFixture(t)
	f.messages.On("GetMessage", mock.Anything, int64(5)).Return(models.Message{
		ID: 5, ThreadID: 10, SenderID: 1, RecipientIDs: pq.Int64Array{2}, CreatedAt: f.now,
	}, nil).Once()

	_, err := f.svc.EditMessage(context.Background(), 5, 2, "hijack")
	assert.ErrorIs(t, err, ErrNotSender)
}

func TestEditMessageOutsiderLooksLikeMissing(t *testing.T) {
	f := newFixture(t)
	f.messages.On("GetMessage", mock.Anything, int64(5)).Return(models.Message{
		ID: 5, ThreadID: 10, SenderID: 1, RecipientIDs: pq.Int64Array{2}, CreatedAt: f.now,
	}, nil).Once()

	_, err := f.svc.EditMessage(context.Background(), 5, 9, "hijack")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestEditMessageDeleted(t *testing.T) {
	f := newFixture(t)
	deletedAt := f.now.Add(-time.Minute)
	f.messages.On("GetMessage", mock.Anything, int64(5)).Return(models.Message{
		ID: 5, ThreadID: 10, SenderID: 1, CreatedAt: f.now.Add(-2 * time.Minute), DeletedAt: &deletedAt,
	}, nil).Once()

	_, err := f.svc.EditMessage(context.Background(), 5, 1, "edit")
	assert.ErrorIs(t, err, ErrMessageDeleted)
}

func TestBulkDeleteRecordsOperationFirst(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 1, true)
	f.messages.On("GetThreadMessagesByIDs", mock.Anything, int64(10), []int64{5, 6}).Return([]models.Message{
		{ID: 5, ThreadID: 10, Status: models.StatusRead},
		{ID: 6, ThreadID: 10, Status: models.StatusSent},
	}, nil).Once()

	var op *models.Operation
	f.operations.On("CreateOperation", mock.Anything, mock.AnythingOfType("*models.Operation")).Run(func(args mock.Arguments) {
		op = args.Get(1).(*models.Operation)
		op.ID = 77
	}).Return(nil).Once()
	f.messages.On("SoftDeleteMessages", mock.Anything, []int64{5, 6}, f.now).Return(int64(2), nil).Once()
	f.broadcaster.On("BroadcastToThread", int64(10), int64(0), mock.Anything).Once()

	result, err := f.svc.BulkDelete(context.Background(), 10, 1, []int64{5, 6})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.DeletedCount)
	assert.Equal(t, int64(77), result.OperationID)
	assert.NotEmpty(t, result.UndoToken)

	require.NotNil(t, op)
	assert.Equal(t, models.OpBulkDelete, op.Kind)
	assert.Equal(t, f.now.Add(30*time.Second), op.ExpiresAt)
	require.Len(t, op.Snapshots, 2)
	assert.Equal(t, models.StatusRead, op.Snapshots[0].Status)
}

func TestBulkDeletePartialMatch(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 1, true)
	// One of the requested ids belongs to another thread.
	f.messages.On("GetThreadMessagesByIDs", mock.Anything, int64(10), []int64{5, 999}).Return([]models.Message{
		{ID: 5, ThreadID: 10},
	}, nil).Once()

	_, err := f.svc.BulkDelete(context.Background(), 10, 1, []int64{5, 999})
	assert.ErrorIs(t, err, ErrPartialMatch)
	f.operations.AssertNotCalled(t, "CreateOperation", mock.Anything, mock.Anything)
	f.messages.AssertNotCalled(t, "SoftDeleteMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestUndoRestoresSnapshots(t *testing.T) {
	f := newFixture(t)
	snapshots := models.SnapshotList{{MessageID: 5, Status: models.StatusRead}}
	f.operations.On("ConsumeOperation", mock.Anything, int64(77), "tok", int64(1), f.now).Return(models.Operation{
		ID: 77, ThreadID: 10, Snapshots: snapshots,
	}, nil).Once()
	f.messages.On("RestoreSnapshots", mock.Anything, []models.MessageSnapshot(snapshots)).Return(int64(1), nil).Once()
	f.broadcaster.On("BroadcastToThread", int64(10), int64(0), mock.Anything).Once()

	restored, err := f.svc.Undo(context.Background(), 77, "tok", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored)
}

func TestUndoConsumedOperationFails(t *testing.T) {
	f := newFixture(t)
	f.operations.On("ConsumeOperation", mock.Anything, int64(77), "tok", int64(1), f.now).
		Return(nil, repositories.ErrOperationNotFound).Once()

	_, err := f.svc.Undo(context.Background(), 77, "tok", 1)
	assert.ErrorIs(t, err, repositories.ErrOperationNotFound)
	f.messages.AssertNotCalled(t, "RestoreSnapshots", mock.Anything, mock.Anything)
}

func TestMarkReadExplicitIDs(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 2, true)
	f.messages.On("AdvanceStatus", mock.Anything, []int64{5, 6}, int64(2), models.StatusRead).Return(int64(2), nil).Once()
	f.threads.On("UpdateReadState", mock.Anything, int64(10), int64(2), f.now).Return(nil).Once()
	// Self-echo on: the receipt goes to every connection, reader included.
	f.broadcaster.On("BroadcastToThread", int64(10), int64(0), mock.Anything).Once()

	updated, err := f.svc.MarkRead(context.Background(), 10, 2, []int64{5, 6})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	select {
	case read := <-f.bus.ThreadRead():
		assert.Equal(t, int64(10), read.ThreadID)
		assert.Equal(t, int64(2), read.UserID)
	default:
		t.Fatal("expected a ThreadRead bus event")
	}
}

func TestMarkReadAllUnread(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 2, true)
	f.messages.On("ListUnreadMessageIDs", mock.Anything, int64(10), int64(2)).Return([]int64{7, 8, 9}, nil).Once()
	f.messages.On("AdvanceStatus", mock.Anything, []int64{7, 8, 9}, int64(2), models.StatusRead).Return(int64(3), nil).Once()
	f.threads.On("UpdateReadState", mock.Anything, int64(10), int64(2), f.now).Return(nil).Once()
	f.broadcaster.On("BroadcastToThread", int64(10), int64(0), mock.Anything).Once()

	updated, err := f.svc.MarkRead(context.Background(), 10, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)
}

func TestMarkReadWithoutSelfEcho(t *testing.T) {
	f := newFixture(t)
	f.svc.policy.ReadReceiptSelfEcho = false
	f.expectParticipant(10, 2, true)
	f.messages.On("ListUnreadMessageIDs", mock.Anything, int64(10), int64(2)).Return([]int64(nil), nil).Once()
	f.threads.On("UpdateReadState", mock.Anything, int64(10), int64(2), f.now).Return(nil).Once()
	f.broadcaster.On("BroadcastToThread", int64(10), int64(2), mock.Anything).Once()

	_, err := f.svc.MarkRead(context.Background(), 10, 2, nil)
	require.NoError(t, err)
	f.broadcaster.AssertExpectations(t)
}

func TestPinThreadCap(t *testing.T) {
	f := newFixture(t)
	f.threads.On("GetParticipant", mock.Anything, int64(10), int64(1)).Return(models.Participant{
		ThreadID: 10, UserID: 1, IsPinned: false,
	}, nil).Once()
	f.threads.On("CountPinned", mock.Anything, int64(1)).Return(10, nil).Once()

	err := f.svc.PinThread(context.Background(), 10, 1)
	assert.ErrorIs(t, err, ErrPinLimitExceeded)
	f.threads.AssertNotCalled(t, "SetPinned", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPinThreadAfterUnpin(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(11, 1, true)

	f.threads.On("GetParticipant", mock.Anything, int64(10), int64(1)).Return(models.Participant{
		ThreadID: 10, UserID: 1,
	}, nil).Once()
	f.threads.On("CountPinned", mock.Anything, int64(1)).Return(10, nil).Once()
	require.ErrorIs(t, f.svc.PinThread(context.Background(), 10, 1), ErrPinLimitExceeded)

	f.threads.On("SetPinned", mock.Anything, int64(11), int64(1), false).Return(nil).Once()
	require.NoError(t, f.svc.UnpinThread(context.Background(), 11, 1))

	f.threads.On("GetParticipant", mock.Anything, int64(10), int64(1)).Return(models.Participant{
		ThreadID: 10, UserID: 1,
	}, nil).Once()
	f.threads.On("CountPinned", mock.Anything, int64(1)).Return(9, nil).Once()
	f.threads.On("SetPinned", mock.Anything, int64(10), int64(1), true).Return(nil).Once()
	require.NoError(t, f.svc.PinThread(context.Background(), 10, 1))
}

func TestPinThreadIdempotent(t *testing.T) {
	f := newFixture(t)
	f.threads.On("GetParticipant", mock.Anything, int64(10), int64(1)).Return(models.Participant{
		ThreadID: 10, UserID: 1, IsPinned: true,
	}, nil).Once()

	require.NoError(t, f.svc.PinThread(context.Background(), 10, 1))
	f.threads.AssertNotCalled(t, "CountPinned", mock.Anything, mock.Anything)
}

func TestCreateOrGetThreadIncludesCreator(t *testing.T) {
	f := newFixture(t)
	f.threads.On("CreateOrGetThread", mock.Anything, []int64{1, 2}).Return(models.Thread{ID: 10}, nil).Once()

	thread, err := f.svc.CreateOrGetThread(context.Background(), 1, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, int64(10), thread.ID)
}

func TestCreateOrGetThreadRejectsSolo(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrGetThread(context.Background(), 1, []int64{1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFlagMessageOutsiderDenied(t *testing.T) {
	f := newFixture(t)
	f.messages.On("GetMessage", mock.Anything, int64(5)).Return(models.Message{
		ID: 5, ThreadID: 10, SenderID: 1, RecipientIDs: pq.Int64Array{2},
	}, nil).Once()

	_, err := f.svc.FlagMessage(context.Background(), 5, 99, "spam")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestGetThreadMessagesAdvancesDelivered(t *testing.T) {
	f := newFixture(t)
	f.expectParticipant(10, 2, true)
	f.messages.On("ListThreadMessages", mock.Anything, int64(10), 50, 0).Return([]models.Message{
		{ID: 5, ThreadID: 10, SenderID: 1, RecipientIDs: pq.Int64Array{2}, Status: models.StatusSent},
		{ID: 6, ThreadID: 10, SenderID: 2, RecipientIDs: pq.Int64Array{1}, Status: models.StatusSent},
		{ID: 7, ThreadID: 10, SenderID: 1, RecipientIDs: pq.Int64Array{2}, Status: models.StatusRead},
	}, nil).Once()
	// Only the message the caller received and has not yet seen advances.
	f.messages.On("AdvanceStatus", mock.Anything, []int64{5}, int64(2), models.StatusDelivered).Return(int64(1), nil).Once()

	msgs, err := f.svc.GetThreadMessages(context.Background(), 10, 2, 50, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	f.messages.AssertExpectations(t)
}
