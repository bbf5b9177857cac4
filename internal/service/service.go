// Package service orchestrates message mutations. It is the single
// authority allowed to change message state: handlers and the websocket
// layer route every mutation through here.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"messaging-service/internal/events"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/sanitize"
	"messaging-service/internal/spamgate"
)

const previewLength = 120

// Broadcaster pushes real-time events to thread rooms. Pushes are
// best-effort: the hub never reports failure back into the send path.
type Broadcaster interface {
	BroadcastToThread(threadID, exceptUserID int64, event models.Event)
}

// Policy carries the service's time-window and limit knobs.
type Policy struct {
	EditWindow          time.Duration
	UndoWindow          time.Duration
	PinLimit            int
	ReadReceiptSelfEcho bool
}

// BulkDeleteResult is returned by BulkDelete; the token authorizes one
// undo within the undo window.
type BulkDeleteResult struct {
	DeletedCount int64  `json:"deleted_count"`
	OperationID  int64  `json:"operation_id"`
	UndoToken    string `json:"undo_token"`
}

// Service implements the messaging operations.
type Service struct {
	threads     repositories.ThreadRepository
	messages    repositories.MessageRepository
	operations  repositories.OperationRepository
	sanitizer   *sanitize.Sanitizer
	gate        *spamgate.Gate
	bus         *events.Bus
	broadcaster Broadcaster
	policy      Policy
	now         func() time.Time
}

// New constructs the messaging service.
func New(
	threads repositories.ThreadRepository,
	messages repositories.MessageRepository,
	operations repositories.OperationRepository,
	sanitizer *sanitize.Sanitizer,
	gate *spamgate.Gate,
	bus *events.Bus,
	broadcaster Broadcaster,
	policy Policy,
) *Service {
	return &Service{
		threads:     threads,
		messages:    messages,
		operations:  operations,
		sanitizer:   sanitizer,
		gate:        gate,
		bus:         bus,
		broadcaster: broadcaster,
		policy:      policy,
		now:         time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateOrGetThread creates a thread for the participant set, reusing an
// existing direct thread between the same pair. The creator is always a
// participant.
func (s *Service) CreateOrGetThread(ctx context.Context, creatorID int64, participantIDs []int64) (models.Thread, error) {
	ids := participantIDs
	found := false
	for _, id := range ids {
		if id == creatorID {
			found = true
			break
		}
	}
	if !found {
		ids = append([]int64{creatorID}, ids...)
	}
	if len(ids) < 2 {
		return models.Thread{}, fmt.Errorf("%w: thread needs at least one other participant", ErrValidation)
	}
	return s.threads.CreateOrGetThread(ctx, ids)
}

// ListThreads returns the caller's thread summaries.
func (s *Service) ListThreads(ctx context.Context, userID int64) ([]models.ThreadSummary, error) {
	return s.threads.ListThreads(ctx, userID)
}

// GetThreadMessages returns visible thread messages for a participant and
// advances newly seen messages to delivered, best-effort.
func (s *Service) GetThreadMessages(ctx context.Context, threadID, userID int64, limit, offset int) ([]models.Message, error) {
	if err := s.requireParticipant(ctx, threadID, userID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListThreadMessages(ctx, threadID, limit, offset)
	if err != nil {
		return nil, err
	}

	var undelivered []int64
	for _, m := range msgs {
		if models.StatusAdvances(m.Status, models.StatusDelivered) && m.IsRecipient(userID) {
			undelivered = append(undelivered, m.ID)
		}
	}
	if len(undelivered) > 0 {
		if _, err := s.messages.AdvanceStatus(ctx, undelivered, userID, models.StatusDelivered); err != nil {
			log.Printf("advance delivered failed for thread %d: %v", threadID, err)
		}
	}
	return msgs, nil
}

// SendMessage sanitizes and gates the content, persists the message, then
// kicks off fan-out and the real-time push. A message is "sent" once
// persisted; notification or transport failures never fail the send.
func (s *Service) SendMessage(ctx context.Context, threadID, senderID int64, content string, attachments []models.Attachment) (models.Message, error) {
	if err := s.requireParticipant(ctx, threadID, senderID); err != nil {
		return models.Message{}, err
	}

	clean := s.sanitizer.Sanitize(content)
	if clean == "" && len(attachments) == 0 {
		return models.Message{}, fmt.Errorf("%w: content is empty and no attachments present", ErrValidation)
	}

	if verdict := s.gate.Check(senderID, clean); verdict.IsSpam {
		observability.IncSpamRejection(verdict.Reason)
		return models.Message{}, &SpamError{Reason: verdict.Reason}
	}

	participants, err := s.threads.GetParticipants(ctx, threadID)
	if err != nil {
		return models.Message{}, fmt.Errorf("load participants: %w", err)
	}
	recipients := make([]int64, 0, len(participants)-1)
	for _, p := range participants {
		if p.UserID != senderID {
			recipients = append(recipients, p.UserID)
		}
	}

	msg := models.Message{
		ThreadID:     threadID,
		SenderID:     senderID,
		RecipientIDs: pq.Int64Array(recipients),
		Content:      clean,
		Attachments:  attachments,
	}
	if err := s.messages.CreateMessage(ctx, &msg); err != nil {
		return models.Message{}, fmt.Errorf("persist message: %w", err)
	}

	if err := s.threads.SetLastMessage(ctx, threadID, senderID, preview(clean), msg.CreatedAt); err != nil {
		log.Printf("update thread last message failed for thread %d: %v", threadID, err)
	}
	if err := s.threads.IncrementUnread(ctx, threadID, senderID); err != nil {
		log.Printf("increment unread failed for thread %d: %v", threadID, err)
	}

	s.bus.PublishMessageSent(models.MessageSent{
		Message:    &msg,
		SenderID:   senderID,
		Recipients: recipients,
	})
	s.broadcast(threadID, senderID, models.EventMessageNew, msg)

	return msg, nil
}

// EditMessage replaces the content of the sender's own message inside the
// edit window, keeping the prior revision. Edits are not re-run through
// the spam gate; the gate only guards new sends.
func (s *Service) EditMessage(ctx context.Context, messageID, actorID int64, newContent string) (models.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != actorID {
		if !msg.IsRecipient(actorID) {
			return models.Message{}, ErrNotParticipant
		}
		return models.Message{}, ErrNotSender
	}
	if msg.IsDeleted() {
		return models.Message{}, ErrMessageDeleted
	}

	now := s.now()
	if now.Sub(msg.CreatedAt) > s.policy.EditWindow {
		return models.Message{}, ErrEditWindowExpired
	}

	clean := s.sanitizer.Sanitize(newContent)
	if clean == "" && len(msg.Attachments) == 0 {
		return models.Message{}, fmt.Errorf("%w: content is empty and no attachments present", ErrValidation)
	}

	history := append(msg.EditHistory, models.Revision{Content: msg.Content, EditedAt: now})
	if err := s.messages.UpdateContent(ctx, messageID, clean, now, history); err != nil {
		return models.Message{}, err
	}

	msg.Content = clean
	msg.EditedAt = &now
	msg.EditHistory = history
	s.broadcast(msg.ThreadID, 0, models.EventMessageEdited, msg)
	return msg, nil
}

// BulkDelete soft-deletes the given messages and records one operation
// with their prior state. The operation record is written before any
// message is altered, so a failure leaves the thread untouched.
func (s *Service) BulkDelete(ctx context.Context, threadID, actorID int64, messageIDs []int64) (BulkDeleteResult, error) {
	if len(messageIDs) == 0 {
		return BulkDeleteResult{}, fmt.Errorf("%w: no message ids given", ErrValidation)
	}
	if err := s.requireParticipant(ctx, threadID, actorID); err != nil {
		return BulkDeleteResult{}, err
	}

	msgs, err := s.messages.GetThreadMessagesByIDs(ctx, threadID, messageIDs)
	if err != nil {
		return BulkDeleteResult{}, err
	}
	if len(msgs) != len(dedupe(messageIDs)) {
		return BulkDeleteResult{}, ErrPartialMatch
	}

	now := s.now()
	snapshots := make(models.SnapshotList, 0, len(msgs))
	ids := make([]int64, 0, len(msgs))
	for i := range msgs {
		snapshots = append(snapshots, msgs[i].Snapshot())
		ids = append(ids, msgs[i].ID)
	}

	op := models.Operation{
		Token:     uuid.NewString(),
		ActorID:   actorID,
		ThreadID:  threadID,
		Kind:      models.OpBulkDelete,
		Snapshots: snapshots,
		ExpiresAt: now.Add(s.policy.UndoWindow),
	}
	if err := s.operations.CreateOperation(ctx, &op); err != nil {
		return BulkDeleteResult{}, fmt.Errorf("record operation: %w", err)
	}

	deleted, err := s.messages.SoftDeleteMessages(ctx, ids, now)
	if err != nil {
		return BulkDeleteResult{}, err
	}

	s.broadcast(threadID, 0, models.EventMessageDeleted, models.MessageDeletedPayload{
		ThreadID:   threadID,
		MessageIDs: ids,
	})

	return BulkDeleteResult{DeletedCount: deleted, OperationID: op.ID, UndoToken: op.Token}, nil
}

// Undo reverses a bulk operation exactly once. The operation record is
// atomically marked consumed before any message is restored, so a
// concurrent second undo loses the race and fails.
func (s *Service) Undo(ctx context.Context, operationID int64, token string, actorID int64) (int64, error) {
	op, err := s.operations.ConsumeOperation(ctx, operationID, token, actorID, s.now())
	if err != nil {
		return 0, err
	}

	restored, err := s.messages.RestoreSnapshots(ctx, op.Snapshots)
	if err != nil {
		return 0, fmt.Errorf("restore snapshots: %w", err)
	}

	restoredIDs := make([]int64, 0, len(op.Snapshots))
	for _, snap := range op.Snapshots {
		restoredIDs = append(restoredIDs, snap.MessageID)
	}
	log.Printf("operation %d undone by user %d, %d messages restored", op.ID, actorID, restored)
	s.broadcast(op.ThreadID, 0, models.EventMessageRestored, models.MessageDeletedPayload{
		ThreadID:   op.ThreadID,
		MessageIDs: restoredIDs,
	})
	return restored, nil
}

// MarkRead advances the given messages (all unread ones when none are
// given) to read for the caller, refreshes the thread read state and
// emits a read receipt. Messages the caller did not receive are skipped.
func (s *Service) MarkRead(ctx context.Context, threadID, userID int64, messageIDs []int64) (int64, error) {
	if err := s.requireParticipant(ctx, threadID, userID); err != nil {
		return 0, err
	}

	ids := messageIDs
	if len(ids) == 0 {
		var err error
		ids, err = s.messages.ListUnreadMessageIDs(ctx, threadID, userID)
		if err != nil {
			return 0, err
		}
	}

	now := s.now()
	var updated int64
	if len(ids) > 0 {
		var err error
		updated, err = s.messages.AdvanceStatus(ctx, ids, userID, models.StatusRead)
		if err != nil {
			return 0, err
		}
	}

	if err := s.threads.UpdateReadState(ctx, threadID, userID, now); err != nil {
		log.Printf("update read state failed for thread %d user %d: %v", threadID, userID, err)
	}

	s.bus.PublishThreadRead(events.ThreadRead{ThreadID: threadID, UserID: userID, ReadAt: now})

	exceptUserID := userID
	if s.policy.ReadReceiptSelfEcho {
		// Echo to the reader's other connected devices as well.
		exceptUserID = 0
	}
	s.broadcast(threadID, exceptUserID, models.EventReadReceipt, models.ReadReceiptPayload{
		ThreadID: threadID,
		UserID:   userID,
		ReadAt:   now,
	})

	return updated, nil
}

// FlagMessage raises the global moderation flag on a message the actor
// sent or received.
func (s *Service) FlagMessage(ctx context.Context, messageID, actorID int64, reason string) (models.Message, error) {
	msg, err := s.getForActor(ctx, messageID, actorID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.messages.SetFlagged(ctx, messageID, reason); err != nil {
		return models.Message{}, err
	}
	msg.IsFlagged = true
	msg.FlagReason = &reason
	return msg, nil
}

// ArchiveMessage archives or restores a message for the actor.
func (s *Service) ArchiveMessage(ctx context.Context, messageID, actorID int64, archive bool) (models.Message, error) {
	msg, err := s.getForActor(ctx, messageID, actorID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.messages.SetArchived(ctx, messageID, archive); err != nil {
		return models.Message{}, err
	}
	msg.IsArchived = archive
	return msg, nil
}

// StarMessage toggles the star flag for the actor.
func (s *Service) StarMessage(ctx context.Context, messageID, actorID int64, starred bool) (models.Message, error) {
	msg, err := s.getForActor(ctx, messageID, actorID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.messages.SetStarred(ctx, messageID, starred); err != nil {
		return models.Message{}, err
	}
	msg.IsStarred = starred
	return msg, nil
}

// PinThread pins the thread for the user, enforcing the per-user cap.
// Pinning an over-cap thread fails instead of evicting an older pin.
func (s *Service) PinThread(ctx context.Context, threadID, userID int64) error {
	participant, err := s.threads.GetParticipant(ctx, threadID, userID)
	if err != nil {
		return ErrNotParticipant
	}
	if participant.IsPinned {
		return nil
	}

	count, err := s.threads.CountPinned(ctx, userID)
	if err != nil {
		return err
	}
	if count >= s.policy.PinLimit {
		return ErrPinLimitExceeded
	}
	return s.threads.SetPinned(ctx, threadID, userID, true)
}

// UnpinThread removes the user's pin.
func (s *Service) UnpinThread(ctx context.Context, threadID, userID int64) error {
	if err := s.requireParticipant(ctx, threadID, userID); err != nil {
		return err
	}
	return s.threads.SetPinned(ctx, threadID, userID, false)
}

// MuteThread sets the user's mute flag.
func (s *Service) MuteThread(ctx context.Context, threadID, userID int64, muted bool) error {
	if err := s.requireParticipant(ctx, threadID, userID); err != nil {
		return err
	}
	return s.threads.SetMuted(ctx, threadID, userID, muted)
}

// ArchiveThread sets the user's archive flag. Threads are never deleted;
// archiving hides them per-participant.
func (s *Service) ArchiveThread(ctx context.Context, threadID, userID int64, archived bool) error {
	if err := s.requireParticipant(ctx, threadID, userID); err != nil {
		return err
	}
	return s.threads.SetArchived(ctx, threadID, userID, archived)
}

// ThreadContacts lists the users who share a thread with userID, the
// audience for that user's presence transitions.
func (s *Service) ThreadContacts(ctx context.Context, userID int64) ([]int64, error) {
	return s.threads.ListContacts(ctx, userID)
}

// IsParticipant reports thread membership, for the websocket layer.
func (s *Service) IsParticipant(ctx context.Context, threadID, userID int64) bool {
	ok, err := s.threads.IsParticipant(ctx, threadID, userID)
	if err != nil {
		return false
	}
	return ok
}

func (s *Service) requireParticipant(ctx context.Context, threadID, userID int64) error {
	ok, err := s.threads.IsParticipant(ctx, threadID, userID)
	if err != nil {
		return fmt.Errorf("verify membership: %w", err)
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// getForActor loads a message the actor sent or received. Outsiders get
// ErrNotParticipant regardless of whether the message exists.
func (s *Service) getForActor(ctx context.Context, messageID, actorID int64) (models.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != actorID && !msg.IsRecipient(actorID) {
		return models.Message{}, ErrNotParticipant
	}
	if msg.IsDeleted() {
		return models.Message{}, ErrMessageDeleted
	}
	return msg, nil
}

func (s *Service) broadcast(threadID, exceptUserID int64, eventType string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("marshal %s event: %v", eventType, err)
		return
	}
	s.broadcaster.BroadcastToThread(threadID, exceptUserID, models.Event{
		Type:      eventType,
		Data:      data,
		Timestamp: s.now(),
	})
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
