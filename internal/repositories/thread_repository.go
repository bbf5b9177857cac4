package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrThreadNotFound = errors.New("thread not found")

// ThreadRepository abstracts thread persistence.
type ThreadRepository interface {
	CreateOrGetThread(ctx context.Context, participantIDs []int64) (models.Thread, error)
	GetThread(ctx context.Context, threadID int64) (models.Thread, error)
	GetParticipants(ctx context.Context, threadID int64) ([]models.Participant, error)
	GetParticipant(ctx context.Context, threadID, userID int64) (models.Participant, error)
	IsParticipant(ctx context.Context, threadID, userID int64) (bool, error)
	ListThreads(ctx context.Context, userID int64) ([]models.ThreadSummary, error)
	ListContacts(ctx context.Context, userID int64) ([]int64, error)
	SetLastMessage(ctx context.Context, threadID, senderID int64, preview string, at time.Time) error
	IncrementUnread(ctx context.Context, threadID, exceptUserID int64) error
	UpdateReadState(ctx context.Context, threadID, userID int64, readAt time.Time) error
	SetPinned(ctx context.Context, threadID, userID int64, pinned bool) error
	CountPinned(ctx context.Context, userID int64) (int, error)
	SetMuted(ctx context.Context, threadID, userID int64, muted bool) error
	SetArchived(ctx context.Context, threadID, userID int64, archived bool) error
}

// ThreadRepo is a sqlx implementation of ThreadRepository.
type ThreadRepo struct {
	db *sqlx.DB
}

// NewThreadRepo constructs a ThreadRepo.
func NewThreadRepo(db *sqlx.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

// CreateOrGetThread creates a thread for the participant set, reusing an
// existing direct thread with the same canonical signature. Participant
// order in the argument does not matter.
func (r *ThreadRepo) CreateOrGetThread(ctx context.Context, participantIDs []int64) (models.Thread, error) {
	if len(participantIDs) < 2 {
		return models.Thread{}, errors.New("thread needs at least two participants")
	}
	seen := map[int64]struct{}{}
	for _, id := range participantIDs {
		if _, dup := seen[id]; dup {
			return models.Thread{}, errors.New("duplicate participant")
		}
		seen[id] = struct{}{}
	}

	kind := models.ThreadGroup
	if len(participantIDs) == 2 {
		kind = models.ThreadDirect
	}
	signature := models.ParticipantSignature(participantIDs)

	if kind == models.ThreadDirect {
		thread, err := r.findDirectThread(ctx, signature)
		if err == nil {
			return thread, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return models.Thread{}, err
		}
	}

	thread, err := r.insertThread(ctx, kind, signature, participantIDs)
	if err != nil {
		// Two concurrent first-sends between the same participants can
		// both miss the lookup; the signature index rejects the loser,
		// which must reuse the winner's row.
		if kind == models.ThreadDirect && isUniqueViolation(err) {
			return r.findDirectThread(ctx, signature)
		}
		return models.Thread{}, err
	}
	return thread, nil
}

func (r *ThreadRepo) findDirectThread(ctx context.Context, signature string) (models.Thread, error) {
	var thread models.Thread
	err := r.db.GetContext(ctx, &thread,
		`SELECT id, kind, participant_signature, last_message_preview, last_message_sender_id,
            last_message_at, created_at, updated_at
         FROM threads WHERE kind=$1 AND participant_signature=$2`, models.ThreadDirect, signature)
	return thread, err
}

func (r *ThreadRepo) insertThread(ctx context.Context, kind, signature string, participantIDs []int64) (models.Thread, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Thread{}, err
	}
	defer tx.Rollback()

	var thread models.Thread
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO threads (kind, participant_signature) VALUES ($1, $2)
         RETURNING id, kind, participant_signature, last_message_preview, last_message_sender_id,
            last_message_at, created_at, updated_at`, kind, signature).
		StructScan(&thread)
	if err != nil {
		return models.Thread{}, err
	}

	for _, userID := range participantIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO thread_participants (thread_id, user_id) VALUES ($1, $2)`,
			thread.ID, userID); err != nil {
			return models.Thread{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Thread{}, err
	}
	return thread, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetThread fetches a thread by id, participants included.
func (r *ThreadRepo) GetThread(ctx context.Context, threadID int64) (models.Thread, error) {
	var thread models.Thread
	err := r.db.GetContext(ctx, &thread,
		`SELECT id, kind, participant_signature, last_message_preview, last_message_sender_id,
            last_message_at, created_at, updated_at
         FROM threads WHERE id=$1`, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Thread{}, ErrThreadNotFound
	}
	if err != nil {
		return models.Thread{}, err
	}

	thread.Participants, err = r.GetParticipants(ctx, threadID)
	return thread, err
}

// GetParticipants returns all participant rows for a thread.
func (r *ThreadRepo) GetParticipants(ctx context.Context, threadID int64) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants,
		`SELECT thread_id, user_id, last_read_at, unread_count, is_pinned, is_muted, is_archived
         FROM thread_participants WHERE thread_id=$1 ORDER BY user_id`, threadID)
	return participants, err
}

// GetParticipant returns one user's membership row.
func (r *ThreadRepo) GetParticipant(ctx context.Context, threadID, userID int64) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p,
		`SELECT thread_id, user_id, last_read_at, unread_count, is_pinned, is_muted, is_archived
         FROM thread_participants WHERE thread_id=$1 AND user_id=$2`, threadID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrThreadNotFound
	}
	return p, err
}

// IsParticipant checks whether a user belongs to the thread.
func (r *ThreadRepo) IsParticipant(ctx context.Context, threadID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM thread_participants WHERE thread_id=$1 AND user_id=$2)`,
		threadID, userID)
	return exists, err
}

// ListThreads returns threads visible to the user, pinned first, most
// recent activity next.
func (r *ThreadRepo) ListThreads(ctx context.Context, userID int64) ([]models.ThreadSummary, error) {
	query := `SELECT t.id, t.kind, t.last_message_preview, t.last_message_at, t.created_at,
            tp.unread_count, tp.is_pinned, tp.is_muted, tp.is_archived
        FROM threads t
        JOIN thread_participants tp ON tp.thread_id = t.id AND tp.user_id=$1
        WHERE tp.is_archived = FALSE
        ORDER BY tp.is_pinned DESC, t.last_message_at DESC NULLS LAST, t.created_at DESC`
	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ThreadSummary
	for rows.Next() {
		var s models.ThreadSummary
		if err := rows.Scan(&s.ThreadID, &s.Kind, &s.LastMessagePreview, &s.LastMessageAt,
			&s.CreatedAt, &s.UnreadCount, &s.IsPinned, &s.IsMuted, &s.IsArchived); err != nil {
			return nil, err
		}
		if err := r.db.SelectContext(ctx, &s.ParticipantIDs,
			`SELECT user_id FROM thread_participants WHERE thread_id=$1 ORDER BY user_id`,
			s.ThreadID); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// ListContacts returns the distinct users who share at least one thread
// with the given user.
func (r *ThreadRepo) ListContacts(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT other.user_id
         FROM thread_participants own
         JOIN thread_participants other ON other.thread_id = own.thread_id
         WHERE own.user_id=$1 AND other.user_id<>$1
         ORDER BY other.user_id`, userID)
	return ids, err
}

// SetLastMessage refreshes the denormalized last-message snapshot.
func (r *ThreadRepo) SetLastMessage(ctx context.Context, threadID, senderID int64, preview string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE threads SET last_message_preview=$2, last_message_sender_id=$3,
            last_message_at=$4, updated_at=NOW()
         WHERE id=$1`, threadID, preview, senderID, at)
	return err
}

// IncrementUnread bumps the unread counter for every participant except
// the sender.
func (r *ThreadRepo) IncrementUnread(ctx context.Context, threadID, exceptUserID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE thread_participants SET unread_count = unread_count + 1
         WHERE thread_id=$1 AND user_id<>$2`, threadID, exceptUserID)
	return err
}

// UpdateReadState advances the participant's last_read_at and recalculates
// the unread counter from the messages actually left unread.
func (r *ThreadRepo) UpdateReadState(ctx context.Context, threadID, userID int64, readAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE thread_participants SET last_read_at=$3,
            unread_count = (
                SELECT COUNT(*) FROM messages m
                WHERE m.thread_id=$1 AND m.sender_id<>$2
                  AND m.deleted_at IS NULL AND m.status <> 'read'
            )
         WHERE thread_id=$1 AND user_id=$2`, threadID, userID, readAt)
	return err
}

// SetPinned toggles the pin flag for one participant.
func (r *ThreadRepo) SetPinned(ctx context.Context, threadID, userID int64, pinned bool) error {
	return r.setParticipantFlag(ctx, "is_pinned", threadID, userID, pinned)
}

// CountPinned counts the user's pinned threads.
func (r *ThreadRepo) CountPinned(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM thread_participants WHERE user_id=$1 AND is_pinned = TRUE`, userID)
	return count, err
}

// SetMuted toggles the mute flag for one participant.
func (r *ThreadRepo) SetMuted(ctx context.Context, threadID, userID int64, muted bool) error {
	return r.setParticipantFlag(ctx, "is_muted", threadID, userID, muted)
}

// SetArchived toggles the archive flag for one participant. Threads are
// never hard-deleted; archiving is the per-participant replacement.
func (r *ThreadRepo) SetArchived(ctx context.Context, threadID, userID int64, archived bool) error {
	return r.setParticipantFlag(ctx, "is_archived", threadID, userID, archived)
}

func (r *ThreadRepo) setParticipantFlag(ctx context.Context, column string, threadID, userID int64, value bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE thread_participants SET `+column+`=$3 WHERE thread_id=$1 AND user_id=$2`,
		threadID, userID, value)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrThreadNotFound
	}
	return nil
}
