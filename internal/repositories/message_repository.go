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

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, thread_id, sender_id, recipient_ids, content, attachments, status,
    is_starred, is_archived, is_flagged, flag_reason, edited_at, edit_history, deleted_at, created_at`

// MessageRepository defines interactions for messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListThreadMessages(ctx context.Context, threadID int64, limit, offset int) ([]models.Message, error)
	GetThreadMessagesByIDs(ctx context.Context, threadID int64, messageIDs []int64) ([]models.Message, error)
	UpdateContent(ctx context.Context, messageID int64, content string, editedAt time.Time, history models.RevisionList) error
	SoftDeleteMessages(ctx context.Context, messageIDs []int64, deletedAt time.Time) (int64, error)
	RestoreSnapshots(ctx context.Context, snapshots []models.MessageSnapshot) (int64, error)
	AdvanceStatus(ctx context.Context, messageIDs []int64, userID int64, status string) (int64, error)
	ListUnreadMessageIDs(ctx context.Context, threadID, userID int64) ([]int64, error)
	SetStarred(ctx context.Context, messageID int64, starred bool) error
	SetArchived(ctx context.Context, messageID int64, archived bool) error
	SetFlagged(ctx context.Context, messageID int64, reason string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and fills in the generated fields.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg *models.Message) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (thread_id, sender_id, recipient_ids, content, attachments, status)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+messageColumns,
		msg.ThreadID, msg.SenderID, msg.RecipientIDs, msg.Content, msg.Attachments, models.StatusSent).
		StructScan(msg)
}

// GetMessage retrieves a single message, deleted ones included; callers
// decide whether a soft-deleted message is visible (moderation/audit paths
// still need it).
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListThreadMessages returns visible thread messages in persisted order:
// created_at ascending, insertion id breaking ties.
func (r *MessageRepo) ListThreadMessages(ctx context.Context, threadID int64, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE thread_id=$1 AND deleted_at IS NULL
         ORDER BY created_at ASC, id ASC
         LIMIT $2 OFFSET $3`, threadID, limit, offset)
	return msgs, err
}

// GetThreadMessagesByIDs fetches the requested messages that belong to the
// thread and are not already deleted.
func (r *MessageRepo) GetThreadMessagesByIDs(ctx context.Context, threadID int64, messageIDs []int64) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE thread_id=$1 AND id = ANY($2) AND deleted_at IS NULL
         ORDER BY created_at ASC, id ASC`, threadID, pq.Array(messageIDs))
	return msgs, err
}

// UpdateContent replaces the content and appends the prior revision.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int64, content string, editedAt time.Time, history models.RevisionList) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content=$2, edited_at=$3, edit_history=$4 WHERE id=$1`,
		messageID, content, editedAt, history)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SoftDeleteMessages marks the messages deleted and reports how many rows
// changed.
func (r *MessageRepo) SoftDeleteMessages(ctx context.Context, messageIDs []int64, deletedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at=$2 WHERE id = ANY($1) AND deleted_at IS NULL`,
		pq.Array(messageIDs), deletedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RestoreSnapshots writes each message's pre-operation state back verbatim.
func (r *MessageRepo) RestoreSnapshots(ctx context.Context, snapshots []models.MessageSnapshot) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var restored int64
	for _, snap := range snapshots {
		res, err := tx.ExecContext(ctx,
			`UPDATE messages SET status=$2, is_starred=$3, is_archived=$4, deleted_at=$5 WHERE id=$1`,
			snap.MessageID, snap.Status, snap.IsStarred, snap.IsArchived, snap.DeletedAt)
		if err != nil {
			return 0, err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		restored += count
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return restored, nil
}

// AdvanceStatus moves messages forward in the delivery state machine for
// one recipient. Messages already at or past the target state are left
// untouched, so re-marking is a no-op.
func (r *MessageRepo) AdvanceStatus(ctx context.Context, messageIDs []int64, userID int64, status string) (int64, error) {
	var res sql.Result
	var err error
	switch status {
	case models.StatusDelivered:
		res, err = r.db.ExecContext(ctx,
			`UPDATE messages SET status=$3
             WHERE id = ANY($1) AND $2 = ANY(recipient_ids)
               AND deleted_at IS NULL AND status = 'sent'`,
			pq.Array(messageIDs), userID, status)
	case models.StatusRead:
		res, err = r.db.ExecContext(ctx,
			`UPDATE messages SET status=$3
             WHERE id = ANY($1) AND $2 = ANY(recipient_ids)
               AND deleted_at IS NULL AND status IN ('sent', 'delivered')`,
			pq.Array(messageIDs), userID, status)
	default:
		return 0, errors.New("status does not advance")
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListUnreadMessageIDs returns the visible messages in the thread the
// user received but has not read yet, in persisted order.
func (r *MessageRepo) ListUnreadMessageIDs(ctx context.Context, threadID, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM messages
         WHERE thread_id=$1 AND $2 = ANY(recipient_ids)
           AND deleted_at IS NULL AND status <> 'read'
         ORDER BY created_at ASC, id ASC`, threadID, userID)
	return ids, err
}

// SetStarred toggles the star flag.
func (r *MessageRepo) SetStarred(ctx context.Context, messageID int64, starred bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_starred=$2 WHERE id=$1 AND deleted_at IS NULL`, messageID, starred)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetArchived toggles the archive flag.
func (r *MessageRepo) SetArchived(ctx context.Context, messageID int64, archived bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_archived=$2 WHERE id=$1 AND deleted_at IS NULL`, messageID, archived)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetFlagged raises the global moderation flag.
func (r *MessageRepo) SetFlagged(ctx context.Context, messageID int64, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_flagged = TRUE, flag_reason=$2 WHERE id=$1 AND deleted_at IS NULL`,
		messageID, reason)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
