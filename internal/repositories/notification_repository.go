package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository persists per-recipient notification records.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID int64, notificationIDs []int64) (int64, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	MarkThreadRead(ctx context.Context, userID, threadID int64) (int64, error)
}

// NotificationRepo is a sqlx implementation of NotificationRepository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// CreateNotification stores one notification record.
func (r *NotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO notifications (user_id, type, title, body, action_url, metadata)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING id, created_at`,
		n.UserID, n.Type, n.Title, n.Body, n.ActionURL, n.Metadata).
		Scan(&n.ID, &n.CreatedAt)
}

// ListNotifications returns the user's notifications, newest first.
func (r *NotificationRepo) ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.SelectContext(ctx, &list,
		`SELECT id, user_id, type, title, body, action_url, metadata, is_read, created_at
         FROM notifications WHERE user_id=$1
         ORDER BY created_at DESC, id DESC
         LIMIT $2 OFFSET $3`, userID, limit, offset)
	return list, err
}

// CountUnread counts unread notifications; the polling fallback refreshes
// from this.
func (r *NotificationRepo) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND is_read = FALSE`, userID)
	return count, err
}

// MarkRead flips is_read on the given notifications owned by the user.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID int64, notificationIDs []int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE
         WHERE user_id=$1 AND id = ANY($2) AND is_read = FALSE`,
		userID, pq.Array(notificationIDs))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkAllRead flips is_read on every unread notification of the user.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id=$1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkThreadRead clears unread message notifications for one thread, used
// when the owning thread is marked read.
func (r *NotificationRepo) MarkThreadRead(ctx context.Context, userID, threadID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE
         WHERE user_id=$1 AND is_read = FALSE AND type=$2 AND metadata->>'thread_id' = $3::TEXT`,
		userID, models.NotificationMessage, threadID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
