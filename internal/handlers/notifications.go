package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/repositories"
)

// NotificationHandler serves the notification feed and the unread-count
// endpoint that backs the polling fallback when the websocket is down.
type NotificationHandler struct {
	notifications repositories.NotificationRepository
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(notifications repositories.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	items, err := h.notifications.ListNotifications(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// UnreadCount returns the caller's unread notification count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := middleware.UserID(c)

	count, err := h.notifications.CountUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// MarkRead marks specific notifications as read for the caller.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req struct {
		NotificationIDs []int64 `json:"notification_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	marked, err := h.notifications.MarkRead(c.Request.Context(), userID, req.NotificationIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// MarkAllRead marks every unread notification as read for the caller.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := middleware.UserID(c)

	marked, err := h.notifications.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked": marked})
}
