package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/service"
)

// MessageHandler manages per-message endpoints.
type MessageHandler struct {
	svc *service.Service
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(svc *service.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// EditMessage rewrites a message's content. Sender-only, inside the edit
// window; the previous content is kept in the edit history.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	messageID, ok := pathID(c, "message_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	msg, err := h.svc.EditMessage(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// BulkDelete soft-deletes a set of messages in a thread and returns an
// undo token valid for the undo window.
func (h *MessageHandler) BulkDelete(c *gin.Context) {
	threadID, ok := pathID(c, "thread_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	var req struct {
		MessageIDs []int64 `json:"message_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	result, err := h.svc.BulkDelete(c.Request.Context(), threadID, userID, req.MessageIDs)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Undo reverses a bulk delete. Each operation token is consumable exactly
// once, inside the undo window.
func (h *MessageHandler) Undo(c *gin.Context) {
	operationID, ok := pathID(c, "operation_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operation id"})
		return
	}

	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	restored, err := h.svc.Undo(c.Request.Context(), operationID, req.Token, userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"restored": restored})
}

// FlagMessage reports a message for moderation review.
func (h *MessageHandler) FlagMessage(c *gin.Context) {
	messageID, ok := pathID(c, "message_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	msg, err := h.svc.FlagMessage(c.Request.Context(), messageID, userID, req.Reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// ArchiveMessage toggles a message's archived state for the caller.
func (h *MessageHandler) ArchiveMessage(c *gin.Context) {
	h.messageToggle(c, func(messageID, userID int64, on bool) (models.Message, error) {
		return h.svc.ArchiveMessage(c.Request.Context(), messageID, userID, on)
	})
}

// StarMessage toggles a message's starred state for the caller.
func (h *MessageHandler) StarMessage(c *gin.Context) {
	h.messageToggle(c, func(messageID, userID int64, on bool) (models.Message, error) {
		return h.svc.StarMessage(c.Request.Context(), messageID, userID, on)
	})
}

func (h *MessageHandler) messageToggle(c *gin.Context, apply func(messageID, userID int64, on bool) (models.Message, error)) {
	messageID, ok := pathID(c, "message_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		On *bool `json:"on" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	msg, err := apply(messageID, userID, *req.On)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}
