package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/service"
)

// ThreadHandler manages thread endpoints.
type ThreadHandler struct {
	svc *service.Service
}

// NewThreadHandler builds a ThreadHandler.
func NewThreadHandler(svc *service.Service) *ThreadHandler {
	return &ThreadHandler{svc: svc}
}

// ListThreads returns the threads visible to the authenticated user,
// pinned threads first.
func (h *ThreadHandler) ListThreads(c *gin.Context) {
	userID := middleware.UserID(c)

	threads, err := h.svc.ListThreads(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load threads"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// StartThread creates a thread for the given participant set, reusing an
// existing direct thread between the same two users.
func (h *ThreadHandler) StartThread(c *gin.Context) {
	var req struct {
		ParticipantIDs []int64 `json:"participant_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	thread, err := h.svc.CreateOrGetThread(c.Request.Context(), userID, req.ParticipantIDs)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, thread)
}

// GetThreadMessages returns non-deleted messages in a thread in send
// order. Delivery status advances as a side effect of the fetch.
func (h *ThreadHandler) GetThreadMessages(c *gin.Context) {
	threadID, ok := pathID(c, "thread_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	userID := middleware.UserID(c)
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	msgs, err := h.svc.GetThreadMessages(c.Request.Context(), threadID, userID, limit, offset)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage sends a message to a thread.
func (h *ThreadHandler) PostMessage(c *gin.Context) {
	threadID, ok := pathID(c, "thread_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	var req struct {
		Content     string              `json:"content"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	msg, err := h.svc.SendMessage(c.Request.Context(), threadID, userID, req.Content, req.Attachments)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkRead marks messages in a thread as read for the caller. Without
// explicit message ids, everything unread in the thread is marked.
func (h *ThreadHandler) MarkRead(c *gin.Context) {
	threadID, ok := pathID(c, "thread_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	var req struct {
		MessageIDs []int64 `json:"message_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	marked, err := h.svc.MarkRead(c.Request.Context(), threadID, userID, req.MessageIDs)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// PinThread pins a thread for the caller, subject to the pin cap.
func (h *ThreadHandler) PinThread(c *gin.Context) {
	h.threadFlag(c, func(threadID, userID int64) error {
		return h.svc.PinThread(c.Request.Context(), threadID, userID)
	})
}

// UnpinThread removes the caller's pin from a thread.
func (h *ThreadHandler) UnpinThread(c *gin.Context) {
	h.threadFlag(c, func(threadID, userID int64) error {
		return h.svc.UnpinThread(c.Request.Context(), threadID, userID)
	})
}

// MuteThread mutes a thread for the caller.
func (h *ThreadHandler) MuteThread(c *gin.Context) {
	h.threadFlag(c, func(threadID, userID int64) error {
		return h.svc.MuteThread(c.Request.Context(), threadID, userID, true)
	})
}

// UnmuteThread unmutes a thread for the caller.
func (h *ThreadHandler) UnmuteThread(c *gin.Context) {
	h.threadFlag(c, func(threadID, userID int64) error {
		return h.svc.MuteThread(c.Request.Context(), threadID, userID, false)
	})
}

// ArchiveThread hides a thread from the caller's default listing.
func (h *ThreadHandler) ArchiveThread(c *gin.Context) {
	h.threadFlag(c, func(threadID, userID int64) error {
		return h.svc.ArchiveThread(c.Request.Context(), threadID, userID, true)
	})
}

// UnarchiveThread restores an archived thread for the caller.
func (h *ThreadHandler) UnarchiveThread(c *gin.Context) {
	h.threadFlag(c, func(threadID, userID int64) error {
		return h.svc.ArchiveThread(c.Request.Context(), threadID, userID, false)
	})
}

func (h *ThreadHandler) threadFlag(c *gin.Context, apply func(threadID, userID int64) error) {
	threadID, ok := pathID(c, "thread_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	userID := middleware.UserID(c)
	if err := apply(threadID, userID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
