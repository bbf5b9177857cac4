package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
)

// writeServiceError translates service and repository errors to HTTP
// responses. Authorization failures intentionally look identical whether
// or not the resource exists.
func writeServiceError(c *gin.Context, err error) {
	var spamErr *service.SpamError
	if errors.As(err, &spamErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "message blocked",
			"reason": spamErr.Reason,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotSender):
		// The actor received this message, so its existence is no secret.
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEditWindowExpired),
		errors.Is(err, service.ErrPinLimitExceeded),
		errors.Is(err, service.ErrMessageDeleted),
		errors.Is(err, service.ErrPartialMatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrOperationExpired):
		c.JSON(http.StatusGone, gin.H{"error": "undo window expired"})
	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, repositories.ErrThreadNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrOperationNotFound):
		// Outsiders see the same response whether or not the resource
		// exists.
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
