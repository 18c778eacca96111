package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coachyard/backend/internal/apperr"
	"coachyard/backend/internal/api/middleware"
	"coachyard/backend/internal/utils"
)

// statusFor maps error kinds to HTTP statuses. Payment-required errors use
// 403 rather than 402 so clients key off the machine code.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden, apperr.KindPaymentRequired:
		return http.StatusForbidden
	case apperr.KindInvalidOperation, apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a service error as JSON, hiding internal causes.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		_ = c.Error(err)
	}
	c.JSON(statusFor(kind), gin.H{
		"error": apperr.MessageOf(err),
		"code":  apperr.CodeOf(err),
	})
}

// currentUserID reads the authenticated user's ID set by the auth middleware.
func currentUserID(c *gin.Context) (utils.SixID, bool) {
	raw, exists := c.Get(middleware.ContextKeyUserID)
	if !exists {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return utils.SixID{}, false
	}
	idStr, ok := raw.(string)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return utils.SixID{}, false
	}
	id, err := utils.ParseSixID(idStr)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user identity"})
		return utils.SixID{}, false
	}
	return id, true
}
