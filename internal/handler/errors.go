package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ledmkt-backend/internal/service"
	"ledmkt-backend/pkg/logger"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidAdminSecret),
		errors.Is(err, service.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBusy),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
