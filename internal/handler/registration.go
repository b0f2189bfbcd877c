package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ledmkt-backend/internal/registration"
	"ledmkt-backend/pkg/logger"
)

type registrationSender interface {
	Forward(ctx context.Context, data registration.Data) error
}

// RegistrationHandler serves the registration mail function. It answers
// every method itself so the CORS headers are always present.
type RegistrationHandler struct {
	sender registrationSender
}

func NewRegistrationHandler(sender registrationSender) *RegistrationHandler {
	return &RegistrationHandler{sender: sender}
}

func (h *RegistrationHandler) Send(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")

	if c.Request.Method != http.MethodPost {
		fail(c, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var data registration.Data
	if err := c.ShouldBindJSON(&data); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.sender.Forward(c.Request.Context(), data)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email sent successfully"})
	case errors.Is(err, registration.ErrMissingFields):
		fail(c, http.StatusBadRequest, "Missing required fields")
	case errors.Is(err, registration.ErrNotConfigured):
		logger.Error("ZAPIER_WEBHOOK_URL not configured")
		fail(c, http.StatusInternalServerError, "Email service not configured")
	default:
		logger.Errorf("Error sending email: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to send email")
	}
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}
