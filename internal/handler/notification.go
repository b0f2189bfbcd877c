package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledmkt-backend/internal/service"
)

type NotificationHandler struct {
	feed *service.Feed
}

func NewNotificationHandler(feed *service.Feed) *NotificationHandler {
	return &NotificationHandler{feed: feed}
}

// Drain returns pending notifications oldest first and clears them.
func (h *NotificationHandler) Drain(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.feed.Drain()})
}
