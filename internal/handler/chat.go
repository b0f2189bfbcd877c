package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ledmkt-backend/internal/model"
	"ledmkt-backend/internal/service"
	"ledmkt-backend/internal/utils"
	"ledmkt-backend/pkg/logger"
)

const (
	defaultHeartbeat = 30 * time.Second
	maxImageBytes    = 10 << 20
)

type ChatHandler struct {
	chat      *service.ChatService
	heartbeat time.Duration
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chat:      chat,
		heartbeat: defaultHeartbeat,
	}
}

// Send runs one turn and streams every state change as SSE.
func (h *ChatHandler) Send(c *gin.Context) {
	content, image, err := bindSend(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(content) == "" && image == nil {
		abortWithError(c, service.ErrEmptyMessage)
		return
	}
	if h.chat.IsLoading() {
		abortWithError(c, service.ErrBusy)
		return
	}

	logger.WithFields(map[string]interface{}{
		"mode":      h.chat.ResponseMode(),
		"has_image": image != nil,
		"length":    len(content),
	}).Info("Chat send received")

	sse := utils.NewSSEWriter(c.Writer)

	streamCtx, stop := context.WithCancel(c.Request.Context())
	defer stop()

	go h.keepAlive(streamCtx, sse)

	sse.WriteJSON("status", gin.H{
		"type":      "processing_start",
		"timestamp": time.Now().Unix(),
	})

	// a dropped client does not stop the turn
	conv, err := h.chat.SendMessage(context.WithoutCancel(c.Request.Context()), content, image, func(u model.ChatUpdate) {
		if err := sse.WriteJSON("message", u); err != nil {
			logger.Warnf("Failed to write SSE update: %v", err)
		}
	})
	if err != nil {
		sse.WriteJSON("error", gin.H{
			"error":     err.Error(),
			"type":      errorType(err),
			"timestamp": time.Now().Unix(),
		})
		sse.Close()
		return
	}

	sse.WriteJSON("status", gin.H{
		"type":         "processing_complete",
		"conversation": model.Summarize(conv),
		"timestamp":    time.Now().Unix(),
	})
	sse.Close()
}

// keepAlive writes heartbeat events so idle proxies keep the stream open.
func (h *ChatHandler) keepAlive(ctx context.Context, sse *utils.SSEWriter) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := sse.WriteJSON("heartbeat", gin.H{"timestamp": time.Now().Unix()}); err != nil {
				logger.Warnf("Heartbeat failed: %v", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, service.ErrBusy):
		return "busy"
	default:
		return "service_error"
	}
}

// bindSend accepts either a JSON body with a base64 image or a multipart
// form with an "image" file part.
func bindSend(c *gin.Context) (string, *model.Attachment, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return bindMultipartSend(c)
	}

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", nil, err
	}
	if req.Image == nil {
		return req.Content, nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(req.Image.Data)
	if err != nil {
		return "", nil, fmt.Errorf("invalid image data: %w", err)
	}
	if len(data) == 0 || len(data) > maxImageBytes {
		return "", nil, fmt.Errorf("image must be between 1 byte and %d bytes", maxImageBytes)
	}
	mime := req.Image.MIMEType
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return req.Content, &model.Attachment{Name: req.Image.Name, MIMEType: mime, Data: data}, nil
}

func bindMultipartSend(c *gin.Context) (string, *model.Attachment, error) {
	content := c.PostForm("content")

	header, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return content, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	if header.Size > maxImageBytes {
		return "", nil, fmt.Errorf("image must be at most %d bytes", maxImageBytes)
	}

	f, err := header.Open()
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return content, &model.Attachment{Name: header.Filename, MIMEType: mime, Data: data}, nil
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	conversations := h.chat.ListConversations()
	summaries := make([]model.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summaries = append(summaries, model.Summarize(conv))
	}

	current, _ := h.chat.CurrentConversation()
	c.JSON(http.StatusOK, gin.H{
		"conversations": summaries,
		"current_id":    current.ID,
	})
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	conv, err := h.chat.CreateConversation(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	conv, err := h.chat.GetConversation(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ChatHandler) SelectConversation(c *gin.Context) {
	conv, err := h.chat.SelectConversation(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ChatHandler) CurrentConversation(c *gin.Context) {
	conv, ok := h.chat.CurrentConversation()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no conversation selected"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ChatHandler) UpdateTitle(c *gin.Context) {
	var req model.UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id := c.Param("id")
	if err := h.chat.UpdateConversationTitle(c.Request.Context(), id, req.Title); err != nil {
		abortWithError(c, err)
		return
	}

	conv, err := h.chat.GetConversation(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Summarize(conv))
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.chat.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}

func (h *ChatHandler) GetMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":       h.chat.ResponseMode(),
		"is_loading": h.chat.IsLoading(),
	})
}

func (h *ChatHandler) SetMode(c *gin.Context) {
	var req model.SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.chat.SetResponseMode(req.Mode); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": h.chat.ResponseMode()})
}
