package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ledmkt-backend/internal/gemini"
	"ledmkt-backend/internal/model"
)

type imageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts gemini.ImageOptions) (string, error)
}

type ImageHandler struct {
	images imageGenerator
}

func NewImageHandler(images imageGenerator) *ImageHandler {
	return &ImageHandler{images: images}
}

// Generate renders a standalone image. Upstream failures still yield the
// fallback URL, so only an empty prompt is an error.
func (h *ImageHandler) Generate(c *gin.Context) {
	var req model.ImageGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)

	url, err := h.images.GenerateImage(c.Request.Context(), prompt, gemini.ImageOptions{
		Style:       req.Style,
		AspectRatio: req.AspectRatio,
		Quality:     req.Quality,
	})
	if err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ImageGenerateResponse{
		ImageURL:  url,
		Prompt:    prompt,
		Timestamp: time.Now(),
	})
}
