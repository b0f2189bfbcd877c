package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledmkt-backend/internal/knowledge"
)

type KnowledgeHandler struct {
	loader *knowledge.Loader
}

func NewKnowledgeHandler(loader *knowledge.Loader) *KnowledgeHandler {
	return &KnowledgeHandler{loader: loader}
}

func (h *KnowledgeHandler) Get(c *gin.Context) {
	_, cached := h.loader.Cache().Get()
	content := h.loader.Load(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"content":   content,
		"length":    len(content),
		"cached":    cached,
		"cache_ttl": h.loader.Cache().TTL().String(),
	})
}

// Reload drops the cached knowledge and fetches it again.
func (h *KnowledgeHandler) Reload(c *gin.Context) {
	h.loader.Cache().Invalidate()
	content := h.loader.Load(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"content": content,
		"length":  len(content),
	})
}
