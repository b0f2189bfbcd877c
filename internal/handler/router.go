package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"ledmkt-backend/internal/config"
)

const registrationFunctionPath = "/.netlify/functions/send-registration-email"

type Handlers struct {
	Chat         *ChatHandler
	Auth         *AuthHandler
	Knowledge    *KnowledgeHandler
	Image        *ImageHandler
	Notification *NotificationHandler
	Registration *RegistrationHandler
}

func NewRouter(cfg *config.Config, h Handlers) *gin.Engine {
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	if cfg.Knowledge.Dir != "" {
		router.StaticFS(cfg.Knowledge.Path, gin.Dir(cfg.Knowledge.Dir, true))
	}

	router.Any(registrationFunctionPath, h.Registration.Send)

	api := router.Group("/api")
	{
		api.Any("/registration-email", h.Registration.Send)

		chat := api.Group("/chat")
		{
			chat.POST("/send", h.Chat.Send)
			chat.GET("/conversations", h.Chat.ListConversations)
			chat.POST("/conversations", h.Chat.CreateConversation)
			chat.GET("/conversations/:id", h.Chat.GetConversation)
			chat.PUT("/conversations/:id", h.Chat.UpdateTitle)
			chat.DELETE("/conversations/:id", h.Chat.DeleteConversation)
			chat.POST("/conversations/:id/select", h.Chat.SelectConversation)
			chat.GET("/current", h.Chat.CurrentConversation)
			chat.GET("/mode", h.Chat.GetMode)
			chat.PUT("/mode", h.Chat.SetMode)
		}

		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.POST("/admin", h.Auth.AdminLogin)
			auth.POST("/logout", h.Auth.Logout)
			auth.GET("/session", h.Auth.Session)
			auth.PUT("/profile", h.Auth.UpdateProfile)
			auth.PUT("/avatar", h.Auth.UpdateAvatar)
		}

		api.GET("/knowledge", h.Knowledge.Get)
		api.POST("/knowledge/reload", h.Knowledge.Reload)
		api.POST("/images/generate", h.Image.Generate)
		api.GET("/notifications", h.Notification.Drain)
	}

	return router
}
