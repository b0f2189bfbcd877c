package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ledmkt-backend/internal/config"
	"ledmkt-backend/internal/gemini"
	"ledmkt-backend/internal/handler"
	"ledmkt-backend/internal/knowledge"
	"ledmkt-backend/internal/llm"
	"ledmkt-backend/internal/registration"
	"ledmkt-backend/internal/retry"
	"ledmkt-backend/internal/service"
	"ledmkt-backend/internal/storage"
	"ledmkt-backend/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.InitWithFile(cfg.Log.Level, cfg.Log.Format, logger.FileOptions{Path: cfg.Log.File}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx := context.Background()

	store := storage.New(cfg.Storage)
	defer store.Close()

	llmClient, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		logger.Fatalf("Failed to create LLM client: %v", err)
	}

	images := gemini.NewClient(cfg.Gemini)
	loader := knowledge.NewLoader(cfg.Knowledge, nil)
	forwarder := registration.NewForwarder(cfg.Registration)
	feed := service.NewFeed(0)

	ladder := retry.New(cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay)
	ladder.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warnf("Attempt %d failed, retrying in %s: %v", attempt, delay, err)
	}

	chatService := service.NewChatService(service.ChatDeps{
		LLM:       llmClient,
		Images:    images,
		Knowledge: loader,
		Storage:   store,
		Notifier:  feed,
		Ladder:    ladder,
	})
	if err := chatService.Load(ctx); err != nil {
		logger.Errorf("Failed to load conversations: %v", err)
	}

	userService := service.NewUserService(store, feed, forwarder, cfg.Auth)
	if user, err := userService.RestoreSession(ctx); err != nil {
		logger.Errorf("Failed to restore session: %v", err)
	} else if user != nil {
		logger.Infof("Session restored for %s", user.Name)
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(cfg, handler.Handlers{
		Chat:         handler.NewChatHandler(chatService),
		Auth:         handler.NewAuthHandler(userService),
		Knowledge:    handler.NewKnowledgeHandler(loader),
		Image:        handler.NewImageHandler(images),
		Notification: handler.NewNotificationHandler(feed),
		Registration: handler.NewRegistrationHandler(forwarder),
	})

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("Server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown failed: %v", err)
	}
	if err := store.Backup(); err != nil {
		logger.Warnf("Storage backup failed: %v", err)
	}
	logger.Info("Server stopped")
}
