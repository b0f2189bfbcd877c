// Command chat is a terminal client for the LedMKT assistant. It drives the
// same orchestrator as the HTTP server against the configured storage.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"ledmkt-backend/internal/config"
	"ledmkt-backend/internal/gemini"
	"ledmkt-backend/internal/knowledge"
	"ledmkt-backend/internal/llm"
	"ledmkt-backend/internal/model"
	"ledmkt-backend/internal/retry"
	"ledmkt-backend/internal/service"
	"ledmkt-backend/internal/storage"
	"ledmkt-backend/pkg/logger"
)

var (
	assistantColor = color.New(color.FgCyan)
	statusColor    = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed, color.Bold)
	successColor   = color.New(color.FgGreen)
	promptColor    = color.New(color.FgMagenta, color.Bold)
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// keep the terminal for the conversation
	if err := logger.Init("error", cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx := context.Background()
	store := storage.New(cfg.Storage)
	defer store.Close()

	llmClient, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	feed := service.NewFeed(0)
	chat := service.NewChatService(service.ChatDeps{
		LLM:       llmClient,
		Images:    gemini.NewClient(cfg.Gemini),
		Knowledge: knowledge.NewLoader(cfg.Knowledge, nil),
		Storage:   store,
		Notifier:  feed,
		Ladder:    retry.New(cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay),
	})
	if err := chat.Load(ctx); err != nil {
		errorColor.Printf("Failed to load conversations: %v\n", err)
	}

	successColor.Println("LedMKT chat. Commands: /mode <chat|image|post|ads>, /new, /list, /image <path> <text>, exit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		promptColor.Printf("[%s] > ", chat.ResponseMode())
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return
		case line == "/new":
			if _, err := chat.CreateConversation(ctx); err != nil {
				errorColor.Println(err)
			} else {
				statusColor.Println("New conversation started.")
			}
		case line == "/list":
			listConversations(chat)
		case strings.HasPrefix(line, "/mode"):
			mode := model.ResponseMode(strings.TrimSpace(strings.TrimPrefix(line, "/mode")))
			if err := chat.SetResponseMode(mode); err != nil {
				errorColor.Println(err)
			}
		case strings.HasPrefix(line, "/image "):
			path, text, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "/image ")), " ")
			image, err := readAttachment(path)
			if err != nil {
				errorColor.Printf("Cannot read image: %v\n", err)
				break
			}
			send(ctx, chat, text, image)
		default:
			send(ctx, chat, line, nil)
		}

		printNotifications(feed)
	}
}

func send(ctx context.Context, chat *service.ChatService, content string, image *model.Attachment) {
	var printed string

	_, err := chat.SendMessage(ctx, content, image, func(u model.ChatUpdate) {
		if u.Message.Role != model.RoleAssistant && u.Phase != model.PhaseTitle {
			return
		}
		switch u.Phase {
		case model.PhaseAnalyzing, model.PhaseGenerating:
			statusColor.Println(u.Message.Content)
		case model.PhaseStreaming:
			if strings.HasPrefix(u.Message.Content, printed) {
				assistantColor.Print(strings.TrimPrefix(u.Message.Content, printed))
			} else {
				assistantColor.Print("\n" + u.Message.Content)
			}
			printed = u.Message.Content
		case model.PhaseCompleted:
			if u.Message.Content != printed {
				assistantColor.Print("\n" + u.Message.Content)
			}
			fmt.Println()
		case model.PhaseTitle:
			statusColor.Printf("Conversation: %s\n", u.Title)
		}
	})
	if err != nil {
		errorColor.Printf("\n%v\n", err)
	}
}

func listConversations(chat *service.ChatService) {
	current, _ := chat.CurrentConversation()
	for _, c := range chat.ListConversations() {
		marker := " "
		if c.ID == current.ID {
			marker = "*"
		}
		id := c.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("%s %s  %s (%d messages)\n", marker, id, c.Title, len(c.Messages))
	}
}

func readAttachment(path string) (*model.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &model.Attachment{
		Name:     filepath.Base(path),
		MIMEType: http.DetectContentType(data),
		Data:     data,
	}, nil
}

func printNotifications(feed *service.Feed) {
	for _, n := range feed.Drain() {
		switch n.Level {
		case service.LevelError:
			errorColor.Println(n.Message)
		case service.LevelSuccess:
			successColor.Println(n.Message)
		default:
			statusColor.Println(n.Message)
		}
	}
}
