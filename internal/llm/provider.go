package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"

	"ledmkt-backend/internal/config"
	"ledmkt-backend/internal/utils"
	"ledmkt-backend/pkg/logger"
)

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	httpClient := utils.NewHTTPClient(cfg.Timeout, func(rt http.RoundTripper) http.RoundTripper {
		return NewDebugTransport(rt, cfg.Provider, cfg.DebugRequest)
	})

	logger.WithFields(map[string]interface{}{
		"provider": cfg.Provider,
		"model":    cfg.Model,
		"base_url": cfg.BaseURL,
		"api_key":  maskKey(cfg.APIKey),
	}).Info("Creating LLM client")

	if cfg.Provider == "langchain" {
		return NewLangChainClient(cfg, httpClient)
	}

	chatModel, err := newChatModel(ctx, cfg, httpClient)
	if err != nil {
		return nil, err
	}
	return NewEinoClient(chatModel), nil
}

func newChatModel(ctx context.Context, cfg config.LLMConfig, httpClient *http.Client) (einoModel.ChatModel, error) {
	switch cfg.Provider {
	case "", "openai":
		return newOpenAIChatModel(cfg, httpClient), nil
	case "ark":
		return createArkModel(ctx, cfg)
	case "qwen":
		return createQwenModel(ctx, cfg, httpClient)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}

func createArkModel(ctx context.Context, cfg config.LLMConfig) (einoModel.ChatModel, error) {
	arkCfg := &ark.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	}
	if cfg.MaxTokens > 0 {
		arkCfg.MaxTokens = &cfg.MaxTokens
	}
	if cfg.Temperature > 0 {
		arkCfg.Temperature = &cfg.Temperature
	}

	chatModel, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, fmt.Errorf("create ark model: %w", err)
	}
	return chatModel, nil
}

func createQwenModel(ctx context.Context, cfg config.LLMConfig, httpClient *http.Client) (einoModel.ChatModel, error) {
	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		Timeout:     cfg.Timeout,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create qwen model: %w", err)
	}
	return chatModel, nil
}

func maskKey(key string) string {
	if len(key) > 10 {
		return key[:10] + "..."
	}
	if key == "" {
		return "(unset)"
	}
	return "***"
}
