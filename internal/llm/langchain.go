package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"ledmkt-backend/internal/config"
)

// LangChainClient drives an OpenAI-compatible endpoint through langchaingo.
type LangChainClient struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
}

func NewLangChainClient(cfg config.LLMConfig, httpClient *http.Client) (*LangChainClient, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchain model: %w", err)
	}

	return &LangChainClient{
		llm:         model,
		maxTokens:   cfg.MaxTokens,
		temperature: float64(cfg.Temperature),
	}, nil
}

func (c *LangChainClient) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.llm.GenerateContent(ctx, toContent(messages), c.callOptions()...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

func (c *LangChainClient) Stream(ctx context.Context, messages []Message, onChunk func(string)) error {
	opts := append(c.callOptions(), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) > 0 {
			onChunk(string(chunk))
		}
		return nil
	}))

	_, err := c.llm.GenerateContent(ctx, toContent(messages), opts...)
	return err
}

func (c *LangChainClient) callOptions() []llms.CallOption {
	var opts []llms.CallOption
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	if c.temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.temperature))
	}
	return opts
}

func toContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleAssistant:
			if m.Content == "" {
				continue
			}
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}
	return out
}
