package llm

import (
	"context"
	"errors"
	"io"
	"net/http"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"ledmkt-backend/internal/config"
)

// openaiChatModel exposes any OpenAI-compatible endpoint as an eino
// ChatModel.
type openaiChatModel struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	topP        float32
}

func newOpenAIChatModel(cfg config.LLMConfig, httpClient *http.Client) *openaiChatModel {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}

	return &openaiChatModel{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}
}

func (m *openaiChatModel) request(messages []*schema.Message, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    m.convertMessages(messages),
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
		TopP:        m.topP,
		Stream:      stream,
	}
}

func (m *openaiChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	resp, err := m.client.CreateChatCompletion(ctx, m.request(messages, false))
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return &schema.Message{
		Role:    schema.Assistant,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

func (m *openaiChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	stream, err := m.client.CreateChatCompletionStream(ctx, m.request(messages, true))
	if err != nil {
		return nil, err
	}

	reader, writer := schema.Pipe[*schema.Message](100)

	go func() {
		defer stream.Close()
		defer writer.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				writer.Send(nil, err)
				return
			}

			if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
				continue
			}

			msg := &schema.Message{
				Role:    schema.Assistant,
				Content: response.Choices[0].Delta.Content,
			}
			if closed := writer.Send(msg, nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

// BindTools is a no-op, the assistant never calls tools.
func (m *openaiChatModel) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

func (m *openaiChatModel) convertMessages(messages []*schema.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		case schema.System:
			role = openai.ChatMessageRoleSystem
		}

		if msg.Content == "" && role == openai.ChatMessageRoleAssistant {
			continue
		}

		result = append(result, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return result
}
