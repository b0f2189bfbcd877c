// Package llm talks to chat-completion endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrEmptyResponse = errors.New("empty response from model")

// Message is a role-tagged turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a chat-completion endpoint.
type Client interface {
	// Complete returns the whole answer at once.
	Complete(ctx context.Context, messages []Message) (string, error)
	// Stream calls onChunk for every non-empty text delta. It returns nil at
	// end of stream.
	Stream(ctx context.Context, messages []Message, onChunk func(string)) error
}

// EinoClient adapts an eino ChatModel to Client.
type EinoClient struct {
	model einoModel.ChatModel
}

func NewEinoClient(m einoModel.ChatModel) *EinoClient {
	return &EinoClient{model: m}
}

func (c *EinoClient) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.model.Generate(ctx, toSchema(messages))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}

func (c *EinoClient) Stream(ctx context.Context, messages []Message, onChunk func(string)) error {
	reader, err := c.model.Stream(ctx, toSchema(messages))
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer reader.Close()

	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		if chunk != nil && chunk.Content != "" {
			onChunk(chunk.Content)
		}
	}
}

// toSchema maps messages onto eino's schema. Empty assistant turns are
// dropped, some providers reject them.
func toSchema(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case RoleAssistant:
			if m.Content == "" {
				continue
			}
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}
