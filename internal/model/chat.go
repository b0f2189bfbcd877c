package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const DefaultConversationTitle = "Nova conversa"

// ResponseMode selects the system prompt template and the post-processing
// applied to a turn.
type ResponseMode string

const (
	ModeChat  ResponseMode = "chat"
	ModeImage ResponseMode = "image"
	ModePost  ResponseMode = "post"
	ModeAds   ResponseMode = "ads"
)

func (m ResponseMode) Valid() bool {
	switch m {
	case ModeChat, ModeImage, ModePost, ModeAds:
		return true
	}
	return false
}

type Message struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Role        string    `json:"role"`
	Timestamp   time.Time `json:"timestamp"`
	IsStreaming bool      `json:"is_streaming,omitempty"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy whose message slice does not alias c's.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// Attachment is an image sent along with a user message.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}
