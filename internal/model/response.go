package model

import "time"

// Phases reported while a send is in progress.
const (
	PhaseCreated    = "created"
	PhaseAnalyzing  = "analyzing"
	PhaseStreaming  = "streaming"
	PhaseGenerating = "generating"
	PhaseCompleted  = "completed"
	PhaseFailed     = "failed"
	PhaseTitle      = "title"
)

// ChatUpdate is published after every state write of a send.
type ChatUpdate struct {
	ConversationID string  `json:"conversation_id"`
	Phase          string  `json:"phase"`
	Message        Message `json:"message"`
	Title          string  `json:"title,omitempty"`
	Timestamp      int64   `json:"timestamp"`
}

type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

func Summarize(c Conversation) ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
}

type SessionResponse struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

type ImageGenerateResponse struct {
	ImageURL  string    `json:"image_url"`
	Prompt    string    `json:"prompt"`
	Timestamp time.Time `json:"timestamp"`
}

type Notification struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
