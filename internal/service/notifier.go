package service

import (
	"sync"
	"time"

	"ledmkt-backend/internal/model"
	"ledmkt-backend/pkg/logger"
)

const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelError   = "error"
)

// Notifier surfaces short user-facing messages.
type Notifier interface {
	Notify(level, message string)
}

// Feed logs notifications and keeps the most recent ones until drained.
type Feed struct {
	mu       sync.Mutex
	items    []model.Notification
	capacity int
	now      func() time.Time
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = 50
	}
	return &Feed{capacity: capacity, now: time.Now}
}

func (f *Feed) Notify(level, message string) {
	entry := logger.WithFields(map[string]interface{}{"level": level})
	if level == LevelError {
		entry.Warn(message)
	} else {
		entry.Info(message)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, model.Notification{
		Level:     level,
		Message:   message,
		Timestamp: f.now(),
	})
	if over := len(f.items) - f.capacity; over > 0 {
		f.items = append([]model.Notification(nil), f.items[over:]...)
	}
}

// Drain returns pending notifications oldest first and clears them.
func (f *Feed) Drain() []model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.items
	f.items = nil
	if out == nil {
		out = []model.Notification{}
	}
	return out
}
