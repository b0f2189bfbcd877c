package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SSEWriter writes server-sent events. Writes are serialized so a heartbeat
// goroutine can share the stream with the request goroutine.
type SSEWriter struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	closed bool
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w}
}

func (s *SSEWriter) Write(event, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	return s.writeLocked(event, data)
}

// WriteJSON marshals v as the event data.
func (s *SSEWriter) WriteJSON(event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Write(event, string(data))
}

// Close sends the [DONE] terminator. Later writes are dropped.
func (s *SSEWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.writeLocked("", "[DONE]")
}

func (s *SSEWriter) writeLocked(event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}

	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}

	return nil
}
