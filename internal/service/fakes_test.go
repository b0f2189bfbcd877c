package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ledmkt-backend/internal/gemini"
	"ledmkt-backend/internal/llm"
	"ledmkt-backend/internal/registration"
	"ledmkt-backend/internal/retry"
)

var errUpstream = errors.New("upstream 503")

// fakeLLM fails the first `failures` stream calls, then streams chunks.
type fakeLLM struct {
	mu          sync.Mutex
	chunks      []string
	failures    int
	calls       int
	block       chan struct{}
	started     chan struct{}
	seen        [][]llm.Message
	title       string
	titleErr    error
	titleCalled int
}

func (f *fakeLLM) Stream(ctx context.Context, messages []llm.Message, onChunk func(string)) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.seen = append(f.seen, messages)
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if call <= f.failures {
		onChunk("parcial")
		return errUpstream
	}
	for _, c := range f.chunks {
		onChunk(c)
	}
	return nil
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalled++
	return f.title, f.titleErr
}

func (f *fakeLLM) lastMessages() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[len(f.seen)-1]
}

type fakeImages struct {
	analysis    string
	describeErr error
	url         string
	generateErr error
	prompts     []string
	described   []string
}

func (f *fakeImages) Describe(_ context.Context, prompt string) (string, error) {
	f.described = append(f.described, prompt)
	return f.analysis, f.describeErr
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string, _ gemini.ImageOptions) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.url, f.generateErr
}

type staticKnowledge string

func (k staticKnowledge) Load(context.Context) string { return string(k) }

type note struct {
	level   string
	message string
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (r *recordingNotifier) Notify(level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note{level, message})
}

func (r *recordingNotifier) all() []note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]note(nil), r.notes...)
}

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func instantLadder(rec *recordingSleep) *retry.Ladder {
	l := retry.New(10, time.Second)
	l.Sleep = rec.sleep
	return l
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []registration.Data
}

func (f *fakeSender) Forward(_ context.Context, data registration.Data) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return f.err
}
