package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledmkt-backend/internal/gemini"
	"ledmkt-backend/internal/knowledge"
	"ledmkt-backend/internal/llm"
	"ledmkt-backend/internal/model"
	"ledmkt-backend/internal/prompt"
	"ledmkt-backend/internal/retry"
	"ledmkt-backend/internal/storage"
	"ledmkt-backend/pkg/logger"
)

const (
	msgAnalyzing       = "Analisando imagem... Por favor, aguarde."
	msgGeneratingImage = "Gerando imagem... Por favor, aguarde."
	msgGeneratingPost  = "Gerando post... Por favor, aguarde."
	msgImageFailed     = "Desculpe, houve um erro ao gerar a imagem. Tente novamente com uma descrição diferente."
	msgPostFailed      = "Desculpe, houve um erro ao gerar o post. Tente novamente com uma descrição diferente."
	msgSendExhausted   = "Problema de servidor. Não foi possível enviar a mensagem após várias tentativas."
	defaultPostCopy    = "Copy sugerido para acompanhar o post baseado na sua solicitação."

	titleMaxRunes    = 50
	fallbackMaxRunes = 30
)

var (
	sentinelPattern = regexp.MustCompile(`GENERATE_IMAGE:(.+)`)
	sentinelLine    = regexp.MustCompile(`GENERATE_IMAGE:.*`)
)

// ImageClient analyses attachments and generates images.
type ImageClient interface {
	Describe(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string, opts gemini.ImageOptions) (string, error)
}

// UpdateFunc receives every state change of a send.
type UpdateFunc func(model.ChatUpdate)

type ChatDeps struct {
	LLM       llm.Client
	Images    ImageClient
	Knowledge knowledge.Source
	Storage   storage.Storage
	Notifier  Notifier
	Ladder    *retry.Ladder
}

// ChatService owns the conversation workspace: the conversation list, the
// current conversation and the response mode.
type ChatService struct {
	llm       llm.Client
	images    ImageClient
	knowledge knowledge.Source
	storage   storage.Storage
	notifier  Notifier
	ladder    *retry.Ladder
	now       func() time.Time

	mu            sync.RWMutex
	conversations []model.Conversation
	currentID     string
	mode          model.ResponseMode
	sending       bool
}

func NewChatService(deps ChatDeps) *ChatService {
	ladder := deps.Ladder
	if ladder == nil {
		ladder = retry.New(retry.DefaultMaxAttempts, retry.DefaultInitialDelay)
	}
	return &ChatService{
		llm:       deps.LLM,
		images:    deps.Images,
		knowledge: deps.Knowledge,
		storage:   deps.Storage,
		notifier:  deps.Notifier,
		ladder:    ladder,
		now:       time.Now,
		mode:      model.ModeChat,
	}
}

// Load rehydrates the conversation list. Malformed data is logged and
// ignored.
func (s *ChatService) Load(ctx context.Context) error {
	var conversations []model.Conversation
	found, err := storage.LoadJSON(ctx, s.storage, storage.KeyConversations, &conversations)
	if errors.Is(err, storage.ErrInvalidData) {
		logger.Errorf("Error loading conversations: %v", err)
		return nil
	}
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	// 中断的流式消息不再继续
	for i := range conversations {
		for j := range conversations[i].Messages {
			conversations[i].Messages[j].IsStreaming = false
		}
	}

	s.mu.Lock()
	s.conversations = conversations
	s.mu.Unlock()

	logger.Infof("Loaded %d conversations", len(conversations))
	return nil
}

func (s *ChatService) CreateConversation(ctx context.Context) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.newConversationLocked()
	if err := s.persistLocked(ctx); err != nil {
		return model.Conversation{}, err
	}
	return conv.Clone(), nil
}

func (s *ChatService) newConversationLocked() model.Conversation {
	now := s.now()
	conv := model.Conversation{
		ID:        uuid.New().String(),
		Title:     model.DefaultConversationTitle,
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations = append([]model.Conversation{conv}, s.conversations...)
	s.currentID = conv.ID
	return conv
}

func (s *ChatService) SelectConversation(id string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Conversation{}, ErrConversationNotFound
	}
	s.currentID = id
	return s.conversations[idx].Clone(), nil
}

// CurrentConversation returns the selected conversation, if any.
func (s *ChatService) CurrentConversation() (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(s.currentID)
	if idx < 0 {
		return model.Conversation{}, false
	}
	return s.conversations[idx].Clone(), true
}

// ListConversations returns all conversations, newest first.
func (s *ChatService) ListConversations() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

func (s *ChatService) GetConversation(id string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Conversation{}, ErrConversationNotFound
	}
	return s.conversations[idx].Clone(), nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrConversationNotFound
	}
	s.conversations = append(s.conversations[:idx:idx], s.conversations[idx+1:]...)
	if s.currentID == id {
		s.currentID = ""
	}
	return s.persistLocked(ctx)
}

func (s *ChatService) UpdateConversationTitle(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return &ValidationError{Message: "O título não pode ser vazio."}
	}

	_, err := s.mutate(ctx, id, func(c *model.Conversation) bool {
		c.Title = title
		return true
	})
	return err
}

func (s *ChatService) SetResponseMode(mode model.ResponseMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return nil
}

func (s *ChatService) ResponseMode() model.ResponseMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *ChatService) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sending
}

// SendMessage runs one exchange on the current conversation, creating one
// when none is selected. onUpdate sees every intermediate state. A send is
// not cancellable: it completes or runs the whole retry ladder, whatever
// happens to ctx.
func (s *ChatService) SendMessage(ctx context.Context, content string, image *model.Attachment, onUpdate UpdateFunc) (model.Conversation, error) {
	ctx = context.WithoutCancel(ctx)
	if strings.TrimSpace(content) == "" && image == nil {
		return model.Conversation{}, ErrEmptyMessage
	}
	if onUpdate == nil {
		onUpdate = func(model.ChatUpdate) {}
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return model.Conversation{}, ErrBusy
	}
	s.sending = true
	mode := s.mode
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}()

	turn, err := s.beginTurn(ctx, content, image)
	if err != nil {
		return model.Conversation{}, err
	}
	onUpdate(s.update(turn.convID, model.PhaseCreated, turn.user))
	onUpdate(s.update(turn.convID, model.PhaseCreated, turn.reply))

	enhanced := content
	if image != nil {
		enhanced = s.analyzeImage(ctx, turn, content, image, onUpdate)
	}

	messages := s.outbound(ctx, mode, turn.history, enhanced)

	answer, err := s.streamWithRetry(ctx, turn, messages, onUpdate)
	if err != nil {
		return s.failTurn(ctx, turn, err, onUpdate)
	}

	final := answer
	if mode == model.ModeImage || mode == model.ModePost {
		final = s.renderGeneration(ctx, turn, mode, answer, onUpdate)
	}

	s.rewriteReply(ctx, turn, final, false, model.PhaseCompleted, onUpdate)

	if len(turn.history) == 0 {
		s.nameConversation(ctx, turn.convID, content, onUpdate)
	}

	return s.GetConversation(turn.convID)
}

type turnState struct {
	convID  string
	history []model.Message
	user    model.Message
	reply   model.Message
}

// beginTurn appends the user message and the empty assistant placeholder
// together and persists them before any network call.
func (s *ChatService) beginTurn(ctx context.Context, content string, image *model.Attachment) (*turnState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(s.currentID)
	if idx < 0 {
		s.newConversationLocked()
		idx = 0
	}
	conv := &s.conversations[idx]

	now := s.now()
	userContent := content
	if image != nil {
		userContent = fmt.Sprintf("%s\n\n📎 Imagem anexada: %s", content, image.Name)
	}

	turn := &turnState{
		convID:  conv.ID,
		history: append([]model.Message(nil), conv.Messages...),
		user: model.Message{
			ID:        uuid.New().String(),
			Content:   userContent,
			Role:      model.RoleUser,
			Timestamp: now,
		},
		reply: model.Message{
			ID:          uuid.New().String(),
			Content:     "",
			Role:        model.RoleAssistant,
			Timestamp:   now,
			IsStreaming: true,
		},
	}

	conv.Messages = append(conv.Messages, turn.user, turn.reply)
	conv.UpdatedAt = now

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return turn, nil
}

func (s *ChatService) analyzeImage(ctx context.Context, turn *turnState, content string, image *model.Attachment, onUpdate UpdateFunc) string {
	s.rewriteReply(ctx, turn, msgAnalyzing, true, model.PhaseAnalyzing, onUpdate)

	dataURL := fmt.Sprintf("data:%s;base64,%s", image.MIMEType, base64.StdEncoding.EncodeToString(image.Data))
	analysis, err := s.images.Describe(ctx, fmt.Sprintf("%s\n\nImagem: %s", prompt.ImageAnalysis, dataURL))
	if err != nil {
		logger.Errorf("Error analyzing image %s: %v", image.Name, err)
		return fmt.Sprintf("%s\n\n[IMAGEM ANEXADA: %s]\nNão foi possível analisar a imagem automaticamente, mas por favor considere que o usuário enviou uma imagem junto com a mensagem.", content, image.Name)
	}

	return fmt.Sprintf("%s\n\n[ANÁLISE DA IMAGEM ANEXADA]:\n%s\n\nPor favor, considere esta análise da imagem em sua resposta.", content, analysis)
}

func (s *ChatService) outbound(ctx context.Context, mode model.ResponseMode, history []model.Message, enhanced string) []llm.Message {
	var kb string
	if s.knowledge != nil {
		kb = s.knowledge.Load(ctx)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prompt.Build(mode, kb)})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == model.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: enhanced})
}

// streamWithRetry streams the answer into the placeholder. The accumulator
// starts empty on every attempt.
func (s *ChatService) streamWithRetry(ctx context.Context, turn *turnState, messages []llm.Message, onUpdate UpdateFunc) (string, error) {
	var acc strings.Builder

	err := s.ladder.Do(ctx, func(attempt int) error {
		acc.Reset()
		if attempt > 1 {
			logger.Warnf("Retrying message %s, attempt %d", turn.reply.ID, attempt)
		}
		err := s.llm.Stream(ctx, messages, func(chunk string) {
			acc.WriteString(chunk)
			s.rewriteReply(ctx, turn, acc.String(), true, model.PhaseStreaming, onUpdate)
		})
		if err != nil && acc.Len() > 0 {
			// partial output of a failed attempt is never kept
			s.rewriteReply(ctx, turn, "", true, model.PhaseStreaming, onUpdate)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return acc.String(), nil
}

// failTurn drops the placeholder and keeps the user message.
func (s *ChatService) failTurn(ctx context.Context, turn *turnState, cause error, onUpdate UpdateFunc) (model.Conversation, error) {
	logger.Errorf("Error sending message: %v", cause)
	if errors.Is(cause, retry.ErrExhausted) {
		s.notifier.Notify(LevelError, msgSendExhausted)
	}

	if _, err := s.mutate(ctx, turn.convID, func(c *model.Conversation) bool {
		for i, m := range c.Messages {
			if m.ID == turn.reply.ID {
				c.Messages = append(c.Messages[:i:i], c.Messages[i+1:]...)
				return true
			}
		}
		return false
	}); err != nil {
		logger.Errorf("Failed to remove placeholder %s: %v", turn.reply.ID, err)
	}

	failed := turn.reply
	failed.IsStreaming = false
	onUpdate(s.update(turn.convID, model.PhaseFailed, failed))

	conv, _ := s.GetConversation(turn.convID)
	return conv, fmt.Errorf("%w: %w", ErrSendFailed, cause)
}

// renderGeneration turns a GENERATE_IMAGE answer into the final image or
// post content. Answers without a usable sentinel are returned verbatim.
func (s *ChatService) renderGeneration(ctx context.Context, turn *turnState, mode model.ResponseMode, answer string, onUpdate UpdateFunc) string {
	imagePrompt, ok := extractImagePrompt(answer)
	if !ok {
		return answer
	}

	interim, failure := msgGeneratingImage, msgImageFailed
	if mode == model.ModePost {
		interim, failure = msgGeneratingPost, msgPostFailed
	}
	s.rewriteReply(ctx, turn, interim, true, model.PhaseGenerating, onUpdate)

	url, err := s.images.GenerateImage(ctx, imagePrompt, gemini.ImageOptions{})
	if err != nil {
		logger.Errorf("Error generating %s: %v", mode, err)
		return failure
	}

	if mode == model.ModeImage {
		return fmt.Sprintf("Aqui está a imagem que você solicitou:\n\n![Imagem gerada](%s)", url)
	}

	caption := postCaption(answer)
	if caption == "" {
		caption = defaultPostCopy
	}
	return fmt.Sprintf("Aqui está o post que você solicitou:\n\n![Post gerado](%s)\n\n**Sugestão de copy:**\n\n%s", url, caption)
}

func extractImagePrompt(answer string) (string, bool) {
	m := sentinelPattern.FindStringSubmatch(answer)
	if m == nil {
		return "", false
	}
	p := strings.TrimSpace(m[1])
	return p, p != ""
}

// postCaption is the answer with the first sentinel line removed.
func postCaption(answer string) string {
	loc := sentinelLine.FindStringIndex(answer)
	if loc == nil {
		return strings.TrimSpace(answer)
	}
	return strings.TrimSpace(answer[:loc[0]] + answer[loc[1]:])
}

func (s *ChatService) nameConversation(ctx context.Context, convID, first string, onUpdate UpdateFunc) {
	title, err := s.llm.Complete(ctx, prompt.TitleMessages(first))
	title = strings.TrimSpace(title)
	if err != nil || title == "" {
		if err != nil {
			logger.Errorf("Error generating title: %v", err)
		}
		title = truncateRunes(first, fallbackMaxRunes, "...")
	} else {
		title = truncateRunes(title, titleMaxRunes, "")
	}

	if err := s.UpdateConversationTitle(ctx, convID, title); err != nil {
		logger.Errorf("Failed to update title of %s: %v", convID, err)
		return
	}

	u := s.update(convID, model.PhaseTitle, model.Message{})
	u.Title = title
	onUpdate(u)
}

func truncateRunes(s string, max int, suffix string) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + suffix
}

// rewriteReply replaces the placeholder content in place, persists and
// publishes it.
func (s *ChatService) rewriteReply(ctx context.Context, turn *turnState, content string, streaming bool, phase string, onUpdate UpdateFunc) {
	var updated model.Message
	_, err := s.mutate(ctx, turn.convID, func(c *model.Conversation) bool {
		for i := range c.Messages {
			if c.Messages[i].ID == turn.reply.ID {
				c.Messages[i].Content = content
				c.Messages[i].IsStreaming = streaming
				updated = c.Messages[i]
				return true
			}
		}
		return false
	})
	if err != nil {
		logger.Warnf("Failed to update message %s: %v", turn.reply.ID, err)
		return
	}
	onUpdate(s.update(turn.convID, phase, updated))
}

// mutate applies fn to the conversation with id and persists the workspace
// when fn reports a change.
func (s *ChatService) mutate(ctx context.Context, id string, fn func(*model.Conversation) bool) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Conversation{}, ErrConversationNotFound
	}
	conv := &s.conversations[idx]
	if !fn(conv) {
		return conv.Clone(), nil
	}
	conv.UpdatedAt = s.now()

	if err := s.persistLocked(ctx); err != nil {
		return model.Conversation{}, err
	}
	return conv.Clone(), nil
}

func (s *ChatService) persistLocked(ctx context.Context) error {
	if err := storage.SaveJSON(ctx, s.storage, storage.KeyConversations, s.conversations); err != nil {
		return fmt.Errorf("persist conversations: %w", err)
	}
	return nil
}

func (s *ChatService) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *ChatService) update(convID, phase string, msg model.Message) model.ChatUpdate {
	return model.ChatUpdate{
		ConversationID: convID,
		Phase:          phase,
		Message:        msg,
		Timestamp:      s.now().UnixMilli(),
	}
}
