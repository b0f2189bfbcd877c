package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledmkt-backend/internal/config"
	"ledmkt-backend/internal/gemini"
	"ledmkt-backend/internal/knowledge"
	"ledmkt-backend/internal/llm"
	"ledmkt-backend/internal/registration"
	"ledmkt-backend/internal/retry"
	"ledmkt-backend/internal/service"
	"ledmkt-backend/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLLM struct {
	mu      sync.Mutex
	chunks  []string
	block   chan struct{}
	started chan struct{}
	seen    [][]llm.Message
}

func (s *stubLLM) Stream(ctx context.Context, messages []llm.Message, onChunk func(string)) error {
	s.mu.Lock()
	s.seen = append(s.seen, messages)
	started := s.started
	s.started = nil
	s.mu.Unlock()

	if started != nil {
		close(started)
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, c := range s.chunks {
		onChunk(c)
	}
	return nil
}

func (s *stubLLM) Complete(context.Context, []llm.Message) (string, error) {
	return "Campanha de verão", nil
}

func (s *stubLLM) lastUserContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.seen[len(s.seen)-1]
	return msgs[len(msgs)-1].Content
}

type stubImages struct {
	mu        sync.Mutex
	described []string
}

func (s *stubImages) Describe(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.described = append(s.described, prompt)
	return "Um logotipo azul.", nil
}

func (s *stubImages) GenerateImage(_ context.Context, prompt string, _ gemini.ImageOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", gemini.ErrEmptyPrompt
	}
	return "https://img.example.com/" + strings.ReplaceAll(prompt, " ", "-") + ".png", nil
}

type testAPI struct {
	router *gin.Engine
	chat   *service.ChatService
	llm    *stubLLM
	images *stubImages
	feed   *service.Feed
}

func newTestAPI(t *testing.T, webhookURL string) *testAPI {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledmkt.txt"), []byte("Agência Led Marketing"), 0o644))
	files := httptest.NewServer(http.FileServer(http.Dir(dir)))
	t.Cleanup(files.Close)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Knowledge.Dir = dir
	cfg.Knowledge.Path = "/knowledge"

	store := storage.NewMemoryStorage()
	require.NoError(t, store.Init())

	api := &testAPI{
		llm:    &stubLLM{chunks: []string{"Olá", "!"}},
		images: &stubImages{},
		feed:   service.NewFeed(10),
	}

	loader := knowledge.NewLoader(config.KnowledgeConfig{BaseURL: files.URL, Path: "/", CacheTTL: time.Minute}, nil)
	ladder := retry.New(2, time.Millisecond)
	api.chat = service.NewChatService(service.ChatDeps{
		LLM:       api.llm,
		Images:    api.images,
		Knowledge: loader,
		Storage:   store,
		Notifier:  api.feed,
		Ladder:    ladder,
	})

	forwarder := registration.NewForwarder(config.RegistrationConfig{WebhookURL: webhookURL, ToEmail: "walter@ledmkt.com"})
	users := service.NewUserService(store, api.feed, forwarder, config.AuthConfig{AdminSecret: "976431"})

	api.router = NewRouter(cfg, Handlers{
		Chat:         NewChatHandler(api.chat),
		Auth:         NewAuthHandler(users),
		Knowledge:    NewKnowledgeHandler(loader),
		Image:        NewImageHandler(api.images),
		Notification: NewNotificationHandler(api.feed),
		Registration: NewRegistrationHandler(forwarder),
	})
	return api
}

func (a *testAPI) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, "")
	rec := api.do(http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestSendStreamsUpdates(t *testing.T) {
	api := newTestAPI(t, "")

	rec := api.do(http.MethodPost, "/api/chat/send", gin.H{"content": "Oi"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: status\ndata: {")
	assert.Contains(t, body, `"type":"processing_start"`)
	assert.Contains(t, body, `"phase":"streaming"`)
	assert.Contains(t, body, `"phase":"completed"`)
	assert.Contains(t, body, `"content":"Olá!"`)
	assert.Contains(t, body, `"phase":"title"`)
	assert.Contains(t, body, `"type":"processing_complete"`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))

	conv, ok := api.chat.CurrentConversation()
	require.True(t, ok)
	assert.Equal(t, "Campanha de verão", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Olá!", conv.Messages[1].Content)
	assert.Contains(t, api.llm.seen[0][0].Content, "Agência Led Marketing")
}

func TestSendRejectsEmptyContent(t *testing.T) {
	api := newTestAPI(t, "")

	rec := api.do(http.MethodPost, "/api/chat/send", gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/chat/send", gin.H{
		"content": "veja",
		"image":   gin.H{"name": "x.png", "data": "%%%"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendWhileBusy(t *testing.T) {
	api := newTestAPI(t, "")
	api.llm.block = make(chan struct{})
	api.llm.started = make(chan struct{})
	started := api.llm.started

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- api.do(http.MethodPost, "/api/chat/send", gin.H{"content": "primeira"})
	}()
	<-started

	rec := api.do(http.MethodPost, "/api/chat/send", gin.H{"content": "segunda"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(api.llm.block)
	first := <-done
	assert.Contains(t, first.Body.String(), `"phase":"completed"`)
}

func TestSendJSONImage(t *testing.T) {
	api := newTestAPI(t, "")

	rec := api.do(http.MethodPost, "/api/chat/send", gin.H{
		"content": "O que acha?",
		"image": gin.H{
			"name":      "logo.png",
			"mime_type": "image/png",
			"data":      base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"analyzing"`)

	require.Len(t, api.images.described, 1)
	assert.Contains(t, api.images.described[0], "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("png-bytes")))
	assert.Contains(t, api.llm.lastUserContent(), "[ANÁLISE DA IMAGEM ANEXADA]:\nUm logotipo azul.")
}

func TestSendMultipartImage(t *testing.T) {
	api := newTestAPI(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("content", "Analise"))
	part, err := mw.CreateFormFile("image", "foto.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("\xff\xd8\xff\xe0jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, api.images.described, 1)
	assert.Contains(t, api.images.described[0], "data:image/jpeg;base64,")

	conv, ok := api.chat.CurrentConversation()
	require.True(t, ok)
	assert.Equal(t, "Analise\n\n📎 Imagem anexada: foto.jpg", conv.Messages[0].Content)
}

func TestConversationRoutes(t *testing.T) {
	api := newTestAPI(t, "")

	rec := api.do(http.MethodGet, "/api/chat/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodPost, "/api/chat/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode(t, rec)["id"].(string)

	rec = api.do(http.MethodPost, "/api/chat/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode(t, rec)["id"].(string)

	rec = api.do(http.MethodGet, "/api/chat/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Equal(t, second, list["current_id"])
	items := list["conversations"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, second, items[0].(map[string]interface{})["id"], "newest first")

	rec = api.do(http.MethodPost, "/api/chat/conversations/"+first+"/select", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodGet, "/api/chat/current", nil)
	assert.Equal(t, first, decode(t, rec)["id"])

	rec = api.do(http.MethodPut, "/api/chat/conversations/"+first, gin.H{"title": "Lançamento"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lançamento", decode(t, rec)["title"])

	rec = api.do(http.MethodPut, "/api/chat/conversations/"+first, gin.H{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/chat/conversations/"+first, nil)
	assert.Equal(t, "Lançamento", decode(t, rec)["title"])

	rec = api.do(http.MethodDelete, "/api/chat/conversations/"+first, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodGet, "/api/chat/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, path := range []string{"/api/chat/conversations/missing", "/api/chat/conversations/missing/select"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "select") {
			method = http.MethodPost
		}
		rec = api.do(method, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec = api.do(http.MethodDelete, "/api/chat/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModeRoutes(t *testing.T) {
	api := newTestAPI(t, "")

	rec := api.do(http.MethodGet, "/api/chat/mode", nil)
	assert.Equal(t, "chat", decode(t, rec)["mode"])

	rec = api.do(http.MethodPut, "/api/chat/mode", gin.H{"mode": "post"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "post", decode(t, rec)["mode"])

	rec = api.do(http.MethodPut, "/api/chat/mode", gin.H{"mode": "video"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "post", string(api.chat.ResponseMode()))
}

func TestAuthRoutes(t *testing.T) {
	api := newTestAPI(t, "")

	register := gin.H{
		"name": "Maria", "email": "maria@example.com", "password": "segredo1",
		"confirm_password": "segredo1", "whatsapp": "11999990000", "age": 31, "gender": "Feminino",
	}
	rec := api.do(http.MethodPost, "/api/auth/register", register)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["authenticated"])

	rec = api.do(http.MethodPost, "/api/auth/register", register)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Este email já está cadastrado!", decode(t, rec)["error"])

	short := gin.H{}
	for k, v := range register {
		short[k] = v
	}
	short["email"], short["password"], short["confirm_password"] = "joao@example.com", "123", "123"
	rec = api.do(http.MethodPost, "/api/auth/register", short)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "A senha deve ter pelo menos 6 caracteres!", decode(t, rec)["error"])

	rec = api.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, false, decode(t, rec)["authenticated"])

	rec = api.do(http.MethodPut, "/api/auth/avatar", gin.H{"avatar": "https://img.example.com/a.png"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/login", gin.H{"email": "maria@example.com", "password": "errada"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/login", gin.H{"email": "maria@example.com", "password": "segredo1"})
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "Maria", user["name"])

	rec = api.do(http.MethodPut, "/api/auth/avatar", gin.H{"avatar": "https://img.example.com/a.png"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodPut, "/api/auth/profile", gin.H{"name": "Maria Silva"})
	require.Equal(t, http.StatusOK, rec.Code)
	user = decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "Maria Silva", user["name"])
	assert.Equal(t, "https://img.example.com/a.png", user["avatar"])

	rec = api.do(http.MethodPost, "/api/auth/admin", gin.H{"password": "000000"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = api.do(http.MethodPost, "/api/auth/admin", gin.H{"password": "976431"})
	require.Equal(t, http.StatusOK, rec.Code)
	user = decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "admin", user["id"])
	assert.Equal(t, true, user["is_admin"])
}

func TestNotificationsDrain(t *testing.T) {
	api := newTestAPI(t, "")
	api.do(http.MethodPost, "/api/auth/login", gin.H{"email": "ninguem@example.com", "password": "x"})

	rec := api.do(http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["notifications"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "error", items[0].(map[string]interface{})["level"])
	assert.Equal(t, "Email ou senha incorretos!", items[0].(map[string]interface{})["message"])

	rec = api.do(http.MethodGet, "/api/notifications", nil)
	assert.Empty(t, decode(t, rec)["notifications"])
}

func TestKnowledgeRoutes(t *testing.T) {
	api := newTestAPI(t, "")

	rec := api.do(http.MethodGet, "/api/knowledge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "\n=== ledmkt.txt ===\nAgência Led Marketing\n", body["content"])
	assert.Equal(t, false, body["cached"])

	rec = api.do(http.MethodGet, "/api/knowledge", nil)
	assert.Equal(t, true, decode(t, rec)["cached"])

	rec = api.do(http.MethodPost, "/api/knowledge/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["content"], "Agência Led Marketing")

	rec = api.do(http.MethodGet, "/knowledge/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="ledmkt.txt"`)
}

func TestImageGenerate(t *testing.T) {
	api := newTestAPI(t, "")

	rec := api.do(http.MethodPost, "/api/images/generate", gin.H{"prompt": " loja de tênis "})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "https://img.example.com/loja-de-tênis.png", body["image_url"])
	assert.Equal(t, "loja de tênis", body["prompt"])

	rec = api.do(http.MethodPost, "/api/images/generate", gin.H{"prompt": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistrationFunction(t *testing.T) {
	complete := gin.H{"name": "Maria", "email": "maria@example.com", "whatsapp": "11999990000", "age": 31, "gender": "Feminino"}

	var (
		mu            sync.Mutex
		received      registration.Notice
		webhookStatus atomic.Int32
	)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		mu.Unlock()
		w.WriteHeader(int(webhookStatus.Load()))
	}))
	defer webhook.Close()

	tests := []struct {
		name       string
		webhook    string
		method     string
		body       interface{}
		upstream   int
		wantStatus int
		want       gin.H
	}{
		{"wrong method", webhook.URL, http.MethodGet, nil, 0, http.StatusMethodNotAllowed,
			gin.H{"success": false, "error": "Method Not Allowed"}},
		{"missing field", webhook.URL, http.MethodPost, gin.H{"name": "Maria"}, 0, http.StatusBadRequest,
			gin.H{"success": false, "error": "Missing required fields"}},
		{"not configured", "", http.MethodPost, complete, 0, http.StatusInternalServerError,
			gin.H{"success": false, "error": "Email service not configured"}},
		{"webhook failure", webhook.URL, http.MethodPost, complete, http.StatusBadGateway, http.StatusInternalServerError,
			gin.H{"success": false, "error": "Failed to send email"}},
		{"delivered", webhook.URL, http.MethodPost, complete, http.StatusOK, http.StatusOK,
			gin.H{"success": true, "message": "Email sent successfully"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			webhookStatus.Store(int32(tt.upstream))
			api := newTestAPI(t, tt.webhook)

			for _, path := range []string{registrationFunctionPath, "/api/registration-email"} {
				rec := api.do(tt.method, path, tt.body)
				assert.Equal(t, tt.wantStatus, rec.Code, path)
				assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

				got := decode(t, rec)
				for k, v := range tt.want {
					assert.Equal(t, v, got[k], k)
				}
			}
		})
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Novo Cadastro LedMKT - Maria", received.Subject)
	assert.Equal(t, "walter@ledmkt.com", received.ToEmail)
}
