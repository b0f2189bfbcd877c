package registration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledmkt-backend/internal/config"
)

var maria = Data{Name: "Maria", Email: "maria@example.com", Whatsapp: "+55 11 99999-0000", Age: 31, Gender: "Feminino"}

func newTestForwarder(url string) *Forwarder {
	f := NewForwarder(config.RegistrationConfig{WebhookURL: url, ToEmail: "walter@ledmkt.com", Timeout: time.Second})
	f.now = func() time.Time { return time.Date(2026, 10, 16, 14, 5, 9, 0, time.UTC) }
	return f
}

func TestForwardPostsNotice(t *testing.T) {
	var got Notice
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	require.NoError(t, newTestForwarder(srv.URL).Forward(context.Background(), maria))

	assert.Equal(t, "walter@ledmkt.com", got.ToEmail)
	assert.Equal(t, "Novo Cadastro LedMKT - Maria", got.Subject)
	assert.Equal(t, "2026-10-16T14:05:09.000Z", got.Timestamp)
	assert.Equal(t, maria, got.UserData)
	assert.Contains(t, got.HTMLContent, "<p><strong>Idade:</strong> 31 anos</p>")
	assert.Contains(t, got.HTMLContent, "16/10/2026, 14:05:09")
}

func TestForwardEscapesHTML(t *testing.T) {
	f := newTestForwarder("http://unused")
	data := maria
	data.Name = "<script>x</script>"

	notice, err := f.buildNotice(data)
	require.NoError(t, err)
	assert.NotContains(t, notice.HTMLContent, "<script>")
	assert.Equal(t, "Novo Cadastro LedMKT - <script>x</script>", notice.Subject)
}

func TestForwardErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	incomplete := maria
	incomplete.Age = 0

	tests := []struct {
		name string
		url  string
		data Data
		want error
	}{
		{"missing field", failing.URL, incomplete, ErrMissingFields},
		{"not configured", "", maria, ErrNotConfigured},
		{"webhook rejects", failing.URL, maria, ErrDelivery},
		{"webhook unreachable", "http://127.0.0.1:1/hook", maria, ErrDelivery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestForwarder(tt.url).Forward(context.Background(), tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
