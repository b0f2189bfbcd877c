// Package registration forwards new-account notices to the mail webhook.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"ledmkt-backend/internal/config"
	"ledmkt-backend/internal/utils"
)

var (
	ErrMissingFields = errors.New("missing required fields")
	ErrNotConfigured = errors.New("registration webhook not configured")
	ErrDelivery      = errors.New("registration webhook failed")
)

// Data is what a new account reports about itself.
type Data struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Whatsapp string `json:"whatsapp"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
}

func (d Data) Complete() bool {
	return d.Name != "" && d.Email != "" && d.Whatsapp != "" && d.Age != 0 && d.Gender != ""
}

// Notice is the payload posted to the webhook.
type Notice struct {
	ToEmail     string `json:"to_email"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"html_content"`
	Timestamp   string `json:"timestamp"`
	UserData    Data   `json:"user_data"`
}

var noticeTemplate = template.Must(template.New("notice").Parse(`
        <h2>Novo usuário cadastrado no LedMKT</h2>
        <p><strong>Nome:</strong> {{.Data.Name}}</p>
        <p><strong>Email:</strong> {{.Data.Email}}</p>
        <p><strong>WhatsApp:</strong> {{.Data.Whatsapp}}</p>
        <p><strong>Idade:</strong> {{.Data.Age}} anos</p>
        <p><strong>Sexo:</strong> {{.Data.Gender}}</p>
        <p><strong>Data do cadastro:</strong> {{.Date}}</p>
        <hr>
        <p><em>Este email foi enviado automaticamente pelo sistema LedMKT.</em></p>
      `))

// Sender delivers a registration notice.
type Sender interface {
	Forward(ctx context.Context, data Data) error
}

type Forwarder struct {
	webhookURL string
	toEmail    string
	client     *http.Client
	now        func() time.Time
}

func NewForwarder(cfg config.RegistrationConfig) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Forwarder{
		webhookURL: cfg.WebhookURL,
		toEmail:    cfg.ToEmail,
		client:     utils.NewHTTPClient(timeout),
		now:        time.Now,
	}
}

// Configured reports whether a webhook URL is set.
func (f *Forwarder) Configured() bool {
	return f.webhookURL != ""
}

func (f *Forwarder) Forward(ctx context.Context, data Data) error {
	if !data.Complete() {
		return ErrMissingFields
	}
	if !f.Configured() {
		return ErrNotConfigured
	}

	notice, err := f.buildNotice(data)
	if err != nil {
		return err
	}

	body, err := json.Marshal(notice)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrDelivery, resp.StatusCode)
	}
	return nil
}

func (f *Forwarder) buildNotice(data Data) (Notice, error) {
	now := f.now()

	var html strings.Builder
	err := noticeTemplate.Execute(&html, struct {
		Data Data
		Date string
	}{data, now.Format("02/01/2006, 15:04:05")})
	if err != nil {
		return Notice{}, err
	}

	return Notice{
		ToEmail:     f.toEmail,
		Subject:     "Novo Cadastro LedMKT - " + data.Name,
		HTMLContent: html.String(),
		Timestamp:   now.UTC().Format("2006-01-02T15:04:05.000Z"),
		UserData:    data,
	}, nil
}
