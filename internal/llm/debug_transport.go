package llm

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"

	"ledmkt-backend/pkg/logger"
)

var sensitiveHeaders = []string{
	"authorization",
	"x-api-key",
	"x-goog-api-key",
	"x-auth-token",
	"cookie",
}

var sensitiveJSONField = regexp.MustCompile(`(?i)"(api_key|apikey|password|secret|token)"\s*:\s*"[^"]*"`)

// DebugTransport logs outgoing POST requests with credentials redacted.
type DebugTransport struct {
	base         http.RoundTripper
	debugEnabled bool
	name         string
}

func NewDebugTransport(base http.RoundTripper, name string, debugEnabled bool) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{
		base:         base,
		debugEnabled: debugEnabled,
		name:         name,
	}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.debugEnabled && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.debugEnabled {
		logger.Errorf("[%s debug] request failed: %v", t.name, err)
	}

	return resp, err
}

func (t *DebugTransport) logRequest(req *http.Request) {
	headers := make(map[string]string, len(req.Header))
	for name, values := range req.Header {
		if isSensitiveHeader(name) {
			headers[name] = "[REDACTED]"
			continue
		}
		headers[name] = strings.Join(values, ", ")
	}

	fields := map[string]interface{}{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": headers,
	}

	if req.Body != nil {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			logger.Errorf("[%s debug] failed to read request body: %v", t.name, err)
			return
		}
		// 恢复请求体
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		fields["body_size"] = len(bodyBytes)
		fields["body"] = redactBody(string(bodyBytes))
	}

	logger.WithFields(fields).Infof("[%s debug] outgoing request", t.name)
}

func redactBody(body string) string {
	return sensitiveJSONField.ReplaceAllString(body, `"$1": "[REDACTED]"`)
}

func isSensitiveHeader(name string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(name, sensitive) {
			return true
		}
	}
	return false
}
