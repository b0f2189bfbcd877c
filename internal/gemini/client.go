// Package gemini calls Google's generative language endpoints for image
// analysis and image generation.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"ledmkt-backend/internal/config"
	"ledmkt-backend/internal/utils"
	"ledmkt-backend/pkg/logger"
)

const (
	NoAnswer = "Desculpe, não consegui gerar uma resposta."

	defaultFallbackURL = "https://image.pollinations.ai/prompt/"
)

var (
	ErrEmptyPrompt = errors.New("image prompt is empty")

	urlPattern = regexp.MustCompile(`https?://\S+`)
)

// ImageOptions tune a generation request. Zero values use the defaults
// realistic, 1:1 and hd.
type ImageOptions struct {
	Style       string
	AspectRatio string
	Quality     string
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

type Client struct {
	apiKey      string
	textURL     string
	imageURL    string
	fallbackURL string
	httpClient  *http.Client
	seed        func() int
}

func NewClient(cfg config.GeminiConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	fallback := cfg.FallbackURL
	if fallback == "" {
		fallback = defaultFallbackURL
	}

	return &Client{
		apiKey:      cfg.APIKey,
		textURL:     cfg.TextURL,
		imageURL:    cfg.ImageURL,
		fallbackURL: fallback,
		httpClient:  utils.NewHTTPClient(timeout),
		seed:        func() int { return rand.Intn(1000000) },
	}
}

// WithSeed replaces the random seed source used for fallback URLs.
func (c *Client) WithSeed(seed func() int) *Client {
	c.seed = seed
	return c
}

// Describe sends a single user turn to the text model and returns the first
// candidate's text.
func (c *Client) Describe(ctx context.Context, prompt string) (string, error) {
	resp, err := c.generate(ctx, c.textURL, content{
		Role:  "user",
		Parts: []part{{Text: prompt}},
	})
	if err != nil {
		return "", err
	}

	if text := firstText(resp); text != "" {
		return text, nil
	}
	return NoAnswer, nil
}

// GenerateImage returns a URL for an image matching prompt. Upstream
// failures fall back to a Pollinations URL, only an empty prompt is an
// error.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	instruction := fmt.Sprintf("Generate an image: %s. Style: %s. Aspect ratio: %s. Quality: %s.",
		prompt,
		orDefault(opts.Style, "realistic"),
		orDefault(opts.AspectRatio, "1:1"),
		orDefault(opts.Quality, "hd"),
	)

	resp, err := c.generate(ctx, c.imageURL, content{Parts: []part{{Text: instruction}}})
	if err != nil {
		logger.Warnf("Image generation failed, using fallback: %v", err)
		return c.FallbackURL(prompt), nil
	}

	if found := urlPattern.FindString(firstText(resp)); found != "" {
		return found, nil
	}
	return c.FallbackURL(prompt), nil
}

// FallbackURL builds the Pollinations URL for prompt.
func (c *Client) FallbackURL(prompt string) string {
	encoded := strings.ReplaceAll(url.QueryEscape(prompt), "+", "%20")
	return fmt.Sprintf("%s%s?width=1024&height=1024&seed=%d", c.fallbackURL, encoded, c.seed())
}

func (c *Client) generate(ctx context.Context, endpoint string, turn content) (*generateResponse, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{turn},
		GenerationConfig: generationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 1000,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gemini API error: %d %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	return &out, nil
}

func firstText(resp *generateResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
