// Package knowledge loads the plain-text knowledge files that are embedded
// into every system prompt.
package knowledge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"

	"ledmkt-backend/internal/config"
	"ledmkt-backend/internal/utils"
	"ledmkt-backend/pkg/logger"
)

const DefaultTTL = 5 * time.Minute

// Directory listings differ between web servers, so file names are
// collected with several patterns.
var listingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<a[^>]*href="([^"]*\.txt)"[^>]*>`),
	regexp.MustCompile(`(?i)<li><a[^>]*>([^<]*\.txt)</a></li>`),
	regexp.MustCompile(`(?i)href="([^"]*\.txt)"`),
}

// Source provides the knowledge text for a prompt.
type Source interface {
	Load(ctx context.Context) string
}

type Loader struct {
	baseURL string
	path    string
	client  *http.Client
	cache   *Cache
}

func NewLoader(cfg config.KnowledgeConfig, cache *Cache) *Loader {
	if cache == nil {
		cache = NewCache(cfg.CacheTTL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Loader{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		path:    "/" + strings.Trim(cfg.Path, "/"),
		client:  utils.NewHTTPClient(timeout),
		cache:   cache,
	}
}

func (l *Loader) Cache() *Cache {
	return l.cache
}

// Load returns the concatenated knowledge files, or "" when nothing could
// be loaded. It never fails.
func (l *Loader) Load(ctx context.Context) string {
	if cached, ok := l.cache.Get(); ok {
		return cached
	}

	listing, err := l.fetch(ctx, l.baseURL+l.path)
	if err != nil {
		logger.Warnf("Knowledge directory unavailable: %v", err)
		return ""
	}

	files := ExtractTxtFiles(listing)
	if len(files) == 0 {
		logger.Info("No .txt files found in knowledge directory")
		return ""
	}

	blocks := iter.Map(files, func(name *string) string {
		content, err := l.fetch(ctx, l.fileURL(*name))
		if err != nil {
			logger.Warnf("Failed to load knowledge file %s: %v", *name, err)
			return ""
		}
		return fmt.Sprintf("\n=== %s ===\n%s\n", *name, content)
	})

	loaded := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			loaded = append(loaded, b)
		}
	}

	result := strings.Join(loaded, "\n")
	l.cache.Set(result)

	logger.Infof("Knowledge loaded: %d .txt files", len(files))
	return result
}

func (l *Loader) fileURL(name string) string {
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return name
	}
	if strings.HasPrefix(name, "/") {
		return l.baseURL + name
	}
	return l.baseURL + strings.TrimRight(l.path, "/") + "/" + name
}

func (l *Loader) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ExtractTxtFiles returns the .txt names referenced by a directory listing,
// de-duplicated in first-seen order.
func ExtractTxtFiles(html string) []string {
	var files []string
	seen := make(map[string]struct{})

	for _, pattern := range listingPatterns {
		for _, m := range pattern.FindAllStringSubmatch(html, -1) {
			name := m[1]
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			files = append(files, name)
		}
	}

	return files
}
