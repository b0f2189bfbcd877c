package utils

import (
	"net/http"
	"time"
)

// NewTransport returns the pooled transport shared by the upstream clients.
func NewTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 90 * time.Second
	return t
}

// NewHTTPClient builds a client over NewTransport. Each wrap decorates the
// transport, innermost first.
func NewHTTPClient(timeout time.Duration, wrap ...func(http.RoundTripper) http.RoundTripper) *http.Client {
	var rt http.RoundTripper = NewTransport()
	for _, w := range wrap {
		rt = w(rt)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}
