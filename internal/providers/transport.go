package providers

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// NewTransport returns the direct-connection transport used by every
// provider client when no proxy is configured.
func NewTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 90 * time.Second
	return t
}

// NewProxyTransport returns a transport that routes every upstream request
// through proxyURL. The transport is meant to be built once per process and
// shared read-only by all requests.
func NewProxyTransport(proxyURL string) (*http.Transport, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL: scheme and host are required")
	}

	t := NewTransport()
	t.Proxy = http.ProxyURL(u)
	return t, nil
}

// RedactedProxyURL returns proxyURL with any password replaced, for logging.
func RedactedProxyURL(proxyURL string) string {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return "(invalid proxy URL)"
	}
	return u.Redacted()
}
