package providers

import (
	"fmt"
	"net/http"
)

// APIKeyAuth places a provider API key in a request header.
// OpenAI-dialect providers use "Authorization: Bearer <key>";
// Anthropic uses a bare "x-api-key" header.
type APIKeyAuth struct {
	apiKey     string
	headerName string
	prefix     string
}

// NewBearerAuth creates an Authorization: Bearer authenticator.
func NewBearerAuth(apiKey string) *APIKeyAuth {
	return NewAPIKeyAuth(apiKey, "Authorization", "Bearer ")
}

// NewAPIKeyAuth creates an authenticator for an arbitrary header and prefix.
func NewAPIKeyAuth(apiKey, headerName, prefix string) *APIKeyAuth {
	if headerName == "" {
		headerName = "Authorization"
	}

	return &APIKeyAuth{
		apiKey:     apiKey,
		headerName: headerName,
		prefix:     prefix,
	}
}

// Apply adds the API key to the HTTP request.
func (a *APIKeyAuth) Apply(req *http.Request) error {
	if a.apiKey == "" {
		return fmt.Errorf("API key is required")
	}

	req.Header.Set(a.headerName, a.prefix+a.apiKey)
	return nil
}

// String never prints the key.
func (a *APIKeyAuth) String() string {
	return fmt.Sprintf("APIKeyAuth{header=%s}", a.headerName)
}
