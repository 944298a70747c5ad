package client

import (
	"errors"
	"fmt"

	"chat_gateway/internal/providers"
)

// ErrNoAPIKey is matched by *MissingKeyError.
var ErrNoAPIKey = errors.New("no api key configured")

// MissingKeyError is returned before any request is made when the selected
// provider has no stored key. Google is exempt since the server holds a default.
type MissingKeyError struct {
	Provider providers.ProviderID
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("请先配置 %s 的 API Key", e.Provider)
}

func (e *MissingKeyError) Unwrap() error {
	return ErrNoAPIKey
}

// APIError is a JSON error answer from the gateway.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("gateway error (status %d): %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("gateway error (status %d): %s", e.StatusCode, e.Message)
}

// StreamError is an error chunk received after streaming had started. The
// partial assistant message stays in the store.
type StreamError struct {
	Text string
}

func (e *StreamError) Error() string {
	return "generation failed: " + e.Text
}
