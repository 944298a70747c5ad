package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const defaultAnthropicMaxTokens = 4096

// directTransport is shared by clients built without a proxy transport.
var directTransport = NewTransport()

// Factory builds provider clients. Its fields are process-wide settings;
// a Factory is safe for concurrent use once constructed.
type Factory struct {
	// Transport replaces the default network transport for every dialect.
	// Nil means a direct connection.
	Transport http.RoundTripper

	// Timeout is the overall client timeout. Zero leaves it to the transport.
	Timeout time.Duration

	// AnthropicMaxTokens is sent as max_tokens, which the Messages API requires.
	AnthropicMaxTokens int

	// BaseURLs overrides catalog endpoints, mainly for tests.
	BaseURLs map[ProviderID]string
}

// Build constructs a model client with the package defaults and an
// optional proxy transport.
func Build(id ProviderID, modelID, apiKey string, transport http.RoundTripper) (Model, error) {
	f := &Factory{Transport: transport}
	return f.Build(id, modelID, apiKey)
}

// Build dispatches on the provider id and returns a client bound to the
// provider's endpoint and wire dialect. modelID is passed through unchecked.
// No network call is made.
func (f *Factory) Build(id ProviderID, modelID, apiKey string) (Model, error) {
	cfg, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrMissingCredential, id)
	}

	baseURL := cfg.BaseURL
	if override, ok := f.BaseURLs[id]; ok && override != "" {
		baseURL = override
	}

	switch id {
	case OpenAI, DeepSeek, Qwen:
		return newOpenAIModel(id, modelID, apiKey, baseURL, f.httpClient()), nil
	case Anthropic:
		maxTokens := f.AnthropicMaxTokens
		if maxTokens <= 0 {
			maxTokens = defaultAnthropicMaxTokens
		}
		return newAnthropicModel(modelID, apiKey, baseURL, maxTokens, f.httpClient()), nil
	case Google:
		// genai.NewClient does not dial for the Gemini API backend.
		return newGoogleModel(context.Background(), modelID, apiKey, baseURL, f.httpClient())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
}

func (f *Factory) httpClient() *http.Client {
	transport := f.Transport
	if transport == nil {
		transport = directTransport
	}
	return &http.Client{
		Timeout:   f.Timeout,
		Transport: transport,
	}
}
