// Package gateway runs one chat request: it resolves the credential, builds
// the provider client and drives the bounded tool-calling loop while the
// output is relayed as a UI message stream.
package gateway

import (
	"fmt"

	"github.com/google/uuid"

	"chat_gateway/internal/providers"
	"chat_gateway/internal/tools"
	"chat_gateway/internal/vault"
)

const defaultMaxSteps = 5

// ModelBuilder constructs a provider client. *providers.Factory implements it.
type ModelBuilder interface {
	Build(id providers.ProviderID, modelID, apiKey string) (providers.Model, error)
}

// Config holds the process-wide gateway settings.
type Config struct {
	MaxSteps     int
	EnableTools  bool
	StrictModels bool
	GeminiAPIKey string // server-side fallback credential for google
}

// Gateway prepares a Session per request. It holds no per-request state.
type Gateway struct {
	vault   *vault.Vault
	builder ModelBuilder
	tools   *tools.Registry
	cfg     Config
}

// New creates a Gateway. A nil registry disables tools.
func New(v *vault.Vault, builder ModelBuilder, registry *tools.Registry, cfg Config) *Gateway {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	return &Gateway{vault: v, builder: builder, tools: registry, cfg: cfg}
}

// ResolveKey decrypts the supplied key material. Google falls back to the
// server default when nothing usable was supplied.
func (g *Gateway) ResolveKey(id providers.ProviderID, encrypted string) (string, error) {
	var key string
	if encrypted != "" {
		key = g.vault.Decrypt(encrypted)
	}
	if key == "" && id == providers.Google && g.cfg.GeminiAPIKey != "" {
		key = g.cfg.GeminiAPIKey
	}
	if key == "" {
		return "", &CredentialError{Provider: id}
	}
	return key, nil
}

// Prepare validates the request, resolves the key and builds the model.
// It returns *ValidationError, *CredentialError or a build error, and makes
// no upstream call.
func (g *Gateway) Prepare(req *ChatRequest) (*Session, error) {
	id, err := req.Validate(g.cfg.StrictModels)
	if err != nil {
		return nil, err
	}

	key, err := g.ResolveKey(id, req.EncryptedAPIKey)
	if err != nil {
		return nil, err
	}

	model, err := g.builder.Build(id, req.Model, key)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s model: %w", id, err)
	}

	msgs, err := ToProviderMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:             uuid.NewString(),
		Provider:       id,
		ModelID:        req.Model,
		ConversationID: req.ConversationID,
		model:          model,
		messages:       msgs,
		maxSteps:       g.cfg.MaxSteps,
	}
	if g.cfg.EnableTools {
		s.tools = g.tools
	}
	return s, nil
}
