package providers

import (
	"fmt"
	"slices"
)

// ProviderID identifies an upstream LLM vendor.
type ProviderID string

const (
	OpenAI    ProviderID = "openai"
	Anthropic ProviderID = "anthropic"
	Google    ProviderID = "google"
	DeepSeek  ProviderID = "deepseek"
	Qwen      ProviderID = "qwen"
)

const (
	DefaultProvider = Google
	DefaultModel    = "gemini-2.5-flash"
)

// ProviderConfig is the static catalog entry of a provider.
type ProviderConfig struct {
	ID              ProviderID `json:"id"`
	DisplayName     string     `json:"name"`
	SupportedModels []string   `json:"models"`
	BaseURL         string     `json:"baseUrl,omitempty"` // empty means the dialect default
}

// Supports reports whether modelID is in the provider's model list.
func (c ProviderConfig) Supports(modelID string) bool {
	return slices.Contains(c.SupportedModels, modelID)
}

var providerOrder = []ProviderID{Google, OpenAI, Anthropic, DeepSeek, Qwen}

var catalog = map[ProviderID]ProviderConfig{
	Google: {
		ID:          Google,
		DisplayName: "Google Gemini",
		SupportedModels: []string{
			"gemini-2.5-flash",
			"gemini-2.0-flash",
			"gemini-2.5-pro",
			"gemini-3-pro-preview",
		},
	},
	OpenAI: {
		ID:              OpenAI,
		DisplayName:     "OpenAI",
		SupportedModels: []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
	},
	Anthropic: {
		ID:          Anthropic,
		DisplayName: "Anthropic",
		SupportedModels: []string{
			"claude-sonnet-4-20250514",
			"claude-3-5-sonnet-20241022",
			"claude-3-opus-20240229",
			"claude-3-haiku-20240307",
		},
	},
	DeepSeek: {
		ID:              DeepSeek,
		DisplayName:     "DeepSeek",
		SupportedModels: []string{"deepseek-chat", "deepseek-coder"},
		BaseURL:         "https://api.deepseek.com",
	},
	Qwen: {
		ID:              Qwen,
		DisplayName:     "Qwen",
		SupportedModels: []string{"qwen-turbo", "qwen-plus", "qwen-max"},
		BaseURL:         "https://dashscope.aliyuncs.com/compatible-mode/v1",
	},
}

// Lookup returns the catalog entry for id.
func Lookup(id ProviderID) (ProviderConfig, error) {
	cfg, ok := catalog[id]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	cfg.SupportedModels = slices.Clone(cfg.SupportedModels)
	return cfg, nil
}

// ParseProviderID converts a wire value into a known ProviderID.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(s)
	if _, ok := catalog[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, s)
	}
	return id, nil
}

// All returns every known provider in display order.
func All() []ProviderID {
	return slices.Clone(providerOrder)
}

// Catalog returns every provider configuration in display order.
func Catalog() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(providerOrder))
	for _, id := range providerOrder {
		cfg, _ := Lookup(id)
		out = append(out, cfg)
	}
	return out
}
