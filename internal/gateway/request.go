package gateway

import (
	"fmt"
	"strings"

	"chat_gateway/internal/providers"
)

// MissingParamsMessage is the body text for an incomplete request.
const MissingParamsMessage = "Missing required parameters"

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages        []UIMessage `json:"messages"`
	Model           string      `json:"model"`
	Provider        string      `json:"provider"`
	EncryptedAPIKey string      `json:"encryptedApiKey,omitempty"`
	ConversationID  string      `json:"conversationId,omitempty"`
}

// UIMessage is a message as the browser UI sends it: either a plain
// content string or a list of typed parts.
type UIMessage struct {
	ID      string   `json:"id,omitempty"`
	Role    string   `json:"role"`
	Content string   `json:"content,omitempty"`
	Parts   []UIPart `json:"parts,omitempty"`
}

// UIPart is one part of a UIMessage. Tool parts are typed "tool-<name>"
// or "dynamic-tool" with an explicit ToolName.
type UIPart struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	State      string         `json:"state,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     any            `json:"output,omitempty"`
	ErrorText  string         `json:"errorText,omitempty"`
}

// Text returns the message text: Content when set, otherwise the text parts joined.
func (m UIMessage) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ValidationError is an incomplete or malformed request. It maps to 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return MissingParamsMessage
	}
	return e.Message
}

// CredentialError means no usable API key could be resolved. It maps to 401.
type CredentialError struct {
	Provider providers.ProviderID
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("请配置 %s 的 API Key", e.Provider)
}

// Validate checks the required fields and returns the parsed provider id.
// With strictModels the model must be in the provider's catalog entry.
func (r *ChatRequest) Validate(strictModels bool) (providers.ProviderID, error) {
	switch {
	case len(r.Messages) == 0:
		return "", &ValidationError{Field: "messages"}
	case r.Model == "":
		return "", &ValidationError{Field: "model"}
	case r.Provider == "":
		return "", &ValidationError{Field: "provider"}
	}

	id, err := providers.ParseProviderID(r.Provider)
	if err != nil {
		return "", &ValidationError{Field: "provider"}
	}

	if strictModels {
		cfg, _ := providers.Lookup(id)
		if !cfg.Supports(r.Model) {
			return "", &ValidationError{
				Field:   "model",
				Message: fmt.Sprintf("Unsupported model %s for provider %s", r.Model, id),
			}
		}
	}
	return id, nil
}

// LastUserMessage returns the most recent user message, if any.
func (r *ChatRequest) LastUserMessage() (UIMessage, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == string(providers.RoleUser) {
			return r.Messages[i], true
		}
	}
	return UIMessage{}, false
}

// FirstUserText returns the text of the first user message.
func (r *ChatRequest) FirstUserText() string {
	for _, m := range r.Messages {
		if m.Role == string(providers.RoleUser) {
			return m.Text()
		}
	}
	return ""
}
