// Package conversation holds the client-side chat state: conversations,
// their messages, the selected provider and model, and stored key material.
package conversation

import (
	"errors"
	"time"

	"chat_gateway/internal/providers"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultProvider = providers.OpenAI
	DefaultModel    = "gpt-4o"

	titleMaxRunes = 30
)

// Role of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolInvocation is a tool call made by the model. Result stays nil until
// the tool has run.
type ToolInvocation struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
	Result    map[string]any `json:"result,omitempty"`
}

// Message is one entry in a conversation. Only Content and ToolCalls change
// after creation.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ToolInvocation `json:"toolCalls,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Conversation is an ordered, append-only list of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ModelID   string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// State is the full store content.
type State struct {
	Conversations         []Conversation
	CurrentConversationID string
	CurrentProvider       providers.ProviderID
	CurrentModel          string
	APIKeys               map[providers.ProviderID]string // encrypted material
}

// Persisted is the part of State that survives a restart. Transcripts are
// deliberately not part of it.
type Persisted struct {
	APIKeys         map[providers.ProviderID]string `json:"apiKeys"`
	CurrentProvider providers.ProviderID            `json:"currentProvider"`
	CurrentModel    string                          `json:"currentModel"`
}

// DeriveTitle returns the first 30 characters of the message, with "..."
// appended when it was cut.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleMaxRunes {
		return content
	}
	return string(runes[:titleMaxRunes]) + "..."
}

func (c Conversation) clone() Conversation {
	c.Messages = append([]Message(nil), c.Messages...)
	for i := range c.Messages {
		c.Messages[i].ToolCalls = append([]ToolInvocation(nil), c.Messages[i].ToolCalls...)
	}
	return c
}

// Active returns the conversation marked current, if any.
func (s State) Active() (Conversation, bool) {
	if s.CurrentConversationID == "" {
		return Conversation{}, false
	}
	return s.Find(s.CurrentConversationID)
}

// Find returns the conversation with the given id.
func (s State) Find(id string) (Conversation, bool) {
	for _, c := range s.Conversations {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}
