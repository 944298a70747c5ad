package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned for a provider id outside the catalog.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingCredential is returned when a model is built without an API key.
	ErrMissingCredential = errors.New("missing credential")
)

// Role is the author of a message in the provider-neutral format.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is one entry of the provider-neutral conversation.
// Assistant messages may carry ToolCalls; tool messages carry the
// ToolCallID, ToolName and Result of a single invocation.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
	Result     map[string]any
}

// ToolSpec declares a callable tool to the model. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a single generation step.
type Request struct {
	Messages []Message
	Tools    []ToolSpec
}

// EventType tags a stream event.
type EventType int

const (
	EventTextDelta EventType = iota + 1
	EventToolCall
	EventFinish
)

// FinishReason explains why a generation step stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool-calls"
	FinishLength    FinishReason = "length"
	FinishOther     FinishReason = "other"
)

// Event is one item of a model's output stream.
type Event struct {
	Type         EventType
	Text         string
	ToolCall     *ToolCall
	FinishReason FinishReason
}

// Stream is the incremental output of one generation step. Recv returns
// io.EOF after the last event. Close releases the upstream connection and
// is safe to call more than once.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Model is a chat-completion client bound to one provider, model and key.
type Model interface {
	Provider() ProviderID
	ModelID() string

	// Stream starts a generation step. An *UpstreamError is returned when the
	// provider rejects the request before producing any output.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// UpstreamError reports a failure of the third-party API.
type UpstreamError struct {
	Provider   ProviderID
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// resultJSON renders a tool result for dialects that carry it as a string.
func resultJSON(result map[string]any) string {
	if result == nil {
		return "{}"
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}

// parseArguments decodes streamed tool-call arguments. Empty input is an
// empty object; malformed input is kept under "_raw" so the tool layer can
// reject it with a readable message.
func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"_raw": raw}
	}
	return args
}
