// Package uistream implements the UI message stream: server-sent events
// whose JSON payloads are tagged by type, so a client can rebuild text and
// tool calls of an assistant message incrementally.
package uistream

// HeaderName marks a response as a UI message stream.
const (
	HeaderName    = "x-vercel-ai-ui-message-stream"
	HeaderVersion = "v1"
)

// Chunk types
const (
	TypeStart               = "start"
	TypeStartStep           = "start-step"
	TypeTextStart           = "text-start"
	TypeTextDelta           = "text-delta"
	TypeTextEnd             = "text-end"
	TypeToolInputAvailable  = "tool-input-available"
	TypeToolOutputAvailable = "tool-output-available"
	TypeFinishStep          = "finish-step"
	TypeFinish              = "finish"
	TypeError               = "error"
)

// Chunk is one event of the stream.
type Chunk struct {
	Type         string `json:"type"`
	MessageID    string `json:"messageId,omitempty"`
	ID           string `json:"id,omitempty"`
	Delta        string `json:"delta,omitempty"`
	ToolCallID   string `json:"toolCallId,omitempty"`
	ToolName     string `json:"toolName,omitempty"`
	Input        any    `json:"input,omitempty"`
	Output       any    `json:"output,omitempty"`
	ErrorText    string `json:"errorText,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
}
