package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// AnthropicModel speaks the Anthropic Messages API.
type AnthropicModel struct {
	model     string
	auth      *APIKeyAuth
	client    *http.Client
	baseURL   string
	maxTokens int
}

func newAnthropicModel(modelID, apiKey, baseURL string, maxTokens int, client *http.Client) *AnthropicModel {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &AnthropicModel{
		model:     modelID,
		auth:      NewAPIKeyAuth(apiKey, "x-api-key", ""),
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: maxTokens,
	}
}

// Provider returns the provider id
func (m *AnthropicModel) Provider() ProviderID { return Anthropic }

// ModelID returns the upstream model name
func (m *AnthropicModel) ModelID() string { return m.model }

// BaseURL returns the endpoint the client is bound to
func (m *AnthropicModel) BaseURL() string { return m.baseURL }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// toAnthropicMessages moves system text to the top-level field and merges
// adjacent same-role turns, since the API requires alternating roles and
// expects tool results inside a user turn.
func toAnthropicMessages(msgs []Message) (string, []anthropicMessage) {
	var (
		system []string
		out    []anthropicMessage
	)

	appendBlocks := func(role string, blocks ...anthropicBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropicMessage{Role: role, Content: blocks})
	}

	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleTool:
			appendBlocks("user", anthropicBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   resultJSON(msg.Result),
			})
		case RoleAssistant:
			var blocks []anthropicBlock
			if msg.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropicBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: json.RawMessage(resultJSON(call.Arguments)),
				})
			}
			appendBlocks("assistant", blocks...)
		default:
			if msg.Content != "" {
				appendBlocks("user", anthropicBlock{Type: "text", Text: msg.Content})
			}
		}
	}

	return strings.Join(system, "\n\n"), out
}

// Stream sends a streaming Messages API request
func (m *AnthropicModel) Stream(ctx context.Context, req Request) (Stream, error) {
	system, messages := toAnthropicMessages(req.Messages)

	payload := anthropicRequest{
		Model:     m.model,
		MaxTokens: m.maxTokens,
		System:    system,
		Messages:  messages,
		Stream:    true,
	}
	for _, spec := range req.Tools {
		schema := spec.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		payload.Tools = append(payload.Tools, anthropicTool{Name: spec.Name, Description: spec.Description, InputSchema: schema})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if err := m.auth.Apply(httpReq); err != nil {
		return nil, fmt.Errorf("failed to apply auth: %w", err)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Provider: Anthropic, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &UpstreamError{
			Provider:   Anthropic,
			StatusCode: resp.StatusCode,
			Message:    anthropicErrorMessage(respBody),
		}
	}

	return &anthropicStream{
		reader: NewStreamReader(resp.Body),
		blocks: map[int]*anthropicBlockState{},
	}, nil
}

func anthropicErrorMessage(body []byte) string {
	var payload anthropicEvent
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(body))
}

type anthropicBlockState struct {
	toolUse bool
	call    ToolCall
	input   strings.Builder
}

type anthropicStream struct {
	reader     *StreamReader
	blocks     map[int]*anthropicBlockState
	stopReason string
	sawToolUse bool
	done       bool
}

func (s *anthropicStream) Recv() (Event, error) {
	for {
		if s.done {
			return Event{}, io.EOF
		}

		sse, err := s.reader.Read()
		if err == io.EOF {
			s.done = true
			return Event{Type: EventFinish, FinishReason: s.finishReason()}, nil
		}
		if err != nil {
			return Event{}, &UpstreamError{Provider: Anthropic, Err: err}
		}

		var ev anthropicEvent
		if err := json.Unmarshal(sse.Data, &ev); err != nil {
			return Event{}, fmt.Errorf("failed to decode anthropic stream event: %w", err)
		}

		switch ev.Type {
		case "content_block_start":
			state := &anthropicBlockState{}
			if ev.ContentBlock.Type == "tool_use" {
				state.toolUse = true
				state.call = ToolCall{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}
			}
			s.blocks[ev.Index] = state

		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text != "" {
					return Event{Type: EventTextDelta, Text: ev.Delta.Text}, nil
				}
			case "input_json_delta":
				if state, ok := s.blocks[ev.Index]; ok {
					state.input.WriteString(ev.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			state, ok := s.blocks[ev.Index]
			delete(s.blocks, ev.Index)
			if ok && state.toolUse {
				s.sawToolUse = true
				call := state.call
				call.Arguments = parseArguments(state.input.String())
				return Event{Type: EventToolCall, ToolCall: &call}, nil
			}

		case "message_delta":
			if ev.Delta.StopReason != "" {
				s.stopReason = ev.Delta.StopReason
			}

		case "message_stop":
			s.done = true
			return Event{Type: EventFinish, FinishReason: s.finishReason()}, nil

		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			return Event{}, &UpstreamError{Provider: Anthropic, Message: msg}
		}
	}
}

func (s *anthropicStream) finishReason() FinishReason {
	switch {
	case s.sawToolUse || s.stopReason == "tool_use":
		return FinishToolCalls
	case s.stopReason == "max_tokens":
		return FinishLength
	case s.stopReason == "end_turn" || s.stopReason == "stop_sequence" || s.stopReason == "":
		return FinishStop
	default:
		return FinishOther
	}
}

func (s *anthropicStream) Close() error {
	return s.reader.Close()
}
