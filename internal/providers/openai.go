package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIModel speaks the OpenAI chat/completions dialect. DeepSeek and Qwen
// use it with their own base URL.
type OpenAIModel struct {
	provider ProviderID
	model    string
	auth     *APIKeyAuth
	client   *http.Client
	baseURL  string
}

func newOpenAIModel(id ProviderID, modelID, apiKey, baseURL string, client *http.Client) *OpenAIModel {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	return &OpenAIModel{
		provider: id,
		model:    modelID,
		auth:     NewBearerAuth(apiKey),
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Provider returns the provider id
func (m *OpenAIModel) Provider() ProviderID { return m.provider }

// ModelID returns the upstream model name
func (m *OpenAIModel) ModelID() string { return m.model }

// BaseURL returns the endpoint the client is bound to
func (m *OpenAIModel) BaseURL() string { return m.baseURL }

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []openAITool    `json:"tools,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func toOpenAIMessages(msgs []Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleTool:
			content := resultJSON(msg.Result)
			out = append(out, openAIMessage{Role: "tool", Content: &content, ToolCallID: msg.ToolCallID})
		case RoleAssistant:
			om := openAIMessage{Role: "assistant"}
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				content := msg.Content
				om.Content = &content
			}
			for _, call := range msg.ToolCalls {
				tc := openAIToolCall{ID: call.ID, Type: "function"}
				tc.Function.Name = call.Name
				tc.Function.Arguments = resultJSON(call.Arguments)
				om.ToolCalls = append(om.ToolCalls, tc)
			}
			out = append(out, om)
		default:
			content := msg.Content
			out = append(out, openAIMessage{Role: string(msg.Role), Content: &content})
		}
	}
	return out
}

func toOpenAITools(specs []ToolSpec) []openAITool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openAITool, 0, len(specs))
	for _, spec := range specs {
		t := openAITool{Type: "function"}
		t.Function.Name = spec.Name
		t.Function.Description = spec.Description
		t.Function.Parameters = spec.Parameters
		out = append(out, t)
	}
	return out
}

// Stream sends a streaming chat completion request
func (m *OpenAIModel) Stream(ctx context.Context, req Request) (Stream, error) {
	body, err := json.Marshal(openAIRequest{
		Model:    m.model,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   true,
		Tools:    toOpenAITools(req.Tools),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if err := m.auth.Apply(httpReq); err != nil {
		return nil, fmt.Errorf("failed to apply auth: %w", err)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Provider: m.provider, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &UpstreamError{
			Provider:   m.provider,
			StatusCode: resp.StatusCode,
			Message:    openAIErrorMessage(respBody),
		}
	}

	return &openAIStream{
		provider: m.provider,
		reader:   NewStreamReader(resp.Body),
		calls:    map[int]*ToolCall{},
		rawArgs:  map[int]*strings.Builder{},
	}, nil
}

func openAIErrorMessage(body []byte) string {
	var payload struct {
		Error *openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// openAIStream assembles tool calls whose name and arguments arrive split
// across deltas, keyed by the delta index.
type openAIStream struct {
	provider ProviderID
	reader   *StreamReader
	pending  []Event
	calls    map[int]*ToolCall
	rawArgs  map[int]*strings.Builder
	finished bool
	done     bool
}

func (s *openAIStream) Recv() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return Event{}, io.EOF
		}

		sse, err := s.reader.Read()
		if err == io.EOF {
			s.done = true
			if !s.finished {
				s.finish(FinishStop)
			}
			continue
		}
		if err != nil {
			return Event{}, &UpstreamError{Provider: s.provider, Err: err}
		}

		var chunk openAIChunk
		if err := json.Unmarshal(sse.Data, &chunk); err != nil {
			return Event{}, fmt.Errorf("failed to decode %s stream chunk: %w", s.provider, err)
		}
		if chunk.Error != nil {
			return Event{}, &UpstreamError{Provider: s.provider, Message: chunk.Error.Message}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			s.pending = append(s.pending, Event{Type: EventTextDelta, Text: choice.Delta.Content})
		}
		for i, tc := range choice.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := s.calls[idx]
			if !ok {
				call = &ToolCall{}
				s.calls[idx] = call
				s.rawArgs[idx] = &strings.Builder{}
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			s.rawArgs[idx].WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason != nil && !s.finished {
			s.finish(openAIFinishReason(*choice.FinishReason))
		}
	}
}

// finish flushes assembled tool calls in index order, then the finish event.
func (s *openAIStream) finish(reason FinishReason) {
	s.finished = true

	indexes := make([]int, 0, len(s.calls))
	for idx := range s.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		call := s.calls[idx]
		call.Arguments = parseArguments(s.rawArgs[idx].String())
		s.pending = append(s.pending, Event{Type: EventToolCall, ToolCall: call})
	}
	if len(indexes) > 0 {
		reason = FinishToolCalls
	}
	s.pending = append(s.pending, Event{Type: EventFinish, FinishReason: reason})
}

func (s *openAIStream) Close() error {
	return s.reader.Close()
}

func openAIFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length":
		return FinishLength
	default:
		return FinishOther
	}
}
