package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAnthropicSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, data := range events {
		var head struct {
			Type string `json:"type"`
		}
		json.Unmarshal([]byte(data), &head)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", head.Type, data)
		w.(http.Flusher).Flush()
	}
}

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) Model {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	f := &Factory{BaseURLs: map[ProviderID]string{Anthropic: server.URL + "/v1"}, AnthropicMaxTokens: 1024}
	m, err := f.Build(Anthropic, "claude-3-haiku-20240307", "sk-ant-test")
	require.NoError(t, err)
	return m
}

func TestAnthropicStreamTextAndTool(t *testing.T) {
	var captured anthropicRequest
	m := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		writeAnthropicSSE(w,
			`{"type":"message_start","message":{"id":"msg_1"}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me "}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"check."}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"getCurrentTime","input":{}}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"timezone\":"}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Asia/Tokyo\"}"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
			`{"type":"message_stop"}`,
		)
	})

	s, err := m.Stream(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are helpful."},
			{Role: RoleUser, Content: "time in Tokyo?"},
		},
		Tools: []ToolSpec{{Name: "getCurrentTime", Description: "clock"}},
	})
	require.NoError(t, err)

	events := collectEvents(t, s)
	assert.Equal(t, "Let me check.", concatText(events))

	var call *ToolCall
	for _, ev := range events {
		if ev.Type == EventToolCall {
			call = ev.ToolCall
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, "toolu_1", call.ID)
	assert.Equal(t, map[string]any{"timezone": "Asia/Tokyo"}, call.Arguments)
	assert.Equal(t, FinishToolCalls, events[len(events)-1].FinishReason)

	assert.Equal(t, 1024, captured.MaxTokens)
	assert.Equal(t, "You are helpful.", captured.System)
	require.Len(t, captured.Messages, 1)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, map[string]any{"type": "object"}, captured.Tools[0].InputSchema)
}

func TestAnthropicMessageMerging(t *testing.T) {
	system, msgs := toAnthropicMessages([]Message{
		{Role: RoleUser, Content: "two tools please"},
		{Role: RoleAssistant, Content: "ok", ToolCalls: []ToolCall{
			{ID: "a", Name: "getCurrentTime"},
			{ID: "b", Name: "calculate", Arguments: map[string]any{"expression": "1+1"}},
		}},
		{Role: RoleTool, ToolCallID: "a", Result: map[string]any{"time": "now"}},
		{Role: RoleTool, ToolCallID: "b", Result: map[string]any{"result": 2}},
	})

	assert.Empty(t, system)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].Content, 3)
	assert.Equal(t, "tool_use", msgs[1].Content[1].Type)
	assert.JSONEq(t, `{}`, string(msgs[1].Content[1].Input))

	assert.Equal(t, "user", msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	assert.Equal(t, "tool_result", msgs[2].Content[0].Type)
	assert.Equal(t, "a", msgs[2].Content[0].ToolUseID)
	assert.JSONEq(t, `{"result":2}`, msgs[2].Content[1].Content)
}

func TestAnthropicUpstreamRejection(t *testing.T) {
	m := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := m.Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, Anthropic, upstream.Provider)
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.Equal(t, "invalid x-api-key", upstream.Message)
}

func TestAnthropicOverloadedMidStream(t *testing.T) {
	m := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		writeAnthropicSSE(w,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`,
			`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		)
	})

	s, err := m.Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	defer s.Close()

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Hi", ev.Text)

	_, err = s.Recv()
	assert.ErrorContains(t, err, "Overloaded")
}
