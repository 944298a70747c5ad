package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGoogle(t *testing.T, handler http.HandlerFunc) Model {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	f := &Factory{BaseURLs: map[ProviderID]string{Google: server.URL + "/"}}
	m, err := f.Build(Google, "gemini-2.5-flash", "gemini-test-key")
	require.NoError(t, err)
	return m
}

func TestGoogleStreamText(t *testing.T) {
	m := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:streamGenerateContent"), r.URL.Path)
		assert.Equal(t, "gemini-test-key", r.Header.Get("x-goog-api-key"))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hello", " world", "!"} {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}]}\n\n", chunk)
			w.(http.Flusher).Flush()
		}
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	})

	s, err := m.Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	events := collectEvents(t, s)
	assert.Equal(t, "Hello world!", concatText(events))
	assert.Equal(t, FinishStop, events[len(events)-1].FinishReason)
}

func TestGoogleStreamFunctionCall(t *testing.T) {
	m := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"calculate","args":{"expression":"6*7"}}}]},"finishReason":"STOP"}]}`+"\n\n")
	})

	s, err := m.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "6*7?"}},
		Tools:    []ToolSpec{{Name: "calculate", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	events := collectEvents(t, s)
	require.Len(t, events, 2)
	assert.Equal(t, EventToolCall, events[0].Type)
	assert.Equal(t, "calculate", events[0].ToolCall.Name)
	assert.NotEmpty(t, events[0].ToolCall.ID)
	assert.Equal(t, map[string]any{"expression": "6*7"}, events[0].ToolCall.Arguments)
	assert.Equal(t, FinishToolCalls, events[1].FinishReason)
}

func TestGoogleUpstreamRejection(t *testing.T) {
	m := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := m.Stream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream), "expected UpstreamError, got %v", err)
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	assert.Contains(t, upstream.Message, "API key not valid")
}

func TestGenaiContentConversion(t *testing.T) {
	system, contents := toGenaiContents([]Message{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "webSearch", Arguments: map[string]any{"query": "go"}}}},
		{Role: RoleTool, ToolCallID: "c1", ToolName: "webSearch", Result: map[string]any{"results": []any{}}},
	})

	require.NotNil(t, system)
	assert.Equal(t, "be nice", system.Parts[0].Text)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "webSearch", contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, "webSearch", contents[2].Parts[0].FunctionResponse.Name)
}

func TestGenaiParallelFunctionResponsesShareContent(t *testing.T) {
	_, contents := toGenaiContents([]Message{
		{Role: RoleUser, Content: "time in Paris and 2+3?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "c1", Name: "getCurrentTime", Arguments: map[string]any{"timezone": "Europe/Paris"}},
			{ID: "c2", Name: "calculate", Arguments: map[string]any{"expression": "2+3"}},
		}},
		{Role: RoleTool, ToolCallID: "c1", ToolName: "getCurrentTime", Result: map[string]any{"time": "12:00"}},
		{Role: RoleTool, ToolCallID: "c2", ToolName: "calculate", Result: map[string]any{"result": 5}},
		{Role: RoleUser, Content: "thanks"},
	})

	require.Len(t, contents, 4)
	assert.Len(t, contents[1].Parts, 2)

	responses := contents[2]
	assert.Equal(t, "user", responses.Role)
	require.Len(t, responses.Parts, 2, "one response part per function call")
	assert.Equal(t, "c1", responses.Parts[0].FunctionResponse.ID)
	assert.Equal(t, "c2", responses.Parts[1].FunctionResponse.ID)

	assert.Equal(t, "thanks", contents[3].Parts[0].Text)
	assert.Nil(t, contents[3].Parts[0].FunctionResponse)
}
