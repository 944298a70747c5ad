package gateway

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat_gateway/internal/providers"
	"chat_gateway/internal/tools"
	"chat_gateway/internal/uistream"
)

func runSession(t *testing.T, ctx context.Context, s *Session) (*Result, error, *httptest.ResponseRecorder, *uistream.Writer) {
	t.Helper()
	rec := httptest.NewRecorder()
	out, err := uistream.NewWriter(rec, s.ID)
	require.NoError(t, err)
	res, runErr := s.Run(ctx, out)
	return res, runErr, rec, out
}

func userMessages(text string) []providers.Message {
	return []providers.Message{{Role: providers.RoleUser, Content: text}}
}

func TestRunStreamsTextInOrder(t *testing.T) {
	model := &scriptedModel{
		provider: providers.OpenAI,
		script: func(n int, req providers.Request) (*sliceStream, error) {
			return &sliceStream{events: textEvents("Hello", " world", "!")}, nil
		},
	}
	s := NewSession(model, userMessages("hi"), nil, 5)

	res, err, rec, _ := runSession(t, context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "Hello world!", res.Text)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, providers.FinishStop, res.FinishReason)

	assert.Equal(t, uistream.HeaderVersion, rec.Header().Get(uistream.HeaderName))
	assert.True(t, strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n"))

	chunks := decodeChunks(t, rec)
	var got strings.Builder
	for _, c := range chunks {
		if c.Type == uistream.TypeTextDelta {
			got.WriteString(c.Delta)
		}
	}
	assert.Equal(t, "Hello world!", got.String())
	assert.Equal(t, []string{
		uistream.TypeStart, uistream.TypeStartStep, uistream.TypeTextStart,
		uistream.TypeTextDelta, uistream.TypeTextDelta, uistream.TypeTextDelta,
		uistream.TypeTextEnd, uistream.TypeFinishStep, uistream.TypeFinish,
	}, chunkTypes(chunks))
	assert.Equal(t, s.ID, chunks[0].MessageID)
	assert.True(t, model.streams[0].closed, "upstream stream released")
}

func TestRunToolLoop(t *testing.T) {
	model := &scriptedModel{
		provider: providers.Anthropic,
		script: func(n int, req providers.Request) (*sliceStream, error) {
			if n == 0 {
				return &sliceStream{events: toolCallEvents("call-1", "calculate", map[string]any{"expression": "2+3"})}, nil
			}
			return &sliceStream{events: textEvents("2+3 = 5")}, nil
		},
	}
	s := NewSession(model, userMessages("what is 2+3"), tools.Default(), 5)

	res, err, rec, _ := runSession(t, context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, "2+3 = 5", res.Text)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "calculate", res.ToolCalls[0].ToolName)
	assert.Equal(t, 5.0, res.ToolCalls[0].Result["result"])

	require.Equal(t, 2, model.calls())
	assert.Len(t, model.requests[0].Tools, 3, "tool specs attached")
	second := model.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, providers.RoleAssistant, second[1].Role)
	assert.Equal(t, "call-1", second[1].ToolCalls[0].ID)
	assert.Equal(t, providers.RoleTool, second[2].Role)
	assert.Equal(t, "call-1", second[2].ToolCallID)
	assert.Equal(t, 5.0, second[2].Result["result"])

	assert.Equal(t, []string{
		uistream.TypeStart,
		uistream.TypeStartStep, uistream.TypeToolInputAvailable, uistream.TypeToolOutputAvailable, uistream.TypeFinishStep,
		uistream.TypeStartStep, uistream.TypeTextStart, uistream.TypeTextDelta, uistream.TypeTextEnd, uistream.TypeFinishStep,
		uistream.TypeFinish,
	}, chunkTypes(decodeChunks(t, rec)))
}

func TestRunToolLoopIsBounded(t *testing.T) {
	model := &scriptedModel{
		provider: providers.OpenAI,
		script: func(n int, req providers.Request) (*sliceStream, error) {
			return &sliceStream{events: append(
				textEvents("thinking ")[:1],
				toolCallEvents("", "getCurrentTime", map[string]any{})...,
			)}, nil
		},
	}
	s := NewSession(model, userMessages("loop forever"), tools.Default(), 5)

	res, err, rec, _ := runSession(t, context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 5, res.Steps)
	assert.Equal(t, 5, model.calls())
	assert.Len(t, res.ToolCalls, 5)
	assert.Equal(t, strings.Repeat("thinking ", 5), res.Text)
	assert.Equal(t, providers.FinishToolCalls, res.FinishReason)

	ids := map[string]bool{}
	for _, call := range res.ToolCalls {
		assert.True(t, strings.HasPrefix(call.ID, "call_"), "generated id %q", call.ID)
		ids[call.ID] = true
	}
	assert.Len(t, ids, 5, "generated ids are unique")

	chunks := decodeChunks(t, rec)
	assert.Equal(t, uistream.TypeFinish, chunks[len(chunks)-1].Type)
	assert.Equal(t, string(providers.FinishToolCalls), chunks[len(chunks)-1].FinishReason)
}

func TestRunWithoutToolsIgnoresToolCalls(t *testing.T) {
	model := &scriptedModel{
		provider: providers.OpenAI,
		script: func(n int, req providers.Request) (*sliceStream, error) {
			assert.Empty(t, req.Tools)
			return &sliceStream{events: toolCallEvents("c1", "calculate", map[string]any{"expression": "1"})}, nil
		},
	}
	s := NewSession(model, userMessages("x"), nil, 5)

	res, err, _, _ := runSession(t, context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls())
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, res.ToolCalls)
}

func TestRunUpstreamRejectionBeforeOutput(t *testing.T) {
	upstream := &providers.UpstreamError{Provider: providers.OpenAI, StatusCode: 401, Message: "Incorrect API key provided"}
	model := &scriptedModel{
		provider: providers.OpenAI,
		script: func(n int, req providers.Request) (*sliceStream, error) {
			return nil, upstream
		},
	}
	s := NewSession(model, userMessages("hi"), nil, 5)

	res, err, rec, out := runSession(t, context.Background(), s)
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*providers.UpstreamError))
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, out.Started())
	assert.Empty(t, rec.Body.String())
}

func TestRunErrorBeforeFirstEvent(t *testing.T) {
	model := &scriptedModel{
		provider: providers.Google,
		script: func(n int, req providers.Request) (*sliceStream, error) {
			return &sliceStream{err: &providers.UpstreamError{Provider: providers.Google, Message: "quota exceeded"}}, nil
		},
	}
	s := NewSession(model, userMessages("hi"), nil, 5)

	res, err, rec, _ := runSession(t, context.Background(), s)
	require.Error(t, err, "nothing was written, so the caller answers")
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, rec.Body.String())
}

func TestRunMidStreamFailure(t *testing.T) {
	model := &scriptedModel{
		provider: providers.OpenAI,
		script: func(n int, req providers.Request) (*sliceStream, error) {
			return &sliceStream{
				events: []providers.Event{{Type: providers.EventTextDelta, Text: "partial"}},
				err:    &providers.UpstreamError{Provider: providers.OpenAI, Message: "connection reset"},
			}, nil
		},
	}
	s := NewSession(model, userMessages("hi"), nil, 5)

	res, err, rec, _ := runSession(t, context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	require.Error(t, res.Err)

	chunks := decodeChunks(t, rec)
	types := chunkTypes(chunks)
	assert.Equal(t, []string{
		uistream.TypeStart, uistream.TypeStartStep, uistream.TypeTextStart, uistream.TypeTextDelta,
		uistream.TypeTextEnd, uistream.TypeError, uistream.TypeFinish,
	}, types)
	assert.Contains(t, chunks[5].ErrorText, "connection reset")
	assert.True(t, strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n"))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := &scriptedModel{
		provider: providers.OpenAI,
		script: func(n int, req providers.Request) (*sliceStream, error) {
			return &sliceStream{events: textEvents("a", "b", "c")}, nil
		},
	}
	s := NewSession(model, userMessages("hi"), nil, 5)

	// Cancel as soon as the first text arrives.
	rec := &cancelOnText{ResponseRecorder: httptest.NewRecorder(), cancel: cancel}
	out, err := uistream.NewWriter(rec, s.ID)
	require.NoError(t, err)

	res, runErr := s.Run(ctx, out)
	require.NoError(t, runErr)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.NotContains(t, rec.Body.String(), "[DONE]")
	assert.NotContains(t, rec.Body.String(), `"finish"`)
	assert.True(t, model.streams[0].closed)
}

// cancelOnText cancels the request context once a text delta is written.
type cancelOnText struct {
	*httptest.ResponseRecorder
	cancel context.CancelFunc
}

func (c *cancelOnText) Write(p []byte) (int, error) {
	n, err := c.ResponseRecorder.Write(p)
	if strings.Contains(string(p), `"text-delta"`) {
		c.cancel()
	}
	return n, err
}
