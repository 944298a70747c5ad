package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"chat_gateway/internal/providers"
	"chat_gateway/internal/uistream"
)

// sliceStream replays events, then returns err (io.EOF when nil).
type sliceStream struct {
	ctx    context.Context
	events []providers.Event
	err    error
	closed bool
}

func (s *sliceStream) Recv() (providers.Event, error) {
	if s.ctx != nil && s.ctx.Err() != nil {
		return providers.Event{}, s.ctx.Err()
	}
	if len(s.events) == 0 {
		if s.err != nil {
			return providers.Event{}, s.err
		}
		return providers.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// scriptedModel answers the n-th Stream call (0-based) with script(n, req).
type scriptedModel struct {
	provider providers.ProviderID
	script   func(n int, req providers.Request) (*sliceStream, error)

	mu       sync.Mutex
	requests []providers.Request
	streams  []*sliceStream
}

func (m *scriptedModel) Provider() providers.ProviderID { return m.provider }
func (m *scriptedModel) ModelID() string                { return "test-model" }

func (m *scriptedModel) Stream(ctx context.Context, req providers.Request) (providers.Stream, error) {
	m.mu.Lock()
	n := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	s, err := m.script(n, req)
	if err != nil {
		return nil, err
	}
	s.ctx = ctx
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// countingBuilder records Build calls and returns model.
type countingBuilder struct {
	model providers.Model
	err   error

	mu    sync.Mutex
	calls int
	keys  []string
}

func (b *countingBuilder) Build(id providers.ProviderID, modelID, apiKey string) (providers.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.keys = append(b.keys, apiKey)
	if b.err != nil {
		return nil, b.err
	}
	return b.model, nil
}

func textEvents(parts ...string) []providers.Event {
	evs := make([]providers.Event, 0, len(parts)+1)
	for _, p := range parts {
		evs = append(evs, providers.Event{Type: providers.EventTextDelta, Text: p})
	}
	return append(evs, providers.Event{Type: providers.EventFinish, FinishReason: providers.FinishStop})
}

func toolCallEvents(id, name string, args map[string]any) []providers.Event {
	return []providers.Event{
		{Type: providers.EventToolCall, ToolCall: &providers.ToolCall{ID: id, Name: name, Arguments: args}},
		{Type: providers.EventFinish, FinishReason: providers.FinishToolCalls},
	}
}

func decodeChunks(t *testing.T, rec *httptest.ResponseRecorder) []uistream.Chunk {
	t.Helper()
	// Decode a copy so assertions on rec.Body still see the whole stream.
	dec := uistream.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	var chunks []uistream.Chunk
	for {
		c, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("Failed to decode chunk: %v", err)
		}
		chunks = append(chunks, c)
	}
}

func chunkTypes(chunks []uistream.Chunk) []string {
	types := make([]string, len(chunks))
	for i, c := range chunks {
		types[i] = c.Type
	}
	return types
}
