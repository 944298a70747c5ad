package logging

import (
	"context"
	"sync"
	"time"
)

// Chat turn outcomes
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// ChatRecord summarizes one /api/chat request. It never carries key material
// or message content.
type ChatRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Status         string    `json:"status"`
	HTTPStatus     int       `json:"http_status"`
	Steps          int       `json:"steps"`
	ToolCalls      []string  `json:"tool_calls,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
	Error          string    `json:"error,omitempty"`
}

// Sink receives chat records from the gateway.
type Sink interface {
	Enqueue(ctx context.Context, rec *ChatRecord) error
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(ctx context.Context, rec *ChatRecord) error {
	return nil
}

// MemorySink keeps records in memory, newest last.
type MemorySink struct {
	mu      sync.Mutex
	records []ChatRecord
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Enqueue(ctx context.Context, rec *ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

// Records returns a copy of everything enqueued so far.
func (s *MemorySink) Records() []ChatRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRecord(nil), s.records...)
}
