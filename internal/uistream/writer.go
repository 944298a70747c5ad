package uistream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Writer encodes chunks onto an http.ResponseWriter, flushing after each one.
// Headers and the start chunk are written lazily on the first chunk, so the
// caller can still answer with a plain JSON error until then.
// A Writer is used by a single goroutine.
type Writer struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	messageID string

	started  bool
	finished bool
	textSeq  int
	textID   string
}

// NewWriter wraps w. It fails if w cannot flush.
func NewWriter(w http.ResponseWriter, messageID string) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: flusher, messageID: messageID}, nil
}

// Started reports whether the response status has been committed.
func (s *Writer) Started() bool {
	return s.started
}

// MessageID returns the id announced in the start chunk.
func (s *Writer) MessageID() string {
	return s.messageID
}

func (s *Writer) begin() error {
	if s.started {
		return nil
	}
	s.started = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(HeaderName, HeaderVersion)
	s.w.WriteHeader(http.StatusOK)

	return s.write(Chunk{Type: TypeStart, MessageID: s.messageID})
}

func (s *Writer) write(c Chunk) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode %s chunk: %w", c.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Writer) send(c Chunk) error {
	if err := s.begin(); err != nil {
		return err
	}
	return s.write(c)
}

// StartStep opens a generation step.
func (s *Writer) StartStep() error {
	return s.send(Chunk{Type: TypeStartStep})
}

// TextDelta appends text to the current text part, opening one if needed.
func (s *Writer) TextDelta(delta string) error {
	if delta == "" {
		return nil
	}
	if s.textID == "" {
		s.textSeq++
		s.textID = "text-" + strconv.Itoa(s.textSeq)
		if err := s.send(Chunk{Type: TypeTextStart, ID: s.textID}); err != nil {
			return err
		}
	}
	return s.send(Chunk{Type: TypeTextDelta, ID: s.textID, Delta: delta})
}

func (s *Writer) endText() error {
	if s.textID == "" {
		return nil
	}
	id := s.textID
	s.textID = ""
	return s.send(Chunk{Type: TypeTextEnd, ID: id})
}

// ToolInput announces a tool call with its complete arguments.
func (s *Writer) ToolInput(callID, toolName string, input map[string]any) error {
	if err := s.endText(); err != nil {
		return err
	}
	if input == nil {
		input = map[string]any{}
	}
	return s.send(Chunk{Type: TypeToolInputAvailable, ToolCallID: callID, ToolName: toolName, Input: input})
}

// ToolOutput attaches the result of a tool call.
func (s *Writer) ToolOutput(callID string, output map[string]any) error {
	if output == nil {
		output = map[string]any{}
	}
	return s.send(Chunk{Type: TypeToolOutputAvailable, ToolCallID: callID, Output: output})
}

// FinishStep closes the current step.
func (s *Writer) FinishStep() error {
	if err := s.endText(); err != nil {
		return err
	}
	return s.send(Chunk{Type: TypeFinishStep})
}

// Error reports a failure after the stream has started.
func (s *Writer) Error(errorText string) error {
	if err := s.endText(); err != nil {
		return err
	}
	return s.send(Chunk{Type: TypeError, ErrorText: errorText})
}

// Finish ends the message and terminates the stream. Further calls are no-ops.
func (s *Writer) Finish(reason string) error {
	if s.finished {
		return nil
	}
	if err := s.endText(); err != nil {
		return err
	}
	if err := s.send(Chunk{Type: TypeFinish, FinishReason: reason}); err != nil {
		return err
	}
	s.finished = true
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
