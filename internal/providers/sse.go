package providers

import (
	"bufio"
	"bytes"
	"io"
)

// maxEventSize bounds a single SSE line from an upstream provider.
const maxEventSize = 1024 * 1024

// SSEEvent is one server-sent event from an upstream stream.
type SSEEvent struct {
	Name string // value of the "event:" field, empty if absent
	Data []byte
}

// StreamReader reads server-sent events from an upstream response body.
type StreamReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewStreamReader creates a new stream reader
func NewStreamReader(r io.ReadCloser) *StreamReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &StreamReader{
		scanner: scanner,
		closer:  r,
	}
}

// Read returns the next event. It returns io.EOF at the end of the body or
// on the OpenAI-style "[DONE]" marker.
func (s *StreamReader) Read() (SSEEvent, error) {
	var (
		ev      SSEEvent
		hasData bool
	)

	for s.scanner.Scan() {
		line := s.scanner.Bytes()

		// Blank line dispatches the event
		if len(line) == 0 {
			if hasData {
				return ev, nil
			}
			ev = SSEEvent{}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte(":")):
			// comment / keep-alive
		case bytes.HasPrefix(line, []byte("event:")):
			ev.Name = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			if bytes.Equal(data, []byte("[DONE]")) {
				return SSEEvent{}, io.EOF
			}
			if hasData {
				ev.Data = append(ev.Data, '\n')
			}
			ev.Data = append(ev.Data, data...)
			hasData = true
		}
	}

	if err := s.scanner.Err(); err != nil {
		return SSEEvent{}, err
	}
	if hasData {
		return ev, nil
	}
	return SSEEvent{}, io.EOF
}

// Close closes the stream
func (s *StreamReader) Close() error {
	return s.closer.Close()
}
