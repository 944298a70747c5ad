package uistream

import (
	"encoding/json"
	"fmt"
	"io"

	"chat_gateway/internal/providers"
)

// Decoder reads chunks from a UI message stream body.
type Decoder struct {
	reader *providers.StreamReader
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return &Decoder{reader: providers.NewStreamReader(rc)}
}

// Next returns the next chunk, or io.EOF after [DONE] or at end of body.
func (d *Decoder) Next() (Chunk, error) {
	ev, err := d.reader.Read()
	if err != nil {
		return Chunk{}, err
	}

	var c Chunk
	if err := json.Unmarshal(ev.Data, &c); err != nil {
		return Chunk{}, fmt.Errorf("failed to decode chunk: %w", err)
	}
	return c, nil
}

// Close closes the underlying body.
func (d *Decoder) Close() error {
	return d.reader.Close()
}
