// ABOUTME: JSON framing codec for protocol messages over a byte stream.
// ABOUTME: One message is one JSON document; the encoder serializes writers.

package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Encoder frames messages as JSON documents onto a byte stream. It is safe
// for concurrent use; each Encode writes exactly one document.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one message as a single JSON document.
func (e *Encoder) Encode(m *Message) error {
	if m == nil {
		return fmt.Errorf("encoding message: nil message")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(m); err != nil {
		return fmt.Errorf("encoding message %s: %w", m.ID, err)
	}
	return nil
}

// Decoder reads JSON-framed messages from a byte stream. It is intended
// for a single reader goroutine (the connection's read loop).
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Decode reads the next message. It returns io.EOF once the stream ends
// cleanly and a wrapped error for malformed documents.
func (d *Decoder) Decode() (*Message, error) {
	var m Message
	if err := d.dec.Decode(&m); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &m, nil
}
