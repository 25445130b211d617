// ABOUTME: Stream contract and the shared net.Conn-backed implementation.
// ABOUTME: Frames one JSON document per message; Close is idempotent.

package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/2389/agentic-director/internal/mcp"
)

// Stream is a bidirectional framed-message channel to one peer. Send and
// Recv may be called from different goroutines; Close is safe to call
// multiple times and concurrently with an in-flight Recv.
type Stream interface {
	Send(*mcp.Message) error
	Recv() (*mcp.Message, error)
	Close() error
}

// connStream adapts a net.Conn into a Stream using the protocol codec.
type connStream struct {
	conn net.Conn
	enc  *mcp.Encoder
	dec  *mcp.Decoder

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps an established connection in the framing codec.
func NewStream(conn net.Conn) Stream {
	return &connStream{
		conn: conn,
		enc:  mcp.NewEncoder(conn),
		dec:  mcp.NewDecoder(conn),
	}
}

func (s *connStream) Send(m *mcp.Message) error {
	if err := s.enc.Encode(m); err != nil {
		return fmt.Errorf("sending on stream: %w", err)
	}
	return nil
}

func (s *connStream) Recv() (*mcp.Message, error) {
	return s.dec.Decode()
}

func (s *connStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Pipe returns two connected in-memory Streams. Writes on one side are
// read by the other; closing either side unblocks the peer's Recv.
func Pipe() (Stream, Stream) {
	a, b := net.Pipe()
	return NewStream(a), NewStream(b)
}
