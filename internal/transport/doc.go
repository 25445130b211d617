// Package transport provides the bidirectional framed-message stream the
// protocol engine runs over.
//
// # Stream
//
// Stream is the only contract the rest of the system sees: Send one
// message, Recv one message, Close. Any local IPC that preserves per-agent
// channel identity and one-JSON-document-per-message framing satisfies it.
//
// # Implementations
//
//   - Unix domain sockets: one socket per agent, named deterministically
//     from the agent id (AgenticAI_Agent_<id>.sock). The director side
//     listens; the agent process dials.
//   - In-memory pipes: Pipe() returns two connected Streams for tests and
//     in-process agents.
package transport
