// Package mcp defines the message protocol spoken between the director and
// its agents.
//
// # Wire Unit
//
// One Message is one JSON document on the wire:
//
//	{ "id": "...", "type": "command_execution", "source": "director",
//	  "target": "fs-1", "payload": {...}, "timestamp": "...",
//	  "correlationId": "..." }
//
// The message-type vocabulary is closed (see MessageType). Every
// request-shaped message carries a correlation id that its response must
// echo; the send path matches responses to in-flight requests by that id.
//
// # Responses
//
// A Response is the decoded form of a command_result / health_status /
// agent_info message: success flag, human-readable message, an error code
// from the fixed taxonomy, and an arbitrary data map. Transport and
// per-command failures are always surfaced as a failed Response, never as
// a raw error escaping the protocol boundary.
//
// # Framing
//
// Encoder and Decoder frame messages as newline-separated JSON documents
// over any byte stream. Both are safe for use from a single writer and a
// single reader respectively; the engine serializes sends per connection.
package mcp
