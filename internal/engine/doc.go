// Package engine implements the protocol engine: the set of live agent
// connections and the machinery that drives them.
//
// # Connection
//
// Connection is one stateful channel to a connected agent. It owns the
// transport stream, runs a dedicated inbound read loop, and correlates
// responses to in-flight requests by correlation id:
//
//	pending map[string]chan *mcp.Message
//
// Outbound sends are serialized per connection: one request is on the
// wire at a time, so responses pair with requests in issuance order.
// Inbound messages that are not responses are events and are handed to
// the engine for fan-out. The state machine is
// Disconnected -> Connecting -> Connected -> Closed; a failed health
// probe forces Closed with no reconnect path (the agent process is
// responsible for re-registering).
//
// # Engine
//
// The Engine registers and evicts connections (duplicate ids are
// rejected, never replaced), routes outbound messages, fans inbound
// events out to subscribers, and sweeps connection health on a fixed
// interval. A single failed ping evicts the connection in the same
// sweep pass. Send paths never surface transport faults as errors:
// every failure is converted into a failed protocol response with an
// error code the caller can branch on.
package engine
