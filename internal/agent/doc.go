// Package agent defines the agent-side model of the system.
//
// # Overview
//
// An agent is an independently-running worker exposing a fixed capability
// set and a command/response contract. This package holds:
//
//   - Agent: the capability set a worker implements
//     (Initialize / Execute / Shutdown / Health)
//   - Descriptor: a registered agent's identity, capabilities, and status
//   - Command / ExecutionResult: the unit of work and its outcome
//   - Registry: the set of known agents, independent of live connections
//   - Host: the agent-side message pump serving an Agent over a transport
//     stream
//
// # Registry
//
// The registry tracks descriptors, not connections. Registration inserts
// or replaces by id; unregistering an unknown id is a logged no-op. List()
// returns snapshot copies, refreshing last-seen for any agent the protocol
// engine reports online. Capability lookup matches by case-insensitive
// containment and only considers Ready agents.
//
// # Host
//
// Host is what a concrete agent process runs: it registers over the
// stream, then answers command_execution, ping, health_check, and
// agent_info_request messages until the stream closes or the director
// signals agent_disconnect. Concrete agents implement the Agent interface
// and are a few dozen lines.
package agent
