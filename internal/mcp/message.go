// ABOUTME: Message envelope and the closed message-type vocabulary for the protocol.
// ABOUTME: Provides constructors that stamp ids, timestamps, and correlation ids.

package mcp

import (
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of a protocol message. The vocabulary is
// closed; unknown types are ignored by receivers.
type MessageType string

const (
	TypeAgentRegistration MessageType = "agent_registration"
	TypeCommandExecution  MessageType = "command_execution"
	TypeCommandResult     MessageType = "command_result"
	TypePing              MessageType = "ping"
	TypeHealthCheck       MessageType = "health_check"
	TypeHealthStatus      MessageType = "health_status"
	TypeAgentInfoRequest  MessageType = "agent_info_request"
	TypeAgentInfo         MessageType = "agent_info"
	TypeAgentDisconnect   MessageType = "agent_disconnect"
)

// Message is the wire unit exchanged between the director and agents.
// One Message is framed as one JSON document.
type Message struct {
	ID            string         `json:"id"`
	Type          MessageType    `json:"type"`
	Source        string         `json:"source"`
	Target        string         `json:"target"`
	Payload       map[string]any `json:"payload,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

// NewMessage creates a request-shaped message with a fresh id and a fresh
// correlation id. The response to this message must echo CorrelationID.
func NewMessage(t MessageType, source, target string, payload map[string]any) *Message {
	return &Message{
		ID:            uuid.New().String(),
		Type:          t,
		Source:        source,
		Target:        target,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}

// NewPing creates a ping probe addressed to the given agent.
func NewPing(source, target string) *Message {
	return NewMessage(TypePing, source, target, nil)
}

// Reply creates a response-shaped message addressed back to the sender,
// echoing the correlation id of the request.
func (m *Message) Reply(t MessageType, payload map[string]any) *Message {
	return &Message{
		ID:            uuid.New().String(),
		Type:          t,
		Source:        m.Target,
		Target:        m.Source,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: m.CorrelationID,
	}
}

// IsResponse reports whether the message type is a response to an earlier
// request rather than a spontaneous event.
func (m *Message) IsResponse() bool {
	switch m.Type {
	case TypeCommandResult, TypeHealthStatus, TypeAgentInfo:
		return true
	default:
		return false
	}
}
