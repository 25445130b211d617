// ABOUTME: Response type and the fixed error-code taxonomy for protocol failures.
// ABOUTME: Converts between the wire Message payload shape and the typed Response.

package mcp

import "time"

// Code classifies a protocol-level failure. The taxonomy is fixed; callers
// branch on these values rather than on error strings.
type Code string

const (
	CodeAgentNotConnected  Code = "AGENT_NOT_CONNECTED"
	CodeSendFailed         Code = "SEND_FAILED"
	CodeCommunicationError Code = "COMMUNICATION_ERROR"
	CodeInvalidResponse    Code = "INVALID_RESPONSE"
	CodeTimeout            Code = "TIMEOUT"
	CodeUnknownCommand     Code = "UNKNOWN_COMMAND"
	CodeExecutionFailed    Code = "EXECUTION_FAILED"
	CodeMissingParameter   Code = "MISSING_PARAMETER"
	CodeAgentNotFound      Code = "AGENT_NOT_FOUND"
)

// Response is the decoded reply to a request-shaped message. Send paths
// always produce a Response: transport faults become failed Responses with
// an error code, never raw errors escaping the protocol boundary.
type Response struct {
	MessageID string         `json:"messageId"`
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	ErrorCode Code           `json:"errorCode,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Failure builds a failed Response for the given request message id.
func Failure(messageID string, code Code, msg string) *Response {
	return &Response{
		MessageID: messageID,
		Success:   false,
		Message:   msg,
		ErrorCode: code,
		Timestamp: time.Now().UTC(),
	}
}

// Succeed builds a successful Response for the given request message id.
func Succeed(messageID, msg string, data map[string]any) *Response {
	return &Response{
		MessageID: messageID,
		Success:   true,
		Message:   msg,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ToPayload flattens the response into a message payload map.
func (r *Response) ToPayload() map[string]any {
	p := map[string]any{
		"success": r.Success,
	}
	if r.Message != "" {
		p["message"] = r.Message
	}
	if r.ErrorCode != "" {
		p["errorCode"] = string(r.ErrorCode)
	}
	if len(r.Data) > 0 {
		p["data"] = r.Data
	}
	return p
}

// ResponseFromMessage decodes a response-shaped message into a Response.
// Missing or mistyped payload fields degrade to zero values; a nil payload
// decodes to a failed response with CodeInvalidResponse.
func ResponseFromMessage(m *Message) *Response {
	if m == nil || m.Payload == nil {
		return Failure("", CodeInvalidResponse, "empty response payload")
	}

	r := &Response{
		MessageID: m.CorrelationID,
		Timestamp: m.Timestamp,
	}
	if v, ok := m.Payload["success"].(bool); ok {
		r.Success = v
	}
	if v, ok := m.Payload["message"].(string); ok {
		r.Message = v
	}
	if v, ok := m.Payload["errorCode"].(string); ok {
		r.ErrorCode = Code(v)
	}
	if v, ok := m.Payload["data"].(map[string]any); ok {
		r.Data = v
	}
	return r
}
