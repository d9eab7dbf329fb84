// Package ws implements the per-session websocket protocol: inbound frame
// classification, the outbound frame vocabulary, and the connection loop
// that bridges a live socket to the conversation engine.
package ws

import "encoding/json"

// Outbound frame types.
const (
	FramePong       = "pong"
	FrameToken      = "ai_token"
	FrameComplete   = "ai_complete"
	FrameToolCall   = "tool_call"
	FrameToolResult = "tool_result"
	FrameError      = "error"
)

// Frame is an outbound protocol frame. Type selects which of the optional
// fields are present on the wire.
type Frame struct {
	Type      string         `json:"type"`
	Token     string         `json:"token,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	Result    any            `json:"result,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// PongFrame answers a ping.
func PongFrame() Frame {
	return Frame{Type: FramePong}
}

// TokenFrame carries one streamed increment of the reply.
func TokenFrame(token string) Frame {
	return Frame{Type: FrameToken, Token: token}
}

// CompleteFrame carries the full reply text, terminal for the turn.
func CompleteFrame(content string) Frame {
	return Frame{Type: FrameComplete, Content: content}
}

// ToolCallFrame announces a tool invocation.
func ToolCallFrame(name string, input map[string]any) Frame {
	return Frame{Type: FrameToolCall, ToolName: name, ToolInput: input}
}

// ToolResultFrame carries a tool's outcome.
func ToolResultFrame(name string, result any) Frame {
	return Frame{Type: FrameToolResult, ToolName: name, Result: result}
}

// ErrorFrame reports a problem without closing the connection.
func ErrorFrame(message string) Frame {
	return Frame{Type: FrameError, Message: message}
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Inbound is a client frame: a ping or a user message.
type Inbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ParseInbound deserializes a client frame. Any payload that is not a JSON
// object with the expected fields is an error; the caller reports it inline
// and keeps the connection open.
func ParseInbound(data []byte) (Inbound, error) {
	var in Inbound
	err := json.Unmarshal(data, &in)
	return in, err
}

// MarshalInbound serializes a client frame, for the client side of the
// connection.
func MarshalInbound(in Inbound) ([]byte, error) {
	return json.Marshal(in)
}

// ParseFrame deserializes a server frame, for the client side of the
// connection.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}
