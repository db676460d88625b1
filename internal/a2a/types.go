// Package a2a implements the client side of the Agent-to-Agent (A2A) protocol
// used to reach a remote task-oriented agent: the JSON-RPC wire types, an
// HTTP client, a decoder that turns a response into a closed Envelope type,
// and the normalizer that extracts the answer text and continuation token.
package a2a

import "encoding/json"

// JSON-RPC methods understood by A2A servers.
const (
	// MethodTasksSend is the task-oriented method of the original protocol draft.
	MethodTasksSend = "tasks/send"

	// MethodMessageSend is the message-oriented method of later protocol versions.
	MethodMessageSend = "message/send"
)

// OutputModeText is the only output mode the relay accepts.
const OutputModeText = "text"

// PartKindText marks a text-bearing part.
const PartKindText = "text"

// Part is one piece of message or artifact content.
//
// Older servers tag parts with "type", newer ones with "kind". A part carries
// text exactly when Text is non-nil.
type Part struct {
	Kind     string         `json:"kind,omitempty"`
	Type     string         `json:"type,omitempty"`
	Text     *string        `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	File     *FilePart      `json:"file,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FilePart references file content attached to a part.
type FilePart struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
}

// TextPart builds a text part understood by both protocol drafts.
func TextPart(text string) Part {
	return Part{Kind: PartKindText, Type: PartKindText, Text: &text}
}

// Message is a single conversational turn.
type Message struct {
	Role      string         `json:"role"`
	Parts     []Part         `json:"parts"`
	MessageID string         `json:"messageId,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Artifact is a named grouping of output parts within a task result.
type Artifact struct {
	ArtifactID  string         `json:"artifactId,omitempty"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Index       int            `json:"index,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskStatus describes the state of a task-shaped result.
type TaskStatus struct {
	State     string   `json:"state,omitempty"`
	Message   *Message `json:"message,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// SendParams is the parameter object of a send call.
type SendParams struct {
	ID                  string         `json:"id"`
	SessionID           string         `json:"sessionId,omitempty"`
	AcceptedOutputModes []string       `json:"acceptedOutputModes"`
	Message             Message        `json:"message"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// NewSendParams builds the parameters for a single user turn. contextID is
// the continuation token from a previous turn, or "" on the first turn.
func NewSendParams(requestID, sessionID, text, contextID string) SendParams {
	return SendParams{
		ID:                  requestID,
		SessionID:           sessionID,
		AcceptedOutputModes: []string{OutputModeText},
		Message: Message{
			Role:      "user",
			Parts:     []Part{TextPart(text)},
			MessageID: requestID,
			ContextID: contextID,
		},
	}
}

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// AgentCard is the self-description an A2A server publishes at
// /.well-known/agent.json.
type AgentCard struct {
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	URL                string         `json:"url"`
	Version            string         `json:"version,omitempty"`
	ProtocolVersion    string         `json:"protocolVersion,omitempty"`
	Capabilities       map[string]any `json:"capabilities,omitempty"`
	DefaultInputModes  []string       `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string       `json:"defaultOutputModes,omitempty"`
	Skills             []AgentSkill   `json:"skills,omitempty"`
}

// AgentSkill is one capability advertised in an AgentCard.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}
