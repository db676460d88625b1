package a2a

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the decoded result of one remote call. It is a closed set of
// variants: *ErrorEnvelope, *ArtifactEnvelope, *DirectEnvelope,
// *EmptyEnvelope and *OpaqueEnvelope.
type Envelope interface {
	envelope()
}

// ErrorEnvelope reports that the agent signaled failure.
type ErrorEnvelope struct {
	Code    int
	Message string
}

// ArtifactEnvelope is a task-shaped result. Artifacts is empty when the task
// carries none yet.
type ArtifactEnvelope struct {
	Artifacts []Artifact
	Status    *TaskStatus

	// ContextID is the continuation token, when the agent issued one.
	ContextID *string
	// FallbackID is the task identifier, used as a substitute continuation
	// key when ContextID is absent.
	FallbackID *string

	Raw json.RawMessage
}

// DirectEnvelope is a message-shaped result carrying parts directly.
type DirectEnvelope struct {
	Parts []Part

	ContextID  *string
	FallbackID *string

	Raw json.RawMessage
}

// EmptyEnvelope is a well-formed response with no result payload.
type EmptyEnvelope struct{}

// OpaqueEnvelope is a result payload that matches neither known shape.
// Identifiers are only set when the payload is an object.
type OpaqueEnvelope struct {
	ContextID  *string
	FallbackID *string

	Raw json.RawMessage
}

func (*ErrorEnvelope) envelope()    {}
func (*ArtifactEnvelope) envelope() {}
func (*DirectEnvelope) envelope()   {}
func (*EmptyEnvelope) envelope()    {}
func (*OpaqueEnvelope) envelope()   {}

// DecodeError reports a response that could not be decoded, either because
// the framing is not JSON or because a known field has the wrong type.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("a2a: malformed response: %v", e.Err)
	}
	return fmt.Sprintf("a2a: malformed response field %q: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// DecodeEnvelope decodes a JSON-RPC response body into an Envelope.
//
// An error member always wins over a result. A missing or null result is an
// EmptyEnvelope. Optional fields that are present but have the wrong JSON
// type produce a *DecodeError rather than being treated as absent.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if !isNull(resp.Error) {
		var rpcErr RPCError
		if err := json.Unmarshal(resp.Error, &rpcErr); err != nil {
			return nil, &DecodeError{Field: "error", Err: err}
		}
		msg := rpcErr.Message
		if msg == "" {
			msg = fmt.Sprintf("agent returned error code %d", rpcErr.Code)
		}
		return &ErrorEnvelope{Code: rpcErr.Code, Message: msg}, nil
	}

	if isNull(resp.Result) {
		return &EmptyEnvelope{}, nil
	}

	raw := compact(resp.Result)
	if raw[0] != '{' {
		return &OpaqueEnvelope{Raw: raw}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Field: "result", Err: err}
	}

	contextID, err := continuationField(fields)
	if err != nil {
		return nil, err
	}
	fallbackID, err := fallbackField(fields)
	if err != nil {
		return nil, err
	}

	taskShaped, err := isTask(fields)
	if err != nil {
		return nil, err
	}
	artifactsValue, hasArtifacts := fields["artifacts"]
	hasArtifacts = hasArtifacts && !isNull(artifactsValue)
	if hasArtifacts || taskShaped {
		env := &ArtifactEnvelope{
			ContextID:  contextID,
			FallbackID: fallbackID,
			Raw:        raw,
		}
		if hasArtifacts {
			if err := json.Unmarshal(artifactsValue, &env.Artifacts); err != nil {
				return nil, &DecodeError{Field: "result.artifacts", Err: err}
			}
		}
		if status, ok := fields["status"]; ok && !isNull(status) {
			env.Status = &TaskStatus{}
			if err := json.Unmarshal(status, env.Status); err != nil {
				return nil, &DecodeError{Field: "result.status", Err: err}
			}
		}
		return env, nil
	}

	if value, ok := fields["parts"]; ok && !isNull(value) {
		var parts []Part
		if err := json.Unmarshal(value, &parts); err != nil {
			return nil, &DecodeError{Field: "result.parts", Err: err}
		}
		return &DirectEnvelope{
			Parts:      parts,
			ContextID:  contextID,
			FallbackID: fallbackID,
			Raw:        raw,
		}, nil
	}

	return &OpaqueEnvelope{ContextID: contextID, FallbackID: fallbackID, Raw: raw}, nil
}

// isTask reports whether a result object is a task without an artifacts
// member: servers omit artifacts while a task is waiting on input.
func isTask(fields map[string]json.RawMessage) (bool, error) {
	if status, ok := fields["status"]; ok && !isNull(status) {
		return true, nil
	}
	kind, err := optionalString(fields, "kind")
	if err != nil {
		return false, err
	}
	return kind != nil && *kind == "task", nil
}

// continuationField reads the primary continuation identifier. Current
// servers call it contextId; the original draft called it sessionId.
func continuationField(fields map[string]json.RawMessage) (*string, error) {
	for _, name := range []string{"contextId", "sessionId"} {
		value, err := optionalString(fields, name)
		if err != nil {
			return nil, err
		}
		if value != nil {
			return value, nil
		}
	}
	return nil, nil
}

// fallbackField reads the task or message identifier used as a substitute
// continuation key. This conflates two identifier kinds and is a heuristic,
// not something the protocol promises.
func fallbackField(fields map[string]json.RawMessage) (*string, error) {
	for _, name := range []string{"id", "messageId"} {
		value, err := optionalString(fields, name)
		if err != nil {
			return nil, err
		}
		if value != nil {
			return value, nil
		}
	}
	return nil, nil
}

// optionalString returns nil for a missing, null or empty field and a
// *DecodeError when the field is present with a non-string type.
func optionalString(fields map[string]json.RawMessage, name string) (*string, error) {
	value, ok := fields[name]
	if !ok || isNull(value) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, &DecodeError{Field: "result." + name, Err: err}
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return bytes.TrimSpace(raw)
	}
	return buf.Bytes()
}
