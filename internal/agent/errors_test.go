package agent

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := ErrTransport("agent call failed", errors.New("connection refused"))

	for _, want := range []string{"TRANSPORT_ERROR", "agent call failed", "connection refused"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error string %q should contain %q", err.Error(), want)
		}
	}
	if got := ErrAgent("rate limited").Error(); got != "[AGENT_ERROR] rate limited" {
		t.Errorf("unexpected agent error string %q", got)
	}
}

func TestError_Cause(t *testing.T) {
	if got := ErrTransport("agent call failed", errors.New("dial tcp: refused")).Cause(); got != "dial tcp: refused" {
		t.Errorf("expected wrapped cause, got %q", got)
	}
	if got := ErrAgent("bad input").Cause(); got != "bad input" {
		t.Errorf("expected message as cause, got %q", got)
	}
}

func TestError_Unwrap(t *testing.T) {
	root := errors.New("root")
	err := fmt.Errorf("outer: %w", ErrTransport("call", root))
	if !errors.Is(err, root) {
		t.Error("expected errors.Is to find the root cause")
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		config    bool
		agent     bool
		transport bool
	}{
		{"config", ErrConfig("missing"), ErrCodeConfig, true, false, false},
		{"agent", ErrAgent("nope"), ErrCodeAgent, false, true, false},
		{"transport", ErrTransport("x", errors.New("y")), ErrCodeTransport, false, false, true},
		{"wrapped", fmt.Errorf("turn: %w", ErrAgent("nope")), ErrCodeAgent, false, true, false},
		{"plain", errors.New("other"), "", false, false, false},
		{"nil", nil, "", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.code {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.code)
			}
			if IsConfig(tt.err) != tt.config || IsAgent(tt.err) != tt.agent || IsTransport(tt.err) != tt.transport {
				t.Error("classification helpers disagree with the error code")
			}
		})
	}
}
