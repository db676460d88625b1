package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/internal/channels"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/sessions"
)

type stubStatus struct {
	status channels.Status
}

func (s stubStatus) Status() channels.Status {
	return s.status
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", resp.Body.String(), err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	s := New(Config{Version: "1.2.3"})
	resp := get(t, s.Handler(), "/healthz")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	body := decode(t, resp)
	if body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name   string
		status StatusReporter
		want   int
	}{
		{"connected", stubStatus{channels.Status{Connected: true}}, http.StatusOK},
		{"disconnected", stubStatus{channels.Status{Error: "disconnected from discord"}}, http.StatusServiceUnavailable},
		{"no adapter", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{Status: tt.status})
			if resp := get(t, s.Handler(), "/readyz"); resp.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.Code)
			}
		})
	}
}

func TestSessions(t *testing.T) {
	registry := sessions.NewRegistry()
	registry.Set("222", "ctx-b")
	registry.Set("111", "ctx-a")
	s := New(Config{Sessions: registry})

	resp := get(t, s.Handler(), "/sessions")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "ctx-a") {
		t.Error("session tokens must not be exposed")
	}
	body := decode(t, resp)
	if body["count"] != float64(2) {
		t.Errorf("expected count 2, got %v", body["count"])
	}
	ids, _ := body["conversations"].([]any)
	if len(ids) != 2 || ids[0] != "111" || ids[1] != "222" {
		t.Errorf("unexpected conversations %v", body["conversations"])
	}
}

func TestSessionsWithoutRegistry(t *testing.T) {
	body := decode(t, get(t, New(Config{}).Handler(), "/sessions"))
	if body["count"] != float64(0) {
		t.Errorf("expected zero sessions, got %v", body["count"])
	}
}

func TestMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.MessageReceived()
	s := New(Config{Gatherer: metrics.Registry})

	resp := get(t, s.Handler(), "/metrics")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `relay_messages_total{direction="inbound"} 1`) {
		t.Errorf("expected relay counter in output, got:\n%s", resp.Body.String())
	}
}

func TestStartStop(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Addr() != "" {
		t.Error("expected no address after Stop")
	}
}

func TestStartDisabled(t *testing.T) {
	s := New(Config{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Addr() != "" {
		t.Error("expected disabled server not to listen")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
