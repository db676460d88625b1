package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/relay/internal/a2a"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/sessions"
)

// fakeCaller records requests and answers with canned envelopes.
type fakeCaller struct {
	mu       sync.Mutex
	requests []a2a.SendParams
	contexts []context.Context

	respond func(params a2a.SendParams) (a2a.Envelope, error)
}

func (f *fakeCaller) Send(ctx context.Context, params a2a.SendParams) (a2a.Envelope, error) {
	f.mu.Lock()
	f.requests = append(f.requests, params)
	f.contexts = append(f.contexts, ctx)
	f.mu.Unlock()
	return f.respond(params)
}

func envelopeFrom(t *testing.T, body string) a2a.Envelope {
	t.Helper()
	env, err := a2a.DecodeEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	return env
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestInvoke_FirstTurnStoresToken(t *testing.T) {
	caller := &fakeCaller{respond: func(a2a.SendParams) (a2a.Envelope, error) {
		return envelopeFrom(t, `{"result":{"contextId":"ctx-1","artifacts":[{"parts":[{"type":"text","text":"hi there"}]}]}}`), nil
	}}
	store := sessions.NewRegistry()
	inv := NewInvoker(Config{Endpoint: "http://agent", Caller: caller, Sessions: store, NewRequestID: sequentialIDs()})

	answer, err := inv.Invoke(context.Background(), "chan-1", "hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if answer != "hi there" {
		t.Errorf("expected %q, got %q", "hi there", answer)
	}
	if token, ok := store.Get("chan-1"); !ok || token != "ctx-1" {
		t.Errorf("expected stored token ctx-1, got %q (ok=%v)", token, ok)
	}

	req := caller.requests[0]
	if req.Message.ContextID != "" {
		t.Errorf("expected no contextId on first turn, got %q", req.Message.ContextID)
	}
	if req.SessionID == "" || req.SessionID == req.ID {
		t.Errorf("expected a fresh session id distinct from the request id, got %q / %q", req.SessionID, req.ID)
	}
	if req.Message.Parts[0].Text == nil || *req.Message.Parts[0].Text != "hello" {
		t.Error("expected user text in the first part")
	}
}

func TestInvoke_ResumesWithStoredToken(t *testing.T) {
	caller := &fakeCaller{respond: func(a2a.SendParams) (a2a.Envelope, error) {
		return envelopeFrom(t, `{"result":{"contextId":"ctx-2","parts":[{"kind":"text","text":"again"}]}}`), nil
	}}
	store := sessions.NewRegistry()
	store.Set("chan-1", "ctx-1")
	inv := NewInvoker(Config{Endpoint: "http://agent", Caller: caller, Sessions: store})

	if _, err := inv.Invoke(context.Background(), "chan-1", "more"); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	req := caller.requests[0]
	if req.Message.ContextID != "ctx-1" || req.SessionID != "ctx-1" {
		t.Errorf("expected token carried as contextId and sessionId, got %q / %q", req.Message.ContextID, req.SessionID)
	}
	if token, _ := store.Get("chan-1"); token != "ctx-2" {
		t.Errorf("expected token overwritten with ctx-2, got %q", token)
	}
}

func TestInvoke_FreshRequestIDs(t *testing.T) {
	caller := &fakeCaller{respond: func(a2a.SendParams) (a2a.Envelope, error) {
		return &a2a.EmptyEnvelope{}, nil
	}}
	inv := NewInvoker(Config{Endpoint: "http://agent", Caller: caller})

	for i := 0; i < 3; i++ {
		if _, err := inv.Invoke(context.Background(), "chan-1", "x"); err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
	}
	seen := map[string]bool{}
	for _, req := range caller.requests {
		if seen[req.ID] {
			t.Errorf("request id %q reused", req.ID)
		}
		seen[req.ID] = true
	}
}

func TestInvoke_AgentErrorLeavesSessionUntouched(t *testing.T) {
	caller := &fakeCaller{respond: func(a2a.SendParams) (a2a.Envelope, error) {
		return envelopeFrom(t, `{"result":{"contextId":"ctx-new","artifacts":[]},"error":{"code":-32000,"message":"quota exceeded"}}`), nil
	}}
	store := sessions.NewRegistry()
	store.Set("chan-1", "ctx-old")
	metrics := observability.NewMetrics()
	inv := NewInvoker(Config{Endpoint: "http://agent", Caller: caller, Sessions: store, Metrics: metrics})

	_, err := inv.Invoke(context.Background(), "chan-1", "x")
	if !IsAgent(err) {
		t.Fatalf("expected agent error, got %v", err)
	}
	var agentErr *Error
	if !errors.As(err, &agentErr) || agentErr.Message != "quota exceeded" {
		t.Errorf("expected agent message, got %v", err)
	}
	if token, _ := store.Get("chan-1"); token != "ctx-old" {
		t.Errorf("expected session untouched, got %q", token)
	}
	if got := testutil.ToFloat64(metrics.AgentRequestCounter.WithLabelValues("agent_error")); got != 1 {
		t.Errorf("expected agent_error metric, got %v", got)
	}
}

func TestInvoke_TransportError(t *testing.T) {
	cause := errors.New("connection refused")
	caller := &fakeCaller{respond: func(a2a.SendParams) (a2a.Envelope, error) {
		return nil, cause
	}}
	store := sessions.NewRegistry()
	inv := NewInvoker(Config{Endpoint: "http://agent", Caller: caller, Sessions: store})

	_, err := inv.Invoke(context.Background(), "chan-1", "x")
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be wrapped")
	}
	if store.Len() != 0 {
		t.Error("expected no session to be recorded")
	}
}

func TestInvoke_MissingEndpoint(t *testing.T) {
	caller := &fakeCaller{respond: func(a2a.SendParams) (a2a.Envelope, error) {
		t.Fatal("caller must not be used without an endpoint")
		return nil, nil
	}}
	inv := NewInvoker(Config{Caller: caller})

	_, err := inv.Invoke(context.Background(), "chan-1", "x")
	if !IsConfig(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestInvoke_EmptyAnswerIsSuccess(t *testing.T) {
	caller := &fakeCaller{respond: func(a2a.SendParams) (a2a.Envelope, error) {
		return &a2a.EmptyEnvelope{}, nil
	}}
	store := sessions.NewRegistry()
	inv := NewInvoker(Config{Endpoint: "http://agent", Caller: caller, Sessions: store})

	answer, err := inv.Invoke(context.Background(), "chan-1", "x")
	if err != nil || answer != "" {
		t.Fatalf("expected empty success, got %q, %v", answer, err)
	}
	if store.Len() != 0 {
		t.Error("expected no token without one in the response")
	}
}

func TestInvoke_NotCancelledByCaller(t *testing.T) {
	var callErr error
	var deadline time.Time
	var hasDeadline bool
	caller := &fakeCaller{}
	caller.respond = func(a2a.SendParams) (a2a.Envelope, error) {
		ctx := caller.contexts[len(caller.contexts)-1]
		callErr = ctx.Err()
		deadline, hasDeadline = ctx.Deadline()
		return &a2a.EmptyEnvelope{}, nil
	}
	inv := NewInvoker(Config{Endpoint: "http://agent", Caller: caller, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := inv.Invoke(ctx, "chan-1", "x"); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if callErr != nil {
		t.Errorf("expected the remote call to ignore caller cancellation, got %v", callErr)
	}
	if !hasDeadline || time.Until(deadline) > time.Minute {
		t.Errorf("expected the invoker timeout as deadline, got %v (ok=%v)", deadline, hasDeadline)
	}
}

func TestInvoke_HTTPEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"id":"task-1","contextId":"ctx-1","status":{"state":"completed"},"artifacts":[{"parts":[{"type":"text","text":"hi there"}]}]}}`))
	}))
	defer server.Close()

	store := sessions.NewRegistry()
	inv := NewInvoker(Config{Endpoint: server.URL, Sessions: store})

	answer, err := inv.Invoke(context.Background(), "chan-1", "hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if answer != "hi there" {
		t.Errorf("expected %q, got %q", "hi there", answer)
	}
	if token, _ := store.Get("chan-1"); token != "ctx-1" {
		t.Errorf("expected ctx-1, got %q", token)
	}
}

func TestInvoke_HTTPFailureIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	inv := NewInvoker(Config{Endpoint: server.URL})
	_, err := inv.Invoke(context.Background(), "chan-1", "hello")
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var statusErr *a2a.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected wrapped status error, got %v", err)
	}
}
