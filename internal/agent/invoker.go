// Package agent performs one conversational turn against the remote A2A
// agent, carrying the continuation token for each conversation.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/a2a"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/sessions"
)

// Caller sends one request to the agent. *a2a.Client implements it.
type Caller interface {
	Send(ctx context.Context, params a2a.SendParams) (a2a.Envelope, error)
}

// Config configures an Invoker.
type Config struct {
	// Endpoint is the agent URL. When empty every Invoke fails with a
	// configuration error.
	Endpoint string

	// Caller performs the remote call. Defaults to an a2a.Client for Endpoint.
	Caller Caller

	// Method is recorded on spans. Defaults to a2a.MethodTasksSend.
	Method string

	// Sessions holds continuation tokens. Defaults to a new Registry.
	Sessions sessions.Store

	// Timeout bounds a single remote call. Defaults to a2a.DefaultTimeout.
	Timeout time.Duration

	// NewRequestID generates request identifiers. Defaults to uuid.NewString.
	NewRequestID func() string

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Invoker runs turns against the remote agent.
type Invoker struct {
	endpoint     string
	caller       Caller
	method       string
	sessions     sessions.Store
	timeout      time.Duration
	newRequestID func() string
	logger       *slog.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
}

// NewInvoker creates an Invoker, filling defaults for unset fields.
func NewInvoker(cfg Config) *Invoker {
	if cfg.Method == "" {
		cfg.Method = a2a.MethodTasksSend
	}
	if cfg.Caller == nil && cfg.Endpoint != "" {
		cfg.Caller = a2a.NewClient(cfg.Endpoint, a2a.WithMethod(cfg.Method))
	}
	if cfg.Sessions == nil {
		cfg.Sessions = sessions.NewRegistry()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = a2a.DefaultTimeout
	}
	if cfg.NewRequestID == nil {
		cfg.NewRequestID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Invoker{
		endpoint:     cfg.Endpoint,
		caller:       cfg.Caller,
		method:       cfg.Method,
		sessions:     cfg.Sessions,
		timeout:      cfg.Timeout,
		newRequestID: cfg.NewRequestID,
		logger:       cfg.Logger.With("component", "agent"),
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
	}
}

// Invoke sends text to the agent as the next turn of conversationID and
// returns the agent's answer, which may be empty.
//
// The remote call is detached from ctx cancellation: once started it runs
// until it completes or the invoker timeout expires. ctx values (trace and
// log correlation) still flow through.
//
// On success the continuation token, if the agent issued one, replaces the
// stored token for conversationID. On any failure the stored token is left
// untouched.
func (i *Invoker) Invoke(ctx context.Context, conversationID, text string) (string, error) {
	if i.endpoint == "" || i.caller == nil {
		i.metrics.RecordAgentRequest("config_error", 0)
		return "", ErrConfig("agent endpoint is not configured")
	}

	token, resumed := i.sessions.Get(conversationID)

	requestID := i.newRequestID()
	sessionID := token
	if !resumed {
		sessionID = i.newRequestID()
	}
	params := a2a.NewSendParams(requestID, sessionID, text, token)

	ctx, span := i.tracer.TraceAgentInvoke(ctx, i.method, resumed)
	defer span.End()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
	defer cancel()

	i.logger.DebugContext(ctx, "sending turn to agent",
		"conversation_id", conversationID,
		"request_id", requestID,
		"resumed", resumed,
	)

	start := time.Now()
	env, err := i.caller.Send(callCtx, params)
	if err != nil {
		i.metrics.RecordAgentRequest("transport_error", time.Since(start))
		i.metrics.RecordError("agent", "transport")
		i.tracer.RecordError(span, err)
		i.logger.WarnContext(ctx, "agent call failed",
			"conversation_id", conversationID,
			"request_id", requestID,
			"error", err,
		)
		return "", ErrTransport("agent call failed", err)
	}

	result := a2a.Normalize(env)
	if result.Failed() {
		agentErr := ErrAgent(*result.ErrorText)
		i.metrics.RecordAgentRequest("agent_error", time.Since(start))
		i.metrics.RecordError("agent", "agent_error")
		i.tracer.RecordError(span, agentErr)
		i.logger.WarnContext(ctx, "agent returned error",
			"conversation_id", conversationID,
			"request_id", requestID,
			"error", *result.ErrorText,
		)
		return "", agentErr
	}

	next, issued := result.Token()
	if issued {
		i.sessions.Set(conversationID, next)
	}

	i.metrics.RecordAgentRequest("success", time.Since(start))
	i.tracer.RecordAnswer(span, len(result.Text), issued)
	return result.Text, nil
}
