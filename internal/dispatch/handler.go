package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/channels"
	"github.com/haasonsaas/relay/internal/channels/chunk"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

// User-facing messages.
const (
	ConfigErrorMessage    = "⚠️ Missing `KAGENT_A2A_URL` in `.env`."
	AgentErrorPrefix      = "❌ Agent error: "
	TransportErrorPrefix  = "❌ Error while talking to Kagent: "
	NoResponseMessage     = "No response received."
	ResetClearedMessage   = "🧹 Session cleared. Your next message starts a new conversation."
	ResetNoSessionMessage = "ℹ️ No active session to clear."
)

// defaultMaxConcurrent bounds how many turns run at once.
const defaultMaxConcurrent = 16

// Responder delivers text back to the conversation a message came from.
type Responder interface {
	// Reply answers msg directly (a reply reference, or the interaction response).
	Reply(ctx context.Context, msg *models.Message, text string) error
	// Send posts a follow-up in the same conversation.
	Send(ctx context.Context, msg *models.Message, text string) error
	// Typing shows a typing indicator. Failures are not fatal.
	Typing(ctx context.Context, msg *models.Message) error
}

// Invoker runs one agent turn. *agent.Invoker implements it.
type Invoker interface {
	Invoke(ctx context.Context, conversationID, text string) (string, error)
}

// SessionClearer forgets a conversation. sessions.Store implements it.
type SessionClearer interface {
	Clear(id string) bool
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Policy    Policy
	Invoker   Invoker
	Sessions  SessionClearer
	Responder Responder

	// ChunkLimit overrides the per-channel message size limit.
	ChunkLimit int

	// MaxConcurrent bounds concurrent turns in Run. Defaults to 16.
	MaxConcurrent int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Handler turns accepted chat messages into agent turns and replies.
type Handler struct {
	policy        Policy
	invoker       Invoker
	sessions      SessionClearer
	responder     Responder
	chunkLimit    int
	maxConcurrent int
	logger        *slog.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		policy:        cfg.Policy,
		invoker:       cfg.Invoker,
		sessions:      cfg.Sessions,
		responder:     cfg.Responder,
		chunkLimit:    cfg.ChunkLimit,
		maxConcurrent: cfg.MaxConcurrent,
		logger:        cfg.Logger.With("component", "dispatch"),
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
	}
}

// Run handles messages until ctx is cancelled or messages is closed, one
// goroutine per turn, and waits for in-flight turns before returning.
//
// Turns already started are not cancelled with ctx: a running agent call and
// its replies complete so the user is not left without an answer.
func (h *Handler) Run(ctx context.Context, messages <-chan *models.Message) {
	sem := make(chan struct{}, h.maxConcurrent)
	var wg sync.WaitGroup
	defer wg.Wait()

	turnCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
				wg.Add(1)
				go func(message *models.Message) {
					defer func() {
						<-sem
						wg.Done()
					}()
					if err := h.Handle(turnCtx, message); err != nil {
						h.logger.Warn("turn finished with delivery error",
							"conversation_id", message.ConversationID,
							"error", err,
						)
					}
				}(msg)
			case <-ctx.Done():
				return
			}
		}
	}
}

// Handle processes one inbound message. It returns an error only when a reply
// could not be delivered; agent failures are reported to the user instead.
func (h *Handler) Handle(ctx context.Context, msg *models.Message) error {
	if !h.policy.Allows(msg) {
		return nil
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" && !msg.IsCommand() {
		return nil
	}

	ctx = observability.AddConversationID(ctx, msg.ConversationID)
	if msg.ID != "" {
		ctx = observability.AddRequestID(ctx, msg.ID)
	}
	ctx, span := h.tracer.TraceTurn(ctx, string(msg.Channel), msg.ConversationID)
	defer span.End()

	h.metrics.MessageReceived()
	h.logger.InfoContext(ctx, "received message",
		"author_id", msg.AuthorID,
		"command", msg.Command,
		"content_length", len(content),
	)

	if IsResetCommand(StripMentions(content, msg.SelfMentions)) || msg.Command == "reset" {
		return h.reset(ctx, msg)
	}

	if err := h.responder.Typing(ctx, msg); err != nil {
		h.logger.DebugContext(ctx, "typing indicator failed", "error", err)
	}

	answer, err := h.invoker.Invoke(ctx, msg.ConversationID, content)
	if err != nil {
		h.tracer.RecordError(span, err)
		return h.deliver(ctx, msg, errorMessage(err))
	}
	if answer == "" {
		answer = NoResponseMessage
	}

	err = h.deliver(ctx, msg, answer)
	h.tracer.RecordError(span, err)
	return err
}

func (h *Handler) reset(ctx context.Context, msg *models.Message) error {
	text := ResetNoSessionMessage
	if h.sessions != nil && h.sessions.Clear(msg.ConversationID) {
		text = ResetClearedMessage
		h.logger.InfoContext(ctx, "session cleared")
	}
	return h.reply(ctx, msg, text)
}

// deliver sends answer as one reply when it fits, otherwise as line-preserving
// chunks: the first as a reply and the rest as follow-ups, in order.
func (h *Handler) deliver(ctx context.Context, msg *models.Message, answer string) error {
	limit := h.chunkLimit
	if limit <= 0 {
		limit = chunk.GetChannelLimit(string(msg.Channel))
	}

	if chunk.Fits(answer, limit) {
		h.metrics.ObserveChunks(1)
		return h.reply(ctx, msg, answer)
	}

	parts := chunk.Lines(answer, limit)
	h.metrics.ObserveChunks(len(parts))
	if err := h.reply(ctx, msg, parts[0]); err != nil {
		return err
	}
	for _, part := range parts[1:] {
		if err := h.responder.Send(ctx, msg, part); err != nil {
			h.metrics.RecordError("dispatch", "send_failed")
			h.logger.ErrorContext(ctx, "failed to send follow-up",
				"error", err,
				"transient", channels.IsRetryable(err),
			)
			return err
		}
		h.metrics.MessageSent()
	}
	return nil
}

func (h *Handler) reply(ctx context.Context, msg *models.Message, text string) error {
	if err := h.responder.Reply(ctx, msg, text); err != nil {
		h.metrics.RecordError("dispatch", "reply_failed")
		h.logger.ErrorContext(ctx, "failed to reply",
			"error", err,
			"transient", channels.IsRetryable(err),
		)
		return err
	}
	h.metrics.MessageSent()
	return nil
}

// errorMessage maps a failed turn to the text shown to the user.
func errorMessage(err error) string {
	var agentErr *agent.Error
	if errors.As(err, &agentErr) {
		switch agentErr.Code {
		case agent.ErrCodeConfig:
			return ConfigErrorMessage
		case agent.ErrCodeAgent:
			return AgentErrorPrefix + agentErr.Message
		default:
			return TransportErrorPrefix + agentErr.Cause()
		}
	}
	return TransportErrorPrefix + err.Error()
}
