// Package observability provides the relay's logging, metrics, and tracing.
//
// # Logging
//
// NewLogger builds a log/slog logger whose handler redacts secrets (bot
// tokens, bearer headers, API keys) before records are written. Request and
// conversation ids travel on the context and are attached by the handler:
//
//	ctx = observability.AddConversationID(ctx, msg.ConversationID)
//	logger.InfoContext(ctx, "received message")
//
// # Metrics
//
// Metrics registers Prometheus collectors on its own registry so tests can
// create as many as they need. All methods are safe on a nil *Metrics.
//
//	relay_messages_total{direction}
//	relay_agent_requests_total{status}
//	relay_agent_request_duration_seconds
//	relay_errors_total{component,error_type}
//	relay_active_sessions
//	relay_chunks_per_reply
//
// # Tracing
//
// NewTracer exports spans over OTLP/gRPC when an endpoint is configured and
// falls back to the global provider otherwise. One span covers each chat turn
// with a child span for the agent call.
package observability
