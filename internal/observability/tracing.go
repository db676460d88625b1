package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span names emitted by the relay.
const (
	SpanTurn        = "dispatch.turn"
	SpanAgentInvoke = "agent.invoke"
)

// Tracer starts the relay's spans. A nil *Tracer is valid and produces
// non-recording spans.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TraceConfig configures span export.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Endpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export.
	Endpoint string

	// SamplingRate is the fraction of new traces recorded. 0 means 1.
	SamplingRate float64

	// EnableInsecure disables TLS to the collector.
	EnableInsecure bool
}

// NewTracer returns a Tracer and the shutdown function that flushes pending
// spans. Without an endpoint, or when the exporter cannot be created, spans
// go to the global provider and shutdown is a no-op.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "relay"
	}
	noopShutdown := func(context.Context) error { return nil }

	if config.Endpoint == "" {
		return NewTracerWithProvider(otel.GetTracerProvider(), config.ServiceName), noopShutdown
	}

	provider, err := newExportingProvider(context.Background(), config)
	if err != nil {
		slog.Warn("tracing export disabled", "endpoint", config.Endpoint, "error", err)
		return NewTracerWithProvider(otel.GetTracerProvider(), config.ServiceName), noopShutdown
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return NewTracerWithProvider(provider, config.ServiceName), provider.Shutdown
}

// NewTracerWithProvider builds a Tracer on an existing provider.
func NewTracerWithProvider(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{tracer: tp.Tracer(serviceName), serviceName: serviceName}
}

func newExportingProvider(ctx context.Context, config TraceConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		res = resource.NewSchemaless(attrs...)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(config.SamplingRate))),
	), nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	if rate <= 0 || rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

func (t *Tracer) start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{trace.WithSpanKind(kind), trace.WithAttributes(attrs...)}
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name, opts...)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// TraceTurn starts the span covering one inbound chat message.
func (t *Tracer) TraceTurn(ctx context.Context, channel, conversationID string) (context.Context, trace.Span) {
	return t.start(ctx, SpanTurn, trace.SpanKindServer,
		attribute.String("channel", channel),
		attribute.String("conversation_id", conversationID),
	)
}

// TraceAgentInvoke starts the span covering one remote agent call.
func (t *Tracer) TraceAgentInvoke(ctx context.Context, method string, resumed bool) (context.Context, trace.Span) {
	return t.start(ctx, SpanAgentInvoke, trace.SpanKindClient,
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", method),
		attribute.Bool("agent.session_resumed", resumed),
	)
}

// RecordAnswer annotates an agent span with the outcome of a successful call.
func (t *Tracer) RecordAnswer(span trace.Span, answerLength int, tokenIssued bool) {
	span.SetAttributes(
		attribute.Int("agent.answer_length", answerLength),
		attribute.Bool("agent.token_issued", tokenIssued),
	)
}

// RecordError marks span failed. A nil err is ignored.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetTraceID returns the active trace id in ctx, or "" outside a sampled span.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
