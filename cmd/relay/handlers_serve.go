package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/channels/discord"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/dispatch"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/server"
	"github.com/haasonsaas/relay/internal/sessions"
)

// runServe wires the relay and runs it until SIGINT/SIGTERM. Only startup
// failures are returned; shutdown problems are logged.
func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting relay",
		"version", version,
		"commit", commit,
		"config", opts.configPath,
		"a2a_method", cfg.Agent.Method,
		"mention_only", cfg.Discord.MentionOnly,
		"allowed_channels", len(cfg.Discord.ChannelOnly),
	)
	if cfg.Agent.URL == "" {
		logger.Warn("agent url not set, messages will be answered with a configuration notice",
			"env", config.EnvAgentURL)
	}

	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	registry := sessions.NewRegistry()
	registry.OnChange = metrics.SetActiveSessions

	invoker := agent.NewInvoker(agent.Config{
		Endpoint: cfg.Agent.URL,
		Caller:   newCaller(cfg.Agent),
		Method:   cfg.Agent.Method,
		Sessions: registry,
		Timeout:  cfg.Agent.Timeout,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	})

	adapter, err := discord.NewAdapter(discord.Config{
		Token:                cfg.Discord.BotToken,
		AppID:                cfg.Discord.AppID,
		GuildID:              cfg.Discord.GuildID,
		RegisterCommands:     cfg.Discord.RegisterCommands || cfg.Discord.AppID != "",
		MaxReconnectAttempts: cfg.Discord.MaxReconnectAttempts,
		ReconnectBackoff:     cfg.Discord.ReconnectBackoff,
		RateLimit:            cfg.Discord.RateLimit,
		RateBurst:            cfg.Discord.RateBurst,
		Logger:               logger,
		Metrics:              metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create discord adapter: %w", err)
	}

	handler := dispatch.NewHandler(dispatch.HandlerConfig{
		Policy:        dispatch.NewPolicy(cfg.Discord.MentionOnly, cfg.Discord.ChannelOnly),
		Invoker:       invoker,
		Sessions:      registry,
		Responder:     adapter,
		ChunkLimit:    cfg.Dispatch.ChunkLimit,
		MaxConcurrent: cfg.Dispatch.MaxConcurrent,
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	})

	ops := server.New(server.Config{
		Addr:     cfg.Server.Addr,
		Gatherer: metrics.Registry,
		Status:   adapter,
		Sessions: registry,
		Version:  version,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ops.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ops server: %w", err)
	}
	if err := adapter.Start(ctx); err != nil {
		_ = ops.Stop(context.Background())
		return fmt.Errorf("failed to start discord adapter: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Run(ctx, adapter.Messages())
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight turns",
		"timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("in-flight turns still running at shutdown timeout")
	}

	if err := adapter.Stop(shutdownCtx); err != nil {
		logger.Warn("discord adapter stop failed", "error", err)
	}
	if err := ops.Stop(shutdownCtx); err != nil {
		logger.Warn("ops server stop failed", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}

	logger.Info("relay stopped")
	return nil
}
