package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/channels/chunk"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/dispatch"
	"github.com/haasonsaas/relay/pkg/models"
)

type askOptions struct {
	text         []string
	conversation string
	chunkLimit   int
}

// runAsk sends one message to the agent and prints the answer.
func runAsk(ctx context.Context, opts *rootOptions, ask askOptions, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateAgent(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	invoker := agent.NewInvoker(agent.Config{
		Endpoint: cfg.Agent.URL,
		Caller:   newCaller(cfg.Agent),
		Method:   cfg.Agent.Method,
		Timeout:  cfg.Agent.Timeout,
		Logger:   logger,
	})

	answer, err := invoker.Invoke(ctx, ask.conversation, strings.Join(ask.text, " "))
	if err != nil {
		if agent.IsConfig(err) {
			return fmt.Errorf("%s is not set", config.EnvAgentURL)
		}
		return err
	}
	if answer == "" {
		answer = dispatch.NoResponseMessage
	}

	parts := chunk.ForChannel(answer, string(models.ChannelCLI))
	if ask.chunkLimit > 0 {
		parts = chunk.Lines(answer, ask.chunkLimit)
	}
	for i, part := range parts {
		if len(parts) > 1 {
			fmt.Fprintf(out, "--- message %d/%d ---\n", i+1, len(parts))
		}
		fmt.Fprint(out, part)
		if !strings.HasSuffix(part, "\n") {
			fmt.Fprintln(out)
		}
	}
	return nil
}

// runAgentCard prints the agent's published card as JSON.
func runAgentCard(ctx context.Context, opts *rootOptions, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	setupLogger(cfg.Logging)

	client := newClient(cfg.Agent)
	if client == nil {
		return fmt.Errorf("%s is not set", config.EnvAgentURL)
	}
	card, err := client.FetchAgentCard(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch agent card: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(card)
}
