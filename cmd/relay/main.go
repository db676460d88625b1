// Package main provides the CLI entry point for relay, a Discord bot that
// forwards conversations to a remote A2A agent.
//
// # Basic Usage
//
// Run the bot:
//
//	relay serve
//
// Ask the agent once from a terminal:
//
//	relay ask "what pods are failing?"
//
// # Environment Variables
//
// Settings come from an optional YAML file (--config), a .env file and the
// environment, the environment winning:
//
//   - DISCORD_BOT_TOKEN: Discord bot token (required for serve)
//   - KAGENT_A2A_URL: A2A endpoint of the agent
//   - DISCORD_MENTION_ONLY: answer in guild channels only when mentioned
//   - DISCORD_CHANNEL_ONLY: comma-separated channel IDs to answer in
//   - DISCORD_APP_ID, DISCORD_GUILD_ID: slash command registration
//   - A2A_METHOD: tasks/send (default) or message/send
//   - RELAY_HTTP_ADDR: ops HTTP listen address (default :8080)
//   - LOG_LEVEL, LOG_FORMAT: logging
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP gRPC collector for traces
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/observability"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFiles   []string
	debug      bool
}

func main() {
	slog.SetDefault(observability.NewLogger(observability.LogConfig{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay Discord conversations to an A2A agent",
		Long: `relay connects a Discord bot to a remote agent speaking the A2A JSON-RPC
protocol. Each Discord channel keeps its own agent session, and long answers
are split into Discord-sized messages on line boundaries.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("RELAY_CONFIG"),
		"Path to YAML configuration file (or set RELAY_CONFIG)")
	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"},
		"Dotenv files loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false,
		"Enable debug logging")

	rootCmd.AddCommand(
		buildServeCmd(opts),
		buildAskCmd(opts),
	)

	return rootCmd
}
