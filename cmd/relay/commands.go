package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that runs the bot.
func buildServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord relay",
		Long: `Run the Discord relay until interrupted.

The relay will:
1. Load configuration (defaults, --config file, .env, environment)
2. Connect to the Discord gateway and register slash commands if configured
3. Forward accepted messages to the agent, one session per channel
4. Serve /healthz, /readyz, /metrics and /sessions on the ops address

SIGINT/SIGTERM stop intake, let running turns finish, then disconnect.`,
		Example: `  # Run with settings from .env
  relay serve

  # Run with a config file and debug logging
  relay serve --config /etc/relay/relay.yaml --debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// buildAskCmd creates the "ask" command for one-shot agent calls.
func buildAskCmd(opts *rootOptions) *cobra.Command {
	var (
		card         bool
		conversation string
		chunkLimit   int
	)

	cmd := &cobra.Command{
		Use:   "ask [text...]",
		Short: "Send one message to the agent and print the answer",
		Example: `  # Ask a question
  relay ask "which deployments are unhealthy?"

  # Preview how Discord would split the answer
  relay ask --chunk-limit 2000 "describe the cluster"

  # Show the agent card
  relay ask --card`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if card {
				return runAgentCard(cmd.Context(), opts, cmd.OutOrStdout())
			}
			if len(args) == 0 {
				return cmd.Help()
			}
			return runAsk(cmd.Context(), opts, askOptions{
				text:         args,
				conversation: conversation,
				chunkLimit:   chunkLimit,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&card, "card", false, "Print the agent card instead of asking")
	cmd.Flags().StringVar(&conversation, "conversation", "cli", "Conversation id for the request")
	cmd.Flags().IntVar(&chunkLimit, "chunk-limit", 0, "Split the answer like a chat message of this size (0 prints it whole)")

	return cmd
}
