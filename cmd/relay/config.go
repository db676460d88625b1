package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/haasonsaas/relay/internal/a2a"
	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/observability"
)

// loadConfig reads dotenv files, then the config file and environment.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogger installs the configured logger as the default and returns it.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)
	return logger
}

// newClient builds the A2A client, or nil when no URL is configured.
func newClient(cfg config.AgentConfig) *a2a.Client {
	if cfg.URL == "" {
		return nil
	}
	opts := []a2a.ClientOption{
		a2a.WithMethod(cfg.Method),
		a2a.WithTimeout(cfg.Timeout),
	}
	for key, value := range cfg.Headers {
		opts = append(opts, a2a.WithHeader(key, value))
	}
	return a2a.NewClient(cfg.URL, opts...)
}

// newCaller wraps newClient so a missing URL stays a nil interface.
func newCaller(cfg config.AgentConfig) agent.Caller {
	if client := newClient(cfg); client != nil {
		return client
	}
	return nil
}
