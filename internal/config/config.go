// Package config loads relay settings from defaults, an optional YAML file,
// a .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/haasonsaas/relay/internal/a2a"
)

// CurrentVersion is the newest config file version this build understands.
const CurrentVersion = 1

// Environment variables read by Load.
const (
	EnvBotToken     = "DISCORD_BOT_TOKEN"
	EnvAppID        = "DISCORD_APP_ID"
	EnvGuildID      = "DISCORD_GUILD_ID"
	EnvMentionOnly  = "DISCORD_MENTION_ONLY"
	EnvChannelOnly  = "DISCORD_CHANNEL_ONLY"
	EnvAgentURL     = "KAGENT_A2A_URL"
	EnvAgentMethod  = "A2A_METHOD"
	EnvAgentTimeout = "A2A_TIMEOUT"
	EnvHTTPAddr     = "RELAY_HTTP_ADDR"
	EnvLogLevel     = "LOG_LEVEL"
	EnvLogFormat    = "LOG_FORMAT"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Config is the main configuration structure for the relay.
type Config struct {
	Version  int            `yaml:"version"`
	Discord  DiscordConfig  `yaml:"discord"`
	Agent    AgentConfig    `yaml:"agent"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type DiscordConfig struct {
	BotToken         string `yaml:"bot_token"`
	AppID            string `yaml:"app_id"`
	GuildID          string `yaml:"guild_id"`
	RegisterCommands bool   `yaml:"register_commands"`

	// MentionOnly makes the bot answer in guild channels only when mentioned.
	MentionOnly bool `yaml:"mention_only"`

	// ChannelOnly restricts the bot to these channel IDs. Non-numeric
	// entries are dropped.
	ChannelOnly []string `yaml:"channel_only"`

	RateLimit            float64       `yaml:"rate_limit"`
	RateBurst            int           `yaml:"rate_burst"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBackoff     time.Duration `yaml:"reconnect_backoff"`
}

type AgentConfig struct {
	// URL is the A2A JSON-RPC endpoint. Missing is reported per message, not
	// at startup.
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

type DispatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`

	// ChunkLimit overrides the platform message size limit. Zero uses the
	// platform's own.
	ChunkLimit int `yaml:"chunk_limit"`
}

type ServerConfig struct {
	// Addr is the ops HTTP listen address. Empty disables the server.
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Agent: AgentConfig{
			Method:  a2a.MethodTasksSend,
			Timeout: a2a.DefaultTimeout,
		},
		Dispatch: DispatchConfig{
			MaxConcurrent: 16,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName:  "relay",
			SamplingRate: 1.0,
		},
	}
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the YAML file at path (when
// non-empty) and the environment. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	cfg.Discord.ChannelOnly = NumericIDs(cfg.Discord.ChannelOnly)
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvBotToken, &cfg.Discord.BotToken)
	str(EnvAppID, &cfg.Discord.AppID)
	str(EnvGuildID, &cfg.Discord.GuildID)
	str(EnvAgentURL, &cfg.Agent.URL)
	str(EnvAgentMethod, &cfg.Agent.Method)
	str(EnvHTTPAddr, &cfg.Server.Addr)
	str(EnvLogLevel, &cfg.Logging.Level)
	str(EnvLogFormat, &cfg.Logging.Format)
	str(EnvOTLPEndpoint, &cfg.Tracing.Endpoint)

	if v, ok := lookup(EnvMentionOnly); ok && strings.TrimSpace(v) != "" {
		cfg.Discord.MentionOnly = parseBool(v)
	}
	if v, ok := lookup(EnvChannelOnly); ok && strings.TrimSpace(v) != "" {
		cfg.Discord.ChannelOnly = strings.Split(v, ",")
	}
	if v, ok := lookup(EnvAgentTimeout); ok && strings.TrimSpace(v) != "" {
		timeout, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAgentTimeout, err)
		}
		cfg.Agent.Timeout = timeout
	}
	return nil
}

func applyDefaults(cfg *Config) {
	defaults := Default()
	if cfg.Agent.Method == "" {
		cfg.Agent.Method = defaults.Agent.Method
	}
	if cfg.Agent.Timeout == 0 {
		cfg.Agent.Timeout = defaults.Agent.Timeout
	}
	if cfg.Dispatch.MaxConcurrent == 0 {
		cfg.Dispatch.MaxConcurrent = defaults.Dispatch.MaxConcurrent
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
}

// parseBool accepts true/1/yes/on in any case; anything else is false.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// NumericIDs trims ids and keeps only the all-digit ones.
func NumericIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Validate checks everything the long-running relay needs.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Discord.BotToken) == "" {
		errs = append(errs, fmt.Errorf("discord.bot_token is required (set %s)", EnvBotToken))
	}
	if c.Discord.RateLimit < 0 || c.Discord.RateBurst < 0 {
		errs = append(errs, fmt.Errorf("discord.rate_limit and discord.rate_burst must not be negative"))
	}
	if err := c.ValidateAgent(); err != nil {
		errs = append(errs, err)
	}
	if c.Dispatch.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("dispatch.max_concurrent must not be negative"))
	}
	if c.Dispatch.ChunkLimit < 0 {
		errs = append(errs, fmt.Errorf("dispatch.chunk_limit must not be negative"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampling_rate must be between 0 and 1"))
	}
	return errors.Join(errs...)
}

// ValidateAgent checks the agent settings alone. An empty URL is allowed.
func (c *Config) ValidateAgent() error {
	var errs []error
	if c.Version > CurrentVersion {
		errs = append(errs, fmt.Errorf("config version %d is newer than this build (current: %d)", c.Version, CurrentVersion))
	}
	switch c.Agent.Method {
	case a2a.MethodTasksSend, a2a.MethodMessageSend:
	default:
		errs = append(errs, fmt.Errorf("agent.method must be %s or %s, got %q", a2a.MethodTasksSend, a2a.MethodMessageSend, c.Agent.Method))
	}
	if c.Agent.Timeout < 0 {
		errs = append(errs, fmt.Errorf("agent.timeout must not be negative"))
	}
	return errors.Join(errs...)
}
