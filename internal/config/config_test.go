package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/a2a"
)

var allEnv = []string{
	EnvBotToken, EnvAppID, EnvGuildID, EnvMentionOnly, EnvChannelOnly,
	EnvAgentURL, EnvAgentMethod, EnvAgentTimeout, EnvHTTPAddr,
	EnvLogLevel, EnvLogFormat, EnvOTLPEndpoint,
}

// clearEnv blanks every variable Load reads; blank values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnv {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Method != a2a.MethodTasksSend {
		t.Errorf("expected default method %q, got %q", a2a.MethodTasksSend, cfg.Agent.Method)
	}
	if cfg.Agent.Timeout != a2a.DefaultTimeout {
		t.Errorf("expected default timeout, got %v", cfg.Agent.Timeout)
	}
	if cfg.Dispatch.MaxConcurrent != 16 || cfg.Server.Addr != ":8080" || cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Dispatch, cfg.Server)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Discord.MentionOnly || len(cfg.Discord.ChannelOnly) != 0 {
		t.Errorf("expected open policy by default, got %+v", cfg.Discord)
	}
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBotToken, "token")
	t.Setenv(EnvAgentURL, "http://kagent:8083/api/a2a/kagent/k8s-agent/")
	t.Setenv(EnvMentionOnly, "TRUE")
	t.Setenv(EnvChannelOnly, " 111 ,abc,, 222,33x")
	t.Setenv(EnvAgentMethod, a2a.MethodMessageSend)
	t.Setenv(EnvAgentTimeout, "90s")
	t.Setenv(EnvHTTPAddr, "127.0.0.1:9090")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.BotToken != "token" || cfg.Agent.URL != "http://kagent:8083/api/a2a/kagent/k8s-agent/" {
		t.Errorf("unexpected values %+v %+v", cfg.Discord, cfg.Agent)
	}
	if !cfg.Discord.MentionOnly {
		t.Error("expected mention only")
	}
	if want := []string{"111", "222"}; !reflect.DeepEqual(cfg.Discord.ChannelOnly, want) {
		t.Errorf("expected %v, got %v", want, cfg.Discord.ChannelOnly)
	}
	if cfg.Agent.Method != a2a.MethodMessageSend || cfg.Agent.Timeout != 90*time.Second {
		t.Errorf("unexpected agent config %+v", cfg.Agent)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" || cfg.Logging.Level != "debug" {
		t.Errorf("unexpected server/logging %+v %+v", cfg.Server, cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadMentionOnlyValues(t *testing.T) {
	tests := map[string]bool{
		"true":  true,
		"1":     true,
		"yes":   true,
		"false": false,
		"nope":  false,
	}
	for value, want := range tests {
		t.Run(value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvMentionOnly, value)
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Discord.MentionOnly != want {
				t.Errorf("MentionOnly = %v, want %v", cfg.Discord.MentionOnly, want)
			}
		})
	}
}

func TestLoadInvalidTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAgentTimeout, "soon")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), EnvAgentTimeout) {
		t.Fatalf("expected timeout parse error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_RELAY_TOKEN", "from-file-env")
	path := writeConfig(t, `
version: 1
discord:
  bot_token: ${TEST_RELAY_TOKEN}
  mention_only: true
  channel_only: ["123", "general"]
agent:
  url: http://agent.local/a2a
  timeout: 2m
  headers:
    X-Tenant: relay
dispatch:
  chunk_limit: 1500
logging:
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.BotToken != "from-file-env" {
		t.Errorf("expected expanded token, got %q", cfg.Discord.BotToken)
	}
	if !cfg.Discord.MentionOnly || !reflect.DeepEqual(cfg.Discord.ChannelOnly, []string{"123"}) {
		t.Errorf("unexpected discord config %+v", cfg.Discord)
	}
	if cfg.Agent.Timeout != 2*time.Minute || cfg.Agent.Headers["X-Tenant"] != "relay" {
		t.Errorf("unexpected agent config %+v", cfg.Agent)
	}
	if cfg.Agent.Method != a2a.MethodTasksSend {
		t.Errorf("expected default method kept, got %q", cfg.Agent.Method)
	}
	if cfg.Dispatch.ChunkLimit != 1500 || cfg.Dispatch.MaxConcurrent != 16 {
		t.Errorf("unexpected dispatch config %+v", cfg.Dispatch)
	}
	if cfg.Logging.Format != "text" || cfg.Logging.Level != "info" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAgentURL, "http://env/a2a")
	path := writeConfig(t, `
agent:
  url: http://file/a2a
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.URL != "http://env/a2a" {
		t.Errorf("expected environment to win, got %q", cfg.Agent.URL)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
agent:
  url: http://agent
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "agent:\n  url: a\n---\nagent:\n  url: b\n")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "single document") {
		t.Fatalf("expected single document error, got %v", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Method != a2a.MethodTasksSend {
		t.Errorf("expected defaults, got %+v", cfg.Agent)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid without agent url",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing token",
			mutate:  func(c *Config) { c.Discord.BotToken = "" },
			wantErr: EnvBotToken,
		},
		{
			name:    "unknown method",
			mutate:  func(c *Config) { c.Agent.Method = "tasks/sendSubscribe" },
			wantErr: "agent.method",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "negative chunk limit",
			mutate:  func(c *Config) { c.Dispatch.ChunkLimit = -1 },
			wantErr: "chunk_limit",
		},
		{
			name:    "sampling out of range",
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 2 },
			wantErr: "sampling_rate",
		},
		{
			name:    "newer version",
			mutate:  func(c *Config) { c.Version = CurrentVersion + 1 },
			wantErr: "newer than this build",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Discord.BotToken = "token"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateAgentIgnoresDiscord(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateAgent(); err != nil {
		t.Fatalf("ValidateAgent() error = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to require a bot token")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	contents := EnvAgentURL + "=http://dotenv/a2a\n" + EnvBotToken + "=dotenv-token\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// A real environment value is never overridden by the file.
	t.Setenv(EnvBotToken, "real-token")
	// godotenv only fills unset variables, so drop the blank placeholder.
	os.Unsetenv(EnvAgentURL)

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv(EnvAgentURL) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.URL != "http://dotenv/a2a" {
		t.Errorf("expected .env value, got %q", cfg.Agent.URL)
	}
	if cfg.Discord.BotToken != "real-token" {
		t.Errorf("expected real environment to win, got %q", cfg.Discord.BotToken)
	}
}

func TestNumericIDs(t *testing.T) {
	got := NumericIDs([]string{" 1 ", "", "x1", "-5", "42"})
	if want := []string{"1", "42"}; !reflect.DeepEqual(got, want) {
		t.Errorf("NumericIDs() = %v, want %v", got, want)
	}
}
