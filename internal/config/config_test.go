package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "/run/anna/anna.sock", cfg.RPC.SocketPath)
	assert.Equal(t, uint32(0o660), cfg.RPC.SocketMode)

	assert.Equal(t, "/var/lib/anna", cfg.State.Root)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.NotNil(t, cfg.LLM.Ollama)
	assert.NotNil(t, cfg.LLM.OpenAI)
	assert.NotNil(t, cfg.LLM.Anthropic)
	assert.Equal(t, 30, cfg.LLM.RequestTimeoutSeconds)

	assert.Equal(t, 2, cfg.Autonomy.DefaultLevel)
	assert.True(t, cfg.Autonomy.AllowLevelOverride)

	assert.Equal(t, "/tmp/anna-sandbox", cfg.Mutation.SandboxRoot)

	assert.Equal(t, 30, cfg.Historian.RetentionDays)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.True(t, cfg.Metrics.Enabled)
	assert.NotEmpty(t, cfg.Metrics.ListenAddress)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name: "missing socket path",
			modifyFn: func(cfg *Config) {
				cfg.RPC.SocketPath = ""
			},
			wantError: true,
			errorMsg:  "socket_path is required",
		},
		{
			name: "missing state root",
			modifyFn: func(cfg *Config) {
				cfg.State.Root = ""
			},
			wantError: true,
			errorMsg:  "state root directory is required",
		},
		{
			name: "invalid LLM provider",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Provider = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid provider",
		},
		{
			name: "missing Ollama base URL",
			modifyFn: func(cfg *Config) {
				delete(cfg.LLM.Ollama, "base_url")
			},
			wantError: true,
			errorMsg:  "Ollama base URL is required",
		},
		{
			name: "missing Anthropic model",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Provider = "anthropic"
				delete(cfg.LLM.Anthropic, "model")
			},
			wantError: true,
			errorMsg:  "Anthropic model is required",
		},
		{
			name: "invalid autonomy level - too low",
			modifyFn: func(cfg *Config) {
				cfg.Autonomy.DefaultLevel = -1
			},
			wantError: true,
			errorMsg:  "default_level must be between 0 and 5",
		},
		{
			name: "invalid autonomy level - too high",
			modifyFn: func(cfg *Config) {
				cfg.Autonomy.DefaultLevel = 6
			},
			wantError: true,
			errorMsg:  "default_level must be between 0 and 5",
		},
		{
			name: "missing sandbox root",
			modifyFn: func(cfg *Config) {
				cfg.Mutation.SandboxRoot = ""
			},
			wantError: true,
			errorMsg:  "sandbox_root is required",
		},
		{
			name: "invalid log level",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Level = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name: "invalid log format",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Format = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log format",
		},
		{
			name: "zero retention days",
			modifyFn: func(cfg *Config) {
				cfg.Historian.RetentionDays = 0
			},
			wantError: true,
			errorMsg:  "retention_days must be at least 1",
		},
		{
			name: "metrics enabled without listen address",
			modifyFn: func(cfg *Config) {
				cfg.Metrics.ListenAddress = ""
			},
			wantError: true,
			errorMsg:  "listen_address is required",
		},
		{
			name: "retry max delay below base delay",
			modifyFn: func(cfg *Config) {
				cfg.Retry.BaseDelayMS = 1000
				cfg.Retry.MaxDelayMS = 100
			},
			wantError: true,
			errorMsg:  "max_delay_ms must be at least base_delay_ms",
		},
		{
			name: "remote_exec enabled without address",
			modifyFn: func(cfg *Config) {
				cfg.RemoteExec.Enabled = true
			},
			wantError: true,
			errorMsg:  "address is required when remote_exec is enabled",
		},
		{
			name: "remote_exec disabled by default needs no address",
			modifyFn: func(cfg *Config) {},
			wantError: false,
		},
		{
			name: "negative llm response cache ttl",
			modifyFn: func(cfg *Config) {
				cfg.LLM.ResponseCacheTTLSeconds = -1
			},
			wantError: true,
			errorMsg:  "response_cache_ttl_seconds cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()

			if tt.wantError {
				assert.NotEmpty(t, errs, "expected validation errors but got none")
				if len(errs) > 0 {
					found := false
					for _, err := range errs {
						if tt.errorMsg != "" && contains(err.Error(), tt.errorMsg) {
							found = true
							break
						}
					}
					if tt.errorMsg != "" {
						assert.True(t, found, "expected error message containing '%s', got: %v", tt.errorMsg, errs)
					}
				}
			} else {
				assert.Empty(t, errs, "expected no validation errors but got: %v", errs)
			}
		})
	}
}

func TestConfigManagerLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
rpc:
  socket_path: "/tmp/anna-test.sock"

state:
  root: "/tmp/anna-test-state"

llm:
  provider: "anthropic"
  anthropic:
    api_key: "test-anthropic-key"
    model: "claude-3-5-sonnet-20241022"

autonomy:
  default_level: 3

logging:
  level: "debug"
  format: "text"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)

	assert.Equal(t, "/tmp/anna-test.sock", cfg.RPC.SocketPath)
	assert.Equal(t, "/tmp/anna-test-state", cfg.State.Root)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Autonomy.DefaultLevel)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	assert.NotNil(t, cfg.LLM.Anthropic)
	assert.Equal(t, "test-anthropic-key", cfg.LLM.Anthropic["api_key"])
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.LLM.Anthropic["model"])

	// Derived paths resolve when left unset in the config file.
	assert.Equal(t, filepath.Join(cfg.State.Root, "mutations", "files"), cfg.Mutation.BackupDir)
	assert.Equal(t, filepath.Join(cfg.State.Root, "journal", "audit.log"), cfg.Logging.AuditPath)
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	os.Setenv("ANNA_STATE_ROOT", "/tmp/anna-env-state")
	os.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	defer func() {
		os.Unsetenv("ANNA_STATE_ROOT")
		os.Unsetenv("ANTHROPIC_API_KEY")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
state:
  root: "/var/lib/anna"

llm:
  provider: "anthropic"
  anthropic:
    model: "claude-3-5-sonnet-20241022"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)

	assert.Equal(t, "/tmp/anna-env-state", cfg.State.Root, "state root should be overridden by environment variable")
	assert.Equal(t, "env-anthropic-key", cfg.LLM.Anthropic["api_key"], "API key should come from environment variable")
}

func TestConfigManagerMissingFile(t *testing.T) {
	configPath := "/tmp/nonexistent-anna-config.yaml"

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/run/anna/anna.sock", cfg.RPC.SocketPath)
}

func TestConfigManagerValidation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
rpc:
  socket_path: ""

llm:
  provider: "invalid-provider"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	err = mgr.Validate(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

// Helper function
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 || findSubstring(s, substr))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
