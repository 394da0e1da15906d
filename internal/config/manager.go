package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("ANNA")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is fine; defaults + env vars carry the daemon.
		} else if os.IsNotExist(err) {
			// Same as above, surfaced through the os error path instead of viper's.
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()
	m.resolveDerivedPaths()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches the config file and, on each change, re-reads it and pushes
// the whole new Config; every setting is replaced, not only those safe to
// change live. Environment overrides are not reapplied on these reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		m.resolveDerivedPaths()
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full; the previous update hasn't been consumed yet.
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()
	m.resolveDerivedPaths()
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("rpc.socket_path", defaults.RPC.SocketPath)
	m.viper.SetDefault("rpc.socket_mode", defaults.RPC.SocketMode)

	m.viper.SetDefault("state.root", defaults.State.Root)

	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.ollama", defaults.LLM.Ollama)
	m.viper.SetDefault("llm.openai", defaults.LLM.OpenAI)
	m.viper.SetDefault("llm.anthropic", defaults.LLM.Anthropic)
	m.viper.SetDefault("llm.custom", defaults.LLM.Custom)
	m.viper.SetDefault("llm.request_timeout_seconds", defaults.LLM.RequestTimeoutSeconds)
	m.viper.SetDefault("llm.response_cache_ttl_seconds", defaults.LLM.ResponseCacheTTLSeconds)

	m.viper.SetDefault("autonomy.default_level", defaults.Autonomy.DefaultLevel)
	m.viper.SetDefault("autonomy.allow_level_override", defaults.Autonomy.AllowLevelOverride)

	m.viper.SetDefault("mutation.sandbox_root", defaults.Mutation.SandboxRoot)
	m.viper.SetDefault("mutation.home_dir", defaults.Mutation.HomeDir)
	m.viper.SetDefault("mutation.backup_dir", defaults.Mutation.BackupDir)

	m.viper.SetDefault("historian.retention_days", defaults.Historian.RetentionDays)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.audit_path", defaults.Logging.AuditPath)

	m.viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	m.viper.SetDefault("metrics.listen_address", defaults.Metrics.ListenAddress)

	m.viper.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	m.viper.SetDefault("retry.base_delay_ms", defaults.Retry.BaseDelayMS)
	m.viper.SetDefault("retry.max_delay_ms", defaults.Retry.MaxDelayMS)

	m.viper.SetDefault("remote_exec.enabled", defaults.RemoteExec.Enabled)
	m.viper.SetDefault("remote_exec.address", defaults.RemoteExec.Address)
	m.viper.SetDefault("remote_exec.timeout_seconds", defaults.RemoteExec.TimeoutSeconds)
	m.viper.SetDefault("remote_exec.tls_enabled", defaults.RemoteExec.TLSEnabled)
	m.viper.SetDefault("remote_exec.tls_cert_path", defaults.RemoteExec.TLSCertPath)
	m.viper.SetDefault("remote_exec.tls_key_path", defaults.RemoteExec.TLSKeyPath)
	m.viper.SetDefault("remote_exec.tls_ca_path", defaults.RemoteExec.TLSCAPath)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.RPC.SocketPath = m.viper.GetString("rpc.socket_path")
	cfg.RPC.SocketMode = uint32(m.viper.GetUint("rpc.socket_mode"))

	cfg.State.Root = m.viper.GetString("state.root")

	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.Ollama = m.viper.GetStringMap("llm.ollama")
	cfg.LLM.OpenAI = m.viper.GetStringMap("llm.openai")
	cfg.LLM.Anthropic = m.viper.GetStringMap("llm.anthropic")
	cfg.LLM.Custom = m.viper.GetStringMap("llm.custom")
	cfg.LLM.RequestTimeoutSeconds = m.viper.GetInt("llm.request_timeout_seconds")
	cfg.LLM.ResponseCacheTTLSeconds = m.viper.GetInt("llm.response_cache_ttl_seconds")

	cfg.Autonomy.DefaultLevel = m.viper.GetInt("autonomy.default_level")
	cfg.Autonomy.AllowLevelOverride = m.viper.GetBool("autonomy.allow_level_override")

	cfg.Mutation.SandboxRoot = m.viper.GetString("mutation.sandbox_root")
	cfg.Mutation.HomeDir = m.viper.GetString("mutation.home_dir")
	cfg.Mutation.BackupDir = m.viper.GetString("mutation.backup_dir")

	cfg.Historian.RetentionDays = m.viper.GetInt("historian.retention_days")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AuditPath = m.viper.GetString("logging.audit_path")

	cfg.Metrics.Enabled = m.viper.GetBool("metrics.enabled")
	cfg.Metrics.ListenAddress = m.viper.GetString("metrics.listen_address")

	cfg.Retry.MaxAttempts = m.viper.GetInt("retry.max_attempts")
	cfg.Retry.BaseDelayMS = m.viper.GetInt("retry.base_delay_ms")
	cfg.Retry.MaxDelayMS = m.viper.GetInt("retry.max_delay_ms")

	cfg.RemoteExec.Enabled = m.viper.GetBool("remote_exec.enabled")
	cfg.RemoteExec.Address = m.viper.GetString("remote_exec.address")
	cfg.RemoteExec.TimeoutSeconds = m.viper.GetInt("remote_exec.timeout_seconds")
	cfg.RemoteExec.TLSEnabled = m.viper.GetBool("remote_exec.tls_enabled")
	cfg.RemoteExec.TLSCertPath = m.viper.GetString("remote_exec.tls_cert_path")
	cfg.RemoteExec.TLSKeyPath = m.viper.GetString("remote_exec.tls_key_path")
	cfg.RemoteExec.TLSCAPath = m.viper.GetString("remote_exec.tls_ca_path")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive
// data that callers conventionally set outside any config file.
func (m *viperConfigManager) applyEnvOverrides() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if m.config.LLM.OpenAI == nil {
			m.config.LLM.OpenAI = make(map[string]interface{})
		}
		m.config.LLM.OpenAI["api_key"] = apiKey
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		if m.config.LLM.Anthropic == nil {
			m.config.LLM.Anthropic = make(map[string]interface{})
		}
		m.config.LLM.Anthropic["api_key"] = apiKey
	}

	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if m.config.LLM.Ollama == nil {
			m.config.LLM.Ollama = make(map[string]interface{})
		}
		m.config.LLM.Ollama["base_url"] = baseURL
	}

	if root := os.Getenv("ANNA_STATE_ROOT"); root != "" {
		m.config.State.Root = root
	}
}

// resolveDerivedPaths fills in the paths left empty in config so they
// default to a location under State.Root or the process's home directory,
// rather than requiring every deployment to spell them out.
func (m *viperConfigManager) resolveDerivedPaths() {
	if m.config.Mutation.HomeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			m.config.Mutation.HomeDir = home
		}
	}
	if m.config.Mutation.BackupDir == "" {
		m.config.Mutation.BackupDir = filepath.Join(m.config.State.Root, "mutations", "files")
	}
	if m.config.Logging.AuditPath == "" {
		m.config.Logging.AuditPath = filepath.Join(m.config.State.Root, "journal", "audit.log")
	}
}
