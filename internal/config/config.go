package config

import "context"

// Package config provides configuration management for annad.
//
// Responsibilities:
//   - Load configuration from a YAML file, environment variables, and CLI flags
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support hot-reloading of the config file (every setting is re-read)
//   - Establish reasonable defaults so the daemon runs unconfigured
//
// Configuration Sources (priority order, high to low):
//  1. CLI flags (highest priority)
//  2. Environment variables (ANNA_* prefix)
//  3. YAML config file (default: /etc/anna/config.yaml)
//  4. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//  1. RPC
//     - socket_path: unix-domain socket path (default /run/anna/anna.sock)
//     - socket_mode: file permission bits applied to the socket
//
//  2. State
//     - root: on-disk state root holding facts.json, journal/, mutations/,
//       recipes/, historian/, stats/ (default /var/lib/anna)
//
//  3. LLM
//     - provider: ollama | openai | anthropic | custom
//     - per-provider connection settings
//
//  4. Autonomy
//     - default_level: how much a mutation may proceed without a fresh
//       confirmation in the same session
//
//  5. Mutation
//     - sandbox_root / home_dir: the two tiers the Mutation Engine classifies
//       paths into before anything outside them is unconditionally refused
//     - backup_dir: where pre-mutation file contents are stashed
//
//  6. Historian
//     - retention_days: how long bucketed samples are kept before eviction
//
//  7. Logging
//     - level / format: the application log
//     - audit_path: the append-only audit trail, rotated independently
//
//  8. Metrics
//     - enabled / listen_address: the Prometheus exporter
//
//  9. Retry
//     - max_attempts / base_delay_ms / max_delay_ms: the shared backoff
//       policy used by the LLM client (tool runs are not retried)
type Config struct {
	RPC struct {
		SocketPath string
		SocketMode uint32
	}

	State struct {
		Root string
	}

	LLM struct {
		Provider              string
		Ollama                map[string]interface{}
		OpenAI                map[string]interface{}
		Anthropic             map[string]interface{}
		Custom                map[string]interface{}
		RequestTimeoutSeconds int
		ResponseCacheTTLSeconds int
	}

	Autonomy struct {
		DefaultLevel       int
		AllowLevelOverride bool
	}

	Mutation struct {
		SandboxRoot string
		HomeDir     string
		BackupDir   string
	}

	Historian struct {
		RetentionDays int
	}

	Logging struct {
		Level     string
		Format    string
		AuditPath string
	}

	Metrics struct {
		Enabled       bool
		ListenAddress string
	}

	Retry struct {
		MaxAttempts int
		BaseDelayMS int
		MaxDelayMS  int
	}

	RemoteExec struct {
		Enabled        bool
		Address        string
		TimeoutSeconds int
		TLSEnabled     bool
		TLSCertPath    string
		TLSKeyPath     string
		TLSCAPath      string
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload re-reads every setting from the config file and environment.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with the default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/anna/config.yaml")
}
