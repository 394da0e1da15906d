package config

// DefaultConfig returns a configuration with all default values, sufficient
// for annad to start against a local Ollama instance with no config file
// present at all.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.RPC.SocketPath = "/run/anna/anna.sock"
	cfg.RPC.SocketMode = 0o660

	cfg.State.Root = "/var/lib/anna"

	cfg.LLM.Provider = "ollama"
	cfg.LLM.Ollama = map[string]interface{}{
		"base_url": "http://localhost:11434",
		"model":    "llama3",
	}
	cfg.LLM.OpenAI = map[string]interface{}{
		"model":      "gpt-4",
		"max_tokens": 2048,
	}
	cfg.LLM.Anthropic = map[string]interface{}{
		"model":      "claude-3-5-sonnet-20241022",
		"max_tokens": 2048,
	}
	cfg.LLM.Custom = map[string]interface{}{
		"base_url":   "",
		"model":      "",
		"max_tokens": 2048,
	}
	cfg.LLM.RequestTimeoutSeconds = 30
	cfg.LLM.ResponseCacheTTLSeconds = 0 // disabled by default: caching is opt-in since stale completions can hide changed system state

	cfg.Autonomy.DefaultLevel = 2 // propose, requires a fresh confirmation per batch
	cfg.Autonomy.AllowLevelOverride = true

	cfg.Mutation.SandboxRoot = "/tmp/anna-sandbox"
	cfg.Mutation.HomeDir = "" // resolved from $HOME at startup if left empty
	cfg.Mutation.BackupDir = "" // resolved to State.Root + "/mutations/files" if left empty

	cfg.Historian.RetentionDays = 30

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AuditPath = "" // resolved to State.Root + "/journal/audit.log" if left empty

	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = "127.0.0.1:9191"

	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelayMS = 100
	cfg.Retry.MaxDelayMS = 5000

	cfg.RemoteExec.Enabled = false // no sidecar configured; elevated tools fall back to local os/exec
	cfg.RemoteExec.Address = ""
	cfg.RemoteExec.TimeoutSeconds = 10
	cfg.RemoteExec.TLSEnabled = false

	return cfg
}
