package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.RPC.SocketPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "rpc.socket_path",
			Message: "socket_path is required",
		})
	}

	if c.State.Root == "" {
		errs = append(errs, &ValidationError{
			Field:   "state.root",
			Message: "state root directory is required",
		})
	}

	validProviders := map[string]bool{
		"openai":    true,
		"anthropic": true,
		"ollama":    true,
		"custom":    true,
	}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: openai, anthropic, ollama, custom", c.LLM.Provider),
		})
	}

	switch c.LLM.Provider {
	case "ollama":
		if baseURL, ok := c.LLM.Ollama["base_url"].(string); !ok || baseURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.ollama.base_url",
				Message: "Ollama base URL is required",
			})
		}
		if model, ok := c.LLM.Ollama["model"].(string); !ok || model == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.ollama.model",
				Message: "Ollama model is required",
			})
		}
	case "openai":
		if model, ok := c.LLM.OpenAI["model"].(string); !ok || model == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.openai.model",
				Message: "OpenAI model is required",
			})
		}
	case "anthropic":
		if model, ok := c.LLM.Anthropic["model"].(string); !ok || model == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.anthropic.model",
				Message: "Anthropic model is required",
			})
		}
	case "custom":
		if baseURL, ok := c.LLM.Custom["base_url"].(string); !ok || baseURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.custom.base_url",
				Message: "Custom LLM base URL is required",
			})
		}
	}

	if c.LLM.RequestTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.request_timeout_seconds",
			Message: fmt.Sprintf("request_timeout_seconds must be at least 1, got %d", c.LLM.RequestTimeoutSeconds),
		})
	}

	if c.LLM.ResponseCacheTTLSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "llm.response_cache_ttl_seconds",
			Message: fmt.Sprintf("response_cache_ttl_seconds cannot be negative, got %d", c.LLM.ResponseCacheTTLSeconds),
		})
	}

	if c.Autonomy.DefaultLevel < 0 || c.Autonomy.DefaultLevel > 5 {
		errs = append(errs, &ValidationError{
			Field:   "autonomy.default_level",
			Message: fmt.Sprintf("default_level must be between 0 and 5, got %d", c.Autonomy.DefaultLevel),
		})
	}

	if c.Mutation.SandboxRoot == "" {
		errs = append(errs, &ValidationError{
			Field:   "mutation.sandbox_root",
			Message: "sandbox_root is required",
		})
	}

	if c.Historian.RetentionDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "historian.retention_days",
			Message: fmt.Sprintf("retention_days must be at least 1, got %d", c.Historian.RetentionDays),
		})
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		errs = append(errs, &ValidationError{
			Field:   "metrics.listen_address",
			Message: "listen_address is required when metrics are enabled",
		})
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retry.max_attempts",
			Message: fmt.Sprintf("max_attempts must be at least 1, got %d", c.Retry.MaxAttempts),
		})
	}

	if c.Retry.BaseDelayMS < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retry.base_delay_ms",
			Message: fmt.Sprintf("base_delay_ms must be at least 1, got %d", c.Retry.BaseDelayMS),
		})
	}

	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		errs = append(errs, &ValidationError{
			Field:   "retry.max_delay_ms",
			Message: "max_delay_ms must be at least base_delay_ms",
		})
	}

	if c.RemoteExec.Enabled {
		if c.RemoteExec.Address == "" {
			errs = append(errs, &ValidationError{
				Field:   "remote_exec.address",
				Message: "address is required when remote_exec is enabled",
			})
		}
		if c.RemoteExec.TimeoutSeconds < 1 {
			errs = append(errs, &ValidationError{
				Field:   "remote_exec.timeout_seconds",
				Message: fmt.Sprintf("timeout_seconds must be at least 1, got %d", c.RemoteExec.TimeoutSeconds),
			})
		}
	}

	return errs
}
