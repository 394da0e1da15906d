// Package selfhealth runs Anna's own health probes — is the daemon up,
// is the LLM backend reachable, are models installed, is the tool
// catalog populated, are its working directories writable, is its
// config file parseable. These check Anna's own runtime, not the host
// system; the Tool Catalog and Evidence Parsers cover the host.
package selfhealth

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/annassistant/anna/pkg/types"
)

// DaemonAddr and OllamaAddr are the TCP endpoints CheckDaemon and
// CheckLLMBackend probe for liveness beyond "process exists".
const (
	DaemonAddr = "127.0.0.1:7865"
	OllamaAddr = "127.0.0.1:11434"
)

// SystemConfigPath is the system-wide config location checked alongside
// the per-user config. A var, not a const, so tests can redirect it.
var SystemConfigPath = "/etc/anna/config.toml"

// LogDir is where Anna's own log files are expected to live.
var LogDir = "/var/log/anna"

// ExpectedLogFiles are the log files CheckLogging looks for under LogDir.
var ExpectedLogFiles = []string{"anna.log"}

// UserConfigPath returns the per-user config path, or "" if the OS
// doesn't expose a config directory.
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "anna", "config.toml")
}

func healthy(name, message string, details map[string]interface{}) types.ComponentHealth {
	return types.ComponentHealth{Name: name, Status: types.ComponentHealthy, Message: message, Details: details}
}

func degraded(name, message string, details map[string]interface{}) types.ComponentHealth {
	return types.ComponentHealth{Name: name, Status: types.ComponentDegraded, Message: message, Details: details}
}

func critical(name, message string, details map[string]interface{}) types.ComponentHealth {
	return types.ComponentHealth{Name: name, Status: types.ComponentCritical, Message: message, Details: details}
}

// CheckDaemon reports whether annad is running (via systemctl, falling
// back to pgrep) and whether it answers on its health port.
func CheckDaemon() types.ComponentHealth {
	running := isActiveUnit("annad")
	if !running {
		running = processRunning("annad")
	}

	if !running {
		return critical("daemon", "annad is not running", map[string]interface{}{
			"process_running": false,
			"suggestion":      "sudo systemctl start annad",
		})
	}

	if portOpen(DaemonAddr, 2*time.Second) {
		return healthy("daemon", "annad is running and responding", map[string]interface{}{
			"process_running": true,
			"port_open":       true,
			"endpoint":        "http://" + DaemonAddr,
		})
	}

	return degraded("daemon", "annad is running but not responding on port 7865", map[string]interface{}{
		"process_running": true,
		"port_open":       false,
		"suggestion":      "sudo systemctl restart annad",
	})
}

// CheckLLMBackend reports whether Ollama is running and its API answers.
func CheckLLMBackend() types.ComponentHealth {
	running := processRunning("ollama") || isActiveUnit("ollama")
	if !running {
		return critical("llm", "Ollama is not running", map[string]interface{}{
			"process_running": false,
			"suggestion":      "systemctl start ollama or ollama serve",
		})
	}

	if portOpen(OllamaAddr, 2*time.Second) {
		return healthy("llm", "Ollama is running and responding", map[string]interface{}{
			"process_running": true,
			"api_responding":  true,
			"endpoint":        "http://" + OllamaAddr,
		})
	}

	return degraded("llm", "Ollama process found but API not responding", map[string]interface{}{
		"process_running": true,
		"api_responding":  false,
		"suggestion":      "systemctl restart ollama",
	})
}

var recommendedModels = []string{"llama3.2:3b", "qwen2.5:3b", "mistral"}

// CheckModelAvailability runs `ollama list` and reports whether any
// model, and specifically a recommended small model, is installed.
func CheckModelAvailability(ctx context.Context) types.ComponentHealth {
	out, err := exec.CommandContext(ctx, "ollama", "list").Output()
	if err != nil {
		return critical("model", "Ollama command not found", map[string]interface{}{
			"error":      err.Error(),
			"suggestion": "Install Ollama: curl -fsSL https://ollama.ai/install.sh | sh",
		})
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	var models []string
	if len(lines) > 1 {
		for _, line := range lines[1:] {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				models = append(models, fields[0])
			}
		}
	}

	if len(models) == 0 {
		return critical("model", "No LLM models installed", map[string]interface{}{
			"models_found": []string{},
			"suggestion":   "ollama pull llama3.2:3b",
		})
	}

	hasRecommended := false
	for _, m := range models {
		for _, rec := range recommendedModels {
			if strings.Contains(m, rec) {
				hasRecommended = true
			}
		}
	}

	if hasRecommended {
		return healthy("model", strconv.Itoa(len(models))+" model(s) available", map[string]interface{}{
			"models_found":    models,
			"has_recommended": true,
		})
	}
	return degraded("model", strconv.Itoa(len(models))+" model(s) found but none are recommended", map[string]interface{}{
		"models_found":    models,
		"has_recommended": false,
		"suggestion":      "ollama pull llama3.2:3b or qwen2.5:3b",
	})
}

// ProbesDir is where tool-probe definitions are expected to live.
var ProbesDir = "/usr/share/anna/probes"

// CheckToolsCatalog reports whether the probe-definition directory
// exists and is populated.
func CheckToolsCatalog() types.ComponentHealth {
	entries, err := os.ReadDir(ProbesDir)
	if err != nil {
		return critical("tools", "Probes directory does not exist", map[string]interface{}{
			"path":       ProbesDir,
			"suggestion": "sudo mkdir -p " + ProbesDir,
		})
	}

	count := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			count++
		}
	}

	if count == 0 {
		return degraded("tools", "No probe definitions found", map[string]interface{}{
			"path":        ProbesDir,
			"probe_count": 0,
			"suggestion":  "Install probes from GitHub release",
		})
	}
	return healthy("tools", strconv.Itoa(count)+" probe(s) registered", map[string]interface{}{
		"path":        ProbesDir,
		"probe_count": count,
	})
}

// RequiredDirs are Anna's working directories, checked by CheckPermissions.
var RequiredDirs = []struct{ Path, Purpose string }{
	{"/var/lib/anna", "data"},
	{"/var/log/anna", "logs"},
	{"/run/anna", "runtime"},
}

// CheckPermissions reports whether Anna's working directories exist and
// are writable.
func CheckPermissions() types.ComponentHealth {
	var issues, healthyDirs []string

	for _, d := range RequiredDirs {
		info, err := os.Stat(d.Path)
		switch {
		case err != nil:
			issues = append(issues, d.Path+" ("+d.Purpose+") does not exist")
		case info.Mode().Perm()&0o200 == 0:
			issues = append(issues, d.Path+" ("+d.Purpose+") is read-only")
		default:
			healthyDirs = append(healthyDirs, d.Path)
		}
	}

	details := map[string]interface{}{"healthy": healthyDirs, "issues": issues}

	switch {
	case len(issues) == 0:
		return healthy("permissions", "All directories accessible", details)
	case len(healthyDirs) == 0:
		details["suggestion"] = "sudo chown -R anna:anna /var/lib/anna /var/log/anna /run/anna"
		return critical("permissions", strconv.Itoa(len(issues))+" permission issue(s)", details)
	default:
		return degraded("permissions", strconv.Itoa(len(issues))+" permission issue(s)", details)
	}
}

// CheckConfig reports whether a system or user config file exists and,
// if present, parses as valid TOML.
func CheckConfig() types.ComponentHealth {
	var found []string
	if _, err := os.Stat(SystemConfigPath); err == nil {
		found = append(found, SystemConfigPath)
	}
	if userPath := UserConfigPath(); userPath != "" {
		if _, err := os.Stat(userPath); err == nil {
			found = append(found, userPath)
		}
	}

	if len(found) == 0 {
		return degraded("config", "No config file found (using defaults)", map[string]interface{}{
			"searched":   []string{SystemConfigPath, UserConfigPath()},
			"suggestion": "Run 'annactl' to generate default config",
		})
	}

	var parseErrors []string
	for _, path := range found {
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var table map[string]interface{}
		if err := toml.Unmarshal(content, &table); err != nil {
			parseErrors = append(parseErrors, path+": "+err.Error())
		}
	}

	if len(parseErrors) > 0 {
		return degraded("config", "Config file has syntax errors", map[string]interface{}{
			"configs_found": found,
			"parse_errors":  parseErrors,
			"suggestion":    "Check config file syntax",
		})
	}
	return healthy("config", strconv.Itoa(len(found))+" config file(s) valid", map[string]interface{}{
		"configs_found": found,
		"parse_errors":  []string{},
	})
}

// CheckLogging reports whether Anna's log directory is writable and
// whether the expected log files are present.
func CheckLogging() types.ComponentHealth {
	info, err := os.Stat(LogDir)
	if err != nil {
		return critical("logging", "Log directory does not exist", map[string]interface{}{
			"path":       LogDir,
			"suggestion": "sudo mkdir -p " + LogDir,
		})
	}
	if info.Mode().Perm()&0o200 == 0 {
		return critical("logging", "Log directory is not writable", map[string]interface{}{
			"path":       LogDir,
			"suggestion": "sudo chown -R anna:anna " + LogDir,
		})
	}

	var missing []string
	for _, f := range ExpectedLogFiles {
		if _, err := os.Stat(filepath.Join(LogDir, f)); err != nil {
			missing = append(missing, f)
		}
	}

	if len(missing) > 0 {
		return degraded("logging", "Log directory writable but no log file written yet", map[string]interface{}{
			"path":    LogDir,
			"missing": missing,
		})
	}
	return healthy("logging", "Logging is active", map[string]interface{}{
		"path": LogDir,
	})
}

func isActiveUnit(unit string) bool {
	out, err := exec.Command("systemctl", "is-active", unit).Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "active"
}

func processRunning(name string) bool {
	return exec.Command("pgrep", name).Run() == nil
}

func portOpen(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
