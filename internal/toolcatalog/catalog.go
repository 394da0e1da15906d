// Package toolcatalog owns the fixed, hardcoded set of evidence-gathering
// commands the Orchestrator may invoke. The LLM only ever sees a
// ToolDescriptor's name and one-line description — it never sees or
// chooses the underlying shell command, so a prompt injection can at most
// pick among a closed set of read-mostly commands this package defines.
package toolcatalog

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/annassistant/anna/pkg/types"
)

// DefaultTimeout bounds a single tool execution so one hung command cannot
// stall an entire Orchestrator pass.
const DefaultTimeout = 10 * time.Second

// executor builds the concrete command for a tool invocation. params comes
// from the planner's ToolCall.Parameters and is tool-specific.
type executor func(params map[string]interface{}) (command string, args []string, preview string)

type tool struct {
	descriptor types.ToolDescriptor
	exec       executor
}

// Catalog is the complete set of tools available to the Orchestrator.
// Construction is fixed at NewCatalog; there is no registration API, by
// design — adding a tool means adding a case here, not wiring arbitrary
// code at runtime.
type Catalog struct {
	tools map[string]tool
}

// NewCatalog builds the full tool catalog.
func NewCatalog() *Catalog {
	c := &Catalog{tools: make(map[string]tool)}
	c.registerHardware()
	c.registerMemory()
	c.registerStorage()
	c.registerKernel()
	c.registerNetwork()
	c.registerAudio()
	c.registerServices()
	c.registerSoftware()
	c.registerAlerts()
	c.registerMisc()
	return c
}

func (c *Catalog) add(name, description string, schema interface{}, exec executor) {
	c.tools[name] = tool{
		descriptor: types.ToolDescriptor{Name: name, Description: description, Schema: schema},
		exec:       exec,
	}
}

func fixed(command string, args ...string) executor {
	preview := command
	for _, a := range args {
		preview += " " + a
	}
	return func(map[string]interface{}) (string, []string, string) {
		return command, args, preview
	}
}

func shell(script string) executor {
	return func(map[string]interface{}) (string, []string, string) {
		return "sh", []string{"-c", script}, script
	}
}

func (c *Catalog) registerHardware() {
	c.add("hw_snapshot_summary",
		"CPU model, cores, threads, and GPU controller summary for this machine.",
		nil,
		shell("lscpu; echo; lspci -nn | grep -iE 'VGA|3D controller'"))
}

func (c *Catalog) registerMemory() {
	c.add("memory_info",
		"Raw memory counters from /proc/meminfo: MemTotal, MemFree, MemAvailable, Buffers, Cached.",
		nil,
		fixed("cat", "/proc/meminfo"))

	c.add("mem_summary",
		"Human-readable total/used/free/available memory summary.",
		nil,
		fixed("free", "-h"))
}

func (c *Catalog) registerStorage() {
	c.add("mount_usage",
		"Free and used space for every mounted filesystem, human-readable.",
		nil,
		fixed("df", "-h"))

	c.add("disk_usage",
		"Filesystem disk usage for all mounted partitions.",
		nil,
		fixed("df", "-h"))
}

func (c *Catalog) registerKernel() {
	c.add("kernel_version",
		"The exact running kernel release string.",
		nil,
		fixed("uname", "-r"))

	c.add("uname_summary",
		"Full uname output: kernel, hostname, architecture.",
		nil,
		fixed("uname", "-a"))
}

func (c *Catalog) registerNetwork() {
	c.add("network_status",
		"Network device list and connection state via NetworkManager.",
		nil,
		fixed("nmcli", "device"))

	c.add("nm_summary",
		"NetworkManager general connectivity and state summary.",
		nil,
		fixed("nmcli", "general", "status"))

	c.add("ip_route_summary",
		"Kernel routing table, including the default route.",
		nil,
		fixed("ip", "route"))

	c.add("link_state_summary",
		"Brief link state for every network interface.",
		nil,
		fixed("ip", "-br", "link"))
}

func (c *Catalog) registerAudio() {
	c.add("audio_status",
		"Whether PipeWire, PipeWire-Pulse, and WirePlumber are active for the current user.",
		nil,
		shell("systemctl --user is-active pipewire pipewire-pulse wireplumber"))

	c.add("audio_services_summary",
		"Detailed status of the PipeWire audio service stack.",
		nil,
		shell("systemctl --user status pipewire pipewire-pulse wireplumber --no-pager"))

	c.add("pactl_summary",
		"Default sink/source and server information from PulseAudio-compatible tooling.",
		nil,
		fixed("pactl", "info"))
}

func (c *Catalog) registerServices() {
	c.add("service_status",
		"Active/enabled state and last error for a named systemd service.",
		map[string]interface{}{
			"type":       "object",
			"required":   []string{"unit"},
			"properties": map[string]interface{}{"unit": map[string]interface{}{"type": "string"}},
		},
		func(params map[string]interface{}) (string, []string, string) {
			unit := stringParam(params, "unit", "")
			args := []string{"status", unit, "--no-pager"}
			return "systemctl", args, "systemctl status " + unit
		})

	c.add("systemd_service_probe_v1",
		"Full systemd property dump for a named unit (for deep Fix-It diagnosis).",
		map[string]interface{}{
			"type":       "object",
			"required":   []string{"unit"},
			"properties": map[string]interface{}{"unit": map[string]interface{}{"type": "string"}},
		},
		func(params map[string]interface{}) (string, []string, string) {
			unit := stringParam(params, "unit", "")
			args := []string{"show", unit, "--no-pager"}
			return "systemctl", args, "systemctl show " + unit
		})
}

func (c *Catalog) registerSoftware() {
	c.add("sw_snapshot_summary",
		"Installed package count and currently running services.",
		nil,
		shell("pacman -Q | wc -l; systemctl list-units --type=service --state=running --no-pager | head -20"))

	c.add("status_snapshot",
		"List of failed systemd units.",
		nil,
		fixed("systemctl", "--failed", "--no-pager"))

	c.add("editor_detection",
		"Which of vim, nvim, emacs, nano, or the $EDITOR variable are available.",
		nil,
		shell("echo \"EDITOR=$EDITOR\"; for e in nvim vim emacs nano; do command -v $e >/dev/null 2>&1 && echo \"$e: installed\"; done"))
}

func (c *Catalog) registerAlerts() {
	c.add("proactive_alerts_summary",
		"Recent warning-and-above journal entries feeding the insights engine's active alert set.",
		nil,
		fixed("journalctl", "-p", "warning", "-b", "-n", "30", "--no-pager"))

	c.add("failed_units_summary",
		"Every systemd unit currently in the failed state.",
		nil,
		fixed("systemctl", "--failed", "--no-pager"))

	c.add("disk_pressure_summary",
		"Mounted filesystems above 90% used.",
		nil,
		shell("df -h | awk 'NR==1 || +$5 >= 90'"))

	c.add("thermal_status_summary",
		"Available thermal sensor readings.",
		nil,
		fixed("sensors"))
}

func (c *Catalog) registerMisc() {
	c.add("journal_warnings",
		"Warning-and-above journal entries within a lookback window, for a unit if given.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"since": map[string]interface{}{"type": "string", "description": "journalctl --since value, e.g. '-30min'"},
				"unit":  map[string]interface{}{"type": "string"},
			},
		},
		func(params map[string]interface{}) (string, []string, string) {
			since := stringParam(params, "since", "-30min")
			args := []string{"-p", "warning", "--since", since, "--no-pager"}
			if unit := stringParam(params, "unit", ""); unit != "" {
				args = append(args, "-u", unit)
			}
			preview := fmt.Sprintf("journalctl -p warning --since %s", since)
			return "journalctl", args, preview
		})

	c.add("top_resource_processes",
		"Top processes by CPU and memory usage.",
		nil,
		shell("ps -eo pid,comm,%cpu,%mem --sort=-%cpu | head -15"))

	c.add("what_changed",
		"Recently modified system config and package state, for regression triage.",
		nil,
		shell("find /etc -mtime -7 -type f 2>/dev/null | head -30"))

	c.add("boot_time_trend",
		"systemd-analyze boot time breakdown for the most recent boot.",
		nil,
		fixed("systemd-analyze", "blame"))
}

func stringParam(params map[string]interface{}, key, fallback string) string {
	if params == nil {
		return fallback
	}
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Descriptors returns the LLM-facing tool list. Only name, description,
// and schema are exposed — never the underlying command.
func (c *Catalog) Descriptors() []types.ToolDescriptor {
	out := make([]types.ToolDescriptor, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t.descriptor)
	}
	return out
}

// HasTool reports whether name is a registered tool.
func (c *Catalog) HasTool(name string) bool {
	_, ok := c.tools[name]
	return ok
}

// Execute runs a tool by name and returns its evidence. An unknown tool
// name or command error is reported in the ToolRun itself (exit code -1)
// rather than as a Go error, so the Orchestrator can fold failed evidence
// into its retry loop without special-casing a second error channel.
func (c *Catalog) Execute(ctx context.Context, name, subtaskID string, params map[string]interface{}) types.ToolRun {
	startedAt := time.Now().UTC()
	id := uuid.NewString()

	t, ok := c.tools[name]
	if !ok {
		return types.ToolRun{
			ID:             id,
			SubtaskID:      subtaskID,
			Tool:           name,
			CommandPreview: fmt.Sprintf("[unknown tool: %s]", name),
			Stderr:         fmt.Sprintf("tool %q not found in catalog", name),
			ExitCode:       -1,
			StartedAt:      startedAt,
			FinishedAt:     time.Now().UTC(),
		}
	}

	command, args, preview := t.exec(params)

	runCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	finishedAt := time.Now().UTC()

	exitCode := 0
	if runErr != nil {
		exitCode = -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			stderr.WriteString(runErr.Error())
		}
	}

	out, truncated := truncateStdout(stdout.String())

	return types.ToolRun{
		ID:              id,
		SubtaskID:       subtaskID,
		Tool:            name,
		CommandPreview:  preview,
		Stdout:          out,
		StdoutTruncated: truncated,
		Stderr:          stderr.String(),
		ExitCode:        exitCode,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
	}
}

func truncateStdout(s string) (string, bool) {
	if len(s) <= types.MaxStdoutBytes {
		return s, false
	}
	return s[:types.MaxStdoutBytes] + types.TruncationMarker, true
}
