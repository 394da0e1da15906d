// Package router implements deterministic routing of a user request onto a
// canonical query target before any LLM is consulted. Disk queries get disk
// tools, kernel queries get kernel tools — the routing table is a plain
// pattern match, not a model call, so it can never hallucinate the wrong
// evidence source.
package router

import (
	"sort"
	"strings"

	"github.com/annassistant/anna/pkg/types"
)

// pattern is one (substring, confidence) routing rule. Patterns within a
// target are tried in order; the first substring match wins.
type pattern struct {
	substr     string
	confidence uint8
}

// diskPatterns through alertPatterns are checked in this fixed priority
// order because some substrings (e.g. "space") are ambiguous across
// targets if checked out of order.
var diskPatterns = []pattern{
	{"disk space", 95}, {"disk free", 95}, {"free space", 90},
	{"storage space", 90}, {"how much space", 95}, {"space left", 90},
	{"space available", 90}, {"space on /", 95}, {"disk usage", 85},
	{"running out of space", 90}, {"disk full", 90},
}

var kernelPatterns = []pattern{
	{"kernel version", 95}, {"kernel release", 95}, {"what kernel", 90},
	{"linux version", 85}, {"which kernel", 90}, {"running kernel", 90},
}

var memoryPatterns = []pattern{
	{"how much memory", 95}, {"how much ram", 95}, {"ram available", 90},
	{"memory available", 90}, {"ram free", 90}, {"memory free", 90},
	{"total memory", 90}, {"total ram", 90}, {"ram usage", 85},
	{"memory usage", 85}, {"how much mem", 90},
}

var cpuPatterns = []pattern{
	{"what cpu", 95}, {"which cpu", 90}, {"cpu model", 90},
	{"processor model", 85}, {"cpu info", 85}, {"processor info", 85},
	{"what processor", 90}, {"how many cores", 85}, {"cpu cores", 85},
}

var networkPatterns = []pattern{
	{"network status", 95}, {"network connection", 90},
	{"internet connection", 90}, {"am i connected", 90},
	{"am i online", 90}, {"is network", 85}, {"is wifi", 85},
	{"wifi status", 90}, {"ethernet status", 90},
	{"connection status", 85}, {"default route", 85},
}

var audioPatterns = []pattern{
	{"audio status", 95}, {"sound status", 90}, {"is audio", 85},
	{"is sound", 85}, {"audio working", 90}, {"sound working", 90},
	{"pipewire status", 90}, {"pulseaudio status", 90},
	{"no sound", 85}, {"no audio", 85},
}

var alertPatterns = []pattern{
	{"show alerts", 95}, {"what alerts", 95}, {"any alerts", 90},
	{"any warnings", 90}, {"show warnings", 90}, {"any issues", 85},
	{"why are you warning", 95}, {"why warning", 90}, {"why the warning", 95},
	{"system alerts", 90}, {"active alerts", 95}, {"current alerts", 90},
	{"what's wrong", 80}, {"any problems", 85},
}

var serviceKeywords = []string{
	"nginx", "docker", "sshd", "ssh", "apache", "mysql", "postgresql",
	"redis", "mongodb", "systemd", "networkmanager",
}

var serviceStatusWords = []string{"running", "status", "started", "enabled"}

func matchFirst(requestLower string, patterns []pattern) (uint8, bool) {
	for _, p := range patterns {
		if strings.Contains(requestLower, p.substr) {
			return p.confidence, true
		}
	}
	return 0, false
}

// DetectTarget maps a raw request onto its canonical query target and a
// 0-100 confidence score. Confidence 0 means Unknown — the Translator's LLM
// pass is needed.
func DetectTarget(request string) (types.QueryTarget, uint8) {
	lower := strings.ToLower(request)

	if c, ok := matchFirst(lower, diskPatterns); ok {
		return types.TargetDiskFree, c
	}
	if c, ok := matchFirst(lower, kernelPatterns); ok {
		return types.TargetKernelVersion, c
	}
	if c, ok := matchFirst(lower, memoryPatterns); ok {
		return types.TargetMemory, c
	}
	if c, ok := matchFirst(lower, cpuPatterns); ok {
		return types.TargetCPU, c
	}
	if c, ok := matchFirst(lower, networkPatterns); ok {
		return types.TargetNetworkStatus, c
	}
	if c, ok := matchFirst(lower, audioPatterns); ok {
		return types.TargetAudioStatus, c
	}

	for _, svc := range serviceKeywords {
		if !strings.Contains(lower, svc) {
			continue
		}
		for _, w := range serviceStatusWords {
			if strings.Contains(lower, w) {
				return types.TargetServicesStatus, 85
			}
		}
	}

	if strings.Contains(lower, "hardware") || strings.Contains(lower, "system info") ||
		strings.Contains(lower, "system specs") {
		return types.TargetHardware, 70
	}

	if c, ok := matchFirst(lower, alertPatterns); ok {
		return types.TargetAlerts, c
	}

	return types.TargetUnknown, 0
}

// GetToolRouting returns the required/optional tool lists and expected
// output shape for a canonical target.
func GetToolRouting(target types.QueryTarget) types.ToolRouting {
	switch target {
	case types.TargetCPU:
		return types.ToolRouting{
			Required:          []string{"hw_snapshot_summary"},
			OutputDescription: "CPU model name, cores, threads, frequency",
		}
	case types.TargetMemory:
		return types.ToolRouting{
			Required:          []string{"memory_info"},
			Optional:          []string{"mem_summary"},
			OutputDescription: "Total RAM in GiB, available RAM, used RAM",
		}
	case types.TargetDiskFree:
		return types.ToolRouting{
			Required:          []string{"mount_usage"},
			Optional:          []string{"disk_usage"},
			OutputDescription: "Free/used space for / and /home if separate",
		}
	case types.TargetKernelVersion:
		return types.ToolRouting{
			Required:          []string{"kernel_version"},
			Optional:          []string{"uname_summary"},
			OutputDescription: "Exact kernel release string (e.g., 6.x.x-arch1-1)",
		}
	case types.TargetNetworkStatus:
		return types.ToolRouting{
			Required:          []string{"network_status"},
			Optional:          []string{"nm_summary", "ip_route_summary", "link_state_summary"},
			OutputDescription: "Connected interface, IPv4 presence, default route, DNS servers",
		}
	case types.TargetAudioStatus:
		return types.ToolRouting{
			Required:          []string{"audio_status"},
			Optional:          []string{"audio_services_summary", "pactl_summary"},
			OutputDescription: "PipeWire/WirePlumber running, default sink present",
		}
	case types.TargetServicesStatus:
		return types.ToolRouting{
			Required:          []string{"service_status"},
			Optional:          []string{"systemd_service_probe_v1"},
			OutputDescription: "Service active/enabled state, last error if failed",
		}
	case types.TargetHardware:
		return types.ToolRouting{
			Required:          []string{"hw_snapshot_summary"},
			OutputDescription: "CPU, memory, storage, GPU, network summary",
		}
	case types.TargetSoftware:
		return types.ToolRouting{
			Required:          []string{"sw_snapshot_summary"},
			Optional:          []string{"status_snapshot"},
			OutputDescription: "Installed packages, running services",
		}
	case types.TargetAlerts:
		return types.ToolRouting{
			Required:          []string{"proactive_alerts_summary"},
			Optional:          []string{"failed_units_summary", "disk_pressure_summary", "thermal_status_summary"},
			OutputDescription: "Active alerts count, top alerts with evidence IDs, recently resolved",
		}
	default:
		return types.ToolRouting{OutputDescription: "Unknown target - use LLM for routing"}
	}
}

// ValidateAnswerForTarget checks that an Interpreter answer actually talks
// about the target it was asked about, catching the class of bug where the
// model answers a different question than the one the evidence was
// gathered for. Returns a human-readable critique on failure.
func ValidateAnswerForTarget(target types.QueryTarget, answer string) (bool, string) {
	a := strings.ToLower(answer)
	cpuNoise := strings.Contains(a, "cpu:") || strings.Contains(a, "processor:") || strings.Contains(a, "cores")

	switch target {
	case types.TargetDiskFree:
		has := strings.Contains(a, "free") || strings.Contains(a, "used") || strings.Contains(a, "gib") ||
			strings.Contains(a, "/") || strings.Contains(a, "disk") || strings.Contains(a, "mount")
		if cpuNoise && !has {
			return false, "Answer contains CPU info but not disk info"
		}
		if !has {
			return false, "Answer missing disk free space information"
		}
		return true, ""

	case types.TargetKernelVersion:
		has := strings.Contains(a, "kernel") || strings.Contains(a, "linux") ||
			strings.Contains(answer, "6.") || strings.Contains(answer, "5.")
		if cpuNoise && !has {
			return false, "Answer contains CPU info but not kernel version"
		}
		if !has {
			return false, "Answer missing kernel version string"
		}
		return true, ""

	case types.TargetMemory:
		has := strings.Contains(a, "memory") || strings.Contains(a, "ram") ||
			strings.Contains(a, "gib") || strings.Contains(a, "available")
		if !has {
			return false, "Answer missing memory/RAM information"
		}
		return true, ""

	case types.TargetCPU:
		has := strings.Contains(a, "cpu") || strings.Contains(a, "processor") || strings.Contains(a, "cores") ||
			strings.Contains(a, "amd") || strings.Contains(a, "intel") || strings.Contains(a, "ryzen")
		if !has {
			return false, "Answer missing CPU information"
		}
		return true, ""

	case types.TargetNetworkStatus:
		has := strings.Contains(a, "network") || strings.Contains(a, "interface") || strings.Contains(a, "connected") ||
			strings.Contains(a, "ip") || strings.Contains(a, "route") || strings.Contains(a, "wifi")
		if !has {
			return false, "Answer missing network status information"
		}
		return true, ""

	case types.TargetAudioStatus:
		has := strings.Contains(a, "audio") || strings.Contains(a, "sound") || strings.Contains(a, "pipewire") ||
			strings.Contains(a, "pulse") || strings.Contains(a, "sink")
		if !has {
			return false, "Answer missing audio status information"
		}
		return true, ""

	case types.TargetAlerts:
		has := strings.Contains(a, "alert") || strings.Contains(a, "warning") || strings.Contains(a, "critical") ||
			strings.Contains(a, "no active") || strings.Contains(a, "issue") || strings.Contains(a, "problem")
		if !has {
			return false, "Answer missing alerts/warnings information"
		}
		return true, ""

	default:
		return true, ""
	}
}

// MapTranslatorTargets converts the Translator's free-text target strings
// to canonical targets, dropping anything unrecognized.
func MapTranslatorTargets(targets []string) []types.QueryTarget {
	out := make([]types.QueryTarget, 0, len(targets))
	for _, t := range targets {
		qt := parseTarget(t)
		if qt != types.TargetUnknown {
			out = append(out, qt)
		}
	}
	return out
}

// parseTarget normalizes a free-text target name to its canonical form.
func parseTarget(s string) types.QueryTarget {
	switch strings.ToLower(s) {
	case "cpu", "processor":
		return types.TargetCPU
	case "memory", "ram", "mem":
		return types.TargetMemory
	case "disk", "disk_free", "storage", "space":
		return types.TargetDiskFree
	case "kernel", "kernel_version", "uname":
		return types.TargetKernelVersion
	case "network", "network_status", "wifi", "ethernet", "net":
		return types.TargetNetworkStatus
	case "audio", "audio_status", "sound", "pipewire":
		return types.TargetAudioStatus
	case "service", "services", "services_status":
		return types.TargetServicesStatus
	case "hardware", "hw":
		return types.TargetHardware
	case "software", "sw", "packages":
		return types.TargetSoftware
	case "alerts", "warnings", "issues", "problems":
		return types.TargetAlerts
	default:
		return types.TargetUnknown
	}
}

// GetRequiredTools returns the deduplicated, sorted union of required tools
// across a set of canonical targets.
func GetRequiredTools(targets []types.QueryTarget) []string {
	seen := make(map[string]struct{})
	var tools []string
	for _, t := range targets {
		for _, tool := range GetToolRouting(t).Required {
			if _, ok := seen[tool]; !ok {
				seen[tool] = struct{}{}
				tools = append(tools, tool)
			}
		}
	}
	sort.Strings(tools)
	return tools
}
