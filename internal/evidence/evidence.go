// Package evidence turns the raw stdout of Tool Catalog commands into the
// typed ParsedEvidence snapshot the Guard and Interpreter reason over.
// Every parser here is deliberately forgiving: a line it doesn't recognize
// is skipped rather than treated as an error, since tool output format
// varies across distros and kernel versions and a partial snapshot beats a
// failed one.
package evidence

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/annassistant/anna/pkg/types"
)

// ParseMeminfo parses `cat /proc/meminfo` output into a MemoryInfo. Field
// names match the kernel's documented /proc/meminfo keys exactly; values
// there are always in kB.
func ParseMeminfo(stdout string) *types.MemoryInfo {
	fields := map[string]uint64{}
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		key, kb, ok := parseMeminfoLine(scanner.Text())
		if ok {
			fields[key] = kb
		}
	}
	total, haveTotal := fields["MemTotal"]
	if !haveTotal {
		return nil
	}

	free := fields["MemFree"]
	available := fields["MemAvailable"]
	info := &types.MemoryInfo{
		TotalBytes:     total * 1024,
		FreeBytes:      free * 1024,
		AvailableBytes: available * 1024,
		SwapTotal:      fields["SwapTotal"] * 1024,
		SwapUsed:       (fields["SwapTotal"] - fields["SwapFree"]) * 1024,
	}
	info.UsedBytes = info.TotalBytes - info.FreeBytes
	return info
}

func parseMeminfoLine(line string) (string, uint64, bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	key := strings.TrimSpace(parts[0])
	valueFields := strings.Fields(parts[1])
	if len(valueFields) == 0 {
		return "", 0, false
	}
	kb, err := strconv.ParseUint(valueFields[0], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return key, kb, true
}

// ParseDiskUsage parses `df -h` output into a DiskUsage list, preserving
// row order. The header row is skipped by detecting a non-numeric size
// column.
func ParseDiskUsage(stdout string) []types.DiskUsage {
	var out []types.DiskUsage
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		size, okSize := parseHumanBytes(fields[1])
		used, okUsed := parseHumanBytes(fields[2])
		avail, okAvail := parseHumanBytes(fields[3])
		percent, okPct := parsePercent(fields[4])
		if !okSize || !okUsed || !okAvail || !okPct {
			continue
		}
		out = append(out, types.DiskUsage{
			Filesystem:  fields[0],
			SizeBytes:   size,
			UsedBytes:   used,
			AvailBytes:  avail,
			PercentUsed: percent,
			Mount:       fields[5],
		})
	}
	return out
}

func parsePercent(s string) (float64, bool) {
	trimmed := strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseHumanBytes parses df -h's human-readable sizes (1.2G, 512M, 100K, 0).
func parseHumanBytes(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	multipliers := map[byte]float64{
		'K': 1 << 10, 'M': 1 << 20, 'G': 1 << 30, 'T': 1 << 40, 'P': 1 << 50,
	}
	suffix := s[len(s)-1]
	if mult, ok := multipliers[suffix]; ok {
		v, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0, false
		}
		return uint64(v * mult), true
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseServiceStatuses parses `systemctl --failed` or `systemctl status`
// style output into a ServiceStatus list. Rows in systemctl's list format
// ("UNIT LOAD ACTIVE SUB DESCRIPTION") take their state from the SUB
// column; shorter "name.service state" rows take it from the second field.
// The UNIT header row and rows starting with the "●" marker are skipped.
func ParseServiceStatuses(stdout string) []types.ServiceStatus {
	var out []types.ServiceStatus
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSuffix(fields[0], ".service")
		if name == "" || name == "UNIT" || strings.HasPrefix(name, "●") {
			continue
		}
		stateField := fields[1]
		if len(fields) >= 4 {
			stateField = fields[3]
		}
		state := types.ParseServiceState(strings.ToLower(stateField))
		out = append(out, types.ServiceStatus{Name: name, State: state})
	}
	return out
}

// ParseServiceState parses a single `systemctl is-active <unit>` line.
func ParseServiceState(unit, stdout string) types.ServiceStatus {
	raw := strings.TrimSpace(stdout)
	return types.ServiceStatus{
		Name:  strings.TrimSuffix(unit, ".service"),
		State: types.ParseServiceState(raw),
	}
}

// FindMemTotalLine implements the documented bit-exact fallback: when the
// Interpreter can't be run at all, look directly for MemTotal in raw
// meminfo text rather than going through the structured parser above.
func FindMemTotalLine(stdout string) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "MemTotal:") {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

// FindCPUModelLine implements the documented fallback for CPU queries:
// lscpu's "Model name:" line.
func FindCPUModelLine(stdout string) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "Model name:") {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

// BuildParsedEvidence folds an EvidenceBundle's raw tool output into the
// typed ParsedEvidence snapshot the Guard and Interpreter reason over,
// dispatching on the tool name each run came from. A run from a tool this
// package has no parser for is silently skipped.
func BuildParsedEvidence(bundle types.EvidenceBundle) types.ParsedEvidence {
	var pe types.ParsedEvidence
	for _, run := range bundle.Runs {
		switch run.Tool {
		case "memory_info":
			if mem := ParseMeminfo(run.Stdout); mem != nil {
				pe.Memory = mem
			}
		case "disk_usage", "mount_usage":
			pe.Disks = append(pe.Disks, ParseDiskUsage(run.Stdout)...)
		case "service_status":
			unit := unitFromPreview(run.CommandPreview, "systemctl status ")
			pe.Services = append(pe.Services, ParseServiceState(unit, activeLine(run.Stdout)))
		case "status_snapshot", "failed_units_summary":
			pe.Services = append(pe.Services, ParseServiceStatuses(run.Stdout)...)
		}
	}
	return pe
}

// unitFromPreview recovers the unit name service_status's command preview
// embeds (CommandPreview is built as prefix+unit in the Tool Catalog).
func unitFromPreview(preview, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(preview, prefix))
}

// activeLine extracts the word systemctl status reports on its "Active:"
// line (e.g. "active" out of "Active: active (running) since ..."), the
// token ParseServiceState expects.
func activeLine(stdout string) string {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "Active:"); ok {
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				return fields[0]
			}
		}
	}
	return ""
}

// FindFirstNonEmptyLine implements the documented fallback for GPU queries:
// the first non-empty line of `lspci -nn | grep -iE 'VGA|3D controller'`.
func FindFirstNonEmptyLine(stdout string) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			return line, true
		}
	}
	return "", false
}
