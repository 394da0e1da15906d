// Package logatlas assigns each distinct log message a short stable
// pattern ID (A01, A02, ...) per component, tracked across reboots. A
// pattern is "the same" when its normalized form — timestamps, PIDs, IPs,
// MACs, UUIDs, and hex addresses stripped — matches exactly. The full
// message text is always kept alongside the ID; nothing is truncated.
package logatlas

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/annassistant/anna/internal/atomicfile"
)

// JournalDir is where component atlases persist, one JSON file per
// component. It is a var rather than a const so tests can redirect it to
// a temp directory instead of writing into the real system path.
var JournalDir = "/var/lib/anna/journal"

// LogPattern is one distinct normalized message tracked for a component.
type LogPattern struct {
	ID           string `json:"id"`
	Severity     string `json:"severity"`
	Normalized   string `json:"normalized"`
	FullMessage  string `json:"full_message"`
	FirstSeen    uint64 `json:"first_seen"`
	LastSeen     uint64 `json:"last_seen"`
	TotalCount   uint32 `json:"total_count"`
	BootsSeen    uint32 `json:"boots_seen"`
	BootIDs      []int  `json:"boot_ids"`
}

// ComponentAtlas is the persisted pattern table for one service or
// device.
type ComponentAtlas struct {
	Component     string       `json:"component"`
	ComponentType string       `json:"component_type"`
	Patterns      []LogPattern `json:"patterns"`
	LastUpdated   uint64       `json:"last_updated"`
}

// GetOrCreatePatternID returns normalized's existing pattern ID, or the ID
// it would be assigned if recorded right now (component-type initial +
// zero-padded sequence number). It does not mutate the atlas — callers
// that want the ID persisted must go through RecordPattern.
func (a *ComponentAtlas) GetOrCreatePatternID(normalized string) string {
	for _, p := range a.Patterns {
		if p.Normalized == normalized {
			return p.ID
		}
	}
	nextNum := len(a.Patterns) + 1
	prefix := 'X'
	for _, r := range a.ComponentType {
		prefix = unicode.ToUpper(r)
		break
	}
	return fmt.Sprintf("%c%02d", prefix, nextNum)
}

// RecordPattern adds a new occurrence of normalized to the atlas,
// creating a new pattern entry the first time it's seen.
func (a *ComponentAtlas) RecordPattern(severity, normalized, fullMessage string, timestamp uint64, bootID int) {
	for i := range a.Patterns {
		p := &a.Patterns[i]
		if p.Normalized == normalized {
			p.LastSeen = timestamp
			p.TotalCount++
			if !containsInt(p.BootIDs, bootID) {
				p.BootIDs = append(p.BootIDs, bootID)
				p.BootsSeen++
			}
			return
		}
	}

	id := a.GetOrCreatePatternID(normalized)
	a.Patterns = append(a.Patterns, LogPattern{
		ID:          id,
		Severity:    severity,
		Normalized:  normalized,
		FullMessage: fullMessage,
		FirstSeen:   timestamp,
		LastSeen:    timestamp,
		TotalCount:  1,
		BootsSeen:   1,
		BootIDs:     []int{bootID},
	})
}

// CurrentBootPatterns returns the patterns seen in the current boot
// (boot ID 0).
func (a *ComponentAtlas) CurrentBootPatterns() []LogPattern {
	var out []LogPattern
	for _, p := range a.Patterns {
		if containsInt(p.BootIDs, 0) {
			out = append(out, p)
		}
	}
	return out
}

func containsInt(ids []int, v int) bool {
	for _, id := range ids {
		if id == v {
			return true
		}
	}
	return false
}

func atlasPath(component string) string {
	return filepath.Join(JournalDir, strings.ReplaceAll(component, "/", "_")+".json")
}

// Save durably writes the atlas to JournalDir.
func (a *ComponentAtlas) Save() error {
	return atomicfile.WriteJSON(atlasPath(a.Component), a)
}

// LoadAtlas loads a component's atlas from disk, returning ok=false if
// it has never been saved.
func LoadAtlas(component string) (ComponentAtlas, bool) {
	var a ComponentAtlas
	if err := atomicfile.ReadJSON(atlasPath(component), &a); err != nil {
		return ComponentAtlas{}, false
	}
	return a, true
}

// BootLogEntry is one pattern's appearance in the current boot, shown in
// a cross-boot summary.
type BootLogEntry struct {
	PatternID      string `json:"pattern_id"`
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	CountThisBoot  uint32 `json:"count_this_boot"`
	Timestamp      uint64 `json:"timestamp"`
	BootOffset     int    `json:"boot_offset"`
}

// CrossBootLogSummary is what a caller gets back from
// GetServiceLogAtlas/GetDeviceLogAtlas: the current boot's entries plus
// any pattern that has recurred across boots.
type CrossBootLogSummary struct {
	Component           string         `json:"component"`
	CurrentBootEntries  []BootLogEntry `json:"current_boot_entries"`
	HistoricalPatterns  []LogPattern   `json:"historical_patterns"`
	Source              string         `json:"source"`
}

var (
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?`)
	ipRe        = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(:\d+)?`)
	pidRe       = regexp.MustCompile(`\[\d{2,6}\]|\(\d{2,6}\)`)
	macRe       = regexp.MustCompile(`[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}`)
	uuidRe      = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	hexRe       = regexp.MustCompile(`0x[0-9a-fA-F]+`)
)

// NormalizeMessage strips timestamps, IPs, PIDs, MACs, UUIDs, and hex
// addresses from a log line so two occurrences of "the same" message
// collapse onto one pattern regardless of their variable parts. Order
// matters: IPs are stripped before PIDs since an IP's dots would
// otherwise survive into what looks like a PID-free residual string.
func NormalizeMessage(message string) string {
	n := timestampRe.ReplaceAllString(message, "%TIMESTAMP%")
	n = ipRe.ReplaceAllString(n, "%IP%")
	n = pidRe.ReplaceAllString(n, "%PID%")
	n = macRe.ReplaceAllString(n, "%MAC%")
	n = uuidRe.ReplaceAllString(n, "%UUID%")
	n = hexRe.ReplaceAllString(n, "%HEX%")
	return strings.TrimSpace(n)
}

// SeverityPriority ranks a severity string for sorting; lower is more
// severe. Unrecognized severities sort last.
func SeverityPriority(severity string) int {
	switch strings.ToLower(severity) {
	case "emergency":
		return 0
	case "alert":
		return 1
	case "critical", "crit":
		return 2
	case "error", "err":
		return 3
	case "warning", "warn":
		return 4
	case "notice":
		return 5
	case "info":
		return 6
	case "debug":
		return 7
	default:
		return 8
	}
}

func parseJournalLine(line string) (severity, message string) {
	parts := strings.SplitN(line, " ", 4)
	if len(parts) < 4 {
		return "warning", line
	}
	message = parts[3]
	switch {
	case strings.Contains(message, "<error>") || strings.Contains(message, "error:"):
		severity = "error"
	case strings.Contains(message, "<warning>") || strings.Contains(message, "warning:") || strings.Contains(message, "<warn>"):
		severity = "warning"
	case strings.Contains(message, "<alert>"):
		severity = "alert"
	case strings.Contains(message, "<critical>") || strings.Contains(message, "<crit>"):
		severity = "critical"
	default:
		severity = "warning"
	}
	return severity, message
}

func parseKernelLine(line string) (severity, message string) {
	parts := strings.SplitN(line, " ", 4)
	if len(parts) < 4 {
		return "info", line
	}
	message = parts[3]
	switch {
	case strings.Contains(message, "error") || strings.Contains(message, "failed"):
		severity = "error"
	case strings.Contains(message, "warning") || strings.Contains(message, "warn"):
		severity = "warning"
	default:
		severity = "info"
	}
	return severity, message
}

// runner abstracts command execution so tests can substitute a canned
// transcript instead of actually shelling out to journalctl.
type runner func(ctx context.Context, bootOffset int) (string, error)

func journalctlServiceRunner(unitName string) runner {
	return func(ctx context.Context, bootOffset int) (string, error) {
		args := []string{"-u", unitName}
		args = append(args, bootArgs(bootOffset)...)
		args = append(args, "-p", "warning..alert", "--no-pager", "-o", "short-iso", "-q")
		out, err := exec.CommandContext(ctx, "journalctl", args...).Output()
		return string(out), err
	}
}

func journalctlKernelRunner(device string) runner {
	return func(ctx context.Context, bootOffset int) (string, error) {
		shell := fmt.Sprintf("journalctl -k %s --no-pager -o short-iso -q | grep -i %s",
			strings.Join(bootArgs(bootOffset), " "), device)
		out, err := exec.CommandContext(ctx, "sh", "-c", shell).Output()
		return string(out), err
	}
}

func bootArgs(bootOffset int) []string {
	if bootOffset == 0 {
		return []string{"-b"}
	}
	return []string{"-b", fmt.Sprintf("-%d", bootOffset)}
}

// GetServiceLogAtlas collects a unit's recent journal entries across
// maxBoots boots, folds them into its persisted atlas, and returns the
// current boot's entries plus any recurring cross-boot pattern.
func GetServiceLogAtlas(ctx context.Context, unitName string, maxBoots int) CrossBootLogSummary {
	return collect(ctx, unitName, "service", fmt.Sprintf("journalctl -u %s -p warning..alert", unitName),
		maxBoots, journalctlServiceRunner(unitName), parseJournalLine)
}

// GetDeviceLogAtlas collects kernel log entries mentioning device across
// maxBoots boots.
func GetDeviceLogAtlas(ctx context.Context, device string, maxBoots int) CrossBootLogSummary {
	return collect(ctx, device, "device", fmt.Sprintf("journalctl -k | grep %s", device),
		maxBoots, journalctlKernelRunner(device), parseKernelLine)
}

func collect(ctx context.Context, component, componentType, source string, maxBoots int, run runner, parse func(string) (string, string)) CrossBootLogSummary {
	summary := CrossBootLogSummary{Component: component, Source: source}

	atlas, ok := LoadAtlas(component)
	if !ok {
		atlas = ComponentAtlas{Component: component, ComponentType: componentType}
	}

	now := uint64(time.Now().Unix())

	for bootOffset := 0; bootOffset < maxBoots; bootOffset++ {
		stdout, err := run(ctx, bootOffset)
		if err != nil {
			continue
		}

		counts := map[string]uint32{}
		for _, line := range strings.Split(stdout, "\n") {
			if line == "" {
				continue
			}
			severity, message := parse(line)
			normalized := NormalizeMessage(message)

			atlas.RecordPattern(severity, normalized, message, now, -bootOffset)

			if bootOffset == 0 {
				patternID := atlas.GetOrCreatePatternID(normalized)
				counts[patternID]++
				if !hasEntry(summary.CurrentBootEntries, patternID) {
					summary.CurrentBootEntries = append(summary.CurrentBootEntries, BootLogEntry{
						PatternID:     patternID,
						Severity:      severity,
						Message:       message,
						CountThisBoot: 1,
						Timestamp:     now,
						BootOffset:    0,
					})
				}
			}
		}

		for i := range summary.CurrentBootEntries {
			if c, ok := counts[summary.CurrentBootEntries[i].PatternID]; ok {
				summary.CurrentBootEntries[i].CountThisBoot = c
			}
		}
	}

	sort.SliceStable(summary.CurrentBootEntries, func(i, j int) bool {
		a, b := summary.CurrentBootEntries[i], summary.CurrentBootEntries[j]
		if SeverityPriority(a.Severity) != SeverityPriority(b.Severity) {
			return SeverityPriority(a.Severity) < SeverityPriority(b.Severity)
		}
		return a.PatternID < b.PatternID
	})

	for _, p := range atlas.Patterns {
		if p.BootsSeen > 1 || hasNegativeBootID(p.BootIDs) {
			summary.HistoricalPatterns = append(summary.HistoricalPatterns, p)
		}
	}

	atlas.LastUpdated = now
	_ = atlas.Save()

	return summary
}

func hasEntry(entries []BootLogEntry, patternID string) bool {
	for _, e := range entries {
		if e.PatternID == patternID {
			return true
		}
	}
	return false
}

func hasNegativeBootID(ids []int) bool {
	for _, id := range ids {
		if id < 0 {
			return true
		}
	}
	return false
}

// FormatTimestampShort renders a Unix timestamp as "YYYY-MM-DD HH:MM" in
// local time, for display in a timeline.
func FormatTimestampShort(ts uint64) string {
	return time.Unix(int64(ts), 0).Local().Format("2006-01-02 15:04")
}
