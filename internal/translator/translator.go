// Package translator classifies a raw user request into a Ticket: intent,
// targets, risk, tools, and (for problem reports) a doctor domain. An LLM
// pass produces the primary classification as JSON; ClassifyDeterministic
// is the no-LLM fallback used when the LLM is unavailable or its output
// fails to parse.
package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/annassistant/anna/pkg/types"
)

// JSONSchema is embedded in the LLM system prompt so the model knows the
// exact shape it must produce.
const JSONSchema = `{
  "type": "object",
  "required": ["intent", "targets", "risk", "tools", "confidence"],
  "properties": {
    "intent": {
      "type": "string",
      "enum": ["system_query", "action_request", "knowledge_query", "doctor_query", "unknown"]
    },
    "targets": { "type": "array", "items": { "type": "string" } },
    "risk": {
      "type": "string",
      "enum": ["read_only", "low", "medium", "high"]
    },
    "tools": { "type": "array", "items": { "type": "string" } },
    "doctor": {
      "type": "string",
      "enum": ["networking", "graphics", "audio", "storage", "boot"]
    },
    "confidence": { "type": "integer", "minimum": 0, "maximum": 100 }
  }
}`

// SystemPrompt is the classifier system prompt sent with every translator
// LLM call.
const SystemPrompt = `You are a request classifier. Output ONLY valid JSON matching this schema:

{
  "intent": "system_query|action_request|knowledge_query|doctor_query|unknown",
  "targets": ["keyword1", "keyword2"],
  "risk": "read_only|low|medium|high",
  "tools": ["tool1", "tool2"],
  "doctor": "networking|graphics|audio|storage|boot",
  "confidence": 0-100
}

INTENT RULES:
- system_query = asks about THIS machine (CPU, RAM, disk, services)
- action_request = wants to change something (install, restart, edit)
- knowledge_query = asks HOW TO do something or WHAT IS something
- doctor_query = reports a problem (slow, broken, disconnecting)

TOOLS (pick the RIGHT tool for the question):
- memory_info = RAM/memory questions
- mount_usage = disk space questions
- kernel_version = kernel version questions
- network_status = network status
- hw_snapshot_summary = hardware (CPU, GPU, specs)
- service_status = check a service
- sw_snapshot_summary = packages, services

DOCTOR (only for problems):
- networking = wifi, ethernet, DNS issues
- graphics = display, GPU, resolution
- audio = sound, speakers, microphone
- storage = disk, mount, filesystem
- boot = startup, systemd, slow boot

Output ONLY the JSON object. No explanation, no markdown, no extra text.`

// ParseResult is the outcome of parsing one LLM translator response.
type ParseResult struct {
	Ticket   *types.Ticket
	Err      error
	LLMBacked bool
}

// Parse extracts a Ticket from an LLM response, trying progressively looser
// extraction strategies: direct JSON, a fenced markdown code block, the
// first-to-last brace substring, then a legacy "KEY: value" line format.
// The caller falls back to ClassifyDeterministic if Err is non-nil.
func Parse(response string) ParseResult {
	if t, ok := tryParseJSON(response); ok {
		return ParseResult{Ticket: t, LLMBacked: true}
	}
	if t, ok := tryExtractFromMarkdown(response); ok {
		return ParseResult{Ticket: t, LLMBacked: true}
	}
	if t, ok := tryExtractJSONObject(response); ok {
		return ParseResult{Ticket: t, LLMBacked: true}
	}
	if t, ok := tryParseLegacyFormat(response); ok {
		return ParseResult{Ticket: t, LLMBacked: true}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100]
	}
	return ParseResult{
		Err:       fmt.Errorf("failed to parse translator response: %s", preview),
		LLMBacked: true,
	}
}

func tryParseJSON(response string) (*types.Ticket, bool) {
	return decodeTicket(strings.TrimSpace(response))
}

func tryExtractFromMarkdown(response string) (*types.Ticket, bool) {
	response = strings.TrimSpace(response)

	var start int
	if idx := strings.Index(response, "```json"); idx >= 0 {
		start = idx + len("```json")
	} else if idx := strings.Index(response, "```"); idx >= 0 {
		start = idx + len("```")
	} else {
		return nil, false
	}

	remaining := response[start:]
	end := strings.Index(remaining, "```")
	if end < 0 {
		return nil, false
	}

	return decodeTicket(strings.TrimSpace(remaining[:end]))
}

func tryExtractJSONObject(response string) (*types.Ticket, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end < 0 || end <= start {
		return nil, false
	}
	return decodeTicket(response[start : end+1])
}

func decodeTicket(jsonStr string) (*types.Ticket, bool) {
	var t types.Ticket
	if err := json.Unmarshal([]byte(jsonStr), &t); err != nil {
		return nil, false
	}
	return &t, true
}

func tryParseLegacyFormat(response string) (*types.Ticket, bool) {
	var intent types.TranslatorIntent
	haveIntent := false
	var targets []string
	risk := types.RiskReadOnly
	var tools []string
	var doctor string
	confidence := uint8(85)

	for _, rawLine := range strings.Split(response, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		switch {
		case hasPrefixCI(line, "INTENT:"):
			v := strings.ToLower(strings.TrimSpace(stripPrefixCI(line, "INTENT:")))
			intent = parseLegacyIntent(v)
			haveIntent = true

		case hasPrefixCI(line, "TARGETS:"):
			v := strings.TrimSpace(stripPrefixCI(line, "TARGETS:"))
			if !strings.EqualFold(v, "none") && v != "" {
				targets = splitCSVLower(v)
			}

		case hasPrefixCI(line, "RISK:"):
			v := strings.ToLower(strings.TrimSpace(stripPrefixCI(line, "RISK:")))
			risk = parseLegacyRisk(v)

		case hasPrefixCI(line, "TOOLS:"):
			v := strings.TrimSpace(stripPrefixCI(line, "TOOLS:"))
			if !strings.EqualFold(v, "none") && v != "" {
				tools = splitCSV(v)
			}

		case hasPrefixCI(line, "DOCTOR:"):
			v := strings.ToLower(strings.TrimSpace(stripPrefixCI(line, "DOCTOR:")))
			if !strings.EqualFold(v, "none") && v != "" {
				doctor = v
			}

		case hasPrefixCI(line, "CONFIDENCE:"):
			v := strings.TrimSpace(stripPrefixCI(line, "CONFIDENCE:"))
			var c int
			if _, err := fmt.Sscanf(v, "%d", &c); err == nil {
				if c > 100 {
					c = 100
				}
				if c < 0 {
					c = 0
				}
				confidence = uint8(c)
			}
		}
	}

	if !haveIntent {
		return nil, false
	}

	return &types.Ticket{
		Intent:     intent,
		Targets:    targets,
		Risk:       risk,
		Tools:      tools,
		Doctor:     doctor,
		Confidence: confidence,
	}, true
}

func parseLegacyIntent(v string) types.TranslatorIntent {
	switch v {
	case "system_query", "system query":
		return types.IntentSystemQuery
	case "action_request", "action request":
		return types.IntentActionRequest
	case "knowledge_query", "knowledge query", "question":
		return types.IntentKnowledgeQuery
	case "doctor_query", "doctor query", "fix_it", "fixit":
		return types.IntentDoctorQuery
	default:
		return types.IntentUnknown
	}
}

func parseLegacyRisk(v string) types.RiskLevel {
	switch v {
	case "read_only", "read-only", "readonly":
		return types.RiskReadOnly
	case "low", "low_risk":
		return types.RiskLow
	case "medium", "medium_risk":
		return types.RiskMedium
	case "high", "high_risk":
		return types.RiskHigh
	default:
		return types.RiskReadOnly
	}
}

func hasPrefixCI(line, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(line), strings.ToUpper(prefix))
}

func stripPrefixCI(line, prefix string) string {
	return line[len(prefix):]
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" && !strings.EqualFold(part, "none") {
			out = append(out, part)
		}
	}
	return out
}

func splitCSVLower(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" && part != "none" {
			out = append(out, part)
		}
	}
	return out
}

var actionKeywords = []string{
	"install", "remove", "uninstall", "start", "stop", "restart",
	"enable", "disable", "edit", "change", "set", "configure",
	"delete", "create", "update",
}

var problemKeywords = []string{
	"not working", "broken", "slow", "disconnecting", "failing", "error",
	"crash", "won't", "can't", "cannot", "doesn't", "does not",
	"problem", "issue", "help", "fix", "trouble",
}

var knowledgeKeywords = []string{"how to", "how do", "what is", "explain", "tutorial", "guide"}

var systemQueryKeywords = []string{
	"what", "which", "how much", "how many", "show", "list", "status", "info", "version",
}

// targetPatterns maps a substring to its normalized target keyword; order
// doesn't affect correctness since all matches are collected, but matches
// the original's table ordering for readability.
var targetPatterns = []struct{ substr, target string }{
	{"cpu", "cpu"}, {"processor", "cpu"},
	{"memory", "memory"}, {"ram", "memory"},
	{"disk", "disk"}, {"storage", "disk"}, {"space", "disk"},
	{"network", "network"}, {"wifi", "network"}, {"ethernet", "network"}, {"internet", "network"},
	{"kernel", "kernel"}, {"linux", "kernel"}, {"uname", "kernel"},
	{"audio", "audio"}, {"sound", "audio"}, {"speaker", "audio"},
	{"gpu", "gpu"}, {"graphics", "gpu"}, {"display", "gpu"},
	{"editor", "editor"}, {"vim", "editor"}, {"nvim", "editor"}, {"emacs", "editor"},
	{"update", "updates"}, {"upgrade", "updates"}, {"pacman", "updates"},
}

// ClassifyDeterministic classifies a request without any LLM call. It is
// the translator's fallback path and is deliberately conservative: lower
// confidence (90) than a successful LLM parse, and coarser target/tool
// detection.
func ClassifyDeterministic(request string) *types.Ticket {
	lower := strings.ToLower(request)
	words := strings.Fields(lower)

	intent := detectIntent(lower, words)
	targets := detectTargets(lower)
	risk := detectRisk(lower, intent)
	tools := detectTools(lower, targets)
	doctor := detectDoctor(lower)

	return &types.Ticket{
		Intent:     intent,
		Targets:    targets,
		Risk:       risk,
		Tools:      tools,
		Doctor:     doctor,
		Confidence: 90,
	}
}

func detectIntent(lower string, words []string) types.TranslatorIntent {
	for _, kw := range problemKeywords {
		if strings.Contains(lower, kw) {
			return types.IntentDoctorQuery
		}
	}

	for _, kw := range actionKeywords {
		if containsWord(words, kw) || strings.HasPrefix(lower, kw) {
			return types.IntentActionRequest
		}
	}

	for _, kw := range knowledgeKeywords {
		if strings.Contains(lower, kw) {
			return types.IntentKnowledgeQuery
		}
	}

	for _, kw := range systemQueryKeywords {
		if strings.HasPrefix(lower, kw) || strings.Contains(lower, kw) {
			return types.IntentSystemQuery
		}
	}

	return types.IntentSystemQuery
}

func containsWord(words []string, w string) bool {
	for _, word := range words {
		if word == w {
			return true
		}
	}
	return false
}

func detectTargets(lower string) []string {
	var targets []string
	seen := make(map[string]struct{})
	for _, p := range targetPatterns {
		if strings.Contains(lower, p.substr) {
			if _, ok := seen[p.target]; !ok {
				seen[p.target] = struct{}{}
				targets = append(targets, p.target)
			}
		}
	}
	return targets
}

func detectRisk(lower string, intent types.TranslatorIntent) types.RiskLevel {
	switch intent {
	case types.IntentSystemQuery, types.IntentKnowledgeQuery, types.IntentDoctorQuery:
		return types.RiskReadOnly
	case types.IntentActionRequest:
		switch {
		case strings.Contains(lower, "delete") || strings.Contains(lower, "remove") ||
			strings.Contains(lower, "format") || strings.Contains(lower, "wipe"):
			return types.RiskHigh
		case strings.Contains(lower, "install") || strings.Contains(lower, "restart") ||
			strings.Contains(lower, "enable") || strings.Contains(lower, "disable"):
			return types.RiskMedium
		default:
			return types.RiskLow
		}
	default:
		return types.RiskReadOnly
	}
}

func detectTools(lower string, targets []string) []string {
	var tools []string
	for _, target := range targets {
		switch target {
		case "memory":
			tools = append(tools, "memory_info")
		case "disk":
			tools = append(tools, "mount_usage")
		case "kernel":
			tools = append(tools, "kernel_version")
		case "network":
			tools = append(tools, "network_status")
		case "audio":
			tools = append(tools, "audio_status")
		case "cpu", "gpu":
			tools = append(tools, "hw_snapshot_summary")
		case "updates":
			tools = append(tools, "sw_snapshot_summary")
		case "editor":
			tools = append(tools, "editor_detection")
		}
	}

	if len(tools) == 0 {
		switch {
		case strings.Contains(lower, "service") || strings.Contains(lower, "running"):
			tools = append(tools, "service_status")
		case strings.Contains(lower, "package") || strings.Contains(lower, "installed"):
			tools = append(tools, "sw_snapshot_summary")
		case strings.Contains(lower, "hardware") || strings.Contains(lower, "specs"):
			tools = append(tools, "hw_snapshot_summary")
		}
	}

	return tools
}

func detectDoctor(lower string) string {
	switch {
	case strings.Contains(lower, "wifi") || strings.Contains(lower, "network") ||
		strings.Contains(lower, "ethernet") || strings.Contains(lower, "dns") ||
		strings.Contains(lower, "internet") || strings.Contains(lower, "connection"):
		return "networking"

	case strings.Contains(lower, "display") || strings.Contains(lower, "monitor") ||
		strings.Contains(lower, "resolution") || strings.Contains(lower, "tearing") ||
		strings.Contains(lower, "gpu") || strings.Contains(lower, "graphics"):
		return "graphics"

	case strings.Contains(lower, "audio") || strings.Contains(lower, "sound") ||
		strings.Contains(lower, "speaker") || strings.Contains(lower, "microphone") ||
		strings.Contains(lower, "volume"):
		return "audio"

	case strings.Contains(lower, "disk") || strings.Contains(lower, "mount") ||
		strings.Contains(lower, "filesystem") || strings.Contains(lower, "storage") ||
		strings.Contains(lower, "btrfs"):
		return "storage"

	case strings.Contains(lower, "boot") || strings.Contains(lower, "startup") ||
		strings.Contains(lower, "systemd") || strings.Contains(lower, "slow start"):
		return "boot"

	default:
		return ""
	}
}
