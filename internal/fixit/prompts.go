package fixit

import (
	"fmt"
	"strings"

	"github.com/annassistant/anna/pkg/types"
)

// HypothesizeJSONSchema is the structured-output contract the hypothesize
// LLM call must satisfy.
const HypothesizeJSONSchema = `{
  "type": "object",
  "required": ["hypotheses"],
  "properties": {
    "hypotheses": {"type": "array", "items": {"type": "object",
      "required": ["description", "confidence", "test_tools"],
      "properties": {
        "description": {"type": "string"},
        "confidence": {"type": "integer", "minimum": 0, "maximum": 100},
        "test_tools": {"type": "array", "items": {"type": "string"}}
      }}}
  }
}`

// TestJSONSchema is the structured-output contract the hypothesis-test
// interpretation LLM call must satisfy.
const TestJSONSchema = `{
  "type": "object",
  "required": ["confirmed", "explanation"],
  "properties": {
    "confirmed": {"type": "boolean"},
    "explanation": {"type": "string"}
  }
}`

// PlanFixJSONSchema is the structured-output contract the fix-planning
// LLM call must satisfy.
const PlanFixJSONSchema = `{
  "type": "object",
  "required": ["changes"],
  "properties": {
    "changes": {"type": "array", "items": {"type": "object",
      "required": ["what", "why", "risk", "rollback_action", "post_check", "path", "appended_line"],
      "properties": {
        "what": {"type": "string"},
        "why": {"type": "string"},
        "risk": {"type": "string", "enum": ["read_only", "low", "medium", "high"]},
        "rollback_action": {"type": "string"},
        "post_check": {"type": "string"},
        "path": {"type": "string"},
        "appended_line": {"type": "string"}
      }}}
  }
}`

func hypothesizeSystemPrompt() string {
	return "You are Anna's Fix-It hypothesizer. Given a problem statement and the evidence " +
		"already collected, propose up to 3 specific, checkable hypotheses for the root cause. " +
		"Each hypothesis must list in test_tools the Tool Catalog tools it could be tested against " +
		"(journal_warnings, service_status, disk_usage, top_resource_processes, what_changed, " +
		"boot_time_trend). Never invent a tool name. Respond with JSON matching this schema:\n" +
		HypothesizeJSONSchema
}

func hypothesizeUserPrompt(session *types.FixItSession, bundle types.EvidenceBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %q\nCategory: %s\n\nEvidence collected so far:\n", session.ProblemStatement, session.Category)
	writeBundle(&b, bundle)
	return b.String()
}

func testSystemPrompt() string {
	return "You are Anna's Fix-It tester. Given a hypothesis and the evidence collected to " +
		"test it, decide whether the evidence confirms or refutes it. Never state a fact the " +
		"evidence doesn't show. Respond with JSON matching this schema:\n" + TestJSONSchema
}

func testUserPrompt(hyp types.Hypothesis, bundle types.EvidenceBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hypothesis: %s\n\nTest evidence:\n", hyp.Description)
	writeBundle(&b, bundle)
	return b.String()
}

func planFixSystemPrompt() string {
	return "You are Anna's Fix-It planner. Given a confirmed hypothesis, propose the smallest " +
		"possible change set to resolve it. Anna's only mutation primitive is appending a " +
		"single line to an existing file — never propose deleting, overwriting, or running " +
		"arbitrary commands. Every change must name an absolute path and the exact line to " +
		"append. Respond with JSON matching this schema:\n" + PlanFixJSONSchema
}

func planFixUserPrompt(hyp types.Hypothesis) string {
	return fmt.Sprintf("Confirmed hypothesis: %s\nExplanation: %s", hyp.Description, explanationOf(hyp))
}

func explanationOf(hyp types.Hypothesis) string {
	if hyp.TestResult == nil {
		return ""
	}
	return hyp.TestResult.Explanation
}

func writeBundle(b *strings.Builder, bundle types.EvidenceBundle) {
	for _, r := range bundle.Runs {
		stdout := r.Stdout
		if stdout == "" {
			stdout = "(empty)"
		}
		fmt.Fprintf(b, "=== Tool: %s ===\nExit code: %d\nOutput:\n%s\n\n", r.Tool, r.ExitCode, stdout)
	}
}
