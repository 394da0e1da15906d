package orchestrator

import (
	"fmt"
	"strings"

	"github.com/annassistant/anna/pkg/types"
)

// PlannerJSONSchema is the structured-output contract the planner LLM call
// must satisfy.
const PlannerJSONSchema = `{
  "type": "object",
  "required": ["intent", "tool_calls"],
  "properties": {
    "intent": {"type": "string"},
    "subtasks": {"type": "array", "items": {"type": "object",
      "properties": {"id": {"type": "string"}, "description": {"type": "string"}}}},
    "tool_calls": {"type": "array", "items": {"type": "object",
      "required": ["subtask_id", "tool"],
      "properties": {
        "subtask_id": {"type": "string"},
        "tool": {"type": "string"},
        "parameters": {"type": "object"},
        "reason": {"type": "string"}
      }}},
    "expected_evidence": {"type": "array", "items": {"type": "string"}},
    "limitations": {"type": "object",
      "properties": {
        "missing_tools": {"type": "array", "items": {"type": "string"}},
        "unanswerable_parts": {"type": "array", "items": {"type": "string"}}
      }}
  }
}`

// InterpreterJSONSchema is the structured-output contract the interpreter
// LLM call must satisfy.
const InterpreterJSONSchema = `{
  "type": "object",
  "required": ["answer", "reliability"],
  "properties": {
    "answer": {"type": "string"},
    "evidence_used": {"type": "array", "items": {"type": "object",
      "properties": {"tool": {"type": "string"}, "summary": {"type": "string"}}}},
    "reliability": {"type": "object",
      "required": ["score", "level", "reason"],
      "properties": {
        "score": {"type": "number"},
        "level": {"type": "string", "enum": ["HIGH", "MEDIUM", "LOW"]},
        "reason": {"type": "string"}
      }},
    "uncertainty": {"type": "object",
      "properties": {
        "has_unknowns": {"type": "boolean"},
        "details": {"type": "array", "items": {"type": "string"}}
      }}
  }
}`

// plannerSystemPrompt builds the planner system prompt, which is the only
// place the LLM ever sees tool descriptors. Descriptions never leak the
// underlying command, so a prompt injection can at most pick among a
// closed, read-mostly set of tools.
func plannerSystemPrompt(descriptors []types.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString("You are Anna's planner. Decompose the user's request into subtasks and ")
	b.WriteString("tool calls using only the tools listed below. Never invent a tool name. ")
	b.WriteString("If nothing here can answer the request, leave tool_calls empty and explain ")
	b.WriteString("why in limitations.unanswerable_parts. Respond with JSON matching this schema:\n")
	b.WriteString(PlannerJSONSchema)
	b.WriteString("\n\nAvailable tools:\n")
	for _, d := range descriptors {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return b.String()
}

// interpreterSystemPrompt builds the interpreter system prompt.
func interpreterSystemPrompt() string {
	return "You are Anna's interpreter. Given a user query, the plan's intent, and a " +
		"transcript of tool output, write a direct answer using only what the evidence " +
		"shows. Never state a fact the evidence doesn't support. Score your own " +
		"reliability honestly: HIGH only when the evidence directly and unambiguously " +
		"answers the query. Respond with JSON matching this schema:\n" + InterpreterJSONSchema
}

func plannerUserPrompt(query string, previous *types.PlannerOutput) string {
	if previous == nil {
		return fmt.Sprintf("User query: %q", query)
	}
	tools := make([]string, 0, len(previous.ToolCalls))
	for _, tc := range previous.ToolCalls {
		tools = append(tools, tc.Tool)
	}
	return fmt.Sprintf(
		"RETRY: the previous plan produced a low-reliability answer.\nPrevious intent: %s\nPrevious tools: %s\n\nUser query: %q",
		previous.Intent, strings.Join(tools, ", "), query,
	)
}

func interpreterUserPrompt(query string, plan types.PlannerOutput, evidence types.EvidenceBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %q\n\nPlan intent: %s\n\nEvidence bundle:\n", query, plan.Intent)
	for _, r := range evidence.Runs {
		stdout := r.Stdout
		if stdout == "" {
			stdout = "(empty)"
		}
		stderr := r.Stderr
		if stderr == "" {
			stderr = "(none)"
		}
		fmt.Fprintf(&b, "=== Tool: %s (subtask: %s) ===\nCommand: %s\nExit code: %d\nOutput:\n%s\nStderr: %s\n\n",
			r.Tool, r.SubtaskID, r.CommandPreview, r.ExitCode, stdout, stderr)
	}
	return b.String()
}
