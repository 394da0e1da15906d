// Package orchestrator runs the core three-phase answer pipeline: Plan
// (ask the LLM which tools to run), Execute (run them for real), Interpret
// (ask the LLM to turn the evidence into an answer with a self-scored
// reliability). A low-reliability interpretation is retried once with the
// prior attempt's context; a failed interpretation falls back to a
// deterministic text scan over the raw evidence.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/annassistant/anna/internal/evidence"
	"github.com/annassistant/anna/internal/llmclient"
	"github.com/annassistant/anna/internal/toolcatalog"
	"github.com/annassistant/anna/pkg/types"
)

// MinReliability is the self-scored reliability threshold an interpretation
// must clear to be accepted without retry.
const MinReliability = 0.8

// MaxRetries is the number of additional Plan/Execute/Interpret passes
// allowed after the first, when reliability stays below MinReliability.
const MaxRetries = 1

// Result is the orchestrator's outcome for one request.
type Result struct {
	Answer      string             `json:"answer"`
	Reliability types.Reliability  `json:"reliability"`
	RetriesUsed int                `json:"retries_used"`
	Success     bool               `json:"success"`
	Error       string             `json:"error,omitempty"`
}

func errorResult(msg string) Result {
	return Result{Success: false, Error: msg}
}

func successResult(answer string, reliability types.Reliability, retries int) Result {
	return Result{Answer: answer, Reliability: reliability, RetriesUsed: retries, Success: true}
}

// Orchestrator ties the LLM oracle to the Tool Catalog. It carries no
// state between requests beyond what a single Handle call threads through
// its own retry loop.
type Orchestrator struct {
	llm     llmclient.Client
	catalog *toolcatalog.Catalog
	now     func() time.Time
}

// New builds an Orchestrator over llm and catalog.
func New(llm llmclient.Client, catalog *toolcatalog.Catalog) *Orchestrator {
	return &Orchestrator{llm: llm, catalog: catalog, now: time.Now}
}

// Handle runs the full pipeline for one request.
func (o *Orchestrator) Handle(ctx context.Context, query string) Result {
	if result, ok := handleMetaQuery(query); ok {
		return result
	}

	var previousPlan *types.PlannerOutput
	retries := 0

	for {
		plan, err := o.plan(ctx, query, previousPlan)
		if err != nil {
			return errorResult(fmt.Sprintf("planning failed: %s", err))
		}

		if len(plan.ToolCalls) == 0 {
			if len(plan.Limitations.UnanswerableParts) > 0 {
				return errorResult(fmt.Sprintf("cannot answer this query: %s", strings.Join(plan.Limitations.UnanswerableParts, "; ")))
			}
			return errorResult("no tools available to answer this query")
		}

		if unknown := o.unknownTools(plan); len(unknown) > 0 {
			return errorResult(fmt.Sprintf("plan references unknown tools: %s (planner error)", strings.Join(unknown, ", ")))
		}

		bundle := o.execute(ctx, plan)

		interpretation, err := o.interpret(ctx, query, plan, bundle)
		if err != nil {
			return o.fallbackAnswer(query, bundle, retries, err)
		}

		if interpretation.Reliability.Score >= MinReliability {
			return successResult(interpretation.Answer, interpretation.Reliability, retries)
		}

		retries++
		if retries > MaxRetries {
			// The increment above is for a pass that is not run.
			result := successResult(interpretation.Answer, interpretation.Reliability, retries-1)
			result.Error = "low reliability after retry"
			return result
		}

		previousPlan = &plan
	}
}

func (o *Orchestrator) unknownTools(plan types.PlannerOutput) []string {
	var unknown []string
	for _, tc := range plan.ToolCalls {
		if !o.catalog.HasTool(tc.Tool) {
			unknown = append(unknown, tc.Tool)
		}
	}
	return unknown
}

func (o *Orchestrator) plan(ctx context.Context, query string, previous *types.PlannerOutput) (types.PlannerOutput, error) {
	system := plannerSystemPrompt(o.catalog.Descriptors())
	user := plannerUserPrompt(query, previous)

	raw, err := o.llm.Complete(ctx, system, user)
	if err != nil {
		return types.PlannerOutput{}, err
	}

	var plan types.PlannerOutput
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return types.PlannerOutput{}, fmt.Errorf("parse planner response: %w", err)
	}
	return plan, nil
}

func (o *Orchestrator) execute(ctx context.Context, plan types.PlannerOutput) types.EvidenceBundle {
	bundle := types.EvidenceBundle{AllSucceeded: true, CollectedAt: o.now().UTC()}
	for _, tc := range plan.ToolCalls {
		run := o.catalog.Execute(ctx, tc.Tool, tc.SubtaskID, tc.Parameters)
		if run.ExitCode != 0 {
			bundle.AllSucceeded = false
		}
		bundle.Runs = append(bundle.Runs, run)
	}
	return bundle
}

func (o *Orchestrator) interpret(ctx context.Context, query string, plan types.PlannerOutput, bundle types.EvidenceBundle) (types.InterpreterOutput, error) {
	system := interpreterSystemPrompt()
	user := interpreterUserPrompt(query, plan, bundle)

	raw, err := o.llm.Complete(ctx, system, user)
	if err != nil {
		return types.InterpreterOutput{}, err
	}

	var out types.InterpreterOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return types.InterpreterOutput{}, fmt.Errorf("parse interpreter response: %w", err)
	}
	if out.Reliability.Level == "" {
		out.Reliability.Level = types.LevelFor(out.Reliability.Score)
	}
	return out, nil
}

func handleMetaQuery(query string) (Result, bool) {
	q := strings.ToLower(query)

	switch {
	case strings.Contains(q, "anna version") || strings.Contains(q, "your version"):
		return successResult("Anna Assistant v1.0.0", types.Reliability{
			Score: 1.0, Level: types.ReliabilityHigh, Reason: "version is hardcoded",
		}, 0), true

	case strings.Contains(q, "who are you") || strings.Contains(q, "about anna"):
		return successResult(
			"I am Anna, a local Linux system assistant. I answer queries by running real "+
				"system tools and reporting only what I find. I never guess or invent information.",
			types.Reliability{Score: 1.0, Level: types.ReliabilityHigh, Reason: "identity is hardcoded"}, 0,
		), true

	case strings.Contains(q, "upgrade") && (strings.Contains(q, "brain") || strings.Contains(q, "llm") || strings.Contains(q, "model")):
		return successResult(
			"To upgrade Anna's LLM backend:\n"+
				"1. List available models: ollama list\n"+
				"2. Pull a new model: ollama pull <model-name>\n"+
				"3. Edit ~/.config/anna/config.toml and set model = \"<model-name>\"\n"+
				"4. Restart Anna: systemctl --user restart annad",
			types.Reliability{Score: 1.0, Level: types.ReliabilityHigh, Reason: "upgrade instructions are hardcoded"}, 0,
		), true
	}

	return Result{}, false
}

func (o *Orchestrator) fallbackAnswer(query string, bundle types.EvidenceBundle, retries int, cause error) Result {
	q := strings.ToLower(query)

	for _, run := range bundle.Runs {
		if run.ExitCode != 0 || run.Stdout == "" {
			continue
		}

		if strings.Contains(q, "ram") || strings.Contains(q, "memory") {
			if line, ok := evidence.FindMemTotalLine(run.Stdout); ok {
				if gb, ok := kbLineToGiB(line); ok {
					return mediumReliabilityFallback(fmt.Sprintf("Total RAM: %.1f GiB (from /proc/meminfo)", gb), retries)
				}
			}
		}

		if strings.Contains(q, "cpu") || strings.Contains(q, "processor") {
			if line, ok := evidence.FindCPUModelLine(run.Stdout); ok {
				name := strings.TrimSpace(strings.TrimPrefix(line, "Model name:"))
				return mediumReliabilityFallback(fmt.Sprintf("CPU: %s", name), retries)
			}
		}

		if strings.Contains(q, "gpu") || strings.Contains(q, "graphics") {
			if line, ok := evidence.FindFirstNonEmptyLine(run.Stdout); ok {
				return mediumReliabilityFallback(fmt.Sprintf("GPU: %s", line), retries)
			}
		}
	}

	return errorResult(fmt.Sprintf("could not interpret evidence: %s", cause))
}

func mediumReliabilityFallback(answer string, retries int) Result {
	return successResult(answer, types.Reliability{
		Score: 0.7, Level: types.ReliabilityMedium, Reason: "deterministic text fallback, not LLM-interpreted",
	}, retries)
}

func kbLineToGiB(line string) (float64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, false
	}
	var kb float64
	if _, err := fmt.Sscanf(fields[1], "%f", &kb); err != nil {
		return 0, false
	}
	return kb / 1024 / 1024, true
}
