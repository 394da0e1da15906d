package fixit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/annassistant/anna/internal/claims"
	"github.com/annassistant/anna/internal/evidence"
	"github.com/annassistant/anna/internal/guard"
	"github.com/annassistant/anna/internal/llmclient"
	"github.com/annassistant/anna/internal/mutation"
	"github.com/annassistant/anna/internal/rollback"
	"github.com/annassistant/anna/internal/toolcatalog"
	"github.com/annassistant/anna/pkg/types"
)

// Driver walks a FixItSession through its state machine, calling the Tool
// Catalog for evidence, the LLM oracle for hypothesize/test/plan-fix
// judgment, and the Mutation Engine for the actual write once a human has
// supplied FixConfirmation. It holds no session state itself — every
// method takes the session it's advancing, so a Driver can service many
// concurrent sessions.
type Driver struct {
	catalog     *toolcatalog.Catalog
	llm         llmclient.Client
	rollbackLog *rollback.Log
	sandboxRoot string
	home        string
	backupDir   string
	now         func() time.Time
}

// NewDriver builds a Driver over the given Tool Catalog, LLM oracle, and
// rollback log. sandboxRoot and home bound where ApplyFix is allowed to
// write; backupDir is where it stashes pre-mutation file contents.
func NewDriver(catalog *toolcatalog.Catalog, llm llmclient.Client, rollbackLog *rollback.Log, sandboxRoot, home, backupDir string) *Driver {
	return &Driver{
		catalog:     catalog,
		llm:         llm,
		rollbackLog: rollbackLog,
		sandboxRoot: sandboxRoot,
		home:        home,
		backupDir:   backupDir,
		now:         time.Now,
	}
}

// descriptor is a parsed ToolBundle/TestTools entry: a tool name plus its
// display-form parameters, e.g. "service_status(name=NetworkManager)" ->
// {name: "service_status", params: {"name": "NetworkManager"}}.
type descriptor struct {
	name   string
	params map[string]interface{}
}

func parseDescriptor(s string) descriptor {
	open := strings.IndexByte(s, '(')
	if open == -1 {
		return descriptor{name: s}
	}
	name := s[:open]
	body := strings.TrimSuffix(s[open+1:], ")")
	params := map[string]interface{}{}
	for _, pair := range strings.Split(body, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	// Catalog tools use the unit/since/minutes vocabulary below; descriptor
	// strings use a looser, human-readable one. Translate the aliases the
	// fixed category bundles actually use rather than inventing new ones.
	if v, ok := params["name"]; ok {
		params["unit"] = v
	}
	if v, ok := params["service"]; ok {
		params["unit"] = v
	}
	if v, ok := params["minutes"]; ok {
		params["since"] = fmt.Sprintf("-%smin", v)
	}
	return descriptor{name: name, params: params}
}

// runDescriptors executes every descriptor string that resolves to a
// registered catalog tool, skipping (not erroring on) the rest, capped at
// MaxToolsPerPhase. It returns the resulting evidence bundle.
func (d *Driver) runDescriptors(ctx context.Context, subtaskID string, descs []string) types.EvidenceBundle {
	bundle := types.EvidenceBundle{AllSucceeded: true, CollectedAt: d.now().UTC()}
	for i, raw := range descs {
		if i >= MaxToolsPerPhase {
			break
		}
		parsed := parseDescriptor(raw)
		if !d.catalog.HasTool(parsed.name) {
			continue
		}
		run := d.catalog.Execute(ctx, parsed.name, subtaskID, parsed.params)
		if run.ExitCode != 0 {
			bundle.AllSucceeded = false
		}
		bundle.Runs = append(bundle.Runs, run)
	}
	return bundle
}

func runIDs(bundle types.EvidenceBundle) []string {
	ids := make([]string, 0, len(bundle.Runs))
	for _, r := range bundle.Runs {
		ids = append(ids, r.ID)
	}
	return ids
}

// CollectEvidence runs the session's category tool bundle and transitions
// Understand -> Evidence.
func (d *Driver) CollectEvidence(ctx context.Context, session *types.FixItSession) types.EvidenceBundle {
	bundle := d.runDescriptors(ctx, session.RequestID, ToolBundle(session.Category))
	session.EvidenceIDs = append(session.EvidenceIDs, runIDs(bundle)...)
	Transition(session, types.FixItEvidence, runIDs(bundle), "ran category tool bundle", d.now())
	return bundle
}

// Hypothesize asks the LLM for candidate explanations grounded in bundle,
// appends them to the session, and transitions Evidence -> Hypothesize.
func (d *Driver) Hypothesize(ctx context.Context, session *types.FixItSession, bundle types.EvidenceBundle) error {
	raw, err := d.llm.Complete(ctx, hypothesizeSystemPrompt(), hypothesizeUserPrompt(session, bundle))
	if err != nil {
		return fmt.Errorf("hypothesize: %w", err)
	}

	var out struct {
		Hypotheses []struct {
			Description string   `json:"description"`
			Confidence  int      `json:"confidence"`
			TestTools   []string `json:"test_tools"`
		} `json:"hypotheses"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("parse hypothesize response: %w", err)
	}

	for _, h := range out.Hypotheses {
		confidence := h.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 100 {
			confidence = 100
		}
		session.Hypotheses = append(session.Hypotheses, types.Hypothesis{
			ID:          fmt.Sprintf("%s_h%d", session.RequestID, len(session.Hypotheses)),
			Description: h.Description,
			Confidence:  uint8(confidence),
			TestTools:   h.TestTools,
		})
	}

	NextCycle(session)
	Transition(session, types.FixItHypothesize, nil, fmt.Sprintf("generated %d hypotheses", len(out.Hypotheses)), d.now())
	return nil
}

// Test runs the hypothesis at idx's test tools, asks the LLM to judge
// whether the resulting evidence confirms it, and guards that judgment's
// claims against the evidence itself — a Fix-It diagnosis never accepts
// an unverifiable specific. It transitions Hypothesize -> Test.
func (d *Driver) Test(ctx context.Context, session *types.FixItSession, idx int) (types.EvidenceBundle, error) {
	hyp := &session.Hypotheses[idx]
	bundle := d.runDescriptors(ctx, session.RequestID, hyp.TestTools)
	hyp.EvidenceRefs = runIDs(bundle)
	session.EvidenceIDs = append(session.EvidenceIDs, hyp.EvidenceRefs...)

	raw, err := d.llm.Complete(ctx, testSystemPrompt(), testUserPrompt(*hyp, bundle))
	if err != nil {
		return bundle, fmt.Errorf("test hypothesis: %w", err)
	}

	var out struct {
		Confirmed   bool   `json:"confirmed"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return bundle, fmt.Errorf("parse test response: %w", err)
	}

	parsed := evidence.BuildParsedEvidence(bundle)
	report := guard.RunGuard(claims.ExtractClaims(out.Explanation), parsed, true)
	confirmed := out.Confirmed && !report.InventionDetected

	hyp.TestResult = &types.HypothesisTestResult{
		Confirmed:    confirmed,
		EvidenceRefs: hyp.EvidenceRefs,
		Explanation:  out.Explanation,
	}

	decision := fmt.Sprintf("hypothesis %q: confirmed=%v", hyp.Description, confirmed)
	if report.InventionDetected {
		decision += " (rejected: unverifiable claim in test explanation)"
	}
	Transition(session, types.FixItTest, hyp.EvidenceRefs, decision, d.now())
	return bundle, nil
}

// PlanFix asks the LLM to propose a change set resolving the hypothesis
// at idx, which must already be confirmed. It transitions Test -> PlanFix.
func (d *Driver) PlanFix(ctx context.Context, session *types.FixItSession, idx int) error {
	hyp := session.Hypotheses[idx]
	if hyp.TestResult == nil || !hyp.TestResult.Confirmed {
		return fmt.Errorf("hypothesis %q is not confirmed, cannot plan a fix", hyp.ID)
	}

	raw, err := d.llm.Complete(ctx, planFixSystemPrompt(), planFixUserPrompt(hyp))
	if err != nil {
		return fmt.Errorf("plan fix: %w", err)
	}

	var out struct {
		Changes []struct {
			What           string          `json:"what"`
			Why            string          `json:"why"`
			Risk           types.RiskLevel `json:"risk"`
			RollbackAction string          `json:"rollback_action"`
			PostCheck      string          `json:"post_check"`
			Path           string          `json:"path"`
			AppendedLine   string          `json:"appended_line"`
		} `json:"changes"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("parse plan-fix response: %w", err)
	}

	cs := NewChangeSet()
	for i, c := range out.Changes {
		item := types.ChangeItem{
			ID:             fmt.Sprintf("%s_c%d", session.RequestID, i),
			What:           c.What,
			Why:            c.Why,
			Risk:           c.Risk,
			RollbackAction: c.RollbackAction,
			PostCheck:      c.PostCheck,
			Path:           c.Path,
			AppendedLine:   c.AppendedLine,
		}
		if err := AddChange(cs, item); err != nil {
			break
		}
	}

	idxCopy := idx
	session.SelectedHypothesis = &idxCopy
	session.ChangeSet = cs
	Transition(session, types.FixItPlanFix, nil, fmt.Sprintf("proposed %d changes", len(cs.Changes)), d.now())
	return nil
}

// ApplyFix applies the session's change set. confirmation must match
// FixConfirmation exactly — that single human approval covers the whole
// batch; each change still individually clears the Mutation Engine's
// sandbox-tier gate (a System-tier target is refused regardless). It
// transitions PlanFix -> ApplyFix.
func (d *Driver) ApplyFix(session *types.FixItSession, confirmation string) error {
	if session.ChangeSet == nil {
		return fmt.Errorf("no change set to apply")
	}
	if confirmation != FixConfirmation {
		return fmt.Errorf("confirmation phrase does not match")
	}

	cs := session.ChangeSet
	for _, change := range cs.Changes {
		result := d.applyChange(change)
		cs.Results = append(cs.Results, result)
	}
	cs.Applied = true

	decision := "applied change set"
	for _, r := range cs.Results {
		if !r.Success {
			decision = "applied change set with failures"
			break
		}
	}
	Transition(session, types.FixItApplyFix, nil, decision, d.now())
	return nil
}

func (d *Driver) applyChange(change types.ChangeItem) types.ChangeResult {
	check, err := mutation.CheckSandbox(change.Path, d.sandboxRoot, d.home)
	if err != nil {
		return types.ChangeResult{ChangeID: change.ID, Success: false, Error: err.Error()}
	}
	if annaErr := mutation.CheckMutationAllowed(check, check.ConfirmationPhrase); annaErr != nil {
		return types.ChangeResult{ChangeID: change.ID, Success: false, Error: annaErr.Message}
	}

	ev, err := mutation.CollectEvidence(change.Path)
	if err != nil {
		return types.ChangeResult{ChangeID: change.ID, Success: false, Error: err.Error()}
	}

	now := d.now()
	mcase := mutation.ExecuteAppendLine(change.Path, change.AppendedLine, ev, d.backupDir, now)
	mcase.SandboxClass = check.Class
	mcase.Risk = check.Risk
	if !mcase.Success {
		return types.ChangeResult{ChangeID: change.ID, CaseID: mcase.CaseID, Success: false, Error: mcase.Error}
	}

	if err := d.rollbackLog.Record(mcase); err != nil {
		return types.ChangeResult{ChangeID: change.ID, CaseID: mcase.CaseID, Success: true, Error: fmt.Sprintf("mutation applied but not logged for rollback: %s", err)}
	}
	return types.ChangeResult{ChangeID: change.ID, CaseID: mcase.CaseID, Success: true}
}

// Verify re-runs the confirmed hypothesis's test tools and asks the LLM
// whether the evidence now shows the problem resolved. On success it
// closes the session; on failure it either starts another hypothesis
// cycle (if cycles remain) or marks the session Stuck.
func (d *Driver) Verify(ctx context.Context, session *types.FixItSession) (bool, error) {
	if session.SelectedHypothesis == nil {
		return false, fmt.Errorf("no selected hypothesis to verify against")
	}
	hyp := session.Hypotheses[*session.SelectedHypothesis]
	bundle := d.runDescriptors(ctx, session.RequestID, hyp.TestTools)
	session.EvidenceIDs = append(session.EvidenceIDs, runIDs(bundle)...)

	raw, err := d.llm.Complete(ctx, testSystemPrompt(), testUserPrompt(hyp, bundle))
	if err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}
	var out struct {
		Confirmed   bool   `json:"confirmed"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return false, fmt.Errorf("parse verify response: %w", err)
	}

	resolved := !out.Confirmed // hypothesis "confirmed" meant the problem was present; resolved means it no longer is
	Transition(session, types.FixItVerify, runIDs(bundle), out.Explanation, d.now())

	if resolved {
		session.ResolutionSummary = out.Explanation
		Transition(session, types.FixItClose, nil, "problem resolved", d.now())
		Transition(session, types.FixItCompleted, nil, "", d.now())
		return true, nil
	}

	if CanHypothesize(session) {
		Transition(session, types.FixItHypothesize, nil, "fix did not resolve the problem, starting another cycle", d.now())
	} else {
		MarkStuck(session, "exhausted hypothesis cycles without resolving the problem", d.now())
	}
	return false, nil
}
