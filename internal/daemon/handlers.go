package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/annassistant/anna/internal/fixit"
	"github.com/annassistant/anna/internal/metrics"
	"github.com/annassistant/anna/internal/recipes"
	"github.com/annassistant/anna/internal/rollback"
	"github.com/annassistant/anna/pkg/types"
)

// Handle dispatches a decoded JSON-RPC call to the matching component. It
// implements rpcserver.Handler. rpcserver never imports this package;
// daemon imports rpcserver only for the stream hub and its event type.
func (d *Daemon) Handle(ctx context.Context, method string, params json.RawMessage) (interface{}, *types.AnnaError) {
	start := time.Now()
	result, annaErr := d.dispatch(ctx, method, params)
	outcome := "ok"
	if annaErr != nil {
		outcome = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
	d.log.Debug("rpc call", zap.String("method", method), zap.Duration("duration", time.Since(start)), zap.String("outcome", outcome))
	return result, annaErr
}

func (d *Daemon) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, *types.AnnaError) {
	switch method {
	case "Ping":
		return d.Ping(), nil
	case "GetStatus":
		return d.GetStatus(), nil
	case "Ask":
		var p struct {
			Query               string `json:"query"`
			ClarificationAnswer string `json:"clarification_answer"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.Ask(ctx, p.Query, p.ClarificationAnswer), nil
	case "ApplyAdvice":
		var p struct {
			ID     string `json:"id"`
			DryRun bool   `json:"dry_run"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.ApplyAdvice(ctx, p.ID, p.DryRun)
	case "Rollback":
		var p struct {
			CaseID string `json:"case_id"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.Rollback(p.CaseID), nil
	case "FactsGet":
		var p struct {
			Key string `json:"key"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.FactsGet(ctx, p.Key)
	case "FactsSet":
		var p struct {
			Key       string `json:"key"`
			ValueKind string `json:"value_kind"`
			Value     string `json:"value"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.FactsSet(ctx, p.Key, p.ValueKind, p.Value)
	case "FactsReverify":
		var p struct {
			Key string `json:"key"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.FactsReverify(ctx, p.Key)
	case "Advise":
		var p struct {
			Intent       string   `json:"intent"`
			Targets      []string `json:"targets"`
			ToolsPlanned []string `json:"tools_planned"`
			DoctorID     string   `json:"doctor_id"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.Advise(p.Intent, p.Targets, p.ToolsPlanned, p.DoctorID), nil
	case "FixIt":
		var p struct {
			ProblemStatement string `json:"problem_statement"`
			Response         string `json:"response"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.FixIt(ctx, p.ProblemStatement, p.Response)
	case "Insights":
		var p struct {
			Hours int `json:"hours"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.Insights(p.Hours)
	case "Recipes":
		var p struct {
			ActiveOnly bool `json:"active_only"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.Recipes(p.ActiveOnly), nil
	case "Doctor":
		var p struct {
			Fix    string `json:"fix"`
			DryRun bool   `json:"dry_run"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return d.Doctor(ctx, p.Fix, p.DryRun)
	default:
		return nil, &types.AnnaError{
			Code:     types.CodeUnknownMethod,
			Message:  fmt.Sprintf("unknown method %q", method),
			Severity: types.ErrorSeverityError,
		}
	}
}

func unmarshalParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func invalidParams(err error) *types.AnnaError {
	return &types.AnnaError{
		Code:     types.CodeInvalidParameter,
		Message:  fmt.Sprintf("invalid parameters: %s", err),
		Severity: types.ErrorSeverityError,
		Help:     []string{"check the method's parameter names against the RPC method list"},
	}
}

// PingResult is the liveness probe's response.
type PingResult struct {
	OK      bool      `json:"ok"`
	Uptime  string    `json:"uptime"`
	AskedAt time.Time `json:"asked_at"`
}

// Ping reports liveness without touching any component.
func (d *Daemon) Ping() PingResult {
	return PingResult{OK: true, Uptime: time.Since(d.startedAt).String(), AskedAt: time.Now()}
}

// StatusResult summarizes the health of every wired component.
type StatusResult struct {
	Components  []types.ComponentHealth `json:"components"`
	Progression types.Progression       `json:"progression"`
	Knowledge   types.KnowledgeSnapshot `json:"knowledge"`
	Coverage    float64                 `json:"recipe_coverage_percent"`
}

// GetStatus reports one ComponentHealth per wired subsystem plus the
// progression and recipe-coverage summaries a human-facing status view
// needs.
func (d *Daemon) GetStatus() StatusResult {
	var components []types.ComponentHealth

	components = append(components, types.ComponentHealth{
		Name:   "llm",
		Status: types.ComponentHealthy,
	})

	factCount := len(d.facts.VerifiedFacts(context.Background()))
	components = append(components, types.ComponentHealth{
		Name:   "fact_store",
		Status: types.ComponentHealthy,
		Details: map[string]interface{}{"verified_facts": factCount},
	})

	kbStatus := types.ComponentHealthy
	snapshot := d.kb.Snapshot()
	if d.kb.IsStale(24*time.Hour, time.Now()) {
		kbStatus = types.ComponentDegraded
	}
	components = append(components, types.ComponentHealth{
		Name:    "knowledge_base",
		Status:  kbStatus,
		Message: "cached hardware/desktop snapshot",
		Details: map[string]interface{}{"captured_at": snapshot.CapturedAt},
	})

	activeRecipes := len(d.recipeMgr.Active())
	components = append(components, types.ComponentHealth{
		Name:   "recipe_engine",
		Status: types.ComponentHealthy,
		Details: map[string]interface{}{
			"active_recipes":   activeRecipes,
			"coverage_percent": d.recipeState.Stats.CoveragePercent,
		},
	})

	openSessions := len(d.fixitSess)
	fixitStatus := types.ComponentHealthy
	if openSessions > 8 {
		fixitStatus = types.ComponentDegraded
	}
	components = append(components, types.ComponentHealth{
		Name:    "fixit_driver",
		Status:  fixitStatus,
		Details: map[string]interface{}{"open_sessions": openSessions},
	})

	return StatusResult{
		Components:  components,
		Progression: d.statsEng.Snapshot(time.Now()).Progression,
		Knowledge:   snapshot,
		Coverage:    d.recipeState.Stats.CoveragePercent,
	}
}

func outcomeLabel(success bool) string {
	if success {
		return "answered"
	}
	return "fallback"
}

// Rollback reverts a previously applied mutation by case ID.
func (d *Daemon) Rollback(caseID string) rollback.Result {
	result := rollback.Execute(d.rollbackLog, caseID)
	if result.Success {
		metrics.MutationsRolledBack.Inc()
	}
	if d.audit != nil {
		_ = d.audit.LogRollback(context.Background(), caseID, result.Success)
	}
	return result
}

// FactsGet looks up a fact by its display-form key ("kind" or
// "kind:qualifier").
func (d *Daemon) FactsGet(ctx context.Context, key string) (interface{}, *types.AnnaError) {
	factKey, err := parseFactKey(key)
	if err != nil {
		return nil, invalidParams(err)
	}
	fact, found := d.facts.Get(ctx, factKey)
	return struct {
		Fact  types.Fact `json:"fact"`
		Found bool       `json:"found"`
	}{fact, found}, nil
}

// FactsSet records a user-confirmed fact value directly, bypassing probe
// verification since the caller is asserting it rather than Anna
// observing it.
func (d *Daemon) FactsSet(ctx context.Context, key, valueKind, value string) (interface{}, *types.AnnaError) {
	factKey, err := parseFactKey(key)
	if err != nil {
		return nil, invalidParams(err)
	}
	fv, err := parseFactValue(valueKind, value)
	if err != nil {
		return nil, invalidParams(err)
	}
	d.facts.UpsertVerified(ctx, factKey, fv, types.FactSource{Kind: types.SourceUserConfirmed}, 100)
	if err := d.facts.Save(); err != nil {
		return nil, &types.AnnaError{Code: types.CodeInternalError, Message: err.Error(), Severity: types.ErrorSeverityError}
	}
	return struct {
		OK bool `json:"ok"`
	}{true}, nil
}

// FactsReverify marks a fact verified again against the source it already
// records, refreshing its LastVerifiedAt; no probe is run. It reports
// ok=false when no fact is stored under key.
func (d *Daemon) FactsReverify(ctx context.Context, key string) (interface{}, *types.AnnaError) {
	factKey, err := parseFactKey(key)
	if err != nil {
		return nil, invalidParams(err)
	}
	fact, found := d.facts.Get(ctx, factKey)
	if !found {
		return struct {
			OK bool `json:"ok"`
		}{false}, nil
	}
	ok := d.facts.Reverify(ctx, factKey, fact.Source)
	_ = d.facts.Save()
	return struct {
		OK bool `json:"ok"`
	}{ok}, nil
}

// Advise returns the Recipe Engine's scored matches for a canonical
// intent/targets/tool-plan triple, the same inputs the Orchestrator
// would hand it before falling back to full planning.
func (d *Daemon) Advise(intent string, targets, toolsPlanned []string, doctorID string) []types.RecipeMatch {
	return recipes.FindMatches(d.recipeMgr.All(), intent, targets, toolsPlanned, doctorID)
}

// Insights returns the Insights Engine's top detections over the last
// `hours` of Historian samples, and caches them so a subsequent
// ApplyAdvice call can look one up by ID.
func (d *Daemon) Insights(hours int) (interface{}, *types.AnnaError) {
	if hours <= 0 {
		hours = 24
	}
	found, err := d.insightsEng.GetTopInsights(5, hours)
	if err != nil {
		return nil, &types.AnnaError{Code: types.CodeInternalError, Message: err.Error(), Severity: types.ErrorSeverityError}
	}

	d.mu.Lock()
	for _, ins := range found {
		d.recentAdvice[ins.ID] = ins
	}
	d.mu.Unlock()

	return found, nil
}

// Recipes lists the recipe catalog, optionally filtered to Active only.
func (d *Daemon) Recipes(activeOnly bool) []types.Recipe {
	if activeOnly {
		return d.recipeMgr.Active()
	}
	return d.recipeMgr.All()
}

// ApplyAdvice turns a previously surfaced Insight's free-text suggestion
// into a concrete change and applies it through the same Mutation
// Engine sandboxing Fix-It uses, rather than writing a second mutation
// path. The insight is wrapped as a one-hypothesis Fix-It session: its
// Evidence already backs the suggestion, so its one hypothesis carries a
// confirmed test result and the new session goes straight to PlanFix.
func (d *Daemon) ApplyAdvice(ctx context.Context, id string, dryRun bool) (interface{}, *types.AnnaError) {
	d.mu.Lock()
	insight, found := d.recentAdvice[id]
	d.mu.Unlock()
	if !found {
		return nil, &types.AnnaError{
			Code:     types.CodeInvalidParameter,
			Message:  fmt.Sprintf("no recent insight with id %q; call Insights first", id),
			Severity: types.ErrorSeverityError,
		}
	}
	if insight.Suggestion == nil || strings.TrimSpace(*insight.Suggestion) == "" {
		return nil, &types.AnnaError{
			Code:     types.CodeInvalidParameter,
			Message:  "this insight carries no actionable suggestion",
			Severity: types.ErrorSeverityError,
		}
	}

	session := fixit.NewSession(id, insight.Explanation)
	session.EvidenceIDs = insight.Evidence
	session.Hypotheses = []types.Hypothesis{{
		ID:           id + "_h0",
		Description:  *insight.Suggestion,
		EvidenceRefs: insight.Evidence,
		Confidence:   100,
		TestResult:   &types.HypothesisTestResult{Confirmed: true, EvidenceRefs: insight.Evidence, Explanation: insight.Explanation},
	}}

	if err := d.fixitDriver.PlanFix(ctx, session, 0); err != nil {
		return nil, &types.AnnaError{Code: types.CodeInterpreterParseFailed, Message: err.Error(), Severity: types.ErrorSeverityError}
	}

	if dryRun {
		return struct {
			Applied   bool             `json:"applied"`
			DryRun    bool             `json:"dry_run"`
			ChangeSet *types.ChangeSet `json:"change_set"`
			Prompt    string           `json:"prompt"`
		}{false, true, session.ChangeSet, fixit.FormatForConfirmation(session.ChangeSet)}, nil
	}

	if err := d.fixitDriver.ApplyFix(session, fixit.FixConfirmation); err != nil {
		return nil, &types.AnnaError{Code: types.CodeInternalError, Message: err.Error(), Severity: types.ErrorSeverityError}
	}
	metrics.MutationExecutionsTotal.WithLabelValues("sandbox", "true").Inc()

	return struct {
		Applied   bool             `json:"applied"`
		DryRun    bool             `json:"dry_run"`
		ChangeSet *types.ChangeSet `json:"change_set"`
	}{true, false, session.ChangeSet}, nil
}

// Doctor runs a named, pre-gated recipe end to end: a bounded,
// self-service analogue of Fix-It for a problem Anna has already solved
// and promoted to a recipe.
func (d *Daemon) Doctor(ctx context.Context, fixName string, dryRun bool) (interface{}, *types.AnnaError) {
	recipe, found := findRecipeByName(d.recipeMgr.Active(), fixName)
	if !found {
		return nil, &types.AnnaError{
			Code:     types.CodeInvalidParameter,
			Message:  fmt.Sprintf("no active recipe named %q", fixName),
			Severity: types.ErrorSeverityError,
			Help:     []string{"call Recipes{active_only:true} for the list of available fixes"},
		}
	}

	ok, reason := recipes.CheckPreconditions(recipe, fixName)
	if !ok {
		return struct {
			Ready  bool   `json:"ready"`
			Reason string `json:"reason"`
		}{false, reason}, nil
	}

	if dryRun {
		return struct {
			Ready    bool     `json:"ready"`
			ToolPlan []string `json:"tool_plan"`
		}{true, toolNames(recipe)}, nil
	}

	runs := make([]types.ToolRun, 0, len(recipe.IntentPattern.ToolPlan))
	for i, step := range recipe.IntentPattern.ToolPlan {
		subtaskID := fmt.Sprintf("%s_s%d", fixName, i)
		run := d.catalog.Execute(ctx, step.ToolName, subtaskID, nil)
		runs = append(runs, run)
		metrics.ToolExecutionsTotal.WithLabelValues(step.ToolName, toolStatusLabel(run)).Inc()
	}

	success := allToolRunsOK(runs)
	d.recipeState.RecordUse(d.recipeMgr, recipe.ID, fixName, success, reliabilityFromRuns(runs), time.Now())
	_ = d.recipeMgr.Save()
	_ = d.recipeState.Save()

	return struct {
		Ready bool            `json:"ready"`
		Runs  []types.ToolRun `json:"runs"`
	}{true, runs}, nil
}

func findRecipeByName(catalog []types.Recipe, name string) (types.Recipe, bool) {
	for _, r := range catalog {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return types.Recipe{}, false
}

func toolNames(r types.Recipe) []string {
	names := make([]string, 0, len(r.IntentPattern.ToolPlan))
	for _, step := range r.IntentPattern.ToolPlan {
		names = append(names, step.ToolName)
	}
	return names
}

func toolStatusLabel(run types.ToolRun) string {
	if run.ExitCode == 0 {
		return "ok"
	}
	return "failed"
}

func allToolRunsOK(runs []types.ToolRun) bool {
	for _, r := range runs {
		if r.ExitCode != 0 {
			return false
		}
	}
	return true
}

func reliabilityFromRuns(runs []types.ToolRun) uint8 {
	if allToolRunsOK(runs) {
		return 95
	}
	return 40
}

func parseFactKey(key string) (types.FactKey, error) {
	parts := strings.SplitN(key, ":", 2)
	kind := types.FactKeyKind(parts[0])
	if kind == "" {
		return types.FactKey{}, fmt.Errorf("fact key is required")
	}
	fk := types.FactKey{Kind: kind}
	if len(parts) == 2 {
		fk.Qualifier = parts[1]
	}
	return fk, nil
}

func parseFactValue(kind, value string) (types.FactValue, error) {
	switch types.FactValueKind(kind) {
	case types.ValueString, "":
		return types.FactValue{Kind: types.ValueString, String: value}, nil
	case types.ValueInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return types.FactValue{}, fmt.Errorf("invalid int value: %w", err)
		}
		return types.FactValue{Kind: types.ValueInt, Int: n}, nil
	case types.ValueBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return types.FactValue{}, fmt.Errorf("invalid bool value: %w", err)
		}
		return types.FactValue{Kind: types.ValueBool, Bool: b}, nil
	case types.ValuePath:
		return types.FactValue{Kind: types.ValuePath, Path: value}, nil
	case types.ValueList:
		return types.FactValue{Kind: types.ValueList, List: strings.Split(value, ",")}, nil
	default:
		return types.FactValue{}, fmt.Errorf("unsupported value_kind %q", kind)
	}
}
