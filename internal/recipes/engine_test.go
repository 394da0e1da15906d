package recipes

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/pkg/types"
)

func sampleRecipe() types.Recipe {
	return types.Recipe{
		ID:     "r1",
		Name:   "restart network",
		Status: types.RecipeStatusActive,
		IntentPattern: types.IntentPattern{
			IntentType: "diagnose_network",
			Targets:    []string{"wifi", "ethernet"},
			ToolPlan:   []types.ToolPlanStep{{ToolName: "systemctl_status"}, {ToolName: "ip_addr"}},
		},
		Confidence: 0.8,
	}
}

func TestCalculateMatchScoreFullMatch(t *testing.T) {
	r := sampleRecipe()
	score := CalculateMatchScore(r, "diagnose_network", []string{"wifi", "ethernet"}, []string{"systemctl_status", "ip_addr"})
	// intent 0.30 + targets 0.25 + tools 0.25 + confidence 0.2*0.8=0.16
	assert.InDelta(t, 0.96, score, 0.001)
}

func TestCalculateMatchScorePartialMatch(t *testing.T) {
	r := sampleRecipe()
	score := CalculateMatchScore(r, "diagnose_disk", []string{"wifi"}, nil)
	// no intent match (0), target ratio 1/2 * 0.25 = 0.125, no tool match, confidence 0.2*0.8=0.16
	assert.InDelta(t, 0.285, score, 0.01)
}

func TestCalculateMatchScoreCappedAtOne(t *testing.T) {
	r := sampleRecipe()
	r.Confidence = 5.0
	score := CalculateMatchScore(r, "diagnose_network", []string{"wifi", "ethernet"}, []string{"systemctl_status", "ip_addr"})
	assert.Equal(t, 1.0, score)
}

func TestCheckPreconditionsFileExists(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "exists")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	r := types.Recipe{Preconditions: []types.Precondition{{Kind: types.PreconditionFileExists, Value: existing}}}
	met, reason := CheckPreconditions(r, "")
	assert.True(t, met)
	assert.Empty(t, reason)

	r2 := types.Recipe{Preconditions: []types.Precondition{{Kind: types.PreconditionFileExists, Value: filepath.Join(dir, "missing")}}}
	met2, reason2 := CheckPreconditions(r2, "")
	assert.False(t, met2)
	assert.Contains(t, reason2, "not found")
}

func TestCheckPreconditionsDoctorAffinity(t *testing.T) {
	r := types.Recipe{
		OriginCaseID: "doctor-network-case-1",
		Tags:         []string{"doctor:network"},
	}
	met, _ := CheckPreconditions(r, "network-doctor")
	assert.True(t, met)

	met2, reason2 := CheckPreconditions(r, "audio-doctor")
	assert.False(t, met2)
	assert.Contains(t, reason2, "Requires doctor")
}

func TestFindMatchesFiltersAndSorts(t *testing.T) {
	high := sampleRecipe()
	high.ID = "high"
	low := sampleRecipe()
	low.ID = "low"
	low.Confidence = 0.1
	low.IntentPattern.Targets = nil
	low.IntentPattern.ToolPlan = nil

	matches := FindMatches([]types.Recipe{high, low}, "diagnose_network", []string{"wifi", "ethernet"}, []string{"systemctl_status", "ip_addr"}, "")
	require.NotEmpty(t, matches)
	assert.Equal(t, "high", matches[0].RecipeID)
	assert.True(t, matches[0].Recommended)
}

func TestCheckCreationGateInsufficientEvidenceBlocks(t *testing.T) {
	gate := CheckCreationGate(types.RiskMedium, 96, 2, false)
	assert.False(t, gate.CanCreate)
}

func TestCheckCreationGateLowReliabilityDraft(t *testing.T) {
	gate := CheckCreationGate(types.RiskReadOnly, 85, 2, false)
	assert.True(t, gate.CanCreate)
	assert.Equal(t, types.RecipeStatusDraft, gate.Status)
}

func TestCheckCreationGateMutationActive(t *testing.T) {
	gate := CheckCreationGate(types.RiskMedium, 96, 3, false)
	assert.True(t, gate.CanCreate)
	assert.Equal(t, types.RecipeStatusActive, gate.Status)
}

func TestCheckCreationGateDoctorReadOnlyActive(t *testing.T) {
	gate := CheckCreationGate(types.RiskReadOnly, 82, 2, true)
	assert.True(t, gate.CanCreate)
	assert.Equal(t, types.RecipeStatusActive, gate.Status)
}

func TestRecordUseDemotesAfterThreeFailures(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "recipes.json"))
	r := sampleRecipe()
	mgr.Put(r)
	state, err := LoadState(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	now := time.Now()
	state.RecordUse(mgr, r.ID, "case-1", false, 40, now)
	state.RecordUse(mgr, r.ID, "case-2", false, 40, now)
	state.RecordUse(mgr, r.ID, "case-3", false, 40, now)

	updated, ok := mgr.Get(r.ID)
	require.True(t, ok)
	assert.Equal(t, types.RecipeStatusDraft, updated.Status)
	assert.Equal(t, uint64(3), updated.FailureCount)
}

func TestUpdateCoverageComputesPercent(t *testing.T) {
	state := &EngineState{}
	state.RollingReqs = 10
	state.RollingMatch = 4
	state.UpdateCoverage()
	assert.InDelta(t, 40.0, state.Stats.CoveragePercent, 0.001)
}
