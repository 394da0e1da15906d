package recipes

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/annassistant/anna/internal/atomicfile"
	"github.com/annassistant/anna/pkg/types"
)

const (
	// MinMatchScore is the floor below which a recipe isn't even
	// considered a candidate match.
	MinMatchScore = 0.40
	// RecommendScore is the floor above which a precondition-satisfying
	// match is actively recommended rather than merely surfaced.
	RecommendScore = 0.60
	// DemotionFailureThreshold is how many consecutive failures demote
	// an Active recipe back to Draft.
	DemotionFailureThreshold uint64 = 3

	minReliabilityReadOnly uint8 = 90
	minReliabilityDoctor   uint8 = 80
	minReliabilityMutation uint8 = 95

	minEvidenceReadOnly int = 1
	minEvidenceDoctor   int = 2
	minEvidenceMutation int = 3

	rollingWindow = 100
)

// CalculateMatchScore scores a recipe against a request's canonical
// intent, targets, and planned tools: 30% intent match, 25% target
// overlap, 25% tool-plan overlap, 20% the recipe's own confidence,
// capped at 1.0.
func CalculateMatchScore(recipe types.Recipe, intent string, targets, toolsPlanned []string) float64 {
	var score float64

	if normalizeIntent(intent) == normalizeIntent(recipe.IntentPattern.IntentType) {
		score += 0.30
	}

	if len(recipe.IntentPattern.Targets) > 0 && len(targets) > 0 {
		matched := 0
		for _, rt := range recipe.IntentPattern.Targets {
			if containsFold(targets, rt) {
				matched++
			}
		}
		score += 0.25 * (float64(matched) / float64(len(recipe.IntentPattern.Targets)))
	}

	if len(recipe.IntentPattern.ToolPlan) > 0 && len(toolsPlanned) > 0 {
		matched := 0
		for _, step := range recipe.IntentPattern.ToolPlan {
			if contains(toolsPlanned, step.ToolName) {
				matched++
			}
		}
		score += 0.25 * (float64(matched) / float64(len(recipe.IntentPattern.ToolPlan)))
	}

	score += 0.20 * recipe.Confidence
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// CheckPreconditions evaluates a recipe's preconditions against the
// live system, plus a doctor-affinity check when the recipe originated
// from a doctor-tagged case.
func CheckPreconditions(recipe types.Recipe, doctorID string) (bool, string) {
	for _, pc := range recipe.Preconditions {
		switch pc.Kind {
		case types.PreconditionPackageInstalled:
			if !isPackageInstalled(pc.Value) {
				return false, "Package '" + pc.Value + "' not installed"
			}
		case types.PreconditionServiceRunning:
			if !isServiceRunning(pc.Value) {
				return false, "Service '" + pc.Value + "' not running"
			}
		case types.PreconditionFileExists:
			if _, err := os.Stat(pc.Value); err != nil {
				return false, "File '" + pc.Value + "' not found"
			}
		case types.PreconditionCommandSucceeds:
			if !commandSucceeds(pc.Value) {
				return false, "Command '" + pc.Value + "' failed"
			}
		}
	}

	if recipe.OriginCaseID != "" && strings.Contains(recipe.OriginCaseID, "doctor") {
		for _, tag := range recipe.Tags {
			required, ok := strings.CutPrefix(tag, "doctor:")
			if !ok {
				continue
			}
			if doctorID != "" && !strings.Contains(doctorID, required) {
				return false, "Requires doctor '" + required + "'"
			}
		}
	}

	return true, ""
}

// FindMatches scores every Active recipe against a request and
// returns those at or above MinMatchScore, sorted by score descending.
func FindMatches(catalog []types.Recipe, intent string, targets []string, toolsPlanned []string, doctorID string) []types.RecipeMatch {
	var matches []types.RecipeMatch
	for _, recipe := range catalog {
		if recipe.Status != types.RecipeStatusActive {
			continue
		}
		score := CalculateMatchScore(recipe, intent, targets, toolsPlanned)
		if score < MinMatchScore {
			continue
		}
		met, failure := CheckPreconditions(recipe, doctorID)
		matches = append(matches, types.RecipeMatch{
			RecipeID:            recipe.ID,
			Name:                recipe.Name,
			Score:               score,
			PreconditionsMet:    met,
			PreconditionFailure: failure,
			Recommended:         met && score >= RecommendScore,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

// CheckCreationGate decides whether a completed case is reliable
// enough to mint a recipe, and at what starting status. The evidence
// gate is checked first: insufficient evidence blocks creation
// outright regardless of reliability.
func CheckCreationGate(risk types.RiskLevel, reliabilityScore uint8, evidenceCount int, isDoctorCase bool) types.RecipeGate {
	minReliability, minEvidence := thresholdsFor(risk, isDoctorCase)

	if evidenceCount < minEvidence {
		return types.RecipeGate{
			CanCreate: false,
			Status:    types.RecipeStatusDraft,
			Reason:    "insufficient evidence for this risk class",
		}
	}

	if reliabilityScore < minReliability {
		return types.RecipeGate{
			CanCreate: true,
			Status:    types.RecipeStatusDraft,
			Reason:    "reliability below threshold, created as draft",
		}
	}

	return types.RecipeGate{
		CanCreate: true,
		Status:    types.RecipeStatusActive,
		Reason:    "reliability and evidence thresholds met",
	}
}

func thresholdsFor(risk types.RiskLevel, isDoctorCase bool) (uint8, int) {
	if risk == types.RiskReadOnly {
		if isDoctorCase {
			return minReliabilityDoctor, minEvidenceDoctor
		}
		return minReliabilityReadOnly, minEvidenceReadOnly
	}
	return minReliabilityMutation, minEvidenceMutation
}

func normalizeIntent(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func isPackageInstalled(name string) bool {
	return exec.Command("pacman", "-Q", name).Run() == nil
}

func isServiceRunning(name string) bool {
	return exec.Command("systemctl", "is-active", "--quiet", name).Run() == nil
}

func commandSucceeds(command string) bool {
	return exec.Command("sh", "-c", command).Run() == nil
}

// EngineState is the engine's persisted running statistics and rolling
// coverage window.
type EngineState struct {
	mu            sync.Mutex
	path          string
	Stats         types.RecipeEngineStats
	RecentUses    []types.RecipeUseRecord
	RollingReqs   uint64
	RollingMatch  uint64
}

// StatePath is the default location for the engine's coverage/stats state.
func StatePath() string { return filepath.Join(Dir, "internal", "recipe_engine_state.json") }

// LoadState reads engine state from path, yielding a fresh state if
// the file doesn't exist yet.
func LoadState(path string) (*EngineState, error) {
	st := &EngineState{path: path}
	var wire struct {
		Stats        types.RecipeEngineStats   `json:"stats"`
		RecentUses   []types.RecipeUseRecord   `json:"recent_uses"`
		RollingReqs  uint64                    `json:"rolling_requests"`
		RollingMatch uint64                    `json:"rolling_matches"`
	}
	if err := atomicfile.ReadJSON(path, &wire); err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, err
	}
	st.Stats = wire.Stats
	st.RecentUses = wire.RecentUses
	st.RollingReqs = wire.RollingReqs
	st.RollingMatch = wire.RollingMatch
	return st, nil
}

// Save persists engine state.
func (s *EngineState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wire := struct {
		Stats        types.RecipeEngineStats `json:"stats"`
		RecentUses   []types.RecipeUseRecord `json:"recent_uses"`
		RollingReqs  uint64                  `json:"rolling_requests"`
		RollingMatch uint64                  `json:"rolling_matches"`
	}{s.Stats, s.RecentUses, s.RollingReqs, s.RollingMatch}
	return atomicfile.WriteJSON(s.path, wire)
}

// UpdateCoverage recomputes coverage_percent from the rolling window.
func (s *EngineState) UpdateCoverage() {
	if s.RollingReqs == 0 {
		return
	}
	s.Stats.CoveragePercent = (float64(s.RollingMatch) / float64(s.RollingReqs)) * 100
}

// RecordRequest tallies one processed request for coverage tracking.
func (s *EngineState) RecordRequest(matchedRecipe bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stats.MatchAttempts++
	s.RollingReqs++
	if matchedRecipe {
		s.RollingMatch++
	}
	s.UpdateCoverage()
	s.Stats.UpdatedAt = now
}

// RecordUse records the outcome of using a recipe: updates the
// recipe's own success/failure counters via mgr (including demotion),
// appends to the rolling use-record window (capped at the last 100),
// and updates coverage stats.
func (s *EngineState) RecordUse(mgr *Manager, recipeID, caseID string, success bool, reliabilityScore uint8, now time.Time) {
	if success {
		mgr.RecordSuccess(recipeID, now)
	} else {
		mgr.RecordFailure(recipeID, now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.RecentUses = append(s.RecentUses, types.RecipeUseRecord{
		RecipeID:    recipeID,
		CaseID:      caseID,
		Timestamp:   now,
		Success:     success,
		Reliability: reliabilityScore,
	})
	if len(s.RecentUses) > rollingWindow {
		s.RecentUses = s.RecentUses[len(s.RecentUses)-rollingWindow:]
	}

	s.RollingReqs++
	s.RollingMatch++
	if success {
		s.Stats.RecipeUses++
	} else {
		s.Stats.RecipeFailures++
	}
	s.Stats.UpdatedAt = now
	s.UpdateCoverage()
}
