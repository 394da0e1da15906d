package types

import "time"

// RecipeStatus is a recipe's lifecycle stage.
type RecipeStatus string

const (
	RecipeStatusDraft      RecipeStatus = "draft"
	RecipeStatusActive     RecipeStatus = "active"
	RecipeStatusDeprecated RecipeStatus = "deprecated"
)

// PreconditionKind is the closed set of precondition checks a recipe
// can require before it is recommended for use.
type PreconditionKind string

const (
	PreconditionPackageInstalled PreconditionKind = "package_installed"
	PreconditionServiceRunning   PreconditionKind = "service_running"
	PreconditionFileExists       PreconditionKind = "file_exists"
	PreconditionCommandSucceeds  PreconditionKind = "command_succeeds"
)

// Precondition is one gate a Recipe requires before it's recommended.
type Precondition struct {
	Kind  PreconditionKind `json:"kind"`
	Value string           `json:"value"` // package/service/file/command, depending on Kind
}

// ToolPlanStep is one planned tool invocation within a Recipe.
type ToolPlanStep struct {
	ToolName string `json:"tool_name"`
}

// IntentPattern is what a Recipe matches incoming requests against.
type IntentPattern struct {
	IntentType string         `json:"intent_type"`
	Targets    []string       `json:"targets,omitempty"`
	ToolPlan   []ToolPlanStep `json:"tool_plan,omitempty"`
}

// Recipe is a reusable, gated solution pattern learned from prior
// cases: a matcher (IntentPattern), preconditions to check before
// recommending it, and a success/failure track record that governs
// promotion to Active and demotion back to Draft.
type Recipe struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	IntentPattern IntentPattern  `json:"intent_pattern"`
	Preconditions []Precondition `json:"preconditions,omitempty"`
	Status        RecipeStatus   `json:"status"`
	Confidence    float64        `json:"confidence"`
	SuccessCount  uint64         `json:"success_count"`
	FailureCount  uint64         `json:"failure_count"`
	OriginCaseID  string         `json:"origin_case_id,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// RecipeMatch is one Recipe scored against an incoming request.
type RecipeMatch struct {
	RecipeID             string  `json:"recipe_id"`
	Name                 string  `json:"name"`
	Score                float64 `json:"score"`
	PreconditionsMet     bool    `json:"preconditions_met"`
	PreconditionFailure  string  `json:"precondition_failure,omitempty"`
	Recommended          bool    `json:"recommended"`
}

// RecipeGate is the result of evaluating whether a completed case
// should mint a new Recipe.
type RecipeGate struct {
	CanCreate bool         `json:"can_create"`
	Status    RecipeStatus `json:"status"`
	Reason    string       `json:"reason"`
}

// DomainRecipeStats aggregates recipe performance within one tag-derived domain.
type DomainRecipeStats struct {
	ActiveRecipes int     `json:"active_recipes"`
	TotalUses     uint64  `json:"total_uses"`
	SuccessRate   float64 `json:"success_rate"`
}

// RecipeEngineStats is the engine's running statistics.
type RecipeEngineStats struct {
	MatchAttempts   uint64                       `json:"match_attempts"`
	RecipeUses      uint64                       `json:"recipe_uses"`
	RecipeFailures  uint64                       `json:"recipe_failures"`
	RecipesCreated  uint64                       `json:"recipes_created"`
	RecipesDemoted  uint64                       `json:"recipes_demoted"`
	CoveragePercent float64                      `json:"coverage_percent"`
	DomainStats     map[string]DomainRecipeStats `json:"domain_stats,omitempty"`
	UpdatedAt       time.Time                    `json:"updated_at"`
}

// RecipeUseRecord is one recorded use of a recipe, kept in a rolling
// window for coverage tracking.
type RecipeUseRecord struct {
	RecipeID    string    `json:"recipe_id"`
	CaseID      string    `json:"case_id"`
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	Reliability uint8     `json:"reliability_score"`
}
