// Package recipes implements the Recipe Engine: matching a candidate
// recipe against an incoming request's canonical intent/targets/tool
// plan, gating whether a completed case is reliable enough to mint a
// new recipe, and tracking success/failure so a recipe is promoted to
// Active or demoted back to Draft automatically.
package recipes

import (
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/annassistant/anna/internal/atomicfile"
	"github.com/annassistant/anna/pkg/types"
)

// Dir is where the recipe store and engine state live.
var Dir = "/var/lib/anna/recipes"

type recipeWireFormat struct {
	Version int            `json:"version"`
	Recipes []types.Recipe `json:"recipes"`
}

// Manager persists the recipe catalog to a single JSON file, matching
// the Fact Store's sorted-slice-on-disk convention for deterministic
// diffs.
type Manager struct {
	mu      sync.RWMutex
	path    string
	recipes map[string]types.Recipe
}

// NewManager creates an empty, unpersisted Manager.
func NewManager(path string) *Manager {
	return &Manager{path: path, recipes: make(map[string]types.Recipe)}
}

// LoadManager reads the recipe catalog from path; a missing file
// yields an empty catalog.
func LoadManager(path string) (*Manager, error) {
	m := NewManager(path)
	var wire recipeWireFormat
	if err := atomicfile.ReadJSON(path, &wire); err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	for _, r := range wire.Recipes {
		m.recipes[r.ID] = r
	}
	return m, nil
}

// Save writes every recipe to disk sorted by ID.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wire := recipeWireFormat{Version: 1}
	for _, r := range m.recipes {
		wire.Recipes = append(wire.Recipes, r)
	}
	sort.Slice(wire.Recipes, func(i, j int) bool { return wire.Recipes[i].ID < wire.Recipes[j].ID })
	return atomicfile.WriteJSON(m.path, wire)
}

// Put inserts or replaces a recipe.
func (m *Manager) Put(r types.Recipe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipes[r.ID] = r
}

// Get returns a recipe by ID.
func (m *Manager) Get(id string) (types.Recipe, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recipes[id]
	return r, ok
}

// All returns every recipe, in no particular order.
func (m *Manager) All() []types.Recipe {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Recipe, 0, len(m.recipes))
	for _, r := range m.recipes {
		out = append(out, r)
	}
	return out
}

// Active returns every recipe with Active status.
func (m *Manager) Active() []types.Recipe {
	var out []types.Recipe
	for _, r := range m.All() {
		if r.Status == types.RecipeStatusActive {
			out = append(out, r)
		}
	}
	return out
}

// RecordSuccess increments a recipe's success count and resets its
// failure count, so FailureCount counts consecutive failures.
func (m *Manager) RecordSuccess(id string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok {
		return
	}
	r.SuccessCount++
	r.FailureCount = 0
	r.UpdatedAt = now
	m.recipes[id] = r
}

// RecordFailure increments a recipe's failure count and demotes it to
// Draft if it has now failed DemotionFailureThreshold times in a row
// while Active.
func (m *Manager) RecordFailure(id string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok {
		return
	}
	r.FailureCount++
	r.UpdatedAt = now
	if r.FailureCount >= DemotionFailureThreshold && r.Status == types.RecipeStatusActive {
		r.Status = types.RecipeStatusDraft
		r.Notes += "\n[" + now.Format("2006-01-02") + "] Demoted due to " + strconv.FormatUint(r.FailureCount, 10) + " consecutive failures"
	}
	m.recipes[id] = r
}
