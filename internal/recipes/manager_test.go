package recipes

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/pkg/types"
)

func TestManagerSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.json")
	mgr := NewManager(path)
	mgr.Put(types.Recipe{ID: "r1", Name: "one", Status: types.RecipeStatusActive})
	mgr.Put(types.Recipe{ID: "r2", Name: "two", Status: types.RecipeStatusDraft})
	require.NoError(t, mgr.Save())

	loaded, err := LoadManager(path)
	require.NoError(t, err)
	r1, ok := loaded.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "one", r1.Name)
	assert.Len(t, loaded.All(), 2)
	assert.Len(t, loaded.Active(), 1)
}

func TestLoadManagerMissingFileYieldsEmpty(t *testing.T) {
	mgr, err := LoadManager(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, mgr.All())
}
