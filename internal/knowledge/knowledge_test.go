package knowledge

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/pkg/types"
)

func TestIsStaleWhenNeverCaptured(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "snapshot.json"))
	assert.True(t, b.IsStale(DefaultMaxAge, time.Now()))
}

func TestIsStaleAfterMaxAge(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "snapshot.json"))
	now := time.Now()
	b.snapshot.CapturedAt = now.Add(-48 * time.Hour)
	assert.True(t, b.IsStale(24*time.Hour, now))
	assert.False(t, b.IsStale(72*time.Hour, now))
}

func TestQueryReturnsCachedFields(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "snapshot.json"))
	b.snapshot = types.KnowledgeSnapshot{
		Hardware: types.HardwareSnapshot{CPUModel: "Ryzen 7", CPUCores: 8, TotalMemMB: 16384, GPU: "Radeon RX 6700"},
		Desktop:  types.DesktopSnapshot{Environment: "GNOME", Session: "wayland"},
		Wallpaper: "/usr/share/backgrounds/default.jpg",
	}

	val, ok := b.Query("cpu")
	require.True(t, ok)
	assert.Equal(t, "Ryzen 7", val)

	val, ok = b.Query("cpu_cores")
	require.True(t, ok)
	assert.Equal(t, "8", val)

	val, ok = b.Query("desktop")
	require.True(t, ok)
	assert.Equal(t, "GNOME", val)

	_, ok = b.Query("unknown_key")
	assert.False(t, ok)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	b := New(path)
	b.snapshot = types.KnowledgeSnapshot{Hardware: types.HardwareSnapshot{CPUModel: "Ryzen 7"}, CapturedAt: time.Now()}
	require.NoError(t, b.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Ryzen 7", loaded.Snapshot().Hardware.CPUModel)
}

func TestLoadMissingFileYieldsEmptySnapshot(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.True(t, b.Snapshot().CapturedAt.IsZero())
}
