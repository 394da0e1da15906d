package fixit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/pkg/types"
)

func TestIsFixItRequest(t *testing.T) {
	assert.True(t, IsFixItRequest("WiFi keeps disconnecting"))
	assert.True(t, IsFixItRequest("My computer is slower"))
	assert.True(t, IsFixItRequest("Sound is broken"))
	assert.True(t, IsFixItRequest("My service won't start"))
	assert.True(t, IsFixItRequest("Fix my network"))

	assert.False(t, IsFixItRequest("What CPU do I have?"))
	assert.False(t, IsFixItRequest("Install nginx"))
	assert.False(t, IsFixItRequest("Show me disk usage"))
}

func TestDetectCategory(t *testing.T) {
	assert.Equal(t, types.CategoryNetworking, DetectCategory("WiFi keeps disconnecting"))
	assert.Equal(t, types.CategoryAudio, DetectCategory("No sound from speakers"))
	assert.Equal(t, types.CategoryPerformance, DetectCategory("System is very slow"))
	assert.Equal(t, types.CategorySystemdService, DetectCategory("nginx service won't start"))
	assert.Equal(t, types.CategoryStorage, DetectCategory("Disk is full"))
}

func TestNewSessionStartsInUnderstand(t *testing.T) {
	s := NewSession("test-123", "WiFi keeps disconnecting")
	assert.Equal(t, types.FixItUnderstand, s.CurrentState)
	assert.Equal(t, types.CategoryNetworking, s.Category)
	assert.Equal(t, 0, s.HypothesisCycles)
}

func TestTransitionRecordsTimeline(t *testing.T) {
	s := NewSession("test-123", "WiFi issue")
	Transition(s, types.FixItEvidence, []string{"E1"}, "Starting evidence collection", time.Now())

	assert.Equal(t, types.FixItEvidence, s.CurrentState)
	require.Len(t, s.Timeline, 1)
	assert.Equal(t, types.FixItUnderstand, s.Timeline[0].From)
	assert.Equal(t, types.FixItEvidence, s.Timeline[0].To)
}

func TestHypothesisCycleLimit(t *testing.T) {
	s := NewSession("test-123", "Some problem")
	assert.True(t, CanHypothesize(s))

	NextCycle(s)
	assert.True(t, CanHypothesize(s))

	NextCycle(s)
	assert.False(t, CanHypothesize(s))
}

func TestChangeSetLimit(t *testing.T) {
	cs := NewChangeSet()
	for i := 0; i < MaxMutationsPerBatch; i++ {
		err := AddChange(cs, types.ChangeItem{ID: "C", What: "test", Why: "test", Risk: types.RiskLow, RollbackAction: "test", PostCheck: "test"})
		require.NoError(t, err)
	}

	err := AddChange(cs, types.ChangeItem{ID: "C6", What: "test", Why: "test", Risk: types.RiskLow, RollbackAction: "test", PostCheck: "test"})
	assert.Error(t, err)
}

func TestToolBundles(t *testing.T) {
	bundle := ToolBundle(types.CategoryNetworking)
	assert.Contains(t, bundle, "hw_snapshot_summary")
	found := false
	for _, tool := range bundle {
		if strings.Contains(tool, "NetworkManager") {
			found = true
		}
	}
	assert.True(t, found)

	bundle = ToolBundle(types.CategoryAudio)
	found = false
	for _, tool := range bundle {
		if strings.Contains(tool, "pipewire") || strings.Contains(tool, "pulseaudio") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestChangeSetConfirmationFormat(t *testing.T) {
	cs := NewChangeSet()
	err := AddChange(cs, types.ChangeItem{
		ID: "C1", What: "Restart NetworkManager", Why: "Reset network state",
		Risk: types.RiskLow, RollbackAction: "Stop NetworkManager", PostCheck: "Check network connectivity",
	})
	require.NoError(t, err)

	formatted := FormatForConfirmation(cs)
	assert.Contains(t, formatted, "Restart NetworkManager")
	assert.Contains(t, formatted, FixConfirmation)
}

func TestMarkStuckSetsReasonAndTransitions(t *testing.T) {
	s := NewSession("test-123", "weird issue")
	MarkStuck(s, "exhausted hypothesis cycles", time.Now())
	assert.Equal(t, types.FixItStuck, s.CurrentState)
	assert.Equal(t, "exhausted hypothesis cycles", s.StuckReason)
}
