package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/internal/historian"
	"github.com/annassistant/anna/pkg/types"
)

func TestGenerateInsightsSortsBySeverityDescending(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	now := time.Now()

	// Critical disk usage.
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: now, DiskTotalGB: 100, DiskUsedGB: 95}))
	// Info-level inactivity.
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: now.Add(-200 * time.Hour), AnnaInvoked: true}))

	e := New(h)
	results, err := e.GenerateInsights(24)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Severity.Weight(), results[i].Severity.Weight())
	}
	assert.Equal(t, types.SeverityCritical, results[0].Severity)
}

func TestGenerateInsightsEmptyWhenNothingTriggers(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	e := New(h)
	results, err := e.GenerateInsights(24)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGetTopInsightsTruncates(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	now := time.Now()
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: now, DiskTotalGB: 100, DiskUsedGB: 95}))
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: now.Add(-time.Hour), JournalErrors: 500}))
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: now, JournalErrors: 500}))

	e := New(h)
	results, err := e.GetTopInsights(1, 24)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestInsightIDIncludesDetectorAndTimestamp(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	now := time.Now()
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: now, DiskTotalGB: 100, DiskUsedGB: 95}))

	e := New(h)
	results, err := e.GenerateInsights(24)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].ID, "disk_growth_")
}
