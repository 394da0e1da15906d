package optimization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/annassistant/anna/pkg/types"
)

func ptr(t time.Time) *time.Time { return &t }

func TestBuildOptimizationProfileSuppressesNoisyDetector(t *testing.T) {
	now := time.Now()
	triggered := now.Add(-10 * 24 * time.Hour)
	meta := []types.DetectorMetaStats{
		{Detector: "swap_anomaly", TriggerCount: 8, LastTriggeredAt: ptr(triggered), LastSeverity: types.SeverityWarning},
	}
	profile := BuildOptimizationProfile(meta, types.DetailNormal, now)
	assert.Contains(t, profile.SuppressedKinds, "swap_anomaly")
}

func TestBuildOptimizationProfileNeverSuppressesCritical(t *testing.T) {
	now := time.Now()
	triggered := now.Add(-10 * 24 * time.Hour)
	meta := []types.DetectorMetaStats{
		{Detector: "disk_growth", TriggerCount: 8, LastTriggeredAt: ptr(triggered), LastSeverity: types.SeverityCritical},
	}
	profile := BuildOptimizationProfile(meta, types.DetailNormal, now)
	assert.NotContains(t, profile.SuppressedKinds, "disk_growth")
}

func TestBuildOptimizationProfileHighlightsFastResolvingDetector(t *testing.T) {
	now := time.Now()
	triggered := now.Add(-10 * 24 * time.Hour)
	resolved := triggered.Add(2 * 24 * time.Hour)
	meta := []types.DetectorMetaStats{
		{Detector: "error_spike", TriggerCount: 3, LastTriggeredAt: ptr(triggered), LastResolvedAt: ptr(resolved)},
	}
	profile := BuildOptimizationProfile(meta, types.DetailNormal, now)
	assert.Contains(t, profile.HighlightedKinds, "error_spike")
}

func TestShouldSuppressRespectsHighlightOverride(t *testing.T) {
	profile := types.OptimizationProfile{
		SuppressedKinds:  []string{"swap_anomaly"},
		HighlightedKinds: []string{"swap_anomaly"},
	}
	insight := types.Insight{Detector: "swap_anomaly", Severity: types.SeverityWarning}
	assert.False(t, ShouldSuppress(profile, insight))
}

func TestShouldSuppressNeverAppliesToCritical(t *testing.T) {
	profile := types.OptimizationProfile{SuppressedKinds: []string{"swap_anomaly"}}
	insight := types.Insight{Detector: "swap_anomaly", Severity: types.SeverityCritical}
	assert.False(t, ShouldSuppress(profile, insight))
}

func TestShouldHighlightTrueOnlyWhenListed(t *testing.T) {
	profile := types.OptimizationProfile{HighlightedKinds: []string{"error_spike"}}
	assert.True(t, ShouldHighlight(profile, types.Insight{Detector: "error_spike"}))
	assert.False(t, ShouldHighlight(profile, types.Insight{Detector: "disk_growth"}))
}
