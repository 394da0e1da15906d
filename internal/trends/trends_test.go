package trends

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/internal/historian"
	"github.com/annassistant/anna/pkg/types"
)

func TestDetectBootRegressionFlagsCritical(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	now := time.Now()
	for i, d := range []uint64{1000, 1010, 1005, 1020, 3000} {
		require.NoError(t, h.Record(types.HistorianSample{Timestamp: now.Add(time.Duration(i) * time.Hour), BootDurationMs: d}))
	}

	det, err := DetectBootRegression(h, 7)
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, types.SeverityCritical, det.Severity)
}

func TestDetectBootRegressionNilWhenStable(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	now := time.Now()
	for i, d := range []uint64{1000, 1010, 1005, 1020, 1015} {
		require.NoError(t, h.Record(types.HistorianSample{Timestamp: now.Add(time.Duration(i) * time.Hour), BootDurationMs: d}))
	}

	det, err := DetectBootRegression(h, 7)
	require.NoError(t, err)
	assert.Nil(t, det)
}

func TestDetectDiskGrowthCriticalWithProjection(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	base := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: base, DiskTotalGB: 100, DiskUsedGB: 80}))
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: base.Add(10 * 24 * time.Hour), DiskTotalGB: 100, DiskUsedGB: 92}))

	det, err := DetectDiskGrowth(h, 14)
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, types.SeverityCritical, det.Severity)
}

func TestDetectDiskGrowthNilWhenLow(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: time.Now(), DiskTotalGB: 100, DiskUsedGB: 20}))

	det, err := DetectDiskGrowth(h, 7)
	require.NoError(t, err)
	assert.Nil(t, det)
}

func TestDetectErrorSpikeCritical(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	now := time.Now()
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: now.Add(-time.Hour), JournalErrors: 150}))
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: now, JournalErrors: 150}))

	det, err := DetectErrorSpike(h, 2)
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, types.SeverityCritical, det.Severity)
}

func TestDetectSwapAnomalySkippedWhenNoSwap(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: time.Now(), MemTotalMB: 8000, MemUsedMB: 4000, SwapTotalMB: 0}))

	det, err := DetectSwapAnomaly(h, 7)
	require.NoError(t, err)
	assert.Nil(t, det)
}

func TestDetectSwapAnomalyCriticalWhenHeavy(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: time.Now(), MemTotalMB: 8000, MemUsedMB: 4000, SwapTotalMB: 4000, SwapUsedMB: 3000}))

	det, err := DetectSwapAnomaly(h, 7)
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, types.SeverityCritical, det.Severity)
}

func TestDetectAnnaInactivityInfoAfterAWeek(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: time.Now().Add(-200 * time.Hour), AnnaInvoked: true}))

	det, err := DetectAnnaInactivity(h, 24)
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, types.SeverityInfo, det.Severity)
}

func TestDetectMemoryLeakWarnsOnGrowth(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	base := time.Now().Add(-3 * 24 * time.Hour)
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: base, MemTotalMB: 8000, MemUsedMB: 2000}))
	require.NoError(t, h.Record(types.HistorianSample{Timestamp: base.Add(3 * 24 * time.Hour), MemTotalMB: 8000, MemUsedMB: 2300}))

	det, err := DetectMemoryLeak(h, 7)
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, types.SeverityWarning, det.Severity)
}

func TestDetectErrorAnomalyFlagsOutlierDay(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	base := time.Now().Add(-9 * 24 * time.Hour)
	dailyCounts := []uint64{2, 3, 1, 2, 3, 2, 1, 2, 40}
	for i, c := range dailyCounts {
		require.NoError(t, h.Record(types.HistorianSample{Timestamp: base.Add(time.Duration(i) * 24 * time.Hour), JournalErrors: c}))
	}

	det, err := DetectErrorAnomaly(h, 9)
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, "error_anomaly", det.Detector)
}

func TestDetectErrorAnomalyNilWhenStable(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	base := time.Now().Add(-9 * 24 * time.Hour)
	for i := 0; i < 9; i++ {
		require.NoError(t, h.Record(types.HistorianSample{Timestamp: base.Add(time.Duration(i) * 24 * time.Hour), JournalErrors: 2}))
	}

	det, err := DetectErrorAnomaly(h, 9)
	require.NoError(t, err)
	assert.Nil(t, det)
}

func TestDetectErrorAnomalyNilWithInsufficientHistory(t *testing.T) {
	h := historian.NewAt(t.TempDir())
	base := time.Now().Add(-2 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Record(types.HistorianSample{Timestamp: base.Add(time.Duration(i) * 24 * time.Hour), JournalErrors: 2}))
	}

	det, err := DetectErrorAnomaly(h, 3)
	require.NoError(t, err)
	assert.Nil(t, det)
}
