// Package trends runs Anna's trend detectors — boot regression, disk
// growth, memory leak, error spikes, swap anomalies, and Anna's own
// inactivity — over windows of Historian samples. Each detector
// returns nil when nothing crosses its threshold; the Insights Engine
// wraps whatever survives into a severity-sorted Insight.
package trends

import (
	"fmt"
	"time"

	"github.com/annassistant/anna/internal/historian"
	"github.com/annassistant/anna/pkg/types"
)

const (
	// bootRegressionWarnFactor and bootRegressionCritFactor are
	// documented thresholds, not recovered from original source (no
	// boot-regression detector exists in the retrieved original-source
	// pack): a boot 50% slower than baseline warrants attention, 2x
	// baseline is urgent.
	bootRegressionWarnFactor = 1.5
	bootRegressionCritFactor = 2.0

	diskCriticalPercent = 90.0
	diskWarningPercent  = 80.0
	diskWarningGrowth   = 1.0 // GB/day

	// diskGrowthMinConfidence is the minimum R-squared the disk-usage
	// regression must clear before its growth rate drives a projection;
	// below it, the fit is too noisy to extrapolate "days until full".
	diskGrowthMinConfidence = 0.5

	errorSpikeCriticalPerHour = 100.0
	errorSpikeWarningPerHour  = 20.0

	// memLeakWarnMBPerDay/memLeakCritMBPerDay are documented thresholds
	// for sustained RAM growth within a window; likewise not recovered
	// from original source.
	memLeakWarnMBPerDay = 50.0
	memLeakCritMBPerDay = 150.0

	swapGateAvgUsedMB   = 1024.0
	swapCriticalPercent = 50.0
	swapWarningPercent  = 20.0

	annaInactivityHours = 168 // 7 days
)

// DetectBootRegression compares the most recent boot duration against
// a median baseline of earlier boots.
func DetectBootRegression(h *historian.Historian, days int) (*types.TrendDetection, error) {
	trend, err := h.GetBootTrend(days)
	if err != nil {
		return nil, fmt.Errorf("get boot trend: %w", err)
	}
	if trend.BaselineMs == 0 || trend.LatestMs == 0 {
		return nil, nil
	}

	ratio := float64(trend.LatestMs) / float64(trend.BaselineMs)
	switch {
	case ratio >= bootRegressionCritFactor:
		return &types.TrendDetection{
			Detector:       "boot_regression",
			Severity:       types.SeverityCritical,
			Title:          "Boot time has regressed sharply",
			Description:    fmt.Sprintf("Last boot took %dms, more than %.0fx the baseline of %dms.", trend.LatestMs, ratio, trend.BaselineMs),
			SupportingData: []string{fmt.Sprintf("latest=%dms", trend.LatestMs), fmt.Sprintf("baseline=%dms", trend.BaselineMs)},
			Recommendation: "Check for newly enabled services or failing units with `systemd-analyze blame`.",
		}, nil
	case ratio >= bootRegressionWarnFactor:
		return &types.TrendDetection{
			Detector:       "boot_regression",
			Severity:       types.SeverityWarning,
			Title:          "Boot time is trending slower",
			Description:    fmt.Sprintf("Last boot took %dms, %.0f%% slower than the %dms baseline.", trend.LatestMs, (ratio-1)*100, trend.BaselineMs),
			SupportingData: []string{fmt.Sprintf("latest=%dms", trend.LatestMs), fmt.Sprintf("baseline=%dms", trend.BaselineMs)},
		}, nil
	}
	return nil, nil
}

// DetectDiskGrowth flags high disk usage or a growth rate that will
// exhaust free space soon.
func DetectDiskGrowth(h *historian.Historian, days int) (*types.TrendDetection, error) {
	trend, err := h.GetDiskTrends(days)
	if err != nil {
		return nil, fmt.Errorf("get disk trends: %w", err)
	}
	if trend.TotalGB == 0 {
		return nil, nil
	}

	supporting := []string{
		fmt.Sprintf("used=%.1fGB/%.1fGB (%.1f%%)", trend.UsedGB, trend.TotalGB, trend.CurrentUsedPercent),
		fmt.Sprintf("growth=%.2fGB/day (r2=%.2f)", trend.GrowthRateGBPerDay, trend.GrowthConfidence),
	}
	reliableGrowth := trend.GrowthConfidence >= diskGrowthMinConfidence

	if trend.CurrentUsedPercent >= diskCriticalPercent {
		det := &types.TrendDetection{
			Detector:       "disk_growth",
			Severity:       types.SeverityCritical,
			Title:          "Disk is nearly full",
			SupportingData: supporting,
		}
		freeGB := trend.TotalGB - trend.UsedGB
		if reliableGrowth && trend.GrowthRateGBPerDay > 0 {
			daysUntilFull := freeGB / trend.GrowthRateGBPerDay
			if daysUntilFull > 0 && daysUntilFull < 30 {
				det.Description = fmt.Sprintf("At the current growth rate, disk will be full in %.0f days.", daysUntilFull)
				det.Recommendation = "Free up space soon; consider `journalctl --vacuum-size=200M` and clearing package caches."
				return det, nil
			}
		}
		det.Description = fmt.Sprintf("Disk is %.1f%% full; consider cleaning up unused files.", trend.CurrentUsedPercent)
		det.Recommendation = "Run a disk usage analyzer to find reclaimable space."
		return det, nil
	}

	if trend.CurrentUsedPercent >= diskWarningPercent || (reliableGrowth && trend.GrowthRateGBPerDay > diskWarningGrowth) {
		return &types.TrendDetection{
			Detector:       "disk_growth",
			Severity:       types.SeverityWarning,
			Title:          "Disk usage is climbing",
			Description:    fmt.Sprintf("Disk usage is %.1f%%, growing at %.2fGB/day.", trend.CurrentUsedPercent, trend.GrowthRateGBPerDay),
			SupportingData: supporting,
		}, nil
	}
	return nil, nil
}

// DetectMemoryLeak compares memory usage at the start and end of the
// window and flags sustained growth.
func DetectMemoryLeak(h *historian.Historian, days int) (*types.TrendDetection, error) {
	samples, err := h.Samples(time.Now().Add(-time.Duration(days) * 24 * time.Hour))
	if err != nil {
		return nil, fmt.Errorf("get samples: %w", err)
	}
	var withMem []struct {
		ts   time.Time
		used uint64
	}
	for _, s := range samples {
		if s.MemTotalMB > 0 {
			withMem = append(withMem, struct {
				ts   time.Time
				used uint64
			}{s.Timestamp, s.MemUsedMB})
		}
	}
	if len(withMem) < 2 {
		return nil, nil
	}

	first, last := withMem[0], withMem[len(withMem)-1]
	elapsedDays := last.ts.Sub(first.ts).Hours() / 24
	if elapsedDays <= 0 {
		return nil, nil
	}
	growthPerDay := float64(int64(last.used)-int64(first.used)) / elapsedDays

	supporting := []string{fmt.Sprintf("growth=%.1fMB/day", growthPerDay)}
	switch {
	case growthPerDay >= memLeakCritMBPerDay:
		return &types.TrendDetection{
			Detector:       "memory_leak",
			Severity:       types.SeverityCritical,
			Title:          "Memory usage is growing steadily",
			Description:    fmt.Sprintf("Memory usage has grown by %.1fMB/day over the last %d days; this looks like a leak rather than normal variation.", growthPerDay, days),
			SupportingData: supporting,
			Recommendation: "Identify the top memory consumer with `ps --sort=-%mem` and consider restarting it.",
		}, nil
	case growthPerDay >= memLeakWarnMBPerDay:
		return &types.TrendDetection{
			Detector:       "memory_leak",
			Severity:       types.SeverityWarning,
			Title:          "Memory usage is trending upward",
			Description:    fmt.Sprintf("Memory usage has grown by %.1fMB/day over the last %d days.", growthPerDay, days),
			SupportingData: supporting,
		}, nil
	}
	return nil, nil
}

// DetectErrorSpike flags an elevated journal error rate.
func DetectErrorSpike(h *historian.Historian, hours int) (*types.TrendDetection, error) {
	trend, err := h.GetErrorTrends(hours)
	if err != nil {
		return nil, fmt.Errorf("get error trends: %w", err)
	}
	supporting := []string{fmt.Sprintf("avg=%.1f errors/hour", trend.AvgErrorsPerHour), fmt.Sprintf("total=%d", trend.TotalErrors)}

	switch {
	case trend.AvgErrorsPerHour >= errorSpikeCriticalPerHour:
		return &types.TrendDetection{
			Detector:       "error_spike",
			Severity:       types.SeverityCritical,
			Title:          "Journal error rate is very high",
			Description:    fmt.Sprintf("Averaging %.0f errors/hour over the last %d hours.", trend.AvgErrorsPerHour, hours),
			SupportingData: supporting,
			Recommendation: "Check `journalctl -p err -b` for the dominant failing unit.",
		}, nil
	case trend.AvgErrorsPerHour >= errorSpikeWarningPerHour:
		return &types.TrendDetection{
			Detector:       "error_spike",
			Severity:       types.SeverityWarning,
			Title:          "Journal error rate is elevated",
			Description:    fmt.Sprintf("Averaging %.0f errors/hour over the last %d hours.", trend.AvgErrorsPerHour, hours),
			SupportingData: supporting,
		}, nil
	}
	return nil, nil
}

// DetectSwapAnomaly flags heavy swap usage, skipped entirely on
// swapless systems.
func DetectSwapAnomaly(h *historian.Historian, days int) (*types.TrendDetection, error) {
	trend, err := h.GetMemoryTrends(days)
	if err != nil {
		return nil, fmt.Errorf("get memory trends: %w", err)
	}
	if trend.SwapTotalMB == 0 {
		return nil, nil
	}
	if float64(trend.AvgSwapUsedMB) <= swapGateAvgUsedMB {
		return nil, nil
	}

	percent := float64(trend.AvgSwapUsedMB) / float64(trend.SwapTotalMB) * 100
	supporting := []string{fmt.Sprintf("avg_swap_used=%dMB/%dMB (%.1f%%)", trend.AvgSwapUsedMB, trend.SwapTotalMB, percent)}

	switch {
	case percent >= swapCriticalPercent:
		return &types.TrendDetection{
			Detector:       "swap_anomaly",
			Severity:       types.SeverityCritical,
			Title:          "Swap usage is heavy",
			Description:    fmt.Sprintf("Swap is %.1f%% used on average; the system is likely under memory pressure.", percent),
			SupportingData: supporting,
			Recommendation: "Look for a runaway process or add RAM; heavy swapping will make the system feel sluggish.",
		}, nil
	case percent >= swapWarningPercent:
		return &types.TrendDetection{
			Detector:       "swap_anomaly",
			Severity:       types.SeverityWarning,
			Title:          "Swap usage is notable",
			Description:    fmt.Sprintf("Swap is %.1f%% used on average.", percent),
			SupportingData: supporting,
		}, nil
	}
	return nil, nil
}

// DetectAnnaInactivity flags that Anna hasn't been invoked in a week.
func DetectAnnaInactivity(h *historian.Historian, hours int) (*types.TrendDetection, error) {
	stats, err := h.GetAnnaUsageStats(hours)
	if err != nil {
		return nil, fmt.Errorf("get anna usage stats: %w", err)
	}
	if stats.HoursSinceLastInvocation <= annaInactivityHours {
		return nil, nil
	}
	return &types.TrendDetection{
		Detector:       "anna_inactivity",
		Severity:       types.SeverityInfo,
		Title:          "Anna hasn't been asked anything in a while",
		Description:    fmt.Sprintf("It's been %d hours since Anna was last invoked.", stats.HoursSinceLastInvocation),
		SupportingData: []string{fmt.Sprintf("hours_since_last_invocation=%d", stats.HoursSinceLastInvocation)},
	}, nil
}

const (
	// errorAnomalyMinDays is the shortest history an isolation forest
	// can usefully train on; below it DetectErrorAnomaly defers to
	// DetectErrorSpike's flat per-hour threshold instead.
	errorAnomalyMinDays = 5

	errorAnomalyScoreThreshold = 0.65
)

// DetectErrorAnomaly flags today's journal error count as anomalous
// against the trailing `days` days of daily totals using an isolation
// forest, catching a day that stands out from this machine's own
// history even when it's still under DetectErrorSpike's fixed
// per-hour thresholds (a machine that normally logs a handful of
// errors a day spiking to 15 is notable locally even though it's far
// under the generic "critical" cutoff).
func DetectErrorAnomaly(h *historian.Historian, days int) (*types.TrendDetection, error) {
	counts, err := h.DailyErrorCounts(days)
	if err != nil {
		return nil, fmt.Errorf("get daily error counts: %w", err)
	}
	if len(counts) < errorAnomalyMinDays {
		return nil, nil
	}

	today := counts[len(counts)-1]
	history := counts[:len(counts)-1]

	forest := newIsolationForest(100, len(history), 8)
	forest.fit(history)
	score := forest.score(today)
	if score < errorAnomalyScoreThreshold {
		return nil, nil
	}

	severity := types.SeverityWarning
	if score >= 0.85 {
		severity = types.SeverityCritical
	}
	return &types.TrendDetection{
		Detector:    "error_anomaly",
		Severity:    severity,
		Title:       "Today's journal error count is unusual for this machine",
		Description: fmt.Sprintf("Today logged %.0f errors, an outlier against the last %d days (anomaly score %.2f).", today, len(history), score),
		SupportingData: []string{
			fmt.Sprintf("today=%.0f", today),
			fmt.Sprintf("history_days=%d", len(history)),
			fmt.Sprintf("anomaly_score=%.2f", score),
		},
		Recommendation: "Check `journalctl -p err --since today` for what changed.",
	}, nil
}
