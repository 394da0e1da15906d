// Package historian persists time-bucketed probe samples — disk usage,
// memory/swap, journal error counts, boot durations, Anna invocations —
// and answers the windowed trend queries the Trend Detectors and
// Insights Engine run against them. Bucket files (one JSON file per
// UTC day) are the canonical, durable form; a SQLite index
// (internal/db) is a derived accelerator, rebuildable from the bucket
// files and never the source of truth for a sample itself.
package historian

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/annassistant/anna/internal/atomicfile"
	"github.com/annassistant/anna/pkg/types"
)

// Dir is where daily bucket files are written. A var, not a const, so
// tests can redirect it.
var Dir = "/var/lib/anna/historian"

// Historian accumulates probe samples into daily JSON buckets and
// serves windowed trend queries over them.
type Historian struct {
	mu  sync.Mutex
	dir string
}

// New returns a Historian rooted at Dir.
func New() *Historian { return &Historian{dir: Dir} }

// NewAt returns a Historian rooted at an explicit directory, for tests.
func NewAt(dir string) *Historian { return &Historian{dir: dir} }

func bucketPath(dir string, day time.Time) string {
	return filepath.Join(dir, day.UTC().Format("2006-01-02")+".json")
}

// Record appends one sample to the bucket for its timestamp's UTC day.
func (h *Historian) Record(sample types.HistorianSample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	path := bucketPath(h.dir, sample.Timestamp)
	var bucket []types.HistorianSample
	if err := atomicfile.ReadJSON(path, &bucket); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read bucket %s: %w", path, err)
	}
	bucket = append(bucket, sample)
	return atomicfile.WriteJSON(path, bucket)
}

// Samples returns every sample recorded at or after since, oldest
// first, by reading every daily bucket the window touches.
func (h *Historian) Samples(since time.Time) ([]types.HistorianSample, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UTC()
	var all []types.HistorianSample
	for day := since.UTC().Truncate(24 * time.Hour); !day.After(now); day = day.Add(24 * time.Hour) {
		var bucket []types.HistorianSample
		if err := atomicfile.ReadJSON(bucketPath(h.dir, day), &bucket); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read bucket for %s: %w", day.Format("2006-01-02"), err)
		}
		for _, s := range bucket {
			if !s.Timestamp.Before(since) {
				all = append(all, s)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

// GetDiskTrends computes current usage and a linear growth-rate
// projection over the trailing `days` days.
func (h *Historian) GetDiskTrends(days int) (types.DiskTrend, error) {
	samples, err := h.Samples(time.Now().Add(-time.Duration(days) * 24 * time.Hour))
	if err != nil {
		return types.DiskTrend{}, err
	}
	diskSamples := filterNonZero(samples, func(s types.HistorianSample) bool { return s.DiskTotalGB > 0 })
	if len(diskSamples) == 0 {
		return types.DiskTrend{}, nil
	}

	latest := diskSamples[len(diskSamples)-1]
	trend := types.DiskTrend{
		UsedGB:  latest.DiskUsedGB,
		TotalGB: latest.DiskTotalGB,
	}
	if latest.DiskTotalGB > 0 {
		trend.CurrentUsedPercent = (latest.DiskUsedGB / latest.DiskTotalGB) * 100
	}

	first := diskSamples[0]
	elapsedDays := latest.Timestamp.Sub(first.Timestamp).Hours() / 24
	if elapsedDays > 0 && len(diskSamples) >= 2 {
		xs := make([]float64, len(diskSamples))
		ys := make([]float64, len(diskSamples))
		for i, s := range diskSamples {
			xs[i] = s.Timestamp.Sub(first.Timestamp).Hours() / 24
			ys[i] = s.DiskUsedGB
		}
		slope, _, rSquared := linearRegression(xs, ys)
		trend.GrowthRateGBPerDay = slope
		trend.GrowthConfidence = rSquared
	}
	return trend, nil
}

// GetMemoryTrends computes average RAM/swap usage over the trailing
// `days` days.
func (h *Historian) GetMemoryTrends(days int) (types.MemoryTrend, error) {
	samples, err := h.Samples(time.Now().Add(-time.Duration(days) * 24 * time.Hour))
	if err != nil {
		return types.MemoryTrend{}, err
	}
	memSamples := filterNonZero(samples, func(s types.HistorianSample) bool { return s.MemTotalMB > 0 })
	if len(memSamples) == 0 {
		return types.MemoryTrend{}, nil
	}

	var sumUsed, sumSwap uint64
	var swapTotal uint64
	for _, s := range memSamples {
		sumUsed += s.MemUsedMB
		sumSwap += s.SwapUsedMB
		if s.SwapTotalMB > swapTotal {
			swapTotal = s.SwapTotalMB
		}
	}
	n := uint64(len(memSamples))
	return types.MemoryTrend{
		AvgUsedMB:     sumUsed / n,
		AvgSwapUsedMB: sumSwap / n,
		SwapTotalMB:   swapTotal,
	}, nil
}

// GetErrorTrends computes average journal errors/hour and the total
// over the trailing `hours` hours.
func (h *Historian) GetErrorTrends(hours int) (types.ErrorTrend, error) {
	samples, err := h.Samples(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		return types.ErrorTrend{}, err
	}

	var total uint64
	for _, s := range samples {
		total += s.JournalErrors
	}
	if hours <= 0 {
		return types.ErrorTrend{TotalErrors: total}, nil
	}
	return types.ErrorTrend{
		TotalErrors:      total,
		AvgErrorsPerHour: float64(total) / float64(hours),
	}, nil
}

// DailyErrorCounts sums JournalErrors per UTC calendar day over the
// trailing `days` days, oldest first. A day with no recorded samples
// is omitted rather than reported as zero, so a detector comparing
// today against history isn't thrown off by gaps from a machine that
// was powered off.
func (h *Historian) DailyErrorCounts(days int) ([]float64, error) {
	samples, err := h.Samples(time.Now().Add(-time.Duration(days) * 24 * time.Hour))
	if err != nil {
		return nil, err
	}

	totals := make(map[string]uint64)
	var order []string
	for _, s := range samples {
		key := s.Timestamp.UTC().Format("2006-01-02")
		if _, seen := totals[key]; !seen {
			order = append(order, key)
		}
		totals[key] += s.JournalErrors
	}

	counts := make([]float64, len(order))
	for i, key := range order {
		counts[i] = float64(totals[key])
	}
	return counts, nil
}

// GetBootTrend returns recorded boot durations, most recent last, plus
// a baseline (the median of all but the most recent three samples, or
// the oldest sample if there aren't enough for a baseline).
func (h *Historian) GetBootTrend(days int) (types.BootTrend, error) {
	samples, err := h.Samples(time.Now().Add(-time.Duration(days) * 24 * time.Hour))
	if err != nil {
		return types.BootTrend{}, err
	}

	var durations []uint64
	for _, s := range samples {
		if s.BootDurationMs > 0 {
			durations = append(durations, s.BootDurationMs)
		}
	}
	if len(durations) == 0 {
		return types.BootTrend{}, nil
	}

	trend := types.BootTrend{Samples: durations, LatestMs: durations[len(durations)-1]}
	baselineSet := durations
	if len(durations) > 3 {
		baselineSet = durations[:len(durations)-3]
	}
	trend.BaselineMs = median(baselineSet)
	return trend, nil
}

// GetAnnaUsageStats reports how long it has been since Anna was last
// invoked and how many invocations fell in the trailing `hours` hours.
func (h *Historian) GetAnnaUsageStats(hours int) (types.AnnaUsageStats, error) {
	lookback := time.Now().Add(-30 * 24 * time.Hour)
	samples, err := h.Samples(lookback)
	if err != nil {
		return types.AnnaUsageStats{}, err
	}

	var lastInvocation time.Time
	windowStart := time.Now().Add(-time.Duration(hours) * time.Hour)
	inWindow := 0
	for _, s := range samples {
		if !s.AnnaInvoked {
			continue
		}
		if s.Timestamp.After(lastInvocation) {
			lastInvocation = s.Timestamp
		}
		if !s.Timestamp.Before(windowStart) {
			inWindow++
		}
	}

	stats := types.AnnaUsageStats{InvocationsInWindow: inWindow}
	if lastInvocation.IsZero() {
		stats.HoursSinceLastInvocation = int64(hours) // no record: treat as the whole window stale
		return stats, nil
	}
	stats.HoursSinceLastInvocation = int64(time.Since(lastInvocation).Hours())
	return stats, nil
}

func filterNonZero(samples []types.HistorianSample, keep func(types.HistorianSample) bool) []types.HistorianSample {
	var out []types.HistorianSample
	for _, s := range samples {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func median(values []uint64) uint64 {
	sorted := append([]uint64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
