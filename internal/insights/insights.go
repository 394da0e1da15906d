// Package insights composes Trend Detector findings into severity-
// sorted Insights — the human-readable observations Anna can surface
// unprompted or in response to "how's my system doing?"
package insights

import (
	"fmt"
	"sort"
	"time"

	"github.com/annassistant/anna/internal/historian"
	"github.com/annassistant/anna/internal/trends"
	"github.com/annassistant/anna/pkg/types"
)

// Engine generates Insights from a Historian's recorded samples.
type Engine struct {
	historian *historian.Historian
	now       func() time.Time
}

// New returns an Engine reading from h.
func New(h *historian.Historian) *Engine {
	return &Engine{historian: h, now: time.Now}
}

type detectorFunc func(*historian.Historian) (*types.TrendDetection, error)

// GenerateInsights runs every detector over the trailing window and
// returns the resulting Insights sorted by severity, most severe
// first. Detectors run in a fixed order so that equal-severity
// insights have a stable, reproducible relative order.
func (e *Engine) GenerateInsights(hours int) ([]types.Insight, error) {
	days := hours / 24
	if days < 1 {
		days = 1
	}

	detectors := []struct {
		name string
		run  detectorFunc
	}{
		{"boot_regression", func(h *historian.Historian) (*types.TrendDetection, error) { return trends.DetectBootRegression(h, days) }},
		{"disk_growth", func(h *historian.Historian) (*types.TrendDetection, error) { return trends.DetectDiskGrowth(h, days) }},
		{"error_spike", func(h *historian.Historian) (*types.TrendDetection, error) { return trends.DetectErrorSpike(h, hours) }},
		{"error_anomaly", func(h *historian.Historian) (*types.TrendDetection, error) { return trends.DetectErrorAnomaly(h, days) }},
		{"memory_leak", func(h *historian.Historian) (*types.TrendDetection, error) { return trends.DetectMemoryLeak(h, days) }},
		{"swap_anomaly", func(h *historian.Historian) (*types.TrendDetection, error) { return trends.DetectSwapAnomaly(h, days) }},
		{"anna_inactivity", func(h *historian.Historian) (*types.TrendDetection, error) { return trends.DetectAnnaInactivity(h, hours) }},
	}

	var out []types.Insight
	for _, d := range detectors {
		det, err := d.run(e.historian)
		if err != nil {
			return nil, fmt.Errorf("detector %s: %w", d.name, err)
		}
		if det == nil {
			continue
		}
		out = append(out, e.toInsight(*det))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Weight() > out[j].Severity.Weight()
	})
	return out, nil
}

// GetTopInsights returns at most count Insights, most severe first.
func (e *Engine) GetTopInsights(count, hours int) ([]types.Insight, error) {
	all, err := e.GenerateInsights(hours)
	if err != nil {
		return nil, err
	}
	if count >= 0 && len(all) > count {
		all = all[:count]
	}
	return all, nil
}

func (e *Engine) toInsight(det types.TrendDetection) types.Insight {
	ts := e.now()
	id := fmt.Sprintf("%s_%s", det.Detector, ts.Format("20060102_150405"))
	insight := types.NewInsight(id, ts, det.Severity, det.Title, det.Description, det.Detector)
	if len(det.SupportingData) > 0 {
		insight = insight.WithEvidence(det.SupportingData)
	}
	if det.Recommendation != "" {
		insight = insight.WithSuggestion(det.Recommendation)
	}
	return insight
}
