package types

import "time"

// DetailLevel controls how verbose a self-tuning report is.
type DetailLevel string

const (
	DetailNormal  DetailLevel = "normal"
	DetailVerbose DetailLevel = "verbose"
)

// DetectorMetaStats is what the Optimization Engine tracks per
// detector to decide whether it's noisy (suppress) or valuable
// (highlight): how often it has fired and when it last fired/resolved.
type DetectorMetaStats struct {
	Detector        string     `json:"detector"`
	TriggerCount    int        `json:"trigger_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	LastResolvedAt  *time.Time `json:"last_resolved_at,omitempty"`
	LastSeverity    Severity   `json:"last_severity,omitempty"`
}

// OptimizationProfile is Anna's self-tuned view of which detectors to
// quiet down and which to surface more prominently.
type OptimizationProfile struct {
	SuppressedKinds  []string    `json:"suppressed_kinds,omitempty"`
	HighlightedKinds []string    `json:"highlighted_kinds,omitempty"`
	PreferredDetail  DetailLevel `json:"preferred_detail"`
	GeneratedAt      time.Time  `json:"generated_at"`
}
