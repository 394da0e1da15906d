package types

import "time"

// HistorianSample is one time-bucketed probe reading. The Historian
// stores these append-only; Trend Detectors and the Insights Engine
// read them back in windows, never the live probes directly.
type HistorianSample struct {
	Timestamp       time.Time `json:"timestamp"`
	BootDurationMs  uint64    `json:"boot_duration_ms,omitempty"`
	DiskTotalGB     float64   `json:"disk_total_gb,omitempty"`
	DiskUsedGB      float64   `json:"disk_used_gb,omitempty"`
	MemTotalMB      uint64    `json:"mem_total_mb,omitempty"`
	MemUsedMB       uint64    `json:"mem_used_mb,omitempty"`
	SwapTotalMB     uint64    `json:"swap_total_mb,omitempty"`
	SwapUsedMB      uint64    `json:"swap_used_mb,omitempty"`
	JournalErrors   uint64    `json:"journal_errors,omitempty"`
	AnnaInvoked     bool      `json:"anna_invoked,omitempty"`
}

// DiskTrend summarizes disk usage over a window, including a
// growth-rate projection.
type DiskTrend struct {
	CurrentUsedPercent float64 `json:"current_used_percent"`
	UsedGB             float64 `json:"used_gb"`
	TotalGB            float64 `json:"total_gb"`
	GrowthRateGBPerDay float64 `json:"growth_rate_gb_per_day"`
	GrowthConfidence   float64 `json:"growth_confidence"`
}

// MemoryTrend summarizes RAM/swap usage over a window.
type MemoryTrend struct {
	AvgUsedMB     uint64 `json:"avg_used_mb"`
	AvgSwapUsedMB uint64 `json:"avg_swap_used_mb"`
	SwapTotalMB   uint64 `json:"swap_total_mb"`
}

// ErrorTrend summarizes journal error volume over a window.
type ErrorTrend struct {
	AvgErrorsPerHour float64 `json:"avg_errors_per_hour"`
	TotalErrors      uint64  `json:"total_errors"`
}

// BootTrend summarizes boot duration history.
type BootTrend struct {
	Samples        []uint64 `json:"samples_ms"`
	BaselineMs     uint64   `json:"baseline_ms"`
	LatestMs       uint64   `json:"latest_ms"`
}

// AnnaUsageStats reports how recently and how often Anna itself has
// been invoked, feeding the inactivity detector.
type AnnaUsageStats struct {
	HoursSinceLastInvocation int64 `json:"hours_since_last_invocation"`
	InvocationsInWindow      int   `json:"invocations_in_window"`
}
