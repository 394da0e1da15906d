package types

import "time"

// HardwareSnapshot is a point-in-time read of the host's hardware,
// cheap enough to cache rather than re-probe on every question.
type HardwareSnapshot struct {
	CPUModel    string `json:"cpu_model,omitempty"`
	CPUCores    int    `json:"cpu_cores,omitempty"`
	TotalMemMB  uint64 `json:"total_mem_mb,omitempty"`
	GPU         string `json:"gpu,omitempty"`
}

// DesktopSnapshot is a point-in-time read of the running desktop
// session.
type DesktopSnapshot struct {
	Environment   string `json:"environment,omitempty"`
	WindowManager string `json:"window_manager,omitempty"`
	Session       string `json:"session,omitempty"` // x11 | wayland
}

// KnowledgeSnapshot is the System Knowledge Base's cached view of
// hardware, desktop, and wallpaper state, queried for direct-answer
// paths that don't need a full tool-plan/evidence pipeline.
type KnowledgeSnapshot struct {
	Hardware   HardwareSnapshot `json:"hardware"`
	Desktop    DesktopSnapshot  `json:"desktop"`
	Wallpaper  string           `json:"wallpaper,omitempty"`
	CapturedAt time.Time        `json:"captured_at"`
}
