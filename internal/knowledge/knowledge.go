// Package knowledge is the System Knowledge Base: a cached snapshot of
// hardware, desktop, and wallpaper state queried for direct-answer
// paths that don't need a full tool-plan/evidence pipeline ("what GPU
// do I have" doesn't need the Orchestrator). The snapshot is refreshed
// by shelling out to cheap, read-only commands, the same idiom
// internal/toolcatalog uses for every tool execution, and cached on
// disk so a cold start doesn't re-probe before Refresh is called.
package knowledge

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/annassistant/anna/internal/atomicfile"
	"github.com/annassistant/anna/pkg/types"
)

// Path is where the cached snapshot is persisted.
var Path = "/var/lib/anna/knowledge/snapshot.json"

// DefaultMaxAge is how long a cached snapshot is considered fresh
// before a direct-answer query should trigger a Refresh first.
const DefaultMaxAge = 24 * time.Hour

// Base holds the cached snapshot and serves direct-answer lookups
// against it.
type Base struct {
	mu       sync.RWMutex
	path     string
	snapshot types.KnowledgeSnapshot
}

// New returns an empty, unpersisted Base.
func New(path string) *Base {
	return &Base{path: path}
}

// Load reads a cached snapshot from path; a missing file yields an
// empty, zero-time snapshot (always stale).
func Load(path string) (*Base, error) {
	b := New(path)
	if err := atomicfile.ReadJSON(path, &b.snapshot); err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, err
	}
	return b, nil
}

// Save persists the current snapshot.
func (b *Base) Save() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return atomicfile.WriteJSON(b.path, b.snapshot)
}

// Snapshot returns the current cached snapshot.
func (b *Base) Snapshot() types.KnowledgeSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot
}

// IsStale reports whether the cached snapshot is older than maxAge, or
// was never captured.
func (b *Base) IsStale(maxAge time.Duration, now time.Time) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.snapshot.CapturedAt.IsZero() {
		return true
	}
	return now.Sub(b.snapshot.CapturedAt) > maxAge
}

// Refresh re-probes hardware, desktop, and wallpaper state and
// replaces the cached snapshot.
func (b *Base) Refresh(ctx context.Context, now time.Time) error {
	snapshot := types.KnowledgeSnapshot{
		Hardware:   probeHardware(ctx),
		Desktop:    probeDesktop(ctx),
		Wallpaper:  probeWallpaper(ctx),
		CapturedAt: now,
	}
	b.mu.Lock()
	b.snapshot = snapshot
	b.mu.Unlock()
	return nil
}

// Query answers a direct-answer lookup against the cached snapshot.
// Recognized keys: cpu, cpu_cores, memory, gpu, desktop, window_manager,
// session, wallpaper.
func (b *Base) Query(key string) (string, bool) {
	s := b.Snapshot()
	switch strings.ToLower(key) {
	case "cpu", "cpu_model":
		return s.Hardware.CPUModel, s.Hardware.CPUModel != ""
	case "cpu_cores":
		if s.Hardware.CPUCores == 0 {
			return "", false
		}
		return strconv.Itoa(s.Hardware.CPUCores), true
	case "memory", "total_mem_mb":
		if s.Hardware.TotalMemMB == 0 {
			return "", false
		}
		return strconv.FormatUint(s.Hardware.TotalMemMB, 10), true
	case "gpu":
		return s.Hardware.GPU, s.Hardware.GPU != ""
	case "desktop", "desktop_environment":
		return s.Desktop.Environment, s.Desktop.Environment != ""
	case "window_manager":
		return s.Desktop.WindowManager, s.Desktop.WindowManager != ""
	case "session":
		return s.Desktop.Session, s.Desktop.Session != ""
	case "wallpaper":
		return s.Wallpaper, s.Wallpaper != ""
	default:
		return "", false
	}
}

func runOutput(ctx context.Context, name string, args ...string) string {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var out bytes.Buffer
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(out.String())
}

func probeHardware(ctx context.Context) types.HardwareSnapshot {
	hw := types.HardwareSnapshot{}

	if out := runOutput(ctx, "lscpu"); out != "" {
		for _, line := range strings.Split(out, "\n") {
			if name, ok := strings.CutPrefix(line, "Model name:"); ok {
				hw.CPUModel = strings.TrimSpace(name)
			}
		}
	}
	if out := runOutput(ctx, "nproc"); out != "" {
		if n, err := strconv.Atoi(out); err == nil {
			hw.CPUCores = n
		}
	}
	if out := runOutput(ctx, "sh", "-c", "free -m | awk '/Mem:/{print $2}'"); out != "" {
		if n, err := strconv.ParseUint(out, 10, 64); err == nil {
			hw.TotalMemMB = n
		}
	}
	if out := runOutput(ctx, "sh", "-c", "lspci | grep -i 'vga\\|3d controller' | head -1"); out != "" {
		if idx := strings.Index(out, ": "); idx != -1 {
			hw.GPU = strings.TrimSpace(out[idx+2:])
		} else {
			hw.GPU = out
		}
	}
	return hw
}

func probeDesktop(_ context.Context) types.DesktopSnapshot {
	return types.DesktopSnapshot{
		Environment:   os.Getenv("XDG_CURRENT_DESKTOP"),
		WindowManager: os.Getenv("DESKTOP_SESSION"),
		Session:       os.Getenv("XDG_SESSION_TYPE"),
	}
}

func probeWallpaper(ctx context.Context) string {
	if out := runOutput(ctx, "gsettings", "get", "org.gnome.desktop.background", "picture-uri"); out != "" {
		return strings.Trim(out, "'\"")
	}
	return ""
}
