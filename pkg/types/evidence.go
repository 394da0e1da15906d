package types

// ServiceState is the closed set of systemd-style service states.
type ServiceState string

const (
	ServiceRunning      ServiceState = "running"
	ServiceActive       ServiceState = "active"
	ServiceFailed       ServiceState = "failed"
	ServiceInactive     ServiceState = "inactive"
	ServiceActivating   ServiceState = "activating"
	ServiceDeactivating ServiceState = "deactivating"
	ServiceReloading    ServiceState = "reloading"
	ServiceUnknown      ServiceState = "unknown"
)

// ParseServiceState normalizes a raw systemctl/journalctl state token into
// the closed ServiceState set. Unknown input maps to ServiceUnknown rather
// than erroring: evidence parsing never fails the pipeline on an unexpected
// token, it just yields a less useful fact.
func ParseServiceState(raw string) ServiceState {
	switch raw {
	case "running":
		return ServiceRunning
	case "active":
		return ServiceActive
	case "failed":
		return ServiceFailed
	case "inactive", "dead":
		return ServiceInactive
	case "activating":
		return ServiceActivating
	case "deactivating":
		return ServiceDeactivating
	case "reloading":
		return ServiceReloading
	default:
		return ServiceUnknown
	}
}

// MemoryInfo is the typed snapshot parsed from /proc/meminfo.
type MemoryInfo struct {
	TotalBytes     uint64 `json:"total_bytes"`
	UsedBytes      uint64 `json:"used_bytes"`
	FreeBytes      uint64 `json:"free_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
	SwapTotal      uint64 `json:"swap_total_bytes"`
	SwapUsed       uint64 `json:"swap_used_bytes"`
}

// DiskUsage is one row of `df -h` output, typed.
type DiskUsage struct {
	Filesystem  string  `json:"filesystem"`
	Mount       string  `json:"mount"`
	SizeBytes   uint64  `json:"size_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	AvailBytes  uint64  `json:"available_bytes"`
	PercentUsed float64 `json:"percent_used"`
}

// ServiceStatus is one row of `systemctl --failed` / unit status output.
type ServiceStatus struct {
	Name  string       `json:"name"`
	State ServiceState `json:"state"`
}

// ParsedEvidence is the typed snapshot of probe output collected during one
// Orchestrator.Execute pass. Each list preserves source order; callers that
// need the first match for a subject scan forward.
type ParsedEvidence struct {
	Memory   *MemoryInfo     `json:"memory,omitempty"`
	Disks    []DiskUsage     `json:"disks,omitempty"`
	Services []ServiceStatus `json:"services,omitempty"`
}

// FindDisk returns the DiskUsage entry whose mount matches exactly, or nil.
func (e ParsedEvidence) FindDisk(mount string) *DiskUsage {
	for i := range e.Disks {
		if e.Disks[i].Mount == mount {
			return &e.Disks[i]
		}
	}
	return nil
}

// FindService returns the ServiceStatus entry matching name, tolerating the
// ".service" suffix on either side.
func (e ParsedEvidence) FindService(name string) *ServiceStatus {
	normalized := normalizeServiceName(name)
	for i := range e.Services {
		if normalizeServiceName(e.Services[i].Name) == normalized {
			return &e.Services[i]
		}
	}
	return nil
}

func normalizeServiceName(name string) string {
	const suffix = ".service"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)]
	}
	return name
}
