package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/pkg/types"
)

const meminfoFixture = `MemTotal:       32791612 kB
MemFree:        20123456 kB
MemAvailable:   25000000 kB
Buffers:          200000 kB
Cached:          4000000 kB
SwapTotal:       8388604 kB
SwapFree:        8388604 kB
`

func TestParseMeminfoComputesBytesFromKB(t *testing.T) {
	info := ParseMeminfo(meminfoFixture)
	require.NotNil(t, info)
	assert.Equal(t, uint64(32791612*1024), info.TotalBytes)
	assert.Equal(t, uint64(20123456*1024), info.FreeBytes)
	assert.Equal(t, uint64(25000000*1024), info.AvailableBytes)
	assert.Equal(t, uint64(0), info.SwapUsed)
}

func TestParseMeminfoReturnsNilWithoutMemTotal(t *testing.T) {
	assert.Nil(t, ParseMeminfo("garbage output\n"))
}

const dfFixture = `Filesystem      Size  Used Avail Use% Mounted on
/dev/sda1        50G   45G  2.5G  90% /
/dev/sda2       100G   50G   45G  53% /home
`

func TestParseDiskUsageSkipsHeaderRow(t *testing.T) {
	disks := ParseDiskUsage(dfFixture)
	require.Len(t, disks, 2)
	assert.Equal(t, "/", disks[0].Mount)
	assert.Equal(t, float64(90), disks[0].PercentUsed)
	assert.Equal(t, "/home", disks[1].Mount)
}

const systemctlFailedFixture = `UNIT                 LOAD   ACTIVE SUB    DESCRIPTION
● nginx.service       loaded failed failed Web server
  sshd.service        loaded active running SSH daemon
`

func TestParseServiceStatusesReadsTrailingStateColumn(t *testing.T) {
	services := ParseServiceStatuses(systemctlFailedFixture)
	require.Len(t, services, 1)
	assert.Equal(t, "sshd", services[0].Name)
	assert.Equal(t, types.ServiceRunning, services[0].State)
}

func TestParseServiceStateTrimsSuffixAndWhitespace(t *testing.T) {
	status := ParseServiceState("nginx.service", "  active\n")
	assert.Equal(t, "nginx", status.Name)
	assert.Equal(t, types.ServiceActive, status.State)
}

func TestFindMemTotalLineFallback(t *testing.T) {
	line, ok := FindMemTotalLine(meminfoFixture)
	require.True(t, ok)
	assert.Contains(t, line, "32791612")
}

func TestFindCPUModelLineFallback(t *testing.T) {
	stdout := "Architecture: x86_64\nModel name:      AMD Ryzen 9 5900X\n"
	line, ok := FindCPUModelLine(stdout)
	require.True(t, ok)
	assert.Contains(t, line, "Ryzen")
}

func TestFindFirstNonEmptyLineFallback(t *testing.T) {
	stdout := "\n\n01:00.0 VGA compatible controller: NVIDIA Corporation\nsecond line\n"
	line, ok := FindFirstNonEmptyLine(stdout)
	require.True(t, ok)
	assert.Equal(t, "01:00.0 VGA compatible controller: NVIDIA Corporation", line)
}

func TestBuildParsedEvidenceDispatchesByToolName(t *testing.T) {
	bundle := types.EvidenceBundle{Runs: []types.ToolRun{
		{Tool: "memory_info", Stdout: meminfoFixture},
		{Tool: "disk_usage", Stdout: dfFixture},
		{
			Tool:           "service_status",
			CommandPreview: "systemctl status NetworkManager",
			Stdout:         "● NetworkManager.service\n   Active: active (running) since Mon\n",
		},
	}}

	pe := BuildParsedEvidence(bundle)
	require.NotNil(t, pe.Memory)
	assert.Equal(t, uint64(32791612*1024), pe.Memory.TotalBytes)
	require.Len(t, pe.Disks, 2)
	require.Len(t, pe.Services, 1)
	assert.Equal(t, "NetworkManager", pe.Services[0].Name)
	assert.Equal(t, types.ServiceActive, pe.Services[0].State)
}

func TestBuildParsedEvidenceSkipsUnrecognizedTools(t *testing.T) {
	bundle := types.EvidenceBundle{Runs: []types.ToolRun{{Tool: "hw_snapshot_summary", Stdout: "whatever"}}}
	pe := BuildParsedEvidence(bundle)
	assert.Nil(t, pe.Memory)
	assert.Empty(t, pe.Disks)
	assert.Empty(t, pe.Services)
}
