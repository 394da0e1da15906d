package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annassistant/anna/pkg/types"
)

func TestDetectTargetDisk(t *testing.T) {
	target, confidence := DetectTarget("how much disk space is free")
	assert.Equal(t, types.TargetDiskFree, target)
	assert.GreaterOrEqual(t, confidence, uint8(90))
}

func TestDetectTargetKernel(t *testing.T) {
	target, confidence := DetectTarget("what kernel version am I using")
	assert.Equal(t, types.TargetKernelVersion, target)
	assert.GreaterOrEqual(t, confidence, uint8(90))
}

func TestDetectTargetMemory(t *testing.T) {
	target, confidence := DetectTarget("how much memory do I have")
	assert.Equal(t, types.TargetMemory, target)
	assert.GreaterOrEqual(t, confidence, uint8(90))
	assert.NotEqual(t, types.TargetDiskFree, target)
}

func TestDetectTargetCPU(t *testing.T) {
	target, confidence := DetectTarget("what cpu do I have")
	assert.Equal(t, types.TargetCPU, target)
	assert.GreaterOrEqual(t, confidence, uint8(90))
}

func TestDetectTargetServiceStatus(t *testing.T) {
	target, confidence := DetectTarget("is nginx running")
	assert.Equal(t, types.TargetServicesStatus, target)
	assert.Equal(t, uint8(85), confidence)
}

func TestDetectTargetAlerts(t *testing.T) {
	target, confidence := DetectTarget("show me any alerts")
	assert.Equal(t, types.TargetAlerts, target)
	assert.GreaterOrEqual(t, confidence, uint8(85))

	target, confidence = DetectTarget("why are you warning me?")
	assert.Equal(t, types.TargetAlerts, target)
	assert.GreaterOrEqual(t, confidence, uint8(90))
}

func TestDetectTargetUnknown(t *testing.T) {
	target, confidence := DetectTarget("what time is it")
	assert.Equal(t, types.TargetUnknown, target)
	assert.Equal(t, uint8(0), confidence)
}

func TestValidateAnswerForTargetRejectsWrongTopic(t *testing.T) {
	valid, critique := ValidateAnswerForTarget(types.TargetDiskFree, "CPU: AMD Ryzen 5 3600, 6 cores, 12 threads")
	assert.False(t, valid)
	assert.Contains(t, critique, "CPU")

	valid, critique = ValidateAnswerForTarget(types.TargetKernelVersion, "CPU: AMD Ryzen 7 5800X, 8 cores")
	assert.False(t, valid)
	assert.Contains(t, critique, "kernel")
}

func TestValidateAnswerForTargetAcceptsMatchingTopic(t *testing.T) {
	valid, critique := ValidateAnswerForTarget(types.TargetDiskFree, "Disk free: 433.7 GiB, used: 45% on /")
	assert.True(t, valid)
	assert.Empty(t, critique)

	valid, _ = ValidateAnswerForTarget(types.TargetAlerts, "No active alerts. System is healthy.")
	assert.True(t, valid)
}

func TestGetToolRouting(t *testing.T) {
	assert.Contains(t, GetToolRouting(types.TargetDiskFree).Required, "mount_usage")
	assert.Contains(t, GetToolRouting(types.TargetKernelVersion).Required, "kernel_version")
	assert.Contains(t, GetToolRouting(types.TargetMemory).Required, "memory_info")
	assert.Contains(t, GetToolRouting(types.TargetNetworkStatus).Required, "network_status")
	assert.Contains(t, GetToolRouting(types.TargetAudioStatus).Required, "audio_status")
	assert.Contains(t, GetToolRouting(types.TargetAlerts).Required, "proactive_alerts_summary")
}

func TestMapTranslatorTargets(t *testing.T) {
	mapped := MapTranslatorTargets([]string{"cpu", "memory", "bogus"})
	assert.Len(t, mapped, 2)
	assert.Contains(t, mapped, types.TargetCPU)
	assert.Contains(t, mapped, types.TargetMemory)
}

func TestGetRequiredToolsDeduplicatesAndSorts(t *testing.T) {
	tools := GetRequiredTools([]types.QueryTarget{types.TargetCPU, types.TargetHardware})
	assert.Equal(t, []string{"hw_snapshot_summary"}, tools)

	tools = GetRequiredTools([]types.QueryTarget{types.TargetDiskFree, types.TargetMemory})
	assert.Equal(t, []string{"memory_info", "mount_usage"}, tools)
}
