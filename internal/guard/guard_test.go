package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/pkg/types"
)

func TestVerifiedNumericClaimIsNotInvention(t *testing.T) {
	evidence := types.ParsedEvidence{Memory: &types.MemoryInfo{UsedBytes: 3221225472}}
	claims := []types.Claim{{Kind: types.ClaimNumeric, Subject: "memory", Bytes: 3221225472}}

	report := RunGuard(claims, evidence, true)
	assert.Equal(t, 1, report.TotalSpecificClaims)
	assert.Equal(t, 0, report.Contradictions)
	assert.False(t, report.InventionDetected)
	assert.Equal(t, types.OutcomeVerified, report.Details[0].Result.Kind)
}

func TestContradictingNumericClaimFormatsBothSides(t *testing.T) {
	evidence := types.ParsedEvidence{Memory: &types.MemoryInfo{UsedBytes: 3221225472}}
	claims := []types.Claim{{Kind: types.ClaimNumeric, Subject: "memory", Bytes: 4294967296}}

	report := RunGuard(claims, evidence, false)
	require.Len(t, report.Details, 1)
	result := report.Details[0].Result
	assert.Equal(t, types.OutcomeContradiction, result.Kind)
	assert.Equal(t, "4294967296B", result.Claimed)
	assert.Equal(t, "3221225472B", result.Evidence)
	assert.Equal(t, 1, report.Contradictions)
	assert.True(t, report.InventionDetected)
}

func TestUnverifiableNumericClaimOnNonMemorySubject(t *testing.T) {
	evidence := types.ParsedEvidence{Memory: &types.MemoryInfo{UsedBytes: 1073741824}}
	claims := []types.Claim{{Kind: types.ClaimNumeric, Subject: "firefox", Bytes: 1073741824}}

	report := RunGuard(claims, evidence, false)
	assert.Equal(t, 1, report.UnverifiableSpecifics)
	assert.Equal(t, types.OutcomeUnverifiable, report.Details[0].Result.Kind)
	assert.False(t, report.InventionDetected, "unverifiable specifics only count as invention when evidence is required")
}

func TestUnverifiableCountsAsInventionWhenEvidenceRequired(t *testing.T) {
	evidence := types.ParsedEvidence{}
	claims := []types.Claim{{Kind: types.ClaimNumeric, Subject: "firefox", Bytes: 1073741824}}

	report := RunGuard(claims, evidence, true)
	assert.True(t, report.InventionDetected)
}

func TestPercentClaimVerifiedAgainstExactMount(t *testing.T) {
	evidence := types.ParsedEvidence{Disks: []types.DiskUsage{{Mount: "/", PercentUsed: 90}}}
	claims := []types.Claim{{Kind: types.ClaimPercent, Mount: "/", Percent: 90}}

	report := RunGuard(claims, evidence, true)
	assert.Equal(t, types.OutcomeVerified, report.Details[0].Result.Kind)
}

func TestPercentClaimContradiction(t *testing.T) {
	evidence := types.ParsedEvidence{Disks: []types.DiskUsage{{Mount: "/", PercentUsed: 85}}}
	claims := []types.Claim{{Kind: types.ClaimPercent, Mount: "/", Percent: 90}}

	report := RunGuard(claims, evidence, true)
	result := report.Details[0].Result
	assert.Equal(t, types.OutcomeContradiction, result.Kind)
	assert.Equal(t, "90%", result.Claimed)
	assert.Equal(t, "85%", result.Evidence)
}

func TestPercentClaimUnverifiableOnUnknownMount(t *testing.T) {
	evidence := types.ParsedEvidence{Disks: []types.DiskUsage{{Mount: "/home", PercentUsed: 50}}}
	claims := []types.Claim{{Kind: types.ClaimPercent, Mount: "/", Percent: 90}}

	report := RunGuard(claims, evidence, false)
	assert.Equal(t, types.OutcomeUnverifiable, report.Details[0].Result.Kind)
}

func TestStatusClaimVerifiedAgainstExactServiceName(t *testing.T) {
	evidence := types.ParsedEvidence{Services: []types.ServiceStatus{{Name: "nginx", State: types.ServiceRunning}}}
	claims := []types.Claim{{Kind: types.ClaimStatus, Service: "nginx", State: "running"}}

	report := RunGuard(claims, evidence, true)
	assert.Equal(t, types.OutcomeVerified, report.Details[0].Result.Kind)
}

func TestStatusClaimContradictionUsesLowercaseStateNames(t *testing.T) {
	evidence := types.ParsedEvidence{Services: []types.ServiceStatus{{Name: "nginx", State: types.ServiceFailed}}}
	claims := []types.Claim{{Kind: types.ClaimStatus, Service: "nginx", State: "running"}}

	report := RunGuard(claims, evidence, true)
	result := report.Details[0].Result
	assert.Equal(t, types.OutcomeContradiction, result.Kind)
	assert.Equal(t, "running", result.Claimed)
	assert.Equal(t, "failed", result.Evidence)
}

func TestStatusClaimUnverifiableOnUnknownService(t *testing.T) {
	evidence := types.ParsedEvidence{Services: []types.ServiceStatus{{Name: "sshd", State: types.ServiceRunning}}}
	claims := []types.Claim{{Kind: types.ClaimStatus, Service: "nginx", State: "running"}}

	report := RunGuard(claims, evidence, false)
	assert.Equal(t, types.OutcomeUnverifiable, report.Details[0].Result.Kind)
}

func TestMixedClaimsOrderingIsStableAndGroupedByKind(t *testing.T) {
	evidence := types.ParsedEvidence{
		Disks:    []types.DiskUsage{{Mount: "/", PercentUsed: 90}},
		Services: []types.ServiceStatus{{Name: "nginx", State: types.ServiceRunning}},
	}
	claims := []types.Claim{
		{Kind: types.ClaimNumeric, Subject: "firefox", Bytes: 1073741824},
		{Kind: types.ClaimPercent, Mount: "/", Percent: 90},
		{Kind: types.ClaimStatus, Service: "nginx", State: "running"},
	}

	report := RunGuard(claims, evidence, false)
	require.Len(t, report.Details, 3)
	assert.Equal(t, types.ClaimNumeric, report.Details[0].Claim.Kind)
	assert.Equal(t, types.ClaimPercent, report.Details[1].Claim.Kind)
	assert.Equal(t, types.ClaimStatus, report.Details[2].Claim.Kind)
	assert.Equal(t, 3, report.TotalSpecificClaims)
}
