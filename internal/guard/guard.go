// Package guard checks the claims pulled out of a generated answer against
// the evidence that was actually collected, and flags the answer as an
// invention whenever a claim contradicts evidence, or asserts something
// specific that no evidence backs up and the caller requires it be backed.
package guard

import (
	"fmt"

	"github.com/annassistant/anna/pkg/types"
)

// memorySubjects is the set of words a numeric claim's subject must match
// for it to be checkable against collected memory evidence at all. Anything
// else (a process name, a made-up counter) has no evidence source and is
// always Unverifiable.
var memorySubjects = map[string]bool{
	"memory":    true,
	"ram":       true,
	"mem":       true,
	"total":     true,
	"used":      true,
	"free":      true,
	"available": true,
}

// RunGuard verifies every extracted claim against evidence and rolls the
// results up into a report. evidenceRequired controls whether an
// Unverifiable claim (no matching evidence, not necessarily wrong) counts
// toward invention detection: a quick answer may tolerate unverifiable
// color, but a Fix-It diagnosis must not.
func RunGuard(claims []types.Claim, evidence types.ParsedEvidence, evidenceRequired bool) types.GuardReport {
	report := types.GuardReport{}
	for _, c := range claims {
		result := verifyClaim(c, evidence)
		report.TotalSpecificClaims++
		switch result.Kind {
		case types.OutcomeContradiction:
			report.Contradictions++
		case types.OutcomeUnverifiable:
			report.UnverifiableSpecifics++
		}
		report.Details = append(report.Details, types.GuardItem{Claim: c, Result: result})
	}

	report.InventionDetected = report.Contradictions > 0 ||
		(report.UnverifiableSpecifics > 0 && evidenceRequired)
	return report
}

func verifyClaim(c types.Claim, evidence types.ParsedEvidence) types.VerifyResult {
	switch c.Kind {
	case types.ClaimNumeric:
		return verifyNumeric(c, evidence)
	case types.ClaimPercent:
		return verifyPercent(c, evidence)
	case types.ClaimStatus:
		return verifyStatus(c, evidence)
	default:
		return types.VerifyResult{Kind: types.OutcomeUnverifiable}
	}
}

func verifyNumeric(c types.Claim, evidence types.ParsedEvidence) types.VerifyResult {
	if evidence.Memory == nil || !memorySubjects[c.Subject] {
		return types.VerifyResult{Kind: types.OutcomeUnverifiable}
	}

	var actual uint64
	switch c.Subject {
	case "total":
		actual = evidence.Memory.TotalBytes
	case "free":
		actual = evidence.Memory.FreeBytes
	case "available":
		actual = evidence.Memory.AvailableBytes
	default:
		actual = evidence.Memory.UsedBytes
	}

	if actual == c.Bytes {
		return types.VerifyResult{Kind: types.OutcomeVerified}
	}
	return types.VerifyResult{
		Kind:     types.OutcomeContradiction,
		Claimed:  fmt.Sprintf("%dB", c.Bytes),
		Evidence: fmt.Sprintf("%dB", actual),
	}
}

func verifyPercent(c types.Claim, evidence types.ParsedEvidence) types.VerifyResult {
	disk := evidence.FindDisk(c.Mount)
	if disk == nil {
		return types.VerifyResult{Kind: types.OutcomeUnverifiable}
	}
	if disk.PercentUsed == c.Percent {
		return types.VerifyResult{Kind: types.OutcomeVerified}
	}
	return types.VerifyResult{
		Kind:     types.OutcomeContradiction,
		Claimed:  fmt.Sprintf("%g%%", c.Percent),
		Evidence: fmt.Sprintf("%g%%", disk.PercentUsed),
	}
}

func verifyStatus(c types.Claim, evidence types.ParsedEvidence) types.VerifyResult {
	svc := evidence.FindService(c.Service)
	if svc == nil {
		return types.VerifyResult{Kind: types.OutcomeUnverifiable}
	}
	claimed := types.ParseServiceState(c.State)
	if claimed == svc.State {
		return types.VerifyResult{Kind: types.OutcomeVerified}
	}
	return types.VerifyResult{
		Kind:     types.OutcomeContradiction,
		Claimed:  string(claimed),
		Evidence: string(svc.State),
	}
}
