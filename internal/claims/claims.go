// Package claims extracts specific, checkable assertions out of a generated
// answer so the Guard can verify each one against collected evidence.
//
// The source this is ported from (anna_common::claims) was not present in
// the retrieval pack this module was built from; its behavior is
// reconstructed from the calling contract and golden test fixtures visible
// in anna-shared's guard module, which exercises extraction against answers
// like "nginx is running and / is 90% full and firefox uses 1073741824B".
package claims

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/annassistant/anna/pkg/types"
)

var (
	numericPattern = regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z0-9_.-]*)\s+uses?\s+(\d+)\s*B\b`)
	percentPattern = regexp.MustCompile(`(?i)(?:^|[^A-Za-z0-9_./-])([A-Za-z0-9_./-]+)\s+is\s+(\d+(?:\.\d+)?)\s*%\s*full\b`)
	statusPattern  = regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z0-9_.-]*)\s+is\s+(running|active|failed|inactive|activating|deactivating|reloading|dead)\b`)
)

// mountAliases maps the informal way people refer to a mount point in
// natural language onto the canonical path df/mount reports.
var mountAliases = map[string]string{
	"root": "/",
	"/":    "/",
	"home": "/home",
}

// ExtractClaims pulls every specific, checkable assertion out of answer.
// Claims are returned grouped by kind in the fixed order Numeric -> Percent
// -> Status, not in the order they appear in the text: this keeps a
// GuardReport's Details ordering stable across re-runs of the same answer.
func ExtractClaims(answer string) []types.Claim {
	var claims []types.Claim
	claims = append(claims, extractNumeric(answer)...)
	claims = append(claims, extractPercent(answer)...)
	claims = append(claims, extractStatus(answer)...)
	return claims
}

func extractNumeric(answer string) []types.Claim {
	var out []types.Claim
	for _, m := range numericPattern.FindAllStringSubmatch(answer, -1) {
		bytes, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, types.Claim{
			Kind:    types.ClaimNumeric,
			Subject: strings.ToLower(m[1]),
			Bytes:   bytes,
		})
	}
	return out
}

func extractPercent(answer string) []types.Claim {
	var out []types.Claim
	for _, m := range percentPattern.FindAllStringSubmatch(answer, -1) {
		pct, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		out = append(out, types.Claim{
			Kind:    types.ClaimPercent,
			Mount:   resolveMount(m[1]),
			Percent: pct,
		})
	}
	return out
}

func extractStatus(answer string) []types.Claim {
	var out []types.Claim
	for _, m := range statusPattern.FindAllStringSubmatch(answer, -1) {
		out = append(out, types.Claim{
			Kind:    types.ClaimStatus,
			Service: strings.ToLower(m[1]),
			State:   strings.ToLower(m[2]),
		})
	}
	return out
}

func resolveMount(raw string) string {
	lower := strings.ToLower(raw)
	if alias, ok := mountAliases[lower]; ok {
		return alias
	}
	return raw
}
