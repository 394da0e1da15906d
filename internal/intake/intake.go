// Package intake runs before the Deterministic Router decides how to answer
// a request, asking "do we already know enough to answer this, or does it
// turn on something ambiguous (which editor, which network interface, which
// service) the Fact Store hasn't verified yet?" When the router is already
// confident, intake is a no-op: it changes nothing about routing,
// translation, orchestration, or grounding. When it isn't, intake produces
// one or more ClarificationQuestions, ordered by priority, each carrying an
// optional VerifyPlan so the user's answer gets checked against the live
// system rather than taken on faith.
package intake

import (
	"sort"
	"strings"

	"github.com/annassistant/anna/internal/router"
	"github.com/annassistant/anna/pkg/types"
)

// ConfidenceThreshold is the router confidence at or above which intake
// degrades to a no-op. Below it, the request is ambiguous enough that a
// wrong guess costs more than asking.
const ConfidenceThreshold = 70

// VerifyKind is the closed set of ways a clarification answer can be
// checked against the live system before it's trusted.
type VerifyKind string

const (
	VerifyNone            VerifyKind = "none"
	VerifyBinaryExists    VerifyKind = "binary_exists"
	VerifyUnitExists      VerifyKind = "unit_exists"
	VerifyMountExists     VerifyKind = "mount_exists"
	VerifyInterfaceExists VerifyKind = "interface_exists"
	VerifyFileExists      VerifyKind = "file_exists"
	VerifyDirectoryExists VerifyKind = "directory_exists"
	VerifyFromEvidence    VerifyKind = "from_evidence"
)

// VerifyPlan states how a clarification answer should be checked. The
// probe kinds check the answer itself. Argument is set when the question is
// built and is read only by VerifyFromEvidence, which reports it as the
// evidence source. The zero value has an empty Kind, which Verify rejects
// as unknown; VerifyNone has to be set explicitly.
type VerifyPlan struct {
	Kind     VerifyKind `json:"kind"`
	Argument string     `json:"argument,omitempty"`
}

// NeedsProbe reports whether Verify must run a command to check this plan.
// VerifyNone accepts the answer outright; VerifyFromEvidence is satisfied
// by evidence Anna has already collected, not a fresh probe.
func (p VerifyPlan) NeedsProbe() bool {
	return p.Kind != VerifyNone && p.Kind != VerifyFromEvidence
}

// ClarificationQuestion is one thing intake needs from the user before
// Anna can proceed confidently.
type ClarificationQuestion struct {
	ID        string         `json:"id"`
	Prompt    string         `json:"prompt"`
	Choices   []string       `json:"choices,omitempty"`
	Reason    string         `json:"reason"`
	Verify    VerifyPlan     `json:"verify"`
	Populates *types.FactKey `json:"populates,omitempty"`
	Priority  uint8          `json:"priority"`
}

func question(id, prompt, reason string) ClarificationQuestion {
	return ClarificationQuestion{ID: id, Prompt: prompt, Reason: reason, Priority: 50}
}

func editorClarification(reason string) ClarificationQuestion {
	key := types.FactKey{Kind: types.FactKeyPreferredEditor}
	q := question("editor_selection", "Which text editor would you like me to configure?", reason)
	q.Choices = []string{"vim", "nvim", "nano", "vi", "emacs"}
	q.Verify = VerifyPlan{Kind: VerifyBinaryExists}
	q.Populates = &key
	q.Priority = 10
	return q
}

func networkClarification(reason string) ClarificationQuestion {
	key := types.FactKey{Kind: types.FactKeyNetworkPreference}
	q := question("network_interface", "Which network connection are you having trouble with?", reason)
	q.Choices = []string{"wifi", "ethernet", "both"}
	q.Verify = VerifyPlan{Kind: VerifyFromEvidence, Argument: "network_interfaces"}
	q.Populates = &key
	q.Priority = 15
	return q
}

func serviceClarification(reason string) ClarificationQuestion {
	q := question("service_name", "Which service are you asking about?", reason)
	q.Verify = VerifyPlan{Kind: VerifyUnitExists}
	q.Priority = 10
	return q
}

// Result is intake's verdict for one request.
type Result struct {
	Target               types.QueryTarget       `json:"target"`
	Confidence           uint8                   `json:"confidence"`
	ClarificationsNeeded []ClarificationQuestion `json:"clarifications_needed,omitempty"`
	FactsUsed            []types.FactKey         `json:"facts_used,omitempty"`
	CanProceed           bool                    `json:"can_proceed"`
}

var editorTerms = []string{"editor", "syntax", "highlight", "vim", "nvim", "nano", "emacs", "vimrc"}
var networkTerms = []string{"internet", "connection", "network", "wifi", "ethernet", "broken"}
var commonServices = []string{"nginx", "apache", "docker", "ssh", "postgres", "mysql", "redis", "systemd"}

func needsEditorClarification(q string) bool {
	for _, t := range editorTerms {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

func needsNetworkClarification(q string) bool {
	for _, t := range networkTerms {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

func needsServiceClarification(q string) bool {
	if !strings.Contains(q, "service") && !strings.Contains(q, "restart") && !strings.Contains(q, "status") {
		return false
	}
	if strings.Contains(q, ".service") || strings.Contains(q, "all service") || strings.Contains(q, "failed service") {
		return false
	}
	for _, svc := range commonServices {
		if strings.Contains(q, svc) {
			return false
		}
	}
	return true
}

// Analyze runs the Deterministic Router over query and, only when its
// confidence falls below ConfidenceThreshold, checks whether the request
// turns on an editor, network interface, or service name the Fact Store
// hasn't already verified (factFresh reports whether a key is currently
// verified and not stale). A request the router is already confident about
// returns CanProceed immediately with no clarifications, regardless of
// keyword content — intake never second-guesses a high-confidence route.
func Analyze(query string, factFresh func(types.FactKey) bool) Result {
	target, confidence := router.DetectTarget(query)
	if confidence >= ConfidenceThreshold {
		return Result{Target: target, Confidence: confidence, CanProceed: true}
	}

	lower := strings.ToLower(query)
	var clarifications []ClarificationQuestion
	var used []types.FactKey

	if needsEditorClarification(lower) {
		key := types.FactKey{Kind: types.FactKeyPreferredEditor}
		if factFresh(key) {
			used = append(used, key)
		} else {
			clarifications = append(clarifications, editorClarification("configuring this needs to know which editor to target"))
		}
	}

	if needsNetworkClarification(lower) {
		key := types.FactKey{Kind: types.FactKeyNetworkPrimaryIface}
		if factFresh(key) {
			used = append(used, key, types.FactKey{Kind: types.FactKeyNetworkPreference})
		} else {
			clarifications = append(clarifications, networkClarification("diagnosing this needs to know which connection you mean"))
		}
	}

	if needsServiceClarification(lower) {
		clarifications = append(clarifications, serviceClarification("no specific service was named in the request"))
	}

	sort.SliceStable(clarifications, func(i, j int) bool {
		return clarifications[i].Priority < clarifications[j].Priority
	})

	return Result{
		Target:               target,
		Confidence:           confidence,
		ClarificationsNeeded: clarifications,
		FactsUsed:            used,
		CanProceed:           len(clarifications) == 0,
	}
}
