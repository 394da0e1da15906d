// Package fixit implements Anna's bounded troubleshooting loop: a state
// machine that walks a problem through Understand, Evidence, Hypothesize,
// Test, PlanFix, ApplyFix, Verify, and Close, capped so it can never spin
// forever on a problem it can't solve. The cycle and batch caps are the
// whole point — a session that would otherwise hypothesize indefinitely
// instead transitions to Stuck.
package fixit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/annassistant/anna/pkg/types"
)

// MaxHypothesisCycles bounds how many Hypothesize/Test rounds a session
// may run before it must move on or give up.
const MaxHypothesisCycles = 2

// MaxToolsPerPhase bounds how many tool calls a single Evidence or Test
// phase may issue.
const MaxToolsPerPhase = 5

// MaxMutationsPerBatch bounds how many changes a single ChangeSet may hold.
const MaxMutationsPerBatch = 5

// FixConfirmation is the exact phrase a caller must supply to apply a
// change set.
const FixConfirmation = "I CONFIRM (apply fix)"

var fixRequestPatterns = []string{
	"fix my", "fix the", "repair", "troubleshoot", "debug",
	"not working", "won't work", "doesn't work", "broken",
	"keeps disconnecting", "keeps crashing", "keeps failing",
	"is slow", "is slower", "is broken", "is failing",
	"won't start", "can't connect", "cannot connect",
	"help me fix", "something wrong", "having issues",
	"having problems", "having trouble",
}

// IsFixItRequest reports whether request reads as a troubleshooting ask
// rather than a plain information query.
func IsFixItRequest(request string) bool {
	lower := strings.ToLower(request)
	for _, p := range fixRequestPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DetectCategory classifies a problem statement by keyword, in the fixed
// priority order below: a statement matching more than one category's
// keywords always resolves to whichever is checked first.
func DetectCategory(problem string) types.ProblemCategory {
	lower := strings.ToLower(problem)

	switch {
	case containsAny(lower, "wifi", "network", "internet", "ethernet", "disconnect", "connection"):
		return types.CategoryNetworking
	case containsAny(lower, "sound", "audio", "speaker", "headphone", "volume", "pulseaudio", "pipewire"):
		return types.CategoryAudio
	case containsAny(lower, "slow", "performance", "lag", "freeze", "cpu", "memory", "ram"):
		return types.CategoryPerformance
	case containsAny(lower, "service", "systemd", "won't start", "failed", "restart"):
		return types.CategorySystemdService
	case containsAny(lower, "disk", "storage", "mount", "full", "space"):
		return types.CategoryStorage
	case containsAny(lower, "display", "screen", "gpu", "graphics", "resolution"):
		return types.CategoryGraphics
	case containsAny(lower, "boot", "startup", "grub"):
		return types.CategoryBoot
	default:
		return types.CategoryUnknown
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ToolBundle returns the Evidence-phase tool descriptor strings for a
// category. Entries like "service_status(name=NetworkManager)" are
// display-form descriptors for the session timeline, not literal tool
// invocations — callers translate them into real ToolCall values against
// the Tool Catalog's registered names and parameters.
func ToolBundle(category types.ProblemCategory) []string {
	switch category {
	case types.CategoryNetworking:
		return []string{
			"hw_snapshot_summary",
			"service_status(name=NetworkManager)",
			"journal_warnings(service=NetworkManager, minutes=30)",
			"journal_warnings(service=wpa_supplicant, minutes=30)",
		}
	case types.CategoryAudio:
		return []string{
			"hw_snapshot_summary",
			"service_status(name=pipewire)",
			"service_status(name=pulseaudio)",
			"journal_warnings(service=pipewire, minutes=30)",
		}
	case types.CategoryPerformance:
		return []string{
			"hw_snapshot_summary",
			"top_resource_processes(window_minutes=5)",
			"journal_warnings(minutes=180)",
			"what_changed(days=3)",
		}
	case types.CategorySystemdService:
		return []string{
			"sw_snapshot_summary",
			"journal_warnings(minutes=60)",
		}
	case types.CategoryStorage:
		return []string{
			"disk_usage",
			"hw_snapshot_summary",
		}
	case types.CategoryGraphics:
		return []string{
			"hw_snapshot_summary",
			"journal_warnings(service=Xorg, minutes=30)",
		}
	case types.CategoryBoot:
		return []string{
			"boot_time_trend(days=7)",
			"journal_warnings(minutes=120)",
			"what_changed(days=7)",
		}
	default:
		return []string{
			"hw_snapshot_summary",
			"sw_snapshot_summary",
			"journal_warnings(minutes=30)",
		}
	}
}

// NewSession starts a Fix-It session in the Understand state, with its
// category already detected from the problem statement.
func NewSession(requestID, problemStatement string) *types.FixItSession {
	return &types.FixItSession{
		RequestID:        requestID,
		ProblemStatement: problemStatement,
		Category:         DetectCategory(problemStatement),
		CurrentState:     types.FixItUnderstand,
	}
}

// Transition records a state change onto the session's timeline and
// moves CurrentState to the new state.
func Transition(s *types.FixItSession, to types.FixItState, evidenceIDs []string, decision string, now time.Time) {
	s.Timeline = append(s.Timeline, types.StateTransition{
		From:        s.CurrentState,
		To:          to,
		Timestamp:   now.UTC(),
		EvidenceIDs: evidenceIDs,
		Decision:    decision,
	})
	s.CurrentState = to
}

// CanHypothesize reports whether the session has cycles remaining.
func CanHypothesize(s *types.FixItSession) bool {
	return s.HypothesisCycles < MaxHypothesisCycles
}

// NextCycle increments the session's hypothesis cycle counter.
func NextCycle(s *types.FixItSession) {
	s.HypothesisCycles++
}

// MarkStuck records why the session can't proceed and transitions it to Stuck.
func MarkStuck(s *types.FixItSession, reason string, now time.Time) {
	s.StuckReason = reason
	Transition(s, types.FixItStuck, nil, reason, now)
}

// NewChangeSet starts an empty, confirmation-required change set with a
// fresh ID.
func NewChangeSet() *types.ChangeSet {
	return &types.ChangeSet{
		ID:                   uuid.NewString(),
		ConfirmationRequired: true,
	}
}

// AddChange appends a change to the set, rejecting it once the batch cap
// is reached.
func AddChange(cs *types.ChangeSet, change types.ChangeItem) error {
	if len(cs.Changes) >= MaxMutationsPerBatch {
		return fmt.Errorf("maximum mutations per batch exceeded (%d)", MaxMutationsPerBatch)
	}
	cs.Changes = append(cs.Changes, change)
	return nil
}

// FormatForConfirmation renders a change set as the boxed transcript a
// human confirms against before ApplyFix runs.
func FormatForConfirmation(cs *types.ChangeSet) string {
	var b strings.Builder
	top := "╭─────────────────────────────────────────────────────────────────╮"
	mid := "├─────────────────────────────────────────────────────────────────┤"
	bottom := "╰─────────────────────────────────────────────────────────────────╯"

	b.WriteString(top + "\n")
	fmt.Fprintf(&b, "│ Change Set: %s (%d changes)\n", cs.ID, len(cs.Changes))
	b.WriteString(mid + "\n")

	for i, change := range cs.Changes {
		fmt.Fprintf(&b, "│ %d. %s\n", i+1, change.What)
		fmt.Fprintf(&b, "│    Why: %s\n", change.Why)
		fmt.Fprintf(&b, "│    Risk: %s\n", change.Risk)
		fmt.Fprintf(&b, "│    Rollback: %s\n", change.RollbackAction)
		if i < len(cs.Changes)-1 {
			b.WriteString("│\n")
		}
	}

	b.WriteString(mid + "\n")
	fmt.Fprintf(&b, "│ To apply, type: %s\n", FixConfirmation)
	b.WriteString(bottom)

	return b.String()
}

// ToFixTimeline projects a session into its durable, client-facing
// timeline shape for storage and RPC responses.
func ToFixTimeline(s *types.FixItSession) types.FixTimeline {
	var changeSetID string
	if s.ChangeSet != nil {
		changeSetID = s.ChangeSet.ID
	}
	return types.FixTimeline{
		RequestID:          s.RequestID,
		ProblemStatement:   s.ProblemStatement,
		Category:           s.Category,
		HypothesisCycles:   s.HypothesisCycles,
		Hypotheses:         s.Hypotheses,
		SelectedHypothesis: s.SelectedHypothesis,
		ChangeSetID:        changeSetID,
		FinalState:         s.CurrentState,
		StuckReason:        s.StuckReason,
		ResolutionSummary:  s.ResolutionSummary,
		Transitions:        s.Timeline,
	}
}
