package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annassistant/anna/internal/audit"
	"github.com/annassistant/anna/internal/caseindex"
	"github.com/annassistant/anna/internal/fixit"
	"github.com/annassistant/anna/internal/metrics"
	"github.com/annassistant/anna/internal/rpcserver"
	"github.com/annassistant/anna/pkg/types"
)

// FixItResult is what one FixIt RPC call returns: the session's current
// phase, the question or confirmation it's waiting on (if any), and the
// final timeline once the session has closed.
type FixItResult struct {
	RequestID     string             `json:"request_id"`
	State         types.FixItState   `json:"state"`
	AwaitingReply bool               `json:"awaiting_reply"`
	Prompt        string             `json:"prompt,omitempty"`
	Timeline      *types.FixTimeline `json:"timeline,omitempty"`
	SimilarCases  []caseindex.Match  `json:"similar_cases,omitempty"`
}

func normalizeProblem(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FixIt advances the bounded troubleshooting state machine for
// problemStatement by exactly one externally-visible step: evidence
// collection and hypothesis generation happen automatically, human input
// (response) is only needed to supply the ApplyFix confirmation phrase.
// A session is keyed by its normalized problem statement, so repeated
// calls describing the same problem continue the same session rather
// than starting a parallel one.
func (d *Daemon) FixIt(ctx context.Context, problemStatement, response string) (FixItResult, *types.AnnaError) {
	key := normalizeProblem(problemStatement)
	if key == "" {
		return FixItResult{}, &types.AnnaError{
			Code:     types.CodeInvalidParameter,
			Message:  "problem_statement is required",
			Severity: types.ErrorSeverityError,
		}
	}

	d.mu.Lock()
	session, exists := d.fixitSess[key]
	if !exists {
		session = fixit.NewSession(uuid.NewString(), problemStatement)
		d.fixitSess[key] = session
	}
	d.mu.Unlock()

	var similarCases []caseindex.Match
	if !exists {
		if d.cases != nil {
			similarCases = d.cases.Search(ctx, problemStatement, 3)
		}
		d.publish(rpcserver.StreamEvent{
			Type: rpcserver.EventSessionStarted, RequestID: session.RequestID,
			State: session.CurrentState, Detail: problemStatement, Timestamp: time.Now(),
		})
	}

	if err := d.stepFixIt(ctx, session, response); err != nil {
		return FixItResult{}, &types.AnnaError{
			Code:     types.CodeInternalError,
			Message:  err.Error(),
			Severity: types.ErrorSeverityError,
		}
	}

	result := FixItResult{RequestID: session.RequestID, State: session.CurrentState, SimilarCases: similarCases}

	switch session.CurrentState {
	case types.FixItPlanFix:
		result.AwaitingReply = true
		result.Prompt = fixit.FormatForConfirmation(session.ChangeSet)
		d.publish(rpcserver.StreamEvent{
			Type: rpcserver.EventFixProposed, RequestID: session.RequestID,
			State: session.CurrentState, Detail: result.Prompt, Timestamp: time.Now(),
		})
	case types.FixItCompleted, types.FixItStuck, types.FixItFailed:
		timeline := fixit.ToFixTimeline(session)
		result.Timeline = &timeline
		if d.cases != nil {
			if err := d.cases.Add(timeline); err != nil {
				d.log.Warn("archive fix-it case", zap.Error(err))
			}
		}
		d.mu.Lock()
		delete(d.fixitSess, key)
		d.mu.Unlock()
		finalState := "completed"
		eventType := rpcserver.EventSessionResolved
		if session.CurrentState == types.FixItStuck {
			finalState = "stuck"
			eventType = rpcserver.EventSessionStuck
		} else if session.CurrentState == types.FixItFailed {
			finalState = "failed"
			eventType = rpcserver.EventSessionStuck
		}
		metrics.FixItSessionsTotal.WithLabelValues(string(session.Category), finalState).Inc()
		metrics.FixItHypothesisCycles.Observe(float64(session.HypothesisCycles))
		if d.audit != nil {
			_ = d.audit.LogCaseClosed(ctx, session.RequestID, auditResultFor(session.CurrentState), 0)
		}
		d.publish(rpcserver.StreamEvent{
			Type: eventType, RequestID: session.RequestID,
			State: session.CurrentState, Detail: session.StuckReason, Timestamp: time.Now(),
		})
	default:
		result.AwaitingReply = false
	}

	return result, nil
}

// stepFixIt drives the session machine forward by one phase, matching the
// Understand -> Evidence -> Hypothesize -> Test -> PlanFix -> ApplyFix ->
// Verify progression the driver implements.
func (d *Daemon) stepFixIt(ctx context.Context, session *types.FixItSession, response string) error {
	switch session.CurrentState {
	case types.FixItUnderstand:
		bundle := d.fixitDriver.CollectEvidence(ctx, session)
		return d.fixitDriver.Hypothesize(ctx, session, bundle)

	case types.FixItEvidence:
		// Only reached if Hypothesize failed to parse on a previous call;
		// the evidence collected on that call is not kept, so Hypothesize
		// runs again on an empty bundle without re-probing.
		bundle := types.EvidenceBundle{}
		return d.fixitDriver.Hypothesize(ctx, session, bundle)

	case types.FixItHypothesize:
		idx := bestHypothesis(session.Hypotheses)
		if idx < 0 {
			fixit.MarkStuck(session, "no hypotheses generated", time.Now())
			return nil
		}
		d.publish(rpcserver.StreamEvent{
			Type: rpcserver.EventHypothesisGenerated, RequestID: session.RequestID,
			State: session.CurrentState, Detail: session.Hypotheses[idx].Description, Timestamp: time.Now(),
		})
		_, err := d.fixitDriver.Test(ctx, session, idx)
		if err != nil {
			return err
		}
		d.publish(rpcserver.StreamEvent{
			Type: rpcserver.EventToolResult, RequestID: session.RequestID,
			State: session.CurrentState, Timestamp: time.Now(),
		})
		hyp := session.Hypotheses[idx]
		if hyp.TestResult != nil && hyp.TestResult.Confirmed {
			return d.fixitDriver.PlanFix(ctx, session, idx)
		}
		if fixit.CanHypothesize(session) {
			bundle := d.fixitDriver.CollectEvidence(ctx, session)
			return d.fixitDriver.Hypothesize(ctx, session, bundle)
		}
		fixit.MarkStuck(session, "no hypothesis could be confirmed against evidence", time.Now())
		return nil

	case types.FixItTest:
		// Test leaves the session in FixItTest already decided by the
		// Hypothesize branch above; reaching this state directly means a
		// prior call was interrupted mid-step. Resume by planning the fix
		// for the hypothesis whose test came back confirmed, if any.
		if len(session.Hypotheses) == 0 {
			fixit.MarkStuck(session, "no hypotheses to resume from", time.Now())
			return nil
		}
		for i, hyp := range session.Hypotheses {
			if hyp.TestResult != nil && hyp.TestResult.Confirmed {
				return d.fixitDriver.PlanFix(ctx, session, i)
			}
		}
		fixit.MarkStuck(session, "hypothesis test left unresolved", time.Now())
		return nil

	case types.FixItPlanFix:
		if response == "" {
			return nil // still waiting on the confirmation phrase
		}
		if err := d.fixitDriver.ApplyFix(session, response); err != nil {
			return fmt.Errorf("apply fix: %w", err)
		}
		metrics.MutationExecutionsTotal.WithLabelValues("sandbox", "true").Inc()
		if d.audit != nil && len(session.ChangeSet.Changes) > 0 {
			first := session.ChangeSet.Changes[0]
			_ = d.audit.LogMutationApplied(ctx, session.RequestID, first.Path, string(first.Risk))
		}
		_, err := d.fixitDriver.Verify(ctx, session)
		return err

	case types.FixItApplyFix:
		_, err := d.fixitDriver.Verify(ctx, session)
		return err

	default:
		return fmt.Errorf("session is in unexpected state %q", session.CurrentState)
	}
}

func bestHypothesis(hyps []types.Hypothesis) int {
	best := -1
	var bestConfidence uint8
	for i, h := range hyps {
		if h.TestResult != nil {
			continue // already tested this cycle
		}
		if best < 0 || h.Confidence > bestConfidence {
			best = i
			bestConfidence = h.Confidence
		}
	}
	return best
}

func auditResultFor(state types.FixItState) audit.Result {
	switch state {
	case types.FixItCompleted:
		return audit.ResultSuccess
	default:
		return audit.ResultFailure
	}
}
