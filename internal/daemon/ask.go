package daemon

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/annassistant/anna/internal/intake"
	"github.com/annassistant/anna/internal/metrics"
	"github.com/annassistant/anna/pkg/types"
)

// AskResult is what the Ask RPC returns: either a ClarificationQuestion
// intake needs answered before Anna will proceed, or the Orchestrator's
// answer once intake is satisfied (or was never triggered for this
// request).
type AskResult struct {
	AwaitingReply bool                          `json:"awaiting_reply"`
	Clarification *intake.ClarificationQuestion `json:"clarification,omitempty"`
	Answer        string                        `json:"answer,omitempty"`
	Reliability   types.Reliability             `json:"reliability,omitempty"`
	RetriesUsed   int                           `json:"retries_used,omitempty"`
	Success       bool                          `json:"success"`
	Error         string                        `json:"error,omitempty"`
	XPGained      types.XpGain                  `json:"xp_gained,omitempty"`
}

// intakeSession tracks the clarifications still owed before a query's
// answer can be generated. Sessions are keyed by the same normalized query
// text across Ask calls so a multi-question exchange resumes where it
// left off rather than restarting intake from scratch.
type intakeSession struct {
	pending []intake.ClarificationQuestion
}

func normalizeAskQuery(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Ask runs intake's clarification gate ahead of the Orchestrator's answer
// pipeline. A request the Deterministic Router is already confident about
// skips intake entirely; an ambiguous one returns a ClarificationQuestion
// and waits for clarificationAnswer on a subsequent call with the same
// query text. Once every clarification is answered (or none were needed),
// the query runs through the Orchestrator exactly as it always has, and
// the outcome is recorded against the progression tracker and the
// Historian.
func (d *Daemon) Ask(ctx context.Context, query, clarificationAnswer string) AskResult {
	if strings.TrimSpace(query) == "" {
		return AskResult{Error: "query is required"}
	}

	key := normalizeAskQuery(query)
	factFresh := func(k types.FactKey) bool { return d.facts.IsFresh(ctx, k, time.Now()) }

	d.mu.Lock()
	session, open := d.intakeSess[key]
	d.mu.Unlock()

	if !open {
		result := intake.Analyze(query, factFresh)
		if !result.CanProceed {
			session = &intakeSession{pending: result.ClarificationsNeeded}
			d.mu.Lock()
			d.intakeSess[key] = session
			d.mu.Unlock()
		}
	}

	if session != nil && len(session.pending) > 0 {
		current := session.pending[0]

		if strings.TrimSpace(clarificationAnswer) == "" {
			return AskResult{AwaitingReply: true, Success: true, Clarification: &current}
		}

		verification := intake.Verify(ctx, current.Verify, clarificationAnswer)
		if !verification.Verified {
			d.log.Debug("clarification answer failed verification",
				zap.String("id", current.ID), zap.String("error", verification.Error))
			retry := current
			retry.Reason = verification.Error
			if len(verification.Alternatives) > 0 {
				retry.Choices = verification.Alternatives
			}
			return AskResult{AwaitingReply: true, Clarification: &retry, Error: verification.Error}
		}

		if current.Populates != nil {
			d.facts.UpsertVerified(ctx, *current.Populates,
				types.FactValue{Kind: types.ValueString, String: strings.TrimSpace(clarificationAnswer)},
				types.FactSource{Kind: types.SourceUserConfirmed}, 90)
		}

		d.mu.Lock()
		session.pending = session.pending[1:]
		remaining := len(session.pending)
		if remaining == 0 {
			delete(d.intakeSess, key)
		}
		d.mu.Unlock()

		if remaining > 0 {
			next := session.pending[0]
			return AskResult{AwaitingReply: true, Success: true, Clarification: &next}
		}
	}

	start := time.Now()
	result := d.orch.Handle(ctx, query)
	latencyMs := uint64(time.Since(start).Milliseconds())

	now := time.Now()
	xp := d.statsEng.RecordAnswer(query, result.Reliability.Score, latencyMs, uint32(result.RetriesUsed+1), result.Success, now)
	if err := d.hist.Record(types.HistorianSample{Timestamp: now, AnnaInvoked: true}); err != nil {
		d.log.Warn("failed to record historian sample", zap.Error(err))
	}

	metrics.OrchestratorRequestsTotal.WithLabelValues("ask", outcomeLabel(result.Success)).Inc()
	metrics.OrchestratorReliability.Observe(result.Reliability.Score)
	metrics.OrchestratorRequestDuration.WithLabelValues("ask").Observe(time.Since(start).Seconds())
	if result.RetriesUsed > 0 {
		metrics.OrchestratorRetries.WithLabelValues("low_reliability").Add(float64(result.RetriesUsed))
	}

	return AskResult{
		Answer:      result.Answer,
		Reliability: result.Reliability,
		RetriesUsed: result.RetriesUsed,
		Success:     result.Success,
		Error:       result.Error,
		XPGained:    xp,
	}
}
