package fixit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/internal/rollback"
	"github.com/annassistant/anna/internal/toolcatalog"
	"github.com/annassistant/anna/pkg/types"
)

type stubLLM struct {
	responses []string
	calls     int
}

func (s *stubLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.calls >= len(s.responses) {
		return "", errors.New("stub exhausted")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func newTestDriver(t *testing.T, llm *stubLLM) *Driver {
	t.Helper()
	dir := t.TempDir()
	return NewDriver(toolcatalog.NewCatalog(), llm, rollback.NewLog(filepath.Join(dir, "rollback.json")), dir, dir, filepath.Join(dir, "backups"))
}

func TestParseDescriptorTranslatesAliases(t *testing.T) {
	d := parseDescriptor("service_status(name=NetworkManager)")
	assert.Equal(t, "service_status", d.name)
	assert.Equal(t, "NetworkManager", d.params["unit"])

	d = parseDescriptor("journal_warnings(minutes=30)")
	assert.Equal(t, "-30min", d.params["since"])

	d = parseDescriptor("hw_snapshot_summary")
	assert.Equal(t, "hw_snapshot_summary", d.name)
	assert.Empty(t, d.params)
}

func TestRunDescriptorsSkipsUnregisteredTools(t *testing.T) {
	d := newTestDriver(t, &stubLLM{})
	bundle := d.runDescriptors(context.Background(), "req1", []string{"kernel_version", "slowness_hypotheses(days=3)"})
	require.Len(t, bundle.Runs, 1)
	assert.Equal(t, "kernel_version", bundle.Runs[0].Tool)
}

func TestCollectEvidenceTransitionsToEvidence(t *testing.T) {
	d := newTestDriver(t, &stubLLM{})
	session := NewSession("req1", "my disk is full")
	bundle := d.CollectEvidence(context.Background(), session)
	assert.Equal(t, types.FixItEvidence, session.CurrentState)
	assert.NotEmpty(t, bundle.Runs)
	assert.NotEmpty(t, session.EvidenceIDs)
}

func TestHypothesizeParsesAndAppendsHypotheses(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"hypotheses":[{"description":"disk is full because of stale logs","confidence":70,"test_tools":["disk_usage"]}]}`,
	}}
	d := newTestDriver(t, llm)
	session := NewSession("req1", "my disk is full")
	bundle := types.EvidenceBundle{}

	require.NoError(t, d.Hypothesize(context.Background(), session, bundle))
	require.Len(t, session.Hypotheses, 1)
	assert.Equal(t, uint8(70), session.Hypotheses[0].Confidence)
	assert.Equal(t, types.FixItHypothesize, session.CurrentState)
	assert.Equal(t, 1, session.HypothesisCycles)
}

func TestTestRejectsUnconfirmableClaim(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"confirmed":true,"explanation":"nginx uses 999999999999B"}`,
	}}
	d := newTestDriver(t, llm)
	session := NewSession("req1", "my service is slow")
	session.Hypotheses = []types.Hypothesis{{ID: "h0", Description: "memory pressure", TestTools: []string{"kernel_version"}}}

	_, err := d.Test(context.Background(), session, 0)
	require.NoError(t, err)
	require.NotNil(t, session.Hypotheses[0].TestResult)
	assert.False(t, session.Hypotheses[0].TestResult.Confirmed, "an unverifiable specific claim must not confirm a Fix-It hypothesis")
}

func TestTestConfirmsOnPlainExplanation(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"confirmed":true,"explanation":"the kernel is older than the last known-good version"}`,
	}}
	d := newTestDriver(t, llm)
	session := NewSession("req1", "my service is slow")
	session.Hypotheses = []types.Hypothesis{{ID: "h0", Description: "kernel regression", TestTools: []string{"kernel_version"}}}

	_, err := d.Test(context.Background(), session, 0)
	require.NoError(t, err)
	assert.True(t, session.Hypotheses[0].TestResult.Confirmed)
	assert.Equal(t, types.FixItTest, session.CurrentState)
}

func TestPlanFixRefusesUnconfirmedHypothesis(t *testing.T) {
	d := newTestDriver(t, &stubLLM{})
	session := NewSession("req1", "problem")
	session.Hypotheses = []types.Hypothesis{{ID: "h0", TestResult: &types.HypothesisTestResult{Confirmed: false}}}
	err := d.PlanFix(context.Background(), session, 0)
	assert.Error(t, err)
}

func TestPlanFixBuildsChangeSet(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"changes":[{"what":"raise a config limit","why":"fixes the timeout","risk":"low","rollback_action":"revert the appended line","post_check":"service restarts clean","path":"/tmp/anna-test/app.conf","appended_line":"timeout=60"}]}`,
	}}
	d := newTestDriver(t, llm)
	session := NewSession("req1", "my service times out")
	session.Hypotheses = []types.Hypothesis{{ID: "h0", Description: "timeout too low", TestResult: &types.HypothesisTestResult{Confirmed: true}}}

	require.NoError(t, d.PlanFix(context.Background(), session, 0))
	require.NotNil(t, session.ChangeSet)
	require.Len(t, session.ChangeSet.Changes, 1)
	assert.Equal(t, "/tmp/anna-test/app.conf", session.ChangeSet.Changes[0].Path)
	assert.Equal(t, types.FixItPlanFix, session.CurrentState)
}

func TestApplyFixRequiresExactConfirmation(t *testing.T) {
	d := newTestDriver(t, &stubLLM{})
	session := NewSession("req1", "problem")
	session.ChangeSet = NewChangeSet()
	err := d.ApplyFix(session, "close enough")
	assert.Error(t, err)
}

func TestApplyFixAppendsLineInsideSandbox(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.conf")
	require.NoError(t, os.WriteFile(target, []byte("existing=1\n"), 0o644))

	d := NewDriver(toolcatalog.NewCatalog(), &stubLLM{}, rollback.NewLog(filepath.Join(dir, "rollback.json")), dir, dir, filepath.Join(dir, "backups"))
	session := NewSession("req1", "problem")
	session.ChangeSet = NewChangeSet()
	require.NoError(t, AddChange(session.ChangeSet, types.ChangeItem{
		ID: "c0", Path: target, AppendedLine: "timeout=60", Risk: types.RiskLow,
	}))

	require.NoError(t, d.ApplyFix(session, FixConfirmation))
	require.Len(t, session.ChangeSet.Results, 1)
	assert.True(t, session.ChangeSet.Results[0].Success)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout=60")

	require.NotEmpty(t, session.ChangeSet.Results[0].CaseID)
	found, ok, err := d.rollbackLog.Find(session.ChangeSet.Results[0].CaseID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, target, found.Path)
}

func TestApplyFixBlocksSystemPaths(t *testing.T) {
	dir := t.TempDir()
	d := NewDriver(toolcatalog.NewCatalog(), &stubLLM{}, rollback.NewLog(filepath.Join(dir, "rollback.json")), dir, dir, filepath.Join(dir, "backups"))
	session := NewSession("req1", "problem")
	session.ChangeSet = NewChangeSet()
	require.NoError(t, AddChange(session.ChangeSet, types.ChangeItem{
		ID: "c0", Path: "/etc/fstab", AppendedLine: "malicious", Risk: types.RiskHigh,
	}))

	require.NoError(t, d.ApplyFix(session, FixConfirmation))
	require.Len(t, session.ChangeSet.Results, 1)
	assert.False(t, session.ChangeSet.Results[0].Success)
}

func TestVerifyClosesSessionWhenResolved(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"confirmed":false,"explanation":"the service now starts within the configured timeout"}`,
	}}
	d := newTestDriver(t, llm)
	session := NewSession("req1", "my service times out")
	idx := 0
	session.SelectedHypothesis = &idx
	session.Hypotheses = []types.Hypothesis{{ID: "h0", TestTools: []string{"kernel_version"}}}

	resolved, err := d.Verify(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, resolved)
	assert.Equal(t, types.FixItCompleted, session.CurrentState)
	assert.NotEmpty(t, session.ResolutionSummary)
}

func TestVerifyMarksStuckWhenCyclesExhausted(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"confirmed":true,"explanation":"the service still times out"}`,
	}}
	d := newTestDriver(t, llm)
	session := NewSession("req1", "my service times out")
	session.HypothesisCycles = MaxHypothesisCycles
	idx := 0
	session.SelectedHypothesis = &idx
	session.Hypotheses = []types.Hypothesis{{ID: "h0", TestTools: []string{"kernel_version"}}}

	resolved, err := d.Verify(context.Background(), session)
	require.NoError(t, err)
	assert.False(t, resolved)
	assert.Equal(t, types.FixItStuck, session.CurrentState)
	assert.NotEmpty(t, session.StuckReason)
}

func TestVerifyRetriesWhenCyclesRemain(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"confirmed":true,"explanation":"the service still times out"}`,
	}}
	d := newTestDriver(t, llm)
	session := NewSession("req1", "my service times out")
	idx := 0
	session.SelectedHypothesis = &idx
	session.Hypotheses = []types.Hypothesis{{ID: "h0", TestTools: []string{"kernel_version"}}}

	resolved, err := d.Verify(context.Background(), session)
	require.NoError(t, err)
	assert.False(t, resolved)
	assert.Equal(t, types.FixItHypothesize, session.CurrentState)
}
