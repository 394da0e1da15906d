package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestHandleMetaQueryNeverCallsLLM(t *testing.T) {
	o := New(&stubLLM{}, toolcatalog.NewCatalog())
	result := o.Handle(context.Background(), "what is your version?")
	assert.True(t, result.Success)
	assert.Contains(t, result.Answer, "Anna Assistant")
	assert.Equal(t, types.ReliabilityHigh, result.Reliability.Level)
}

func TestHandleEmptyToolCallsReturnsUnanswerable(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"intent":"unknown","tool_calls":[],"limitations":{"unanswerable_parts":["no tool for this"]}}`,
	}}
	o := New(llm, toolcatalog.NewCatalog())
	result := o.Handle(context.Background(), "do something obscure")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no tool for this")
}

func TestHandleUnknownToolIsPlannerError(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"intent":"x","tool_calls":[{"subtask_id":"s1","tool":"does_not_exist"}]}`,
	}}
	o := New(llm, toolcatalog.NewCatalog())
	result := o.Handle(context.Background(), "query")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tools")
	assert.Contains(t, result.Error, "does_not_exist")
}

func TestHandleSuccessOnHighReliability(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"intent":"check kernel","tool_calls":[{"subtask_id":"s1","tool":"kernel_version","reason":"user asked"}]}`,
		`{"answer":"You're running Linux 6.x","reliability":{"score":0.95,"level":"HIGH","reason":"direct evidence"}}`,
	}}
	o := New(llm, toolcatalog.NewCatalog())
	result := o.Handle(context.Background(), "what kernel am I running?")
	require.True(t, result.Success)
	assert.Equal(t, "You're running Linux 6.x", result.Answer)
	assert.Equal(t, 0, result.RetriesUsed)
}

func TestHandleRetriesOnceThenAcceptsLowReliability(t *testing.T) {
	planResponse := `{"intent":"check kernel","tool_calls":[{"subtask_id":"s1","tool":"kernel_version"}]}`
	llm := &stubLLM{responses: []string{
		planResponse,
		`{"answer":"not sure","reliability":{"score":0.4,"level":"LOW","reason":"weak evidence"}}`,
		planResponse,
		`{"answer":"still not sure","reliability":{"score":0.5,"level":"MEDIUM","reason":"weak evidence again"}}`,
	}}
	o := New(llm, toolcatalog.NewCatalog())
	result := o.Handle(context.Background(), "what kernel am I running?")
	assert.True(t, result.Success)
	assert.Equal(t, "still not sure", result.Answer)
	assert.Equal(t, 1, result.RetriesUsed)
	assert.Contains(t, result.Error, "low reliability")
}

func TestHandleFallsBackToDeterministicTextScanOnInterpretParseFailure(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"intent":"check ram","tool_calls":[{"subtask_id":"s1","tool":"memory_info"}]}`,
		`not valid json at all`,
	}}
	o := New(llm, toolcatalog.NewCatalog())
	result := o.Handle(context.Background(), "how much ram do I have?")
	require.True(t, result.Success)
	assert.Contains(t, result.Answer, "Total RAM")
	assert.Equal(t, types.ReliabilityMedium, result.Reliability.Level)
}

func TestHandlePlanCallErrorIsReported(t *testing.T) {
	o := New(&stubLLM{}, toolcatalog.NewCatalog())
	result := o.Handle(context.Background(), "anything")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "planning failed")
}
