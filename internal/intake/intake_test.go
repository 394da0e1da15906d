package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annassistant/anna/pkg/types"
)

func noFactsFresh(types.FactKey) bool { return false }

func TestAnalyzeHighConfidenceRouteProceedsWithoutClarification(t *testing.T) {
	result := Analyze("how much disk space is left", noFactsFresh)
	assert.True(t, result.CanProceed)
	assert.Empty(t, result.ClarificationsNeeded)
	assert.Equal(t, types.TargetDiskFree, result.Target)
}

func TestAnalyzeEditorRequestWithKnownFactProceeds(t *testing.T) {
	fresh := func(key types.FactKey) bool { return key.Kind == types.FactKeyPreferredEditor }
	result := Analyze("enable syntax highlighting in my editor", fresh)
	assert.True(t, result.CanProceed)
	assert.Contains(t, result.FactsUsed, types.FactKey{Kind: types.FactKeyPreferredEditor})
}

func TestAnalyzeEditorRequestWithoutFactNeedsClarification(t *testing.T) {
	result := Analyze("enable syntax highlighting in my editor", noFactsFresh)
	assert.False(t, result.CanProceed)
	if assert.NotEmpty(t, result.ClarificationsNeeded) {
		assert.Equal(t, "editor_selection", result.ClarificationsNeeded[0].ID)
	}
}

func TestAnalyzeNetworkRequestNeedsClarification(t *testing.T) {
	result := Analyze("my internet connection is broken", noFactsFresh)
	assert.False(t, result.CanProceed)
	ids := map[string]bool{}
	for _, c := range result.ClarificationsNeeded {
		ids[c.ID] = true
	}
	assert.True(t, ids["network_interface"])
}

func TestAnalyzeServiceRequestWithoutNameNeedsClarification(t *testing.T) {
	result := Analyze("is the service running", noFactsFresh)
	assert.False(t, result.CanProceed)
	assert.Equal(t, "service_name", result.ClarificationsNeeded[0].ID)
}

func TestAnalyzeServiceRequestWithKnownServiceProceeds(t *testing.T) {
	result := Analyze("is nginx running", noFactsFresh)
	assert.True(t, result.CanProceed)
}

func TestClarificationsSortedByPriority(t *testing.T) {
	result := Analyze("my editor and internet connection are both broken", noFactsFresh)
	if assert.Len(t, result.ClarificationsNeeded, 2) {
		assert.LessOrEqual(t, result.ClarificationsNeeded[0].Priority, result.ClarificationsNeeded[1].Priority)
	}
}

func TestVerifyNoneRequiresNonEmptyAnswer(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Verify(ctx, VerifyPlan{Kind: VerifyNone}, "vim").Verified)
	assert.False(t, Verify(ctx, VerifyPlan{Kind: VerifyNone}, "").Verified)
}

func TestVerifyFromEvidenceTrustsNonEmptyAnswer(t *testing.T) {
	result := Verify(context.Background(), VerifyPlan{Kind: VerifyFromEvidence, Argument: "network_interfaces"}, "wifi")
	assert.True(t, result.Verified)
	assert.Equal(t, "wifi", result.Value)
	assert.Equal(t, "evidence:network_interfaces", result.Source)
}

func TestVerifyBinaryExistsFindsSh(t *testing.T) {
	result := Verify(context.Background(), VerifyPlan{Kind: VerifyBinaryExists}, "sh")
	assert.True(t, result.Verified)
}

func TestVerifyBinaryExistsFailsWithAlternatives(t *testing.T) {
	result := Verify(context.Background(), VerifyPlan{Kind: VerifyBinaryExists}, "definitely-not-a-real-binary-xyz")
	assert.False(t, result.Verified)
	assert.NotEmpty(t, result.Error)
}
