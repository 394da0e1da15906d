package claims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/pkg/types"
)

func TestExtractNumericClaim(t *testing.T) {
	got := ExtractClaims("memory uses 4294967296B")
	require.Len(t, got, 1)
	assert.Equal(t, types.Claim{Kind: types.ClaimNumeric, Subject: "memory", Bytes: 4294967296}, got[0])
}

func TestExtractPercentClaimResolvesRootAlias(t *testing.T) {
	got := ExtractClaims("root is 85% full")
	require.Len(t, got, 1)
	assert.Equal(t, types.Claim{Kind: types.ClaimPercent, Mount: "/", Percent: 85}, got[0])
}

func TestExtractPercentClaimExactMount(t *testing.T) {
	got := ExtractClaims("/ is 90% full")
	require.Len(t, got, 1)
	assert.Equal(t, "/", got[0].Mount)
	assert.Equal(t, float64(90), got[0].Percent)
}

func TestExtractStatusClaim(t *testing.T) {
	got := ExtractClaims("nginx is running")
	require.Len(t, got, 1)
	assert.Equal(t, types.Claim{Kind: types.ClaimStatus, Service: "nginx", State: "running"}, got[0])
}

func TestExtractClaimsOrdersByKindNotTextPosition(t *testing.T) {
	answer := "nginx is running and / is 90% full and firefox uses 1073741824B"
	got := ExtractClaims(answer)
	require.Len(t, got, 3)

	assert.Equal(t, types.ClaimNumeric, got[0].Kind)
	assert.Equal(t, "firefox", got[0].Subject)

	assert.Equal(t, types.ClaimPercent, got[1].Kind)
	assert.Equal(t, "/", got[1].Mount)

	assert.Equal(t, types.ClaimStatus, got[2].Kind)
	assert.Equal(t, "nginx", got[2].Service)
}

func TestExtractClaimsReturnsEmptyForVagueAnswer(t *testing.T) {
	got := ExtractClaims("everything looks fine on your system")
	assert.Empty(t, got)
}
