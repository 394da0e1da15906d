package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	calls int
	reply string
}

func (c *countingClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.calls++
	return c.reply, nil
}

func TestCachingClientReturnsCachedResponseForIdenticalPrompt(t *testing.T) {
	inner := &countingClient{reply: "cached answer"}
	cached := NewCached(inner, time.Minute)

	out1, err := cached.Complete(context.Background(), "sys", "how much ram do I have?")
	require.NoError(t, err)
	out2, err := cached.Complete(context.Background(), "sys", "how much ram do I have?")
	require.NoError(t, err)

	assert.Equal(t, "cached answer", out1)
	assert.Equal(t, out1, out2)
	assert.Equal(t, 1, inner.calls)
}

func TestCachingClientMissesOnDifferentPrompt(t *testing.T) {
	inner := &countingClient{reply: "answer"}
	cached := NewCached(inner, time.Minute)

	_, err := cached.Complete(context.Background(), "sys", "question one")
	require.NoError(t, err)
	_, err = cached.Complete(context.Background(), "sys", "question two")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachingClientExpiresAfterTTL(t *testing.T) {
	inner := &countingClient{reply: "answer"}
	cached := NewCached(inner, time.Millisecond)

	_, err := cached.Complete(context.Background(), "sys", "question")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = cached.Complete(context.Background(), "sys", "question")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestNewCachedWithZeroTTLReturnsInnerUnwrapped(t *testing.T) {
	inner := &countingClient{reply: "answer"}
	cached := NewCached(inner, 0)
	assert.Same(t, inner, cached)
}
