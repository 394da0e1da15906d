package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annassistant/anna/internal/retry"
)

func TestCompleteReturnsModelResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.Equal(t, "you are anna", req.System)

		json.NewEncoder(w).Encode(generateResponse{Response: `{"intent":"system_query"}`, Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3")
	out, err := client.Complete(context.Background(), "you are anna", "how much ram do I have?")
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"system_query"}`, out)
}

func TestCompleteRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3", WithRetryPolicy(retry.Policy{
		MaxAttempts: 3, BaseDelay: 1, MaxDelay: 1, Factor: 1, JitterFrac: 0,
	}))
	out, err := client.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, attempts)
}

func TestCompleteReturnsErrorOn4xxWithoutRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3", WithRetryPolicy(retry.Policy{
		MaxAttempts: 3, BaseDelay: 1, MaxDelay: 1, Factor: 1, JitterFrac: 0,
	}))
	_, err := client.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "a 4xx error isn't marked Retryable, so no further attempt is made")
}

func TestToMessagesBuildsSystemAndUserTurns(t *testing.T) {
	msgs := ToMessages("be terse", "what's my hostname?")
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
}
