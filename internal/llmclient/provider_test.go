package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientCompleteReturnsMessageContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)

		json.NewEncoder(w).Encode(openAIChatResponse{
			Choices: []struct {
				Message openAIChatMessage `json:"message"`
			}{{Message: openAIChatMessage{Role: "assistant", Content: `{"intent":"system_query"}`}}},
		})
	}))
	defer server.Close()

	client := New(Config{Type: ProviderOpenAI, BaseURL: server.URL, APIKey: "sk-test", Model: "gpt-4o"})
	out, err := client.Complete(context.Background(), "you are anna", "how much ram do I have?")
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"system_query"}`, out)
}

func TestAnthropicClientCompleteConcatenatesTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "you are anna", req.System)

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContentBlock{
				{Type: "text", Text: "part one "},
				{Type: "text", Text: "part two"},
			},
		})
	}))
	defer server.Close()

	client := New(Config{Type: ProviderAnthropic, BaseURL: server.URL, APIKey: "sk-ant-test"})
	out, err := client.Complete(context.Background(), "you are anna", "how much ram do I have?")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", out)
}

func TestCustomClientUsesOpenAIWireFormatAgainstGivenBaseURL(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(openAIChatResponse{
			Choices: []struct {
				Message openAIChatMessage `json:"message"`
			}{{Message: openAIChatMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := New(Config{Type: ProviderCustom, BaseURL: server.URL, Model: "local-model"})
	out, err := client.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "/chat/completions", gotPath)
}

func TestNewDefaultsToOllamaForUnknownProvider(t *testing.T) {
	client := New(Config{Type: ProviderType("unconfigured"), BaseURL: "http://localhost:11434", Model: "llama3"})
	_, ok := client.(*OllamaClient)
	assert.True(t, ok)
}
