package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/annassistant/anna/internal/retry"
)

// ProviderType selects which backend New dials. Anna runs against a local
// model by default (Ollama or any OpenAI-compatible self-hosted endpoint)
// but the same Complete contract works against a hosted provider when a
// user opts into one for heavier reasoning.
type ProviderType string

const (
	ProviderOllama    ProviderType = "ollama"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderCustom    ProviderType = "custom"
)

// Config selects and configures a provider. APIKey and BaseURL are
// interpreted per Type: Ollama uses BaseURL only. OpenAI and Anthropic use
// APIKey against their respective hosted APIs unless BaseURL overrides the
// host (a proxy or OpenAI-compatible gateway). Custom reuses the OpenAI
// client, so it also sends APIKey as a bearer token and falls back to the
// OpenAI host when BaseURL is empty.
type Config struct {
	Type        ProviderType
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// New dials the provider named by cfg.Type. An unrecognized or empty Type
// degrades to Ollama against cfg.BaseURL, matching the teacher's adapter
// pattern of falling back to the locally-hosted provider rather than
// failing a caller outright when no provider is configured.
func New(cfg Config) Client {
	switch cfg.Type {
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	case ProviderCustom:
		return newCustomClient(cfg)
	default:
		var opts []Option
		if cfg.Temperature != 0 {
			opts = append(opts, WithTemperature(cfg.Temperature))
		}
		return NewOllamaClient(cfg.BaseURL, cfg.Model, opts...)
	}
}

// httpCompleter is the shared retrying-HTTP-POST scaffold every hosted
// provider below reuses; only request construction and response
// extraction differ per provider's wire format.
type httpCompleter struct {
	httpClient  *http.Client
	retryPolicy retry.Policy
}

func newHTTPCompleter() httpCompleter {
	return httpCompleter{
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		retryPolicy: retry.DefaultPolicy(),
	}
}

func (h httpCompleter) postJSON(ctx context.Context, url string, headers map[string]string, body any) ([]byte, error) {
	var result []byte
	err := retry.Do(ctx, h.retryPolicy, func(ctx context.Context) error {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}

		httpResp, err := h.httpClient.Do(httpReq)
		if err != nil {
			return transientError{cause: fmt.Errorf("call %s: %w", url, err)}
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if httpResp.StatusCode >= 500 {
			return transientError{cause: fmt.Errorf("%s returned %d: %s", url, httpResp.StatusCode, respBody)}
		}
		if httpResp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s returned %d: %s", url, httpResp.StatusCode, respBody)
		}
		result = respBody
		return nil
	})
	return result, err
}

// --- OpenAI ---

type openAIClient struct {
	httpCompleter
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

func newOpenAIClient(cfg Config) *openAIClient {
	c := &openAIClient{
		httpCompleter: newHTTPCompleter(),
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.openai.com/v1"
	}
	if c.model == "" {
		c.model = "gpt-4o"
	}
	if c.temperature == 0 {
		c.temperature = 0.2
	}
	return c
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openAIChatRequest{
		Model: c.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	body, err := c.postJSON(ctx, c.baseURL+"/chat/completions", headers, req)
	if err != nil {
		return "", err
	}
	var resp openAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// --- Anthropic ---

type anthropicClient struct {
	httpCompleter
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	apiVersion  string
}

func newAnthropicClient(cfg Config) *anthropicClient {
	c := &anthropicClient{
		httpCompleter: newHTTPCompleter(),
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		maxTokens:     4096,
		apiVersion:    "2023-06-01",
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.anthropic.com/v1"
	}
	if c.model == "" {
		c.model = "claude-3-5-sonnet-20241022"
	}
	return c
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
}

func (c *anthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: userPrompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": c.apiVersion,
	}
	body, err := c.postJSON(ctx, c.baseURL+"/messages", headers, req)
	if err != nil {
		return "", err
	}
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// --- Custom OpenAI-compatible endpoint (vLLM, LocalAI, LM Studio, etc.) ---

type customClient struct {
	*openAIClient
}

// newCustomClient targets any OpenAI-compatible chat completions endpoint
// (vLLM, LocalAI, LM Studio, text-generation-webui) by reusing the OpenAI
// wire format against a caller-supplied BaseURL.
func newCustomClient(cfg Config) *customClient {
	return &customClient{openAIClient: newOpenAIClient(cfg)}
}
