// Package llmclient adapts an LLM backend into the JSON-in/JSON-out oracle
// the Orchestrator's Plan and Interpret phases call. Anna defaults to a
// local Ollama instance but the same Client contract is satisfied by a
// hosted OpenAI or Anthropic account, or any OpenAI-compatible self-hosted
// endpoint (vLLM, LocalAI, LM Studio) — see provider.go's New and
// ProviderType. Prompt-level quality and which model is configured are out
// of scope here: this package assumes only that it can be asked for a
// completion and may fail, time out, or return unparseable text.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/annassistant/anna/internal/retry"
)

// Message is one turn in a conversation transcript, in the role/content
// shape every chat-style LLM API expects.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the provider-agnostic contract the Orchestrator depends on.
// Anything satisfying this — a real Ollama instance, a canned stub in
// tests — can stand in as the oracle.
type Client interface {
	// Complete sends a system/user message pair and returns the model's
	// raw text response. Callers are responsible for parsing that text
	// as JSON; Complete itself never interprets it.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OllamaClient talks to a local Ollama instance's /api/generate endpoint.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	retryPolicy retry.Policy
}

// Option configures an OllamaClient.
type Option func(*OllamaClient)

// WithTemperature overrides the sampling temperature (default 0.2 — Anna
// wants terse, deterministic-leaning completions, not creative ones).
func WithTemperature(t float64) Option {
	return func(c *OllamaClient) { c.temperature = t }
}

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *OllamaClient) { c.httpClient = hc }
}

// WithRetryPolicy overrides the retry policy used around each call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *OllamaClient) { c.retryPolicy = p }
}

// NewOllamaClient builds a client against baseURL (e.g.
// "http://localhost:11434") for model.
func NewOllamaClient(baseURL, model string, opts ...Option) *OllamaClient {
	c := &OllamaClient{
		baseURL:     baseURL,
		model:       model,
		temperature: 0.2,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		retryPolicy: retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Prompt      string          `json:"prompt"`
	Stream      bool            `json:"stream"`
	Options     generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete implements Client by POSTing to Ollama's non-streaming generate
// endpoint, retrying transient failures per the configured retry policy.
func (c *OllamaClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var result string
	err := retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		resp, err := c.doGenerate(ctx, systemPrompt, userPrompt)
		if err != nil {
			return err
		}
		result = resp
		return nil
	})
	return result, err
}

func (c *OllamaClient) doGenerate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody, err := json.Marshal(generateRequest{
		Model:   c.model,
		System:  systemPrompt,
		Prompt:  userPrompt,
		Stream:  false,
		Options: generateOptions{Temperature: c.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	url := c.baseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", transientError{cause: fmt.Errorf("call ollama at %s: %w", url, err)}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return "", transientError{cause: fmt.Errorf("ollama returned %d", httpResp.StatusCode)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned %d", httpResp.StatusCode)
	}

	var body generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return body.Response, nil
}

// transientError marks a failure as worth retrying: connection refused,
// timeouts, and 5xx responses from a backend that's still starting up.
type transientError struct{ cause error }

func (e transientError) Error() string  { return e.cause.Error() }
func (e transientError) Unwrap() error  { return e.cause }
func (e transientError) Retryable() bool { return true }

// ToMessages is a small convenience for callers building a conversation
// transcript in the Message shape before flattening it into a single
// prompt string for Complete.
func ToMessages(systemPrompt, userPrompt string) []Message {
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
}
