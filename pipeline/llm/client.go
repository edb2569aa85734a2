// Package llm is the HTTP adapter for OpenAI-compatible model backends.
//
// The engine talks to a single inference server (vLLM, llama.cpp,
// tabbyAPI, or hosted OpenAI-compatible gateways) over two endpoints:
// /chat/completions for chat-shaped requests and /completions for raw
// prompts that were pre-rendered through a chat template. Sampler
// parameters are forwarded verbatim, so backend-specific knobs like min_p,
// repetition_penalty and guided_json pass straight through.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Environment configuration for the model backend.
const (
	// EnvBaseURL overrides the backend base URL (default DefaultBaseURL).
	EnvBaseURL = "OPENAI_BASE_URL"
	// EnvAPIKey holds the static bearer token sent with every request.
	EnvAPIKey = "OPENAI_API_KEY"

	DefaultBaseURL = "http://127.0.0.1:3333/v1"
)

// Message is one chat message in the OpenAI wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Standard role names.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sampler is the set of decoding parameters forwarded verbatim to the
// backend. It is an open map rather than a struct because schema
// constraints (response_format, guided_json, json_schema) and
// server-specific fields are merged into it per request.
type Sampler map[string]any

// DefaultSampler returns the completion-step decoding defaults.
func DefaultSampler() Sampler {
	return Sampler{
		"temperature":        1.0,
		"min_p":              0.05,
		"repetition_penalty": 1.1,
		"max_tokens":         2048,
		"min_tokens":         10,
	}
}

// Clone returns a shallow copy so per-request mutation does not leak into
// a shared default.
func (s Sampler) Clone() Sampler {
	out := make(Sampler, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Requester is the client surface the built-in steps consume. Tests
// substitute a stub; Client is the production implementation.
type Requester interface {
	Request(ctx context.Context, completion bool, model string, messages []Message, sampler Sampler, n int) ([]string, error)
}

// Client is the unified chat + legacy-completion HTTP adapter.
//
// No retries are performed here: transport failures and non-2xx statuses
// propagate to the calling step, which aborts its output slot. Retry
// policy, if any, belongs to the step.
type Client struct {
	// BaseURL is the backend root, e.g. "http://127.0.0.1:3333/v1".
	BaseURL string
	// APIKey is sent as a bearer token on every request.
	APIKey string
	// HTTPClient issues the requests. NewClient installs a 5 minute
	// timeout; override for slower backends.
	HTTPClient *http.Client
}

// NewClient creates a Client for the given backend.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// NewClientFromEnv creates a Client from OPENAI_BASE_URL and
// OPENAI_API_KEY, falling back to the local default backend.
func NewClientFromEnv() *Client {
	baseURL := os.Getenv(EnvBaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return NewClient(baseURL, os.Getenv(EnvAPIKey))
}

// apiResponse covers both response shapes the backends produce: the
// OpenAI shape (choices[].message.content for chat, choices[].text for
// completion) and the llama.cpp legacy shape (top-level content).
type apiResponse struct {
	Choices []struct {
		Text    string `json:"text"`
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Content *string `json:"content"`
}

// Request sends one generation request and returns the answers.
//
// With completion=false the messages go to /chat/completions and n fans
// out server-side. With completion=true the first message's content is
// sent as a raw prompt to /completions; legacy backends only produce one
// answer per call, so n > 1 is served by sequential requests.
func (c *Client) Request(ctx context.Context, completion bool, model string, messages []Message, sampler Sampler, n int) ([]string, error) {
	if model == "" {
		return nil, fmt.Errorf("llm request requires a model")
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("llm request requires at least one message")
	}
	if n < 1 {
		n = 1
	}

	if !completion {
		body := map[string]any{
			"model":    model,
			"n":        n,
			"messages": messages,
		}
		for k, v := range sampler {
			body[k] = v
		}
		return c.post(ctx, "/chat/completions", body)
	}

	// Legacy completion path: raw prompt, one answer per request.
	answers := make([]string, 0, n)
	for i := 0; i < n; i++ {
		body := map[string]any{
			"model":  model,
			"prompt": messages[0].Content,
		}
		for k, v := range sampler {
			body[k] = v
		}
		batch, err := c.post(ctx, "/completions", body)
		if err != nil {
			return nil, err
		}
		answers = append(answers, batch...)
	}
	return answers, nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) ([]string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("POST %s: read response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, truncate(respBody, 512))
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("POST %s: decode response: %w", path, err)
	}

	if len(parsed.Choices) > 0 {
		answers := make([]string, 0, len(parsed.Choices))
		for _, choice := range parsed.Choices {
			if choice.Message != nil {
				answers = append(answers, choice.Message.Content)
			} else {
				answers = append(answers, choice.Text)
			}
		}
		return answers, nil
	}
	if parsed.Content != nil {
		// llama.cpp legacy shape.
		return []string{*parsed.Content}, nil
	}
	return nil, fmt.Errorf("POST %s: unrecognized response shape: %s", path, truncate(respBody, 256))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
