// Package openai provides an OpenAI-compatible implementation of the llm
// provider capability. It works against the standard OpenAI API as well as
// Azure OpenAI and local OpenAI-compatible servers via a custom base URL.
package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"context"

	openaisdk "github.com/openai/openai-go"

	"github.com/entrhq/autopilot/pkg/llm"
)

const (
	// DefaultBaseURL is the standard OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model option is given.
	DefaultModel = "gpt-4o"
)

const systemPrompt = `You are a browser automation agent. You are given a task,
the current page state, and the history of actions taken so far. Respond with
exactly one JSON object and nothing else.

To act: {"action": "navigate|click|fill|extract|scroll|wait", "target": "<css selector or label>", "value": "<text or url>", "rationale": "<why this action follows from the page state>"}
If you had to work around an unexpected page state (cookie banner, modal, ad),
include: "obstacle": {"kind": "cookie_banner|modal|ad|captcha|random_redirect|bot_detection", "selector": "<selector>", "likelihood": <0..1 chance it reappears on a rerun>, "handling": "<how you cleared it>"}
If the step required choosing between options based on page content, include:
"question": "<what you had to decide>", "alternatives": ["<option>", ...]
When the task is complete: {"done": true, "result": "<extracted data or confirmation>"}

Keep rationales short. Prefer structural targets (ids, labels, stable classes)
over positional ones.`

// Provider implements llm.Provider against an OpenAI-compatible API.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the model used for decisions.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the provider at a custom OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// NewProvider creates a provider. An empty apiKey falls back to the
// OPENAI_API_KEY environment variable; an unset base URL falls back to
// OPENAI_BASE_URL, then the public API.
func NewProvider(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required (parameter or OPENAI_API_KEY)")
	}

	p := &Provider{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.baseURL == DefaultBaseURL {
		if env := os.Getenv("OPENAI_BASE_URL"); env != "" {
			p.baseURL = env
		}
	}
	return p, nil
}

// Decide sends the step context to the model and parses its JSON reply into
// a Decision.
func (p *Provider) Decide(ctx context.Context, sc llm.StepContext) (llm.Decision, error) {
	messages := []openaisdk.ChatCompletionMessageParamUnion{
		openaisdk.SystemMessage(systemPrompt),
		openaisdk.UserMessage(renderStepContext(sc)),
	}

	raw, err := p.complete(ctx, messages)
	if err != nil {
		return llm.Decision{}, err
	}
	return llm.ParseDecision(raw)
}

// complete performs one non-streaming chat completion and returns the
// assistant's text content.
func (p *Provider) complete(ctx context.Context, messages []openaisdk.ChatCompletionMessageParamUnion) (string, error) {
	reqBody := map[string]interface{}{
		"model":    p.model,
		"messages": messages,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("openai: API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai: response contained no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// renderStepContext formats the task, history, and current observation for
// the user message.
func renderStepContext(sc llm.StepContext) string {
	var b strings.Builder
	b.WriteString("TASK:\n")
	b.WriteString(sc.Task)
	b.WriteString("\n\n")

	if len(sc.History) > 0 {
		b.WriteString("HISTORY (oldest first):\n")
		for _, h := range sc.History {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("CURRENT PAGE:\n")
	b.WriteString(sc.Observation)
	b.WriteString("\n\nRespond with one JSON object.")
	return b.String()
}
