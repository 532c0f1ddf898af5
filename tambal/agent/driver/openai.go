package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/odit-bit/tambal/tambal/agent"
)

const (
	_openai_domain           = "https://openrouter.ai/api/v1"
	_openai_completions_path = "chat/completions"

	_openai_default_temperature = 0.3
	_openai_default_max_tokens  = 8192

	// error bodies are only kept for logs
	_openai_max_error_body = 4096
)

var _ agent.Provider = (*OpenAIAdapter)(nil)

// OpenAIAdapter speaks the OpenAI chat-completions dialect (OpenRouter, Groq, vLLM).
type OpenAIAdapter struct {
	hc       *http.Client
	apiKey   string
	endpoint string
	config   Config
}

func NewOpenAIAdapter(key string, config *Config) (*OpenAIAdapter, error) {
	if key == "" {
		return nil, fmt.Errorf("openai_adapter api key cannot be empty")
	}
	base := config.Endpoint
	if base == "" {
		base = _openai_domain
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("openai_adapter failed parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("openai_adapter invalid base url: %q", base)
	}

	return &OpenAIAdapter{
		hc:       http.DefaultClient,
		apiKey:   key,
		endpoint: strings.TrimRight(u.String(), "/") + "/" + _openai_completions_path,
		config:   *config,
	}, nil
}

// Chat sends one request, no retries. Fallback belongs to the dispatcher.
func (d *OpenAIAdapter) Chat(ctx context.Context, model string, msgs []*agent.Message) agent.Result {
	input := openaiRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: d.config.temperature(_openai_default_temperature),
		TopP:        d.config.TopP,
		MaxTokens:   d.config.maxTokens(_openai_default_max_tokens),
	}
	b, err := json.Marshal(input)
	if err != nil {
		return agent.Result{Outcome: agent.Malformed, Err: err}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(b))
	if err != nil {
		return agent.Result{Outcome: agent.TransportError, Err: err}
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", fmt.Sprintf("Bearer %s", d.apiKey))
	if d.config.Referer != "" {
		request.Header.Set("HTTP-Referer", d.config.Referer)
	}
	if d.config.Title != "" {
		request.Header.Set("X-Title", d.config.Title)
	}

	slog.Debug("provider request", "endpoint", d.endpoint, "model", model)
	resp, err := d.hc.Do(request)
	if err != nil {
		return agent.Result{Outcome: agent.TransportError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bb, _ := io.ReadAll(io.LimitReader(resp.Body, _openai_max_error_body))
		return agent.Result{
			Outcome: agent.OutcomeFromStatus(resp.StatusCode),
			Err:     fmt.Errorf("openai_adapter status %s: %s", resp.Status, bytes.TrimSpace(bb)),
		}
	}

	var out openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return agent.Result{Outcome: agent.Malformed, Err: fmt.Errorf("openai_adapter response error: %w", err)}
	}

	// some gateways answer 200 with an upstream error embedded in the body
	if out.Error != nil {
		outcome := agent.ServerError
		if code, ok := out.Error.Code.(float64); ok && code > 0 {
			outcome = agent.OutcomeFromStatus(int(code))
		}
		return agent.Result{Outcome: outcome, Err: fmt.Errorf("openai_adapter upstream error: %s", out.Error.Message)}
	}

	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return agent.Result{Outcome: agent.Malformed, Err: errors.New("openai_adapter response has no choices")}
	}

	return agent.Result{
		Outcome: agent.Success,
		Text:    *out.Choices[0].Message.Content,
		Model:   out.Model,
	}
}

type openaiRequest struct {
	Model       string           `json:"model"`
	Messages    []*agent.Message `json:"messages"`
	Temperature float32          `json:"temperature"`
	TopP        *float32         `json:"top_p,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"` // null or string
}

type openaiError struct {
	Message string `json:"message"`
	// numeric on OpenRouter, a string on OpenAI
	Code any `json:"code"`
}
