package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/odit-bit/tambal/tambal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func testMessages() []*agent.Message {
	return []*agent.Message{
		agent.NewTextMessage(agent.RoleSystem, "you fix code"),
		agent.NewTextMessage(agent.RoleUser, "TypeError: x"),
	}
}

func TestOpenAIAdapter_success(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.org", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "tambal", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1","model":"deepseek/deepseek-r1","choices":[{"index":0,"message":{"role":"assistant","content":"fixed"}}]}`)
	}))
	defer srv.Close()

	d, err := NewOpenAIAdapter("secret", &Config{
		Endpoint: srv.URL + "/api/v1/",
		Referer:  "https://example.org",
		Title:    "tambal",
	})
	require.NoError(t, err)

	res := d.Chat(context.Background(), "deepseek/deepseek-r1", testMessages())
	require.Equal(t, agent.Success, res.Outcome, res.Err)
	assert.Equal(t, "fixed", res.Text)

	assert.Equal(t, "deepseek/deepseek-r1", got.Model)
	assert.Len(t, got.Messages, 2)
	assert.InDelta(t, 0.3, got.Temperature, 1e-6)
	assert.Equal(t, 8192, got.MaxTokens)
}

func TestOpenAIAdapter_statusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   agent.Outcome
	}{
		{http.StatusUnauthorized, agent.AuthError},
		{http.StatusTooManyRequests, agent.RateLimited},
		{http.StatusServiceUnavailable, agent.Overloaded},
		{529, agent.Overloaded},
		{http.StatusNotFound, agent.ModelUnavailable},
		{http.StatusBadRequest, agent.ModelUnavailable},
		{http.StatusInternalServerError, agent.ServerError},
		{http.StatusBadGateway, agent.ServerError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, `{"error":{"message":"nope"}}`)
			}))
			defer srv.Close()

			d, err := NewOpenAIAdapter("k", &Config{Endpoint: srv.URL})
			require.NoError(t, err)
			res := d.Chat(context.Background(), "m", testMessages())
			assert.Equal(t, tc.want, res.Outcome)
			assert.Error(t, res.Err)
		})
	}
}

func TestOpenAIAdapter_malformed(t *testing.T) {
	bodies := map[string]string{
		"bad json":   `{"choices": [`,
		"no choices": `{"id":"1","choices":[]}`,
		"null text":  `{"id":"1","choices":[{"message":{"role":"assistant","content":null}}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			}))
			defer srv.Close()

			d, err := NewOpenAIAdapter("k", &Config{Endpoint: srv.URL})
			require.NoError(t, err)
			res := d.Chat(context.Background(), "m", testMessages())
			assert.Equal(t, agent.Malformed, res.Outcome)
		})
	}
}

func TestOpenAIAdapter_embeddedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":{"message":"rate limited upstream","code":429}}`)
	}))
	defer srv.Close()

	d, err := NewOpenAIAdapter("k", &Config{Endpoint: srv.URL})
	require.NoError(t, err)
	res := d.Chat(context.Background(), "m", testMessages())
	assert.Equal(t, agent.RateLimited, res.Outcome)
}

func TestOpenAIAdapter_transportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	d, err := NewOpenAIAdapter("k", &Config{Endpoint: url})
	require.NoError(t, err)
	res := d.Chat(context.Background(), "m", testMessages())
	assert.Equal(t, agent.TransportError, res.Outcome)
}

func TestNewOpenAIAdapter_validates(t *testing.T) {
	_, err := NewOpenAIAdapter("", &Config{})
	assert.Error(t, err)

	_, err = NewOpenAIAdapter("k", &Config{Endpoint: "not a url"})
	assert.Error(t, err)

	d, err := NewOpenAIAdapter("k", &Config{})
	require.NoError(t, err)
	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", d.endpoint)
}

func TestOllamaAdapter_success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen3:1.7b", req["model"])
		assert.Equal(t, false, req["stream"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"qwen3:1.7b","message":{"role":"assistant","content":"fixed"},"done":true}`+"\n")
	}))
	defer srv.Close()

	temp := float32(0.2)
	d, err := NewOllamaAdapter(&Config{Endpoint: srv.URL, Temperature: &temp})
	require.NoError(t, err)

	res := d.Chat(context.Background(), "qwen3:1.7b", testMessages())
	require.Equal(t, agent.Success, res.Outcome, res.Err)
	assert.Equal(t, "fixed", res.Text)
	assert.Equal(t, "qwen3:1.7b", res.Model)
}

func TestOllamaAdapter_statusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   agent.Outcome
	}{
		{http.StatusTooManyRequests, agent.RateLimited},
		{http.StatusServiceUnavailable, agent.Overloaded},
		{http.StatusNotFound, agent.ModelUnavailable},
		{http.StatusInternalServerError, agent.ServerError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				io.WriteString(w, `{"error":"model failed"}`+"\n")
			}))
			defer srv.Close()

			d, err := NewOllamaAdapter(&Config{Endpoint: srv.URL})
			require.NoError(t, err)
			res := d.Chat(context.Background(), "m", testMessages())
			assert.Equal(t, tc.want, res.Outcome, res.Err)
		})
	}
}

func TestOllamaOutcome_transport(t *testing.T) {
	assert.Equal(t, agent.TransportError, ollamaOutcome(errors.New("connection refused")))
}

func TestToContents(t *testing.T) {
	sys, contents, err := toContents([]*agent.Message{
		agent.NewTextMessage(agent.RoleSystem, "sys"),
		agent.NewTextMessage(agent.RoleUser, "q1"),
		agent.NewTextMessage(agent.RoleAssistant, "a1"),
		agent.NewTextMessage(agent.RoleUser, "q2"),
	})
	require.NoError(t, err)
	require.NotNil(t, sys)
	assert.Equal(t, "sys", sys.Parts[0].Text)

	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "q2", contents[2].Parts[0].Text)
	assert.Equal(t, (*genai.Blob)(nil), contents[0].Parts[0].InlineData)

	_, _, err = toContents([]*agent.Message{agent.NewTextMessage(agent.RoleSystem, "only system")})
	assert.Error(t, err)

	_, _, err = toContents([]*agent.Message{agent.NewTextMessage("tool", "x")})
	assert.Error(t, err)
}

func TestGenaiOutcome(t *testing.T) {
	assert.Equal(t, agent.AuthError, genaiOutcome(genai.APIError{Code: 401}))
	assert.Equal(t, agent.RateLimited, genaiOutcome(fmt.Errorf("wrapped: %w", genai.APIError{Code: 429})))
	assert.Equal(t, agent.Overloaded, genaiOutcome(genai.APIError{Code: 503}))
	assert.Equal(t, agent.TransportError, genaiOutcome(context.DeadlineExceeded))
}

func TestNew_unknownProvider(t *testing.T) {
	_, err := New(context.Background(), "bogus", "k", nil)
	assert.Error(t, err)

	p, err := New(context.Background(), NameOllama, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &OllamaAPI{}, p)
}
