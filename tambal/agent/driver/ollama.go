package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/odit-bit/tambal/tambal/agent"
	ollama "github.com/ollama/ollama/api"
)

const (
	_ollama_domain = "http://127.0.0.1:11434"
)

//-----------------------------------------------

var _ agent.Provider = (*OllamaAPI)(nil)

type OllamaAPI struct {
	c    *ollama.Client
	conf *Config
}

func NewOllamaAdapter(config *Config) (*OllamaAPI, error) {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = _ollama_domain
	}
	oUrl, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("ollama_adapter failed parse endpoint: %w", err)
	}
	cli := ollama.NewClient(oUrl, http.DefaultClient)
	return &OllamaAPI{
		c:    cli,
		conf: config,
	}, nil
}

// Chat implements agent.Provider.
func (oapi *OllamaAPI) Chat(ctx context.Context, model string, msgs []*agent.Message) agent.Result {
	oMsgs := make([]ollama.Message, 0, len(msgs))
	for _, msg := range msgs {
		oMsgs = append(oMsgs, ollama.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	stream := false
	oReq := &ollama.ChatRequest{
		Model:    model,
		Messages: oMsgs,
		Stream:   &stream,
		Options:  oapi.options(),
	}

	var text, answeredBy string
	err := oapi.c.Chat(ctx, oReq, func(cr ollama.ChatResponse) error {
		text += cr.Message.Content
		answeredBy = cr.Model
		return nil
	})
	if err != nil {
		return agent.Result{Outcome: ollamaOutcome(err), Err: fmt.Errorf("ollama_adapter: %w", err)}
	}
	return agent.Result{Outcome: agent.Success, Text: text, Model: answeredBy}
}

func (oapi *OllamaAPI) options() map[string]any {
	opts := map[string]any{}
	if oapi.conf.Temperature != nil {
		opts["temperature"] = *oapi.conf.Temperature
	}
	if oapi.conf.TopP != nil {
		opts["top_p"] = *oapi.conf.TopP
	}
	if oapi.conf.TopK != nil {
		opts["top_k"] = *oapi.conf.TopK
	}
	if oapi.conf.MinP != nil {
		opts["min_p"] = *oapi.conf.MinP
	}
	if oapi.conf.MaxTokens > 0 {
		opts["num_predict"] = oapi.conf.MaxTokens
	}
	return opts
}

func ollamaOutcome(err error) agent.Outcome {
	var se ollama.StatusError
	if errors.As(err, &se) {
		return agent.OutcomeFromStatus(se.StatusCode)
	}
	return agent.TransportError
}
